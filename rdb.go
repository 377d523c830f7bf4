// MIT License

// Copyright (c) 2023 wetrycode

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:

// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package argiope

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

// RedisConfig redis connection settings
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	ConnectionsSize int           `mapstructure:"connections"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetry        int           `mapstructure:"max_retry"`
}

// NewRdbConfig redis 配置构造函数
func NewRdbConfig(config *RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		//连接池容量及闲置连接数量
		PoolSize:     config.ConnectionsSize,
		MinIdleConns: 2,

		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
		PoolTimeout:  config.Timeout,

		ConnMaxIdleTime: 5 * time.Minute,

		//命令执行失败时的重试策略
		MaxRetries:      config.MaxRetry,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}
}

// NewRdbClient connects and pings the server
func NewRdbClient(config *RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(NewRdbConfig(config))
	if err := rdb.Ping(context.TODO()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", config.Addr, err)
	}
	return rdb, nil
}

// RedisLogSink pushes captured script logs onto a redis list
type RedisLogSink struct {
	client redis.UniversalClient
	key    string
	maxLen int64
}

// redisLogRecord one list element
type redisLogRecord struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Log    string `json:"log"`
	Time   int64  `json:"time"`
}

// RedisLogSinkOption optional parameters of NewRedisLogSink
type RedisLogSinkOption func(s *RedisLogSink)

// RedisLogSinkWithMaxLen keeps only the newest maxLen records
func RedisLogSinkWithMaxLen(maxLen int64) RedisLogSinkOption {
	return func(s *RedisLogSink) {
		s.maxLen = maxLen
	}
}

// NewRedisLogSink writes to the list at key
func NewRedisLogSink(client redis.UniversalClient, key string, opts ...RedisLogSinkOption) *RedisLogSink {
	s := &RedisLogSink{
		client: client,
		key:    key,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisLogSink) Write(ctx context.Context, req *Request, log []byte) error {
	record, err := jsoniter.Marshal(redisLogRecord{
		Method: req.Method(),
		URL:    req.URL(),
		Log:    string(log),
		Time:   time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, record)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, s.key, -s.maxLen, -1)
	}
	_, err = pipe.Exec(ctx)
	return err
}
