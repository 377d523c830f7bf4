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
	"os"
	"path"
	"runtime"
	"sync"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/wetrycode/argiope/sapi"
)

type Settings interface {
	// GetValue 获取指定的参数值
	GetValue(key string) (interface{}, error)
}

type Configuration struct {
	*viper.Viper
}

var onceConfig sync.Once
var Config *Configuration = nil

// NewConfiguration a configuration with the runtime defaults set
func NewConfiguration() *Configuration {
	c := &Configuration{viper.New()}
	c.SetDefault("runtime.index", "index.lua")
	c.SetDefault("runtime.queue_size", 1024)
	c.SetDefault("runtime.throw_request_errors", false)
	c.SetDefault("log.level", "info")
	c.SetDefault("server.addr", ":8080")
	c.SetDefault("redis.key", "argiope:logs")
	return c
}

func newArgiopeConfig() {
	onceConfig.Do(func() {
		Config = NewConfiguration()
	})
}

func (c *Configuration) GetValue(key string) (interface{}, error) {
	value := c.Get(key)
	return value, nil
}

func (c *Configuration) load(dir string) bool {
	c.AddConfigPath(dir)
	c.SetConfigName("settings")
	c.SetConfigType("yaml")
	return c.ReadInConfig() == nil
}

// LoadSettings reads settings.yaml from dir on fs
func LoadSettings(fs afero.Fs, dir string) (*Configuration, error) {
	c := NewConfiguration()
	c.SetFs(fs)
	c.AddConfigPath(dir)
	c.SetConfigName("settings")
	c.SetConfigType("yaml")
	if err := c.ReadInConfig(); err != nil {
		return nil, err
	}
	return c, nil
}

func initSettings() {
	newArgiopeConfig()
	wd, _ := os.Getwd()
	var abPath string

	_, filename, _, ok := runtime.Caller(0)
	if ok {
		abPath = path.Dir(filename)
	}
	if !Config.load(wd) {
		Config.load(abPath)
	}
}

// RuntimeOptionsFromSettings maps the runtime.* keys onto runtime options.
// Keys that are not set keep the runtime defaults.
func RuntimeOptionsFromSettings(c *Configuration) ([]RuntimeOption, error) {
	opts := make([]RuntimeOption, 0)
	if c.IsSet("runtime.workers") {
		opts = append(opts, RuntimeWithWorkers(c.GetInt("runtime.workers")))
	}
	if docroot := c.GetString("runtime.docroot"); docroot != "" {
		opts = append(opts, RuntimeWithDocroot(docroot))
	}
	if c.IsSet("runtime.argv") {
		opts = append(opts, RuntimeWithArgv(c.GetStringSlice("runtime.argv")))
	}
	opts = append(opts,
		RuntimeWithThrowRequestErrors(c.GetBool("runtime.throw_request_errors")),
		RuntimeWithIndex(c.GetString("runtime.index")),
	)
	if size := c.GetInt("runtime.queue_size"); size > 0 {
		opts = append(opts, RuntimeWithQueueSize(uint32(size)))
	} else {
		return nil, newConfigurationError("runtime.queue_size", "must be positive, got %d", size)
	}
	if rate := c.GetInt("runtime.rate"); rate > 0 {
		opts = append(opts, RuntimeWithLimiter(NewDefaultLimiter(rate)))
	}
	if interval := c.GetDuration("runtime.heartbeat"); interval > 0 {
		opts = append(opts, RuntimeWithHeartbeat(interval))
	}
	if c.IsSet("runtime.rewrite") {
		rules, err := RulesFromValue(c.Get("runtime.rewrite"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, RuntimeWithRewriteRules(rules))
	}
	if c.IsSet("runtime.ini") {
		ini := sapi.DefaultIni().Merge(c.GetStringMapString("runtime.ini"))
		opts = append(opts, RuntimeWithIni(ini))
	}
	return opts, nil
}

// RedisConfigFromSettings decodes the redis section. ok is false when no
// address is configured.
func RedisConfigFromSettings(c *Configuration) (config *RedisConfig, ok bool, err error) {
	if c.GetString("redis.addr") == "" {
		return nil, false, nil
	}
	config = &RedisConfig{}
	if err := c.UnmarshalKey("redis", config); err != nil {
		return nil, false, newConfigurationError("redis", "%s", err.Error())
	}
	return config, true, nil
}
