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

package metric

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bsm/redislock"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/wetrycode/argiope"
)

var metricLog = argiope.GetLogger("metric")

// Measurement influxdb measurement of runtime counters
const Measurement = "argiope_runtime"

// RuntimeMetricCollector 数据指标采集器.
// It is an event hook: every heartbeat and the final stop event write the
// counters carried by the event to influxdb.
type RuntimeMetricCollector struct {
	argiope.DefaultHooks
	influxdbWrite api.WriteAPIBlocking
	locker        *redislock.Client
	lockKey       string
	host          string
	timeout       time.Duration
}

// CollectorOption optional parameters of NewRuntimeMetricCollector
type CollectorOption func(c *RuntimeMetricCollector)

// CollectorWithLocker only the replica holding the redis lock writes
func CollectorWithLocker(locker *redislock.Client, key string) CollectorOption {
	return func(c *RuntimeMetricCollector) {
		c.locker = locker
		c.lockKey = key
	}
}

// CollectorWithHost tag value identifying this process
func CollectorWithHost(host string) CollectorOption {
	return func(c *RuntimeMetricCollector) {
		c.host = host
	}
}

// NewInfluxdb 构建influxdb 客户端
func NewInfluxdb(serverURL string, token string, bucket string, org string) api.WriteAPIBlocking {
	client := influxdb2.NewClientWithOptions(serverURL, token, influxdb2.DefaultOptions().SetUseGZip(true).SetMaxRetries(3))
	return client.WriteAPIBlocking(org, bucket)
}

// NewRuntimeMetricCollector 构建采集器
func NewRuntimeMetricCollector(write api.WriteAPIBlocking, opts ...CollectorOption) *RuntimeMetricCollector {
	host, _ := os.Hostname()
	c := &RuntimeMetricCollector{
		influxdbWrite: write,
		host:          host,
		timeout:       10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Collect writes one point holding every counter
func (c *RuntimeMetricCollector) Collect(ctx context.Context, stats map[string]uint64) error {
	if len(stats) == 0 {
		return nil
	}
	if c.locker != nil {
		lock, err := c.locker.Obtain(ctx, c.lockKey, c.timeout, &redislock.Options{})
		if err == redislock.ErrNotObtained {
			metricLog.Debugf("metric lock %s held by another process", c.lockKey)
			return nil
		}
		if err != nil {
			return fmt.Errorf("obtain metric lock: %w", err)
		}
		defer func() {
			_ = lock.Release(context.Background())
		}()
	}
	p := influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("host", c.host).
		SetTime(time.Now())
	for key, value := range stats {
		p.AddField(key, value)
	}
	return c.influxdbWrite.WritePoint(ctx, p)
}

func (c *RuntimeMetricCollector) collectParams(params ...interface{}) error {
	if len(params) == 0 {
		return nil
	}
	stats, ok := params[0].(map[string]uint64)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.Collect(ctx, stats); err != nil {
		// a failed write must not stop the event watcher
		metricLog.Errorf("采集数据错误:%s", err.Error())
	}
	return nil
}

func (c *RuntimeMetricCollector) Heartbeat(params ...interface{}) error {
	return c.collectParams(params...)
}

func (c *RuntimeMetricCollector) Stop(params ...interface{}) error {
	return c.collectParams(params...)
}

func (c *RuntimeMetricCollector) EventsWatcher(ch chan argiope.Event) error {
	return argiope.DefaultWatcher(ch, c)
}

// CollectorFromSettings builds a collector from the metric.influxdb
// section. ok is false when no server url is configured.
func CollectorFromSettings(c *argiope.Configuration, opts ...CollectorOption) (collector *RuntimeMetricCollector, ok bool) {
	url := c.GetString("metric.influxdb.url")
	if url == "" {
		return nil, false
	}
	write := NewInfluxdb(url,
		c.GetString("metric.influxdb.token"),
		c.GetString("metric.influxdb.bucket"),
		c.GetString("metric.influxdb.org"))
	return NewRuntimeMetricCollector(write, opts...), true
}
