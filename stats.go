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
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// codeStatusName http状态码
var codeStatusName = [][]int{{100, 101}, {200, 206}, {300, 308}, {400, 431}, {500, 511}}

const (
	// RequestStats requests submitted to the runtime
	RequestStats string = "requests"
	// CompletedStats requests that produced a response
	CompletedStats string = "completed"
	// NotFoundStats requests whose script could not be resolved
	NotFoundStats string = "not_found"
	// ExceptionStats scripts that raised an uncaught exception
	ExceptionStats string = "exceptions"
	// ErrorStats other per-request failures
	ErrorStats string = "errors"
	// RewriteStats requests changed by the rewrite rules
	RewriteStats string = "rewrites"
	// StartupFailStats contexts that failed to start
	StartupFailStats string = "startup_fail"
)

type RuntimeStatus struct {
	StartAt  int64
	Duration float64
	StopAt   int64
	// StatusOn 当前运行状态
	StatusOn StatusType
	mu       sync.RWMutex
}

func NewRuntimeStatus() *RuntimeStatus {
	return &RuntimeStatus{
		StatusOn: ON_STOP,
	}
}

// SetStatus 设置运行状态
func (r *RuntimeStatus) SetStatus(status StatusType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StatusOn = status
}

// GetStatusOn 获取运行状态
func (r *RuntimeStatus) GetStatusOn() StatusType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StatusOn
}

func (r *RuntimeStatus) SetStartAt(startAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartAt = startAt
}

// GetStartAt 获取启动的时间戳
func (r *RuntimeStatus) GetStartAt() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StartAt
}

func (r *RuntimeStatus) SetStopAt(stopAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StopAt = stopAt
}

// GetStopAt 停止的时间戳
func (r *RuntimeStatus) GetStopAt() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.StopAt
}

func (r *RuntimeStatus) SetDuration(duration float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Duration = duration
}

// GetDuration 运行时长，秒，保留两位小数。运行中按当前时间计算
func (r *RuntimeStatus) GetDuration() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	duration := r.Duration
	if r.StatusOn == ON_START && r.StartAt > 0 {
		duration = float64(time.Now().UnixMilli()-r.StartAt) / 1000
	}
	return decimal.NewFromFloat(duration).Round(2).InexactFloat64()
}

// StatisticInterface 数据统计组件接口
type StatisticInterface interface {
	GetAllStats() map[string]uint64
	Incr(metric string)
	Get(metric string) uint64
	// Observe records the execution time of one request
	Observe(elapsed time.Duration)
	// AverageMillis mean execution time in milliseconds
	AverageMillis() float64
}

// DefaultStatistic 数据统计指标
type DefaultStatistic struct {
	Metrics  sync.Map
	register sync.Map
	elapsed  uint64
	observed uint64
}

// NewDefaultStatistic 默认统计数据组件构造函数
func NewDefaultStatistic() *DefaultStatistic {
	s := &DefaultStatistic{}
	for _, name := range []string{RequestStats, CompletedStats, NotFoundStats, ExceptionStats, ErrorStats, RewriteStats, StartupFailStats} {
		s.Metrics.Store(name, new(uint64))
	}
	for _, status := range codeStatusName {
		min, max := status[0], status[1]
		for i := min; i <= max; i++ {
			s.Metrics.Store(strconv.Itoa(i), new(uint64))
		}
	}
	return s
}

func (s *DefaultStatistic) counter(metric string) *uint64 {
	v, _ := s.Metrics.LoadOrStore(metric, new(uint64))
	return v.(*uint64)
}

// Incr 新增一个指标值
func (s *DefaultStatistic) Incr(metric string) {
	atomic.AddUint64(s.counter(metric), 1)
	s.register.Store(metric, true)
}

// Get 获取某个指标的数值
func (s *DefaultStatistic) Get(metric string) uint64 {
	v, ok := s.Metrics.Load(metric)
	if !ok {
		return 0
	}
	return atomic.LoadUint64(v.(*uint64))
}

// GetAllStats 已产生数据的指标
func (s *DefaultStatistic) GetAllStats() map[string]uint64 {
	result := make(map[string]uint64)
	s.register.Range(func(key any, _ any) bool {
		k := key.(string)
		result[k] = s.Get(k)
		return true
	})
	return result
}

func (s *DefaultStatistic) Observe(elapsed time.Duration) {
	atomic.AddUint64(&s.elapsed, uint64(elapsed.Microseconds()))
	atomic.AddUint64(&s.observed, 1)
}

func (s *DefaultStatistic) AverageMillis() float64 {
	n := atomic.LoadUint64(&s.observed)
	if n == 0 {
		return 0
	}
	total := decimal.NewFromInt(int64(atomic.LoadUint64(&s.elapsed)))
	return total.Div(decimal.NewFromInt(int64(n))).Div(decimal.NewFromInt(1000)).Round(3).InexactFloat64()
}
