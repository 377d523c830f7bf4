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

// ComponentInterface 系统组件接口
// 包含了运行时的可替换组件
type ComponentInterface interface {
	// GetLimiter 限速器组件
	GetLimiter() LimitInterface
	// GetStats 指标统计组件
	GetStats() StatisticInterface
	// GetEventHooks 事件监控组件
	GetEventHooks() EventHooksInterface
	// GetLogSink 脚本日志接收组件
	GetLogSink() LogSink
}

type DefaultComponents struct {
	limiter   LimitInterface
	statistic StatisticInterface
	events    EventHooksInterface
	sink      LogSink
}
type DefaultComponentsOption func(d *DefaultComponents)

func NewDefaultComponents(opts ...DefaultComponentsOption) *DefaultComponents {
	d := &DefaultComponents{
		limiter:   NoLimitLimiter{},
		statistic: NewDefaultStatistic(),
		events:    NewDefaultHooks(),
		sink:      NewLoggerSink(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *DefaultComponents) GetLimiter() LimitInterface {
	return d.limiter
}
func (d *DefaultComponents) GetStats() StatisticInterface {
	return d.statistic
}
func (d *DefaultComponents) GetEventHooks() EventHooksInterface {
	return d.events
}
func (d *DefaultComponents) GetLogSink() LogSink {
	return d.sink
}

func DefaultComponentsWithLimiter(limiter LimitInterface) DefaultComponentsOption {
	return func(r *DefaultComponents) {
		r.limiter = limiter
	}
}
func DefaultComponentsWithStatistic(statistic StatisticInterface) DefaultComponentsOption {
	return func(r *DefaultComponents) {
		r.statistic = statistic
	}
}
func DefaultComponentsWithHooks(events EventHooksInterface) DefaultComponentsOption {
	return func(r *DefaultComponents) {
		r.events = events
	}
}
func DefaultComponentsWithLogSink(sink LogSink) DefaultComponentsOption {
	return func(r *DefaultComponents) {
		r.sink = sink
	}
}
