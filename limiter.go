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
	"go.uber.org/ratelimit"
)

type LimitInterface interface {
	// CheckAndWaitLimiterPass 检查当前提交速率
	// 如果达到上限则等待
	CheckAndWaitLimiterPass() error
}

type DefaultLimiter struct {
	limiter ratelimit.Limiter
}

// NewDefaultLimiter allows limitRate submissions per second
func NewDefaultLimiter(limitRate int) *DefaultLimiter {
	return &DefaultLimiter{
		limiter: ratelimit.New(limitRate, ratelimit.WithoutSlack),
	}
}

func (d *DefaultLimiter) CheckAndWaitLimiterPass() error {
	d.limiter.Take()
	return nil
}

// NoLimitLimiter never waits
type NoLimitLimiter struct{}

func (n NoLimitLimiter) CheckAndWaitLimiterPass() error {
	return nil
}
