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
	"bufio"
	"bytes"
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink receives the diagnostic output captured while a request ran.
type LogSink interface {
	Write(ctx context.Context, req *Request, log []byte) error
}

// LoggerSink writes captured script logs through logrus, one entry per line
type LoggerSink struct {
	log   *logrus.Entry
	level logrus.Level
}

// NewLoggerSink logs at info level under the "script" logger
func NewLoggerSink() *LoggerSink {
	return &LoggerSink{
		log:   GetLogger("script"),
		level: logrus.InfoLevel,
	}
}

// LoggerSinkWithLevel a logrus sink logging at level
func LoggerSinkWithLevel(level logrus.Level) *LoggerSink {
	s := NewLoggerSink()
	s.level = level
	return s
}

func (s *LoggerSink) Write(ctx context.Context, req *Request, log []byte) error {
	entry := s.log.WithContext(ctx).WithFields(logrus.Fields{
		"method": req.Method(),
		"url":    req.URL(),
	})
	scanner := bufio.NewScanner(bytes.NewReader(log))
	for scanner.Scan() {
		entry.Log(s.level, scanner.Text())
	}
	return scanner.Err()
}

// MultiLogSink fans captured logs out to several sinks
type MultiLogSink []LogSink

func (m MultiLogSink) Write(ctx context.Context, req *Request, log []byte) error {
	var first error
	for _, sink := range m {
		if err := sink.Write(ctx, req, log); err != nil && first == nil {
			first = err
		}
	}
	return first
}
