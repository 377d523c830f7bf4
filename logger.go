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
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger = logrus.New()

type DefaultFieldHook struct {
}

func (hook *DefaultFieldHook) Fire(entry *logrus.Entry) error {
	name, _ := os.Hostname()
	entry.Data["hostname"] = name
	return nil
}

func (hook *DefaultFieldHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func GetLogger(Name string) *logrus.Entry {
	log := logger.WithFields(logrus.Fields{
		"logName": Name,
	})
	return log
}

// logLevel level configured in c, forced to error under unit tests
func logLevel(c *Configuration) (logrus.Level, error) {
	_, ex := os.LookupEnv("UNITTEST")
	level := c.GetString("log.level")
	if ex {
		level = "error"
	}
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logrus.ParseLevel(level)
}

func initLog() {
	logger.SetReportCaller(true)
	logger.SetOutput(os.Stdout)
	level, err := logLevel(Config)
	if err != nil {
		panic(fmt.Errorf("fatal error parse level: %s", err))
	}
	logger.SetFormatter(&logrus.TextFormatter{
		ForceQuote:      true,                  //键值对加引号
		TimestampFormat: "2006-01-02 15:04:05", //时间格式
		FullTimestamp:   true,
	})
	logger.SetLevel(level)
	logger.Hooks.Add(&DefaultFieldHook{})
}

// SetLogLevel changes the level of every argiope logger
func SetLogLevel(level string) error {
	l, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	logger.SetLevel(l)
	return nil
}
