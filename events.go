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

type EventType int

const (
	// START 启动
	START EventType = iota
	// HEARTBEAT 心跳
	HEARTBEAT
	// STOP 停止
	STOP
	// ERROR 错误
	ERROR
	// EXIT 退出
	EXIT
)

func (e EventType) String() string {
	switch e {
	case START:
		return "start"
	case HEARTBEAT:
		return "heartbeat"
	case STOP:
		return "stop"
	case ERROR:
		return "error"
	case EXIT:
		return "exit"
	}
	return "unknown"
}

// Event one runtime event and its parameters
type Event struct {
	Type   EventType
	Params []interface{}
}

type Hook func(params ...interface{}) error

type EventHooksInterface interface {
	// Start 处理启动事件
	Start(params ...interface{}) error
	// Stop 处理停止事件
	Stop(params ...interface{}) error
	// Error 处理错误事件, e.g. a context that failed to start
	Error(params ...interface{}) error
	// Exit 退出事件
	Exit(params ...interface{}) error
	// Heartbeat 心跳检查事件
	Heartbeat(params ...interface{}) error
	// EventsWatcher 事件监听器
	EventsWatcher(ch chan Event) error
}

type DefaultHooks struct {
}

var eventsLog = GetLogger("events")

func NewDefaultHooks() *DefaultHooks {
	return &DefaultHooks{}
}

func (d *DefaultHooks) Start(params ...interface{}) error {
	return nil
}

func (d *DefaultHooks) Stop(params ...interface{}) error {
	return nil
}

func (d *DefaultHooks) Error(params ...interface{}) error {
	eventsLog.Errorf("runtime error event %v", params)
	return nil
}

func (d *DefaultHooks) Exit(params ...interface{}) error {
	return nil
}

func (d *DefaultHooks) Heartbeat(params ...interface{}) error {
	return nil
}

// DefaultWatcher dispatches events to hooker until EXIT is handled or ch
// is closed. A failing hook stops the watcher with its error, except for
// ERROR hooks which are only logged.
func DefaultWatcher(ch chan Event, hooker EventHooksInterface) error {
	for event := range ch {
		var err error
		switch event.Type {
		case START:
			err = hooker.Start(event.Params...)
		case STOP:
			err = hooker.Stop(event.Params...)
		case ERROR:
			if herr := hooker.Error(event.Params...); herr != nil {
				eventsLog.Errorf("error hook failed %s", herr.Error())
			}
		case HEARTBEAT:
			err = hooker.Heartbeat(event.Params...)
		case EXIT:
			return hooker.Exit(event.Params...)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *DefaultHooks) EventsWatcher(ch chan Event) error {
	return DefaultWatcher(ch, d)
}
