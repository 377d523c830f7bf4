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

// Version reported as SERVER_SOFTWARE
const Version = "0.1.0"

// ServerSoftware the SERVER_SOFTWARE value exposed to scripts
const ServerSoftware = "argiope/" + Version

// StatusType runtime status
type StatusType uint

const (
	// ON_START 启动状态
	ON_START StatusType = iota
	// ON_STOP 停止状态
	ON_STOP
)

func (p StatusType) GetTypeName() string {
	switch p {
	case ON_START:
		return "running"
	case ON_STOP:
		return "stop"
	}
	return "unknown"
}

// ContextState the lifecycle state of a Context
type ContextState uint32

const (
	ContextUninitialized ContextState = iota
	ContextReady
	ContextActivated
	ContextExecuting
	ContextDeactivated
	ContextShutdown
)

func (s ContextState) String() string {
	switch s {
	case ContextUninitialized:
		return "uninitialized"
	case ContextReady:
		return "ready"
	case ContextActivated:
		return "activated"
	case ContextExecuting:
		return "executing"
	case ContextDeactivated:
		return "deactivated"
	case ContextShutdown:
		return "shutdown"
	}
	return "unknown"
}
