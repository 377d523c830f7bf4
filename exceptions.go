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
	"errors"
	"fmt"
)

var (
	ErrRuntimeClosed   error = errors.New("runtime is closed")
	ErrQueueFull       error = errors.New("job queue is full")
	ErrContextNotReady error = errors.New("context is not ready")
	ErrNilRequest      error = errors.New("request cannot be nil")
	ErrGetCacheItem    error = errors.New("getting job from queue error")
)

// ConfigurationError a malformed rule description or construction argument
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func newConfigurationError(field string, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// ScriptNotFoundError the resolved script does not exist under the docroot
type ScriptNotFoundError struct {
	Path string
}

func (e *ScriptNotFoundError) Error() string {
	return "Script not found: " + e.Path
}

// EngineStartupError a Context could not start its engine. The Context is
// never handed out for service.
type EngineStartupError struct {
	ContextID string
	Cause     error
}

func (e *EngineStartupError) Error() string {
	return fmt.Sprintf("context %s failed to start: %s", e.ContextID, e.Cause.Error())
}

func (e *EngineStartupError) Unwrap() error {
	return e.Cause
}

// ScriptExecutionError an exception raised by the executed script
type ScriptExecutionError struct {
	Message string
}

func (e *ScriptExecutionError) Error() string {
	return "Script execution failed: " + e.Message
}

// MiddlewareError a dispatch middleware rejected the request or response
type MiddlewareError struct {
	Name string
	Err  error
}

func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("middleware %s: %s", e.Name, e.Err.Error())
}

func (e *MiddlewareError) Unwrap() error {
	return e.Err
}
