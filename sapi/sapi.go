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

// Package sapi is the boundary between the host and an embedded,
// single-threaded script engine.
//
// An Engine is started once with a baseline Ini and a Module callback table.
// After that it serves requests one at a time:
//
//	Activate(info) -> Execute(source, filename) -> Deactivate()
//
// The engine never talks to the outside world directly. Output, headers,
// request body reads, cookies, server variables and log messages all go
// through the Module installed at startup, so the host can bind a fresh
// per-request bridge behind it for every Activate call.
package sapi

import (
	"errors"
	"fmt"
)

// Module is the callback table an Engine invokes while a request is active.
type Module interface {
	// UbWrite receives unbuffered response body bytes and returns how many were consumed.
	UbWrite(p []byte) int
	// Flush is called when the script asks for buffered output to be pushed out.
	Flush()
	// SendHeaders receives the final status code and the accumulated header lines.
	// It is called at most once per request.
	SendHeaders(status int, lines []string)
	// ReadPost returns the next chunk of the request body, at most max bytes.
	// An empty slice means the body is exhausted.
	ReadPost(max int) []byte
	// ReadCookies returns the raw Cookie header.
	ReadCookies() string
	// RegisterVariables fills the server variables exposed to the script.
	RegisterVariables(vars map[string]string)
	// LogMessage receives one diagnostic message emitted by the script.
	LogMessage(msg string)
	// RequestHeaders returns the request headers, one line per name.
	RequestHeaders() map[string]string
}

// Engine is one instance of the embedded runtime. It is not safe for
// concurrent use; callers must serialise every method call.
type Engine interface {
	Startup(ini *Ini, module Module) error
	Activate(info *RequestInfo) error
	Execute(source []byte, filename string) error
	Deactivate() error
	Shutdown() error
}

// Factory builds a fresh, not yet started Engine.
type Factory func() Engine

var (
	// ErrNotStarted the engine has not been started or was shut down
	ErrNotStarted error = errors.New("engine is not started")
	// ErrAlreadyStarted Startup was called twice
	ErrAlreadyStarted error = errors.New("engine is already started")
	// ErrNotActive no request is active on the engine
	ErrNotActive error = errors.New("no request is active")
	// ErrAlreadyActive Activate was called before the previous request was deactivated
	ErrAlreadyActive error = errors.New("a request is already active")
)

// StartupError is returned when the engine's module system could not be initialised.
type StartupError struct {
	Cause error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("engine startup failed: %s", e.Cause.Error())
}

func (e *StartupError) Unwrap() error {
	return e.Cause
}

// ScriptError is an uncaught error raised by the executed script.
type ScriptError struct {
	Message string
	Trace   string
}

func (e *ScriptError) Error() string {
	return e.Message
}

// SyntaxError the script source could not be compiled
type SyntaxError struct {
	Filename string
	Message  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %s: %s", e.Filename, e.Message)
}
