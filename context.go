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
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"github.com/wetrycode/argiope/sapi"
)

// Context owns one started engine and serves requests on it one at a
// time. The engine's startup state and compiled scripts are shared by every
// request; only the bridge bound for the current request changes.
//
// A Context must only be used from one goroutine at a time.
type Context struct {
	// Ctx base context handed to the log sink
	Ctx context.Context
	// CtxId unique id of the context
	CtxId string

	engine  sapi.Engine
	ini     *sapi.Ini
	sink    LogSink
	state   uint32
	served  uint64
	current *bridge
	log     *logrus.Entry
}

// ContextOption optional parameters of NewContext
type ContextOption func(c *Context)

var ctxLog *logrus.Entry = GetLogger("context")

// WithContext sets the base context
func WithContext(ctx context.Context) ContextOption {
	return func(c *Context) {
		c.Ctx = ctx
	}
}

// ContextWithIni overrides the engine baseline configuration
func ContextWithIni(ini *sapi.Ini) ContextOption {
	return func(c *Context) {
		c.ini = ini
	}
}

// ContextWithLogSink receives the log captured for every request
func ContextWithLogSink(sink LogSink) ContextOption {
	return func(c *Context) {
		c.sink = sink
	}
}

// NewContext builds an engine with factory and starts it. A Context whose
// engine fails to start is never returned.
func NewContext(factory sapi.Factory, opts ...ContextOption) (*Context, error) {
	c := &Context{
		Ctx:   context.TODO(),
		CtxId: GetUUID(),
		ini:   sapi.DefaultIni(),
		state: uint32(ContextUninitialized),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = ctxLog.WithField("ctxId", c.CtxId)
	if factory == nil {
		return nil, &EngineStartupError{ContextID: c.CtxId, Cause: errors.New("engine factory is nil")}
	}
	err := guard(func() error {
		c.engine = factory()
		if c.engine == nil {
			return errors.New("engine factory returned nil")
		}
		return c.engine.Startup(c.ini, &contextModule{c: c})
	})
	if err != nil {
		c.log.Errorf("engine startup failed %s", err.Error())
		return nil, &EngineStartupError{ContextID: c.CtxId, Cause: err}
	}
	c.setState(ContextReady)
	return c, nil
}

func (c *Context) GetCtxId() string {
	return c.CtxId
}

func (c *Context) State() ContextState {
	return ContextState(atomic.LoadUint32(&c.state))
}

func (c *Context) setState(s ContextState) {
	atomic.StoreUint32(&c.state, uint32(s))
}

// Served the number of requests handled so far
func (c *Context) Served() uint64 {
	return atomic.LoadUint64(&c.served)
}

// Handle runs script on the engine. Teardown runs on every exit path, so
// the descriptor allocated at activation is always released.
//
// An exception raised by the script yields both the Response (status 500,
// Exception set) and a *ScriptExecutionError. Other failures return no
// Response.
func (c *Context) Handle(script *Script) (resp *Response, err error) {
	if script == nil || script.Request == nil {
		return nil, ErrNilRequest
	}
	if !atomic.CompareAndSwapUint32(&c.state, uint32(ContextReady), uint32(ContextActivated)) {
		return nil, ErrContextNotReady
	}
	b := newBridge(script)
	c.current = b
	active := false
	defer func() {
		if active {
			if derr := c.deactivate(); derr != nil && err == nil {
				resp, err = nil, derr
			}
		}
		c.current = nil
		b.release()
		atomic.AddUint64(&c.served, 1)
		if c.State() != ContextShutdown {
			c.setState(ContextReady)
		}
	}()

	info := b.acquireInfo()
	// a failed Activate may leave engine state behind, so teardown deactivates
	active = true
	if err := guard(func() error { return c.engine.Activate(info) }); err != nil {
		return nil, fmt.Errorf("activate request: %w", err)
	}
	c.setState(ContextExecuting)
	execErr := guard(func() error { return c.engine.Execute(script.Source, script.Filename) })
	active = false
	if err := c.deactivate(); err != nil {
		return nil, err
	}

	var scriptErr *ScriptExecutionError
	if execErr != nil {
		scriptErr = &ScriptExecutionError{Message: exceptionMessage(execErr)}
		b.builder.Status(500).Exception(scriptErr.Message)
		c.log.Warnf("script %s raised %s", script.Filename, scriptErr.Message)
	}
	resp, err = b.builder.Build()
	if err != nil {
		return nil, err
	}
	if len(resp.Log()) > 0 && c.sink != nil {
		if serr := c.sink.Write(c.Ctx, script.Request, resp.Log()); serr != nil {
			c.log.Errorf("write script log error %s", serr.Error())
		}
	}
	if scriptErr != nil {
		return resp, scriptErr
	}
	return resp, nil
}

func (c *Context) deactivate() error {
	c.setState(ContextDeactivated)
	if err := guard(c.engine.Deactivate); err != nil {
		return fmt.Errorf("deactivate request: %w", err)
	}
	return nil
}

// Shutdown stops the engine. The Context cannot be used afterwards.
func (c *Context) Shutdown() error {
	if c.State() == ContextShutdown {
		return nil
	}
	c.setState(ContextShutdown)
	return guard(c.engine.Shutdown)
}

func exceptionMessage(err error) string {
	var scriptErr *sapi.ScriptError
	if errors.As(err, &scriptErr) {
		return scriptErr.Message
	}
	return err.Error()
}

// guard runs fn and turns a panic into an error
func guard(fn func() error) (err error) {
	var pc panics.Catcher
	pc.Try(func() {
		err = fn()
	})
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("engine panic: %v", r.Value)
	}
	return err
}

// contextModule is the callback table installed into the engine at
// startup. It forwards to the bridge bound for the current request.
type contextModule struct {
	c *Context
}

func (m *contextModule) bridge() *bridge {
	b := m.c.current
	if b == nil {
		m.c.log.Warnf("engine callback outside of an active request")
	}
	return b
}

func (m *contextModule) UbWrite(p []byte) int {
	if b := m.bridge(); b != nil {
		return b.UbWrite(p)
	}
	return 0
}

func (m *contextModule) Flush() {
	if b := m.bridge(); b != nil {
		b.Flush()
	}
}

func (m *contextModule) SendHeaders(status int, lines []string) {
	if b := m.bridge(); b != nil {
		b.SendHeaders(status, lines)
	}
}

func (m *contextModule) ReadPost(max int) []byte {
	if b := m.bridge(); b != nil {
		return b.ReadPost(max)
	}
	return nil
}

func (m *contextModule) ReadCookies() string {
	if b := m.bridge(); b != nil {
		return b.ReadCookies()
	}
	return ""
}

func (m *contextModule) RegisterVariables(vars map[string]string) {
	if b := m.bridge(); b != nil {
		b.RegisterVariables(vars)
	}
}

func (m *contextModule) LogMessage(msg string) {
	if b := m.bridge(); b != nil {
		b.LogMessage(msg)
		return
	}
	m.c.log.Info(msg)
}

func (m *contextModule) RequestHeaders() map[string]string {
	if b := m.bridge(); b != nil {
		return b.RequestHeaders()
	}
	return map[string]string{}
}
