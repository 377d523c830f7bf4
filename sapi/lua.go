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

package sapi

import (
	"bytes"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// LuaEngine runs Lua scripts on a single long-lived gopher-lua state.
// Compiled chunks are shared by every request. Each request runs against its
// own copy of the startup globals, dropped again at deactivation.
type LuaEngine struct {
	state  *lua.LState
	module Module
	ini    *Ini
	log    *logrus.Entry

	// chunks compiled function prototypes keyed by source fingerprint
	chunks    map[uint64]*lua.FunctionProto
	maxChunks int
	// env globals of the active request
	env *lua.LTable
	// exitSignal error value raised by exit()
	exitSignal *lua.LUserData

	info        *RequestInfo
	headers     []headerLine
	headersSent bool
	exiting     bool
	body        *string
}

type headerLine struct {
	name string
	line string
}

// LuaOption optional LuaEngine parameters
type LuaOption func(e *LuaEngine)

// LuaWithLogger engine diagnostics logger
func LuaWithLogger(log *logrus.Entry) LuaOption {
	return func(e *LuaEngine) {
		e.log = log
	}
}

// LuaWithChunkCacheSize bounds the number of cached compiled scripts
func LuaWithChunkCacheSize(size int) LuaOption {
	return func(e *LuaEngine) {
		e.maxChunks = size
	}
}

// NewLuaEngine creates an engine that still has to be started.
func NewLuaEngine(opts ...LuaOption) *LuaEngine {
	e := &LuaEngine{
		log:       logrus.NewEntry(logrus.StandardLogger()),
		maxChunks: 256,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// LuaFactory returns a Factory building LuaEngines with opts.
func LuaFactory(opts ...LuaOption) Factory {
	return func() Engine {
		return NewLuaEngine(opts...)
	}
}

// registrySlots derives the value stack ceiling from memory_limit. Heap
// allocations are not metered.
func registrySlots(limit int64) int {
	const slotSize = 1024
	if limit < 0 {
		return 1024 * 1024 * 8
	}
	slots := int(limit / slotSize)
	if slots < 1024*20 {
		slots = 1024 * 20
	}
	return slots
}

func (e *LuaEngine) Startup(ini *Ini, module Module) error {
	if e.state != nil {
		return ErrAlreadyStarted
	}
	if module == nil {
		return &StartupError{Cause: errors.New("module callback table is nil")}
	}
	if ini == nil {
		ini = DefaultIni()
	}
	limit, err := ini.Bytes("memory_limit")
	if err != nil {
		return &StartupError{Cause: err}
	}
	L := lua.NewState(lua.Options{
		SkipOpenLibs:     true,
		RegistrySize:     1024 * 20,
		RegistryMaxSize:  registrySlots(limit),
		RegistryGrowStep: 32,
	})
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.OsLibName, lua.OpenOs},
	}
	for _, lib := range libs {
		err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name))
		if err != nil {
			L.Close()
			return &StartupError{Cause: err}
		}
	}
	e.state = L
	e.module = module
	e.ini = ini.Clone()
	e.chunks = make(map[uint64]*lua.FunctionProto)
	e.exitSignal = L.NewUserData()
	e.registerBuiltins()
	if mt, ok := L.GetMetatable(lua.LString("")).(*lua.LTable); ok {
		mt.RawSetString("__metatable", lua.LFalse)
	}
	e.log.Debugf("lua engine started with ini:\n%s", e.ini.String())
	return nil
}

func (e *LuaEngine) Activate(info *RequestInfo) error {
	if e.state == nil {
		return ErrNotStarted
	}
	if e.info != nil {
		return ErrAlreadyActive
	}
	if info == nil {
		return errors.New("request descriptor is nil")
	}
	e.info = info
	e.info.ResponseCode = defaultResponseCode
	e.headers = e.headers[:0]
	e.headersSent = false
	e.exiting = false
	e.body = nil
	e.env = e.requestEnv()
	e.state.Env = e.env
	e.installRequestGlobals()
	return nil
}

// Execute compiles (or reuses) the chunk for source and runs it. An
// uncaught script error forces the response code to 500. Only the value
// raised by exit() ends the script cleanly.
func (e *LuaEngine) Execute(source []byte, filename string) error {
	if e.state == nil {
		return ErrNotStarted
	}
	if e.info == nil {
		return ErrNotActive
	}
	proto, err := e.compile(source, filename)
	if err != nil {
		e.info.ResponseCode = 500
		return err
	}
	L := e.state
	defer L.SetTop(0)
	fn := L.NewFunctionFromProto(proto)
	fn.Env = e.env
	L.Push(fn)
	err = L.PCall(0, lua.MultRet, nil)
	if err == nil {
		return nil
	}
	var apiErr *lua.ApiError
	isAPIErr := errors.As(err, &apiErr)
	if isAPIErr && apiErr.Object == e.exitSignal {
		return nil
	}
	e.info.ResponseCode = 500
	scriptErr := &ScriptError{Message: err.Error()}
	if isAPIErr {
		if apiErr.Object != nil {
			scriptErr.Message = apiErr.Object.String()
		}
		scriptErr.Trace = apiErr.StackTrace
	}
	return scriptErr
}

// Deactivate sends headers if the script never produced output and drops
// the request's globals. It also cleans up after a failed Activate.
func (e *LuaEngine) Deactivate() error {
	if e.state == nil {
		return ErrNotStarted
	}
	if e.info == nil {
		return ErrNotActive
	}
	e.sendHeaders()
	e.module.Flush()
	e.state.Env = e.state.G.Global
	e.env = nil
	e.info = nil
	e.headers = e.headers[:0]
	e.body = nil
	e.exiting = false
	return nil
}

func (e *LuaEngine) Shutdown() error {
	if e.state == nil {
		return ErrNotStarted
	}
	e.state.Close()
	e.state = nil
	e.chunks = nil
	e.env = nil
	e.info = nil
	return nil
}

func (e *LuaEngine) compile(source []byte, filename string) (*lua.FunctionProto, error) {
	h := murmur3.New64()
	_, _ = h.Write([]byte(filename))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(source)
	key := h.Sum64()
	if proto, ok := e.chunks[key]; ok {
		return proto, nil
	}
	chunk, err := parse.Parse(bytes.NewReader(source), filename)
	if err != nil {
		return nil, &SyntaxError{Filename: filename, Message: err.Error()}
	}
	proto, err := lua.Compile(chunk, filename)
	if err != nil {
		return nil, &SyntaxError{Filename: filename, Message: err.Error()}
	}
	if len(e.chunks) >= e.maxChunks {
		e.chunks = make(map[uint64]*lua.FunctionProto)
	}
	e.chunks[key] = proto
	return proto, nil
}

// sendHeaders hands the accumulated header table to the module once.
func (e *LuaEngine) sendHeaders() {
	if e.headersSent || e.info == nil {
		return
	}
	e.headersSent = true
	lines := make([]string, 0, len(e.headers))
	for _, h := range e.headers {
		lines = append(lines, h.line)
	}
	e.module.SendHeaders(e.info.ResponseCode, lines)
}

func (e *LuaEngine) write(p []byte) {
	if len(p) == 0 || e.exiting {
		return
	}
	e.sendHeaders()
	e.module.UbWrite(p)
	if e.ini.Bool("implicit_flush") {
		e.module.Flush()
	}
}

// addHeader records a raw header line. A status line sets the response code.
func (e *LuaEngine) addHeader(line string, replace bool) bool {
	if e.exiting {
		return false
	}
	if e.headersSent {
		e.log.Warnf("cannot modify header information, headers already sent: %s", line)
		return false
	}
	line = strings.TrimSpace(line)
	if strings.HasPrefix(strings.ToUpper(line), "HTTP/") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			if code, ok := parseStatus(fields[1]); ok {
				e.info.ResponseCode = code
				return true
			}
		}
		return false
	}
	idx := strings.Index(line, ":")
	if idx <= 0 {
		e.log.Warnf("malformed header line: %s", line)
		return false
	}
	name := strings.ToLower(strings.TrimSpace(line[:idx]))
	if replace {
		kept := e.headers[:0]
		for _, h := range e.headers {
			if h.name != name {
				kept = append(kept, h)
			}
		}
		e.headers = kept
	}
	e.headers = append(e.headers, headerLine{name: name, line: line})
	return true
}

func (e *LuaEngine) removeHeader(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	kept := e.headers[:0]
	for _, h := range e.headers {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	e.headers = kept
}

func parseStatus(raw string) (int, bool) {
	if len(raw) != 3 {
		return 0, false
	}
	code := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, false
		}
		code = code*10 + int(c-'0')
	}
	return code, code >= 100
}
