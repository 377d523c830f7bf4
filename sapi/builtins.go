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
	"net/url"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// readChunkSize the size of each ReadPost call made by read_body
const readChunkSize = 8192

// startup globals left out of request environments: both reach the shared
// global table through Go functions
var sealedGlobals = map[string]bool{"getfenv": true, "setfenv": true}

func (e *LuaEngine) registerBuiltins() {
	L := e.state
	funcs := map[string]lua.LGFunction{
		"echo":                   e.luaEcho,
		"print":                  e.luaPrint,
		"header":                 e.luaHeader,
		"header_remove":          e.luaHeaderRemove,
		"headers_sent":           e.luaHeadersSent,
		"http_response_code":     e.luaResponseCode,
		"flush":                  e.luaFlush,
		"error_log":              e.luaErrorLog,
		"read_body":              e.luaReadBody,
		"input":                  e.luaReadBody,
		"throw":                  e.luaThrow,
		"exit":                   e.luaExit,
		"ini_get":                e.luaIniGet,
		"request_headers":        e.luaRequestHeaders,
		"apache_request_headers": e.luaRequestHeaders,
	}
	for name, fn := range funcs {
		L.SetGlobal(name, L.NewFunction(fn))
	}
	ini := L.NewTable()
	for _, k := range e.ini.Keys() {
		v, _ := e.ini.Get(k)
		ini.RawSetString(k, lua.LString(v))
	}
	L.SetGlobal("ini", ini)
}

// requestEnv copies the startup globals into a fresh table. Library tables
// are copied one level deep, so rebinding echo or string.upper stays local
// to the request that did it.
func (e *LuaEngine) requestEnv() *lua.LTable {
	L := e.state
	env := L.CreateTable(0, 64)
	L.G.Global.ForEach(func(k, v lua.LValue) {
		if name, ok := k.(lua.LString); ok && sealedGlobals[string(name)] {
			return
		}
		if lib, ok := v.(*lua.LTable); ok {
			if lib == L.G.Global {
				return
			}
			v = copyLibrary(L, lib)
		}
		env.RawSet(k, v)
	})
	env.RawSetString("_G", env)
	return env
}

// copyLibrary copies the non-table entries of lib
func copyLibrary(L *lua.LState, lib *lua.LTable) *lua.LTable {
	t := L.CreateTable(0, 32)
	lib.ForEach(func(k, v lua.LValue) {
		if v.Type() != lua.LTTable {
			t.RawSet(k, v)
		}
	})
	return t
}

func (e *LuaEngine) installRequestGlobals() {
	L := e.state
	env := e.env
	vars := make(map[string]string)
	e.module.RegisterVariables(vars)
	server := L.NewTable()
	for k, v := range vars {
		server.RawSetString(k, lua.LString(v))
	}
	env.RawSetString("_SERVER", server)

	get := L.NewTable()
	if values, err := url.ParseQuery(e.info.QueryString); err == nil {
		for k, v := range values {
			if len(v) > 0 {
				get.RawSetString(k, lua.LString(v[len(v)-1]))
			}
		}
	}
	env.RawSetString("_GET", get)

	cookies := L.NewTable()
	for _, part := range strings.Split(e.module.ReadCookies(), ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			cookies.RawSetString(kv[0], lua.LString(kv[1]))
		}
	}
	env.RawSetString("_COOKIE", cookies)

	if e.ini.Bool("register_argc_argv") {
		argv := L.NewTable()
		for _, a := range e.info.Argv {
			argv.Append(lua.LString(a))
		}
		env.RawSetString("argv", argv)
		env.RawSetString("argc", lua.LNumber(len(e.info.Argv)))
	}
}

func (e *LuaEngine) concatArgs(L *lua.LState) string {
	var b strings.Builder
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		b.WriteString(L.ToStringMeta(L.Get(i)).String())
	}
	return b.String()
}

func (e *LuaEngine) luaEcho(L *lua.LState) int {
	e.write([]byte(e.concatArgs(L)))
	return 0
}

func (e *LuaEngine) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	e.write([]byte(strings.Join(parts, "\t") + "\n"))
	return 0
}

func (e *LuaEngine) luaHeader(L *lua.LState) int {
	line := L.CheckString(1)
	replace := true
	if L.GetTop() >= 2 {
		replace = L.ToBool(2)
	}
	if L.GetTop() >= 3 {
		if code := L.CheckInt(3); code > 0 && e.addHeader(line, replace) {
			e.info.ResponseCode = code
		}
		return 0
	}
	e.addHeader(line, replace)
	return 0
}

func (e *LuaEngine) luaHeaderRemove(L *lua.LState) int {
	if e.headersSent {
		return 0
	}
	if L.GetTop() == 0 {
		e.headers = e.headers[:0]
		return 0
	}
	e.removeHeader(L.CheckString(1))
	return 0
}

func (e *LuaEngine) luaHeadersSent(L *lua.LState) int {
	L.Push(lua.LBool(e.headersSent))
	return 1
}

func (e *LuaEngine) luaResponseCode(L *lua.LState) int {
	previous := e.info.ResponseCode
	if L.GetTop() >= 1 {
		code := L.CheckInt(1)
		if e.headersSent {
			e.log.Warnf("cannot change response code to %d, headers already sent", code)
		} else {
			e.info.ResponseCode = code
		}
	}
	L.Push(lua.LNumber(previous))
	return 1
}

func (e *LuaEngine) luaFlush(L *lua.LState) int {
	if e.exiting {
		return 0
	}
	e.sendHeaders()
	e.module.Flush()
	return 0
}

func (e *LuaEngine) luaErrorLog(L *lua.LState) int {
	e.module.LogMessage(L.ToStringMeta(L.Get(1)).String())
	L.Push(lua.LTrue)
	return 1
}

// luaReadBody drains the request body once and caches it for the request.
func (e *LuaEngine) luaReadBody(L *lua.LState) int {
	if e.body == nil {
		var b strings.Builder
		for {
			chunk := e.module.ReadPost(readChunkSize)
			if len(chunk) == 0 {
				break
			}
			b.Write(chunk)
		}
		body := b.String()
		e.body = &body
	}
	L.Push(lua.LString(*e.body))
	return 1
}

// luaThrow raises an uncaught error carrying exactly the given message.
func (e *LuaEngine) luaThrow(L *lua.LState) int {
	msg := L.OptString(1, "Exception")
	L.Error(lua.LString(msg), 0)
	return 0
}

// luaExit ends the script. Output stops for the rest of the request even
// when a pcall catches the exit signal.
func (e *LuaEngine) luaExit(L *lua.LState) int {
	if L.GetTop() >= 1 {
		if v := L.Get(1); v.Type() == lua.LTString {
			e.write([]byte(v.String()))
		}
	}
	e.exiting = true
	L.Error(e.exitSignal, 0)
	return 0
}

func (e *LuaEngine) luaIniGet(L *lua.LState) int {
	v, ok := e.ini.Get(L.CheckString(1))
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LString(v))
	return 1
}

func (e *LuaEngine) luaRequestHeaders(L *lua.LState) int {
	t := L.NewTable()
	for k, v := range e.module.RequestHeaders() {
		t.RawSetString(k, lua.LString(v))
	}
	L.Push(t)
	return 1
}
