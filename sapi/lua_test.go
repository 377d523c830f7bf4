package sapi

import (
	"errors"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

type recordingModule struct {
	body       strings.Builder
	status     int
	lines      []string
	sendCount  int
	flushCount int
	logs       []string
	post       []byte
	cookie     string
	vars       map[string]string
	headers    map[string]string
	failVars   bool
}

func newRecordingModule() *recordingModule {
	return &recordingModule{
		vars:    map[string]string{},
		headers: map[string]string{},
	}
}

func (m *recordingModule) UbWrite(p []byte) int {
	m.body.Write(p)
	return len(p)
}

func (m *recordingModule) Flush() {
	m.flushCount++
}

func (m *recordingModule) SendHeaders(status int, lines []string) {
	m.sendCount++
	m.status = status
	m.lines = append([]string{}, lines...)
}

func (m *recordingModule) ReadPost(max int) []byte {
	if len(m.post) == 0 {
		return nil
	}
	n := max
	if n > len(m.post) {
		n = len(m.post)
	}
	chunk := m.post[:n]
	m.post = m.post[n:]
	return chunk
}

func (m *recordingModule) ReadCookies() string {
	return m.cookie
}

func (m *recordingModule) RegisterVariables(vars map[string]string) {
	if m.failVars {
		panic("register variables failed")
	}
	for k, v := range m.vars {
		vars[k] = v
	}
}

func (m *recordingModule) LogMessage(msg string) {
	m.logs = append(m.logs, msg)
}

func (m *recordingModule) RequestHeaders() map[string]string {
	return m.headers
}

func startedEngine(t *testing.T, module Module) *LuaEngine {
	e := NewLuaEngine()
	if err := e.Startup(DefaultIni(), module); err != nil {
		t.Fatalf("startup error %s", err.Error())
	}
	return e
}

func runScript(e *LuaEngine, source string, info *RequestInfo) error {
	if err := e.Activate(info); err != nil {
		return err
	}
	execErr := e.Execute([]byte(source), "test.lua")
	if err := e.Deactivate(); err != nil {
		return err
	}
	return execErr
}

func TestLuaEngineLifecycle(t *testing.T) {
	convey.Convey("lifecycle guards", t, func() {
		m := newRecordingModule()
		e := NewLuaEngine()
		convey.So(e.Activate(AcquireRequestInfo()), convey.ShouldEqual, ErrNotStarted)
		convey.So(e.Startup(DefaultIni(), m), convey.ShouldBeNil)
		convey.So(e.Startup(DefaultIni(), m), convey.ShouldEqual, ErrAlreadyStarted)
		convey.So(e.Execute([]byte("echo('x')"), "a.lua"), convey.ShouldEqual, ErrNotActive)
		convey.So(e.Deactivate(), convey.ShouldEqual, ErrNotActive)

		info := AcquireRequestInfo()
		defer info.Release()
		convey.So(e.Activate(info), convey.ShouldBeNil)
		convey.So(e.Activate(info), convey.ShouldEqual, ErrAlreadyActive)
		convey.So(e.Deactivate(), convey.ShouldBeNil)
		convey.So(e.Shutdown(), convey.ShouldBeNil)
		convey.So(e.Shutdown(), convey.ShouldEqual, ErrNotStarted)
	})
	convey.Convey("startup fails on a bad memory limit", t, func() {
		e := NewLuaEngine()
		err := e.Startup(DefaultIni().Set("memory_limit", "lots"), newRecordingModule())
		var startupErr *StartupError
		convey.So(errors.As(err, &startupErr), convey.ShouldBeTrue)
		convey.So(err.Error(), convey.ShouldContainSubstring, "invalid size")
	})
	convey.Convey("startup fails without a module", t, func() {
		e := NewLuaEngine()
		err := e.Startup(DefaultIni(), nil)
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestLuaEngineOutput(t *testing.T) {
	convey.Convey("echo sends headers once then writes the body", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `
header("Content-Type: text/plain")
header("X-Test: a")
header("X-Test: b", false)
echo("Hello, ", "world")
print("!")
`, info)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "Hello, world!\n")
		convey.So(m.sendCount, convey.ShouldEqual, 1)
		convey.So(m.status, convey.ShouldEqual, 200)
		convey.So(m.lines, convey.ShouldResemble, []string{"Content-Type: text/plain", "X-Test: a", "X-Test: b"})
		convey.So(m.flushCount, convey.ShouldBeGreaterThan, 0)
	})
	convey.Convey("headers and status are sent at deactivation without output", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `
header("HTTP/1.1 404 Not Found")
header("X-A: 1")
header("X-A: 2")
http_response_code(201)
`, info)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.sendCount, convey.ShouldEqual, 1)
		convey.So(m.status, convey.ShouldEqual, 201)
		convey.So(m.lines, convey.ShouldResemble, []string{"X-A: 2"})
	})
	convey.Convey("headers after output are ignored", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `
echo("body")
header("X-Late: 1")
if headers_sent() then echo(" sent") end
`, info)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "body sent")
		convey.So(m.lines, convey.ShouldBeEmpty)
	})
}

func TestLuaEngineRequestState(t *testing.T) {
	convey.Convey("request body, globals and logs", t, func() {
		m := newRecordingModule()
		m.post = []byte(strings.Repeat("a", readChunkSize+10))
		m.cookie = "session=abc; theme=dark"
		m.vars["REQUEST_METHOD"] = "POST"
		m.headers["x-test"] = "foo"
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		info.QueryString = "a=1&b=2&b=3"
		info.Argv = []string{"script", "--flag"}
		err := runScript(e, `
local body = read_body()
echo(#body, " ", #input())
echo(" ", _SERVER["REQUEST_METHOD"])
echo(" ", _GET["a"], _GET["b"])
echo(" ", _COOKIE["session"], _COOKIE["theme"])
echo(" ", argc, argv[2])
echo(" ", request_headers()["x-test"])
echo(" ", ini_get("display_errors"))
error_log("Hello, from error_log!")
leaked = "yes"
`, info)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "8202 8202 POST 13 abcdark 2--flag foo 0")
		convey.So(m.logs, convey.ShouldResemble, []string{"Hello, from error_log!"})

		m.body.Reset()
		next := AcquireRequestInfo()
		defer next.Release()
		err = runScript(e, `echo(tostring(leaked), " ", tostring(_SERVER["REQUEST_METHOD"] == nil))`, next)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "nil false")
	})
}

func TestLuaEngineGlobalsIsolation(t *testing.T) {
	convey.Convey("rebinding startup globals only affects the current request", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		hello := `echo(string.upper("hello"), " ", tostring(ini.display_errors))`
		first := AcquireRequestInfo()
		defer first.Release()
		convey.So(runScript(e, hello, first), convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "HELLO 0")

		m.body.Reset()
		evil := AcquireRequestInfo()
		defer evil.Release()
		err := runScript(e, `
echo = function() end
error_log = nil
string.upper = nil
ini.display_errors = "1"
_G.print = nil
rawset(_G, "throw", nil)
`, evil)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "")

		m.body.Reset()
		third := AcquireRequestInfo()
		defer third.Release()
		convey.So(runScript(e, hello+` print("x") error_log("still here")`, third), convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "HELLO 0x\n")
		convey.So(m.logs, convey.ShouldResemble, []string{"still here"})
	})
	convey.Convey("the shared string metatable and environments are out of reach", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `echo(tostring(getmetatable("")), " ", tostring(getfenv), " ", tostring(require))`, info)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "false nil nil")

		m.body.Reset()
		next := AcquireRequestInfo()
		defer next.Release()
		convey.So(runScript(e, `echo(("abc"):upper())`, next), convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "ABC")
	})
}

func TestLuaEngineErrors(t *testing.T) {
	convey.Convey("uncaught throw forces a 500 and keeps the message", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `throw("Hello, from PHP!")`, info)
		var scriptErr *ScriptError
		convey.So(errors.As(err, &scriptErr), convey.ShouldBeTrue)
		convey.So(scriptErr.Message, convey.ShouldEqual, "Hello, from PHP!")
		convey.So(m.status, convey.ShouldEqual, 500)
	})
	convey.Convey("error() messages carry the position", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `error("boom")`, info)
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(err.Error(), convey.ShouldContainSubstring, "boom")
	})
	convey.Convey("syntax errors", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `echo(`, info)
		var syntaxErr *SyntaxError
		convey.So(errors.As(err, &syntaxErr), convey.ShouldBeTrue)
		convey.So(syntaxErr.Filename, convey.ShouldEqual, "test.lua")
		convey.So(m.status, convey.ShouldEqual, 500)
	})
	convey.Convey("exit stops the script without an error", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `echo("a") exit("b") echo("c")`, info)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "ab")
		convey.So(m.status, convey.ShouldEqual, 200)
	})
	convey.Convey("a caught exit does not hide a later exception", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `pcall(exit) echo("after-exit") throw("boom")`, info)
		var scriptErr *ScriptError
		convey.So(errors.As(err, &scriptErr), convey.ShouldBeTrue)
		convey.So(scriptErr.Message, convey.ShouldEqual, "boom")
		convey.So(m.body.String(), convey.ShouldEqual, "")
		convey.So(m.status, convey.ShouldEqual, 500)
	})
	convey.Convey("a caught exit still ends the output", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		info := AcquireRequestInfo()
		defer info.Release()
		err := runScript(e, `echo("a") pcall(exit, "b") echo("c") header("X-A: 1")`, info)
		convey.So(err, convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "ab")
		convey.So(m.lines, convey.ShouldBeEmpty)
		convey.So(m.status, convey.ShouldEqual, 200)
	})
	convey.Convey("deactivate cleans up after a failed activation", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		m.failVars = true
		info := AcquireRequestInfo()
		defer info.Release()
		convey.So(func() { _ = e.Activate(info) }, convey.ShouldPanic)
		convey.So(e.Activate(info), convey.ShouldEqual, ErrAlreadyActive)
		convey.So(e.Deactivate(), convey.ShouldBeNil)

		m.failVars = false
		m.body.Reset()
		next := AcquireRequestInfo()
		defer next.Release()
		convey.So(runScript(e, `echo("ok")`, next), convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "ok")
	})
	convey.Convey("the engine serves the next request after a failure", t, func() {
		m := newRecordingModule()
		e := startedEngine(t, m)
		defer e.Shutdown()
		first := AcquireRequestInfo()
		defer first.Release()
		convey.So(runScript(e, `throw("x")`, first), convey.ShouldNotBeNil)
		m.body.Reset()
		second := AcquireRequestInfo()
		defer second.Release()
		convey.So(runScript(e, `echo("ok")`, second), convey.ShouldBeNil)
		convey.So(m.body.String(), convey.ShouldEqual, "ok")
		convey.So(m.status, convey.ShouldEqual, 200)
	})
}

func TestLuaEngineChunkCache(t *testing.T) {
	convey.Convey("compiled chunks are reused and bounded", t, func() {
		m := newRecordingModule()
		e := NewLuaEngine(LuaWithChunkCacheSize(2))
		convey.So(e.Startup(nil, m), convey.ShouldBeNil)
		defer e.Shutdown()
		for _, src := range []string{`echo(1)`, `echo(1)`, `echo(2)`} {
			info := AcquireRequestInfo()
			convey.So(runScript(e, src, info), convey.ShouldBeNil)
			info.Release()
		}
		convey.So(len(e.chunks), convey.ShouldEqual, 2)
		info := AcquireRequestInfo()
		convey.So(runScript(e, `echo(3)`, info), convey.ShouldBeNil)
		info.Release()
		convey.So(len(e.chunks), convey.ShouldEqual, 1)
		convey.So(m.body.String(), convey.ShouldEqual, "1123")
	})
}

func TestRequestInfoPool(t *testing.T) {
	convey.Convey("descriptors are counted until released", t, func() {
		before := LiveRequestInfos()
		info := AcquireRequestInfo()
		convey.So(info.Allocated(), convey.ShouldBeTrue)
		convey.So(info.ContentLength, convey.ShouldEqual, -1)
		convey.So(info.ResponseCode, convey.ShouldEqual, 200)
		convey.So(LiveRequestInfos(), convey.ShouldEqual, before+1)
		info.Release()
		info.Release()
		convey.So(info.Allocated(), convey.ShouldBeFalse)
		convey.So(LiveRequestInfos(), convey.ShouldEqual, before)
	})
}

func TestIni(t *testing.T) {
	convey.Convey("baseline directives", t, func() {
		ini := DefaultIni()
		v, ok := ini.Get("display_errors")
		convey.So(ok, convey.ShouldBeTrue)
		convey.So(v, convey.ShouldEqual, "0")
		convey.So(ini.Bool("log_errors"), convey.ShouldBeTrue)
		convey.So(ini.Bool("html_errors"), convey.ShouldBeFalse)
		limit, err := ini.Bytes("memory_limit")
		convey.So(err, convey.ShouldBeNil)
		convey.So(limit, convey.ShouldEqual, 128<<20)
		convey.So(ini.Keys()[0], convey.ShouldEqual, "error_reporting")
		convey.So(ini.String(), convey.ShouldContainSubstring, "implicit_flush=1\n")

		clone := ini.Clone().Merge(map[string]string{"memory_limit": "-1"})
		limit, _ = clone.Bytes("memory_limit")
		convey.So(limit, convey.ShouldEqual, -1)
		limit, _ = ini.Bytes("memory_limit")
		convey.So(limit, convey.ShouldEqual, 128<<20)
		_, err = ini.Bytes("missing")
		convey.So(err, convey.ShouldNotBeNil)
	})
}
