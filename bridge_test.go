package argiope

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/wetrycode/argiope/sapi"
)

func newTestScript(t *testing.T, opts ...RequestOption) *Script {
	req, err := NewRequest(opts...)
	if err != nil {
		t.Fatalf("build request %s", err.Error())
	}
	return &Script{
		Request:  req,
		Filename: "/www/app/index.lua",
		Docroot:  "/www",
		Argv:     []string{"index.lua", "--flag"},
	}
}

func TestBridgeRequestInfo(t *testing.T) {
	convey.Convey("descriptor is filled from the request", t, func() {
		live := sapi.LiveRequestInfos()
		b := newBridge(newTestScript(t,
			RequestWithMethod("POST"),
			RequestWithURL("http://localhost:8080/app/index.lua?a=1"),
			RequestWithHeader("Content-Type", "text/plain"),
			RequestWithHeader("Content-Length", "5"),
			RequestWithHeader("Cookie", "a=1"),
			RequestWithHeader("Cookie", "b=2"),
			RequestWithBody([]byte("hello")),
		))
		info := b.acquireInfo()
		convey.So(sapi.LiveRequestInfos(), convey.ShouldEqual, live+1)
		convey.So(info.Method, convey.ShouldEqual, "POST")
		convey.So(info.RequestURI, convey.ShouldEqual, "/app/index.lua?a=1")
		convey.So(info.Path, convey.ShouldEqual, "/app/index.lua")
		convey.So(info.QueryString, convey.ShouldEqual, "a=1")
		convey.So(info.ContentType, convey.ShouldEqual, "text/plain")
		convey.So(info.ContentLength, convey.ShouldEqual, int64(5))
		convey.So(info.Cookie, convey.ShouldEqual, "a=1; b=2")
		convey.So(info.PathTranslated, convey.ShouldEqual, "/www/app/index.lua")
		convey.So(info.Argv, convey.ShouldResemble, []string{"index.lua", "--flag"})
		convey.So(b.ReadCookies(), convey.ShouldEqual, "a=1; b=2")

		b.release()
		b.release()
		convey.So(sapi.LiveRequestInfos(), convey.ShouldEqual, live)
	})
	convey.Convey("unknown content length", t, func() {
		b := newBridge(newTestScript(t, RequestWithHeader("Content-Length", "abc")))
		info := b.acquireInfo()
		convey.So(info.ContentLength, convey.ShouldEqual, int64(-1))
		b.release()
	})
}

func TestBridgeServerVariables(t *testing.T) {
	convey.Convey("cgi style variables", t, func() {
		b := newBridge(newTestScript(t,
			RequestWithMethod("PUT"),
			RequestWithURL("https://example.com/app/index.lua?x=y"),
			RequestWithHeader("X-Forwarded-For", "10.0.0.1"),
			RequestWithHeader("Accept", "a"),
			RequestWithHeader("Accept", "b"),
		))
		b.acquireInfo()
		defer b.release()
		vars := map[string]string{}
		b.RegisterVariables(vars)
		convey.So(vars["HTTP_X_FORWARDED_FOR"], convey.ShouldEqual, "10.0.0.1")
		convey.So(vars["HTTP_ACCEPT"], convey.ShouldEqual, "a, b")
		convey.So(vars["REQUEST_SCHEME"], convey.ShouldEqual, "https")
		convey.So(vars["GATEWAY_INTERFACE"], convey.ShouldEqual, "CGI/1.1")
		convey.So(vars["SCRIPT_NAME"], convey.ShouldEqual, "/app/index.lua")
		convey.So(vars["PHP_SELF"], convey.ShouldEqual, "/app/index.lua")
		convey.So(vars["SCRIPT_FILENAME"], convey.ShouldEqual, "/www/app/index.lua")
		convey.So(vars["DOCUMENT_ROOT"], convey.ShouldEqual, "/www")
		convey.So(vars["SERVER_NAME"], convey.ShouldEqual, "example.com")
		convey.So(vars["SERVER_PORT"], convey.ShouldEqual, "443")
		convey.So(vars["REQUEST_URI"], convey.ShouldEqual, "/app/index.lua?x=y")
		convey.So(vars["SERVER_PROTOCOL"], convey.ShouldEqual, "HTTP/1.1")
		convey.So(vars["SERVER_SOFTWARE"], convey.ShouldEqual, ServerSoftware)
		convey.So(vars["REQUEST_METHOD"], convey.ShouldEqual, "PUT")
		convey.So(vars["QUERY_STRING"], convey.ShouldEqual, "x=y")
		_, ok := vars["CONTENT_LENGTH"]
		convey.So(ok, convey.ShouldBeFalse)

		headers := b.RequestHeaders()
		convey.So(headers["accept"], convey.ShouldEqual, "a, b")
	})
}

func TestBridgeOutput(t *testing.T) {
	convey.Convey("headers are sent once and body is streamed", t, func() {
		b := newBridge(newTestScript(t, RequestWithBody([]byte("0123456789"))))
		b.acquireInfo()
		convey.So(string(b.ReadPost(4)), convey.ShouldEqual, "0123")
		convey.So(string(b.ReadPost(100)), convey.ShouldEqual, "456789")
		convey.So(b.ReadPost(100), convey.ShouldBeNil)

		b.SendHeaders(201, []string{"X-A: 1", "X-A: 2", "broken"})
		b.SendHeaders(500, []string{"X-B: 1"})
		convey.So(b.UbWrite([]byte("body")), convey.ShouldEqual, 4)
		b.LogMessage("note")
		resp, err := b.builder.Build()
		convey.So(err, convey.ShouldBeNil)
		b.release()
		convey.So(resp.Status(), convey.ShouldEqual, 201)
		convey.So(resp.Headers().GetAll("x-a"), convey.ShouldResemble, []string{"1", "2"})
		convey.So(resp.Headers().Has("x-b"), convey.ShouldBeFalse)
		convey.So(resp.String(), convey.ShouldEqual, "body")
		convey.So(string(resp.Log()), convey.ShouldEqual, "note\n")
	})
}
