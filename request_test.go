package argiope

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestNewRequest(t *testing.T) {
	convey.Convey("defaults", t, func() {
		req, err := NewRequest()
		convey.So(err, convey.ShouldBeNil)
		convey.So(req.Method(), convey.ShouldEqual, "GET")
		convey.So(req.URL(), convey.ShouldEqual, "http://example.com/")
		convey.So(req.Body(), convey.ShouldBeEmpty)
		convey.So(req.Path(), convey.ShouldEqual, "/")
	})
	convey.Convey("url parts", t, func() {
		req, err := NewRequest(
			RequestWithMethod("post"),
			RequestWithURL("https://example.com:8443/a%20b/index.lua?x=1&y=2#top"),
			RequestWithHeader("X-Test", "1"),
			RequestWithBody([]byte("hello")),
		)
		convey.So(err, convey.ShouldBeNil)
		convey.So(req.Method(), convey.ShouldEqual, "POST")
		convey.So(req.Path(), convey.ShouldEqual, "/a b/index.lua")
		convey.So(req.Query(), convey.ShouldEqual, "x=1&y=2")
		convey.So(req.Fragment(), convey.ShouldEqual, "top")
		convey.So(req.Scheme(), convey.ShouldEqual, "https")
		convey.So(req.Host(), convey.ShouldEqual, "example.com:8443")
		convey.So(req.RequestURI(), convey.ShouldEqual, "/a%20b/index.lua?x=1&y=2")
		convey.So(req.Href(), convey.ShouldEqual, "/a%20b/index.lua?x=1&y=2#top")
		convey.So(string(req.Body()), convey.ShouldEqual, "hello")
		v, ok := req.Header("x-test")
		convey.So(ok, convey.ShouldBeTrue)
		convey.So(v, convey.ShouldEqual, "1")
		convey.So(req.String(), convey.ShouldStartWith, "POST https://example.com:8443/")
	})
	convey.Convey("invalid url", t, func() {
		_, err := NewRequest(RequestWithURL("/relative"))
		convey.So(err, convey.ShouldNotBeNil)
		var cfgErr *ConfigurationError
		convey.So(err, convey.ShouldHaveSameTypeAs, cfgErr)
		_, err = NewRequest(RequestWithURL("http://[::1"))
		convey.So(err, convey.ShouldNotBeNil)
		_, err = NewRequest(RequestWithMethod(" "))
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestRequestImmutable(t *testing.T) {
	convey.Convey("extend returns a copy", t, func() {
		req, err := NewRequest(RequestWithHeader("A", "1"))
		convey.So(err, convey.ShouldBeNil)
		next, err := req.Extend(RequestWithMethod("PUT"), RequestWithHeader("A", "2"))
		convey.So(err, convey.ShouldBeNil)
		convey.So(req.Method(), convey.ShouldEqual, "GET")
		convey.So(req.Headers().GetAll("a"), convey.ShouldResemble, []string{"1"})
		convey.So(next.Method(), convey.ShouldEqual, "PUT")
		convey.So(next.Headers().GetAll("a"), convey.ShouldResemble, []string{"1", "2"})

		h := req.Headers()
		h.Set("A", "changed")
		v, _ := req.Header("a")
		convey.So(v, convey.ShouldEqual, "1")
	})
}

func TestRequestJSONBody(t *testing.T) {
	convey.Convey("json body", t, func() {
		req, err := NewRequest(RequestWithJSONBody(map[string]interface{}{"key": "value"}))
		convey.So(err, convey.ShouldBeNil)
		convey.So(string(req.Body()), convey.ShouldEqual, `{"key":"value"}`)
		ct, _ := req.Header("content-type")
		convey.So(ct, convey.ShouldEqual, "application/json")
	})
	convey.Convey("unsupported json body", t, func() {
		_, err := NewRequest(RequestWithJSONBody(make(chan int)))
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestRequestMap(t *testing.T) {
	convey.Convey("request from map", t, func() {
		req, err := RequestFromMap(map[string]interface{}{
			"method":  "delete",
			"url":     "http://localhost/x.lua?a=1",
			"headers": map[string]interface{}{"Accept": []interface{}{"a", "b"}},
			"body":    "payload",
		})
		convey.So(err, convey.ShouldBeNil)
		convey.So(req.Method(), convey.ShouldEqual, "DELETE")
		convey.So(req.Path(), convey.ShouldEqual, "/x.lua")
		convey.So(req.Headers().GetAll("accept"), convey.ShouldResemble, []string{"a", "b"})
		convey.So(string(req.Body()), convey.ShouldEqual, "payload")

		m, err := req.ToMap()
		convey.So(err, convey.ShouldBeNil)
		convey.So(m["method"], convey.ShouldEqual, "DELETE")
		convey.So(m["url"], convey.ShouldEqual, "http://localhost/x.lua?a=1")
		convey.So(m["body"], convey.ShouldEqual, "payload")
	})
	convey.Convey("bad header values", t, func() {
		_, err := RequestFromMap(map[string]interface{}{
			"headers": map[string]interface{}{"Accept": 3},
		})
		convey.So(err, convey.ShouldNotBeNil)
	})
}
