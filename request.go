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
	"fmt"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Request is an immutable snapshot of an HTTP-shaped request. Rewriting
// produces a new Request through Extend.
type Request struct {
	method  string
	url     *url.URL
	rawURL  string
	headers *Headers
	body    []byte

	// optErr the first error raised by an option
	optErr error
}

// RequestOption optional parameters of NewRequest and Extend
type RequestOption func(r *Request)

// requestFields is the map form of a Request
type requestFields struct {
	Method  string                 `mapstructure:"method" json:"method"`
	URL     string                 `mapstructure:"url" json:"url"`
	Headers map[string]interface{} `mapstructure:"headers" json:"headers"`
	Body    string                 `mapstructure:"body" json:"body"`
}

const defaultRequestURL = "http://example.com/"

var reqLog *logrus.Entry = GetLogger("request")

// RequestWithMethod sets the method, stored uppercased
func RequestWithMethod(method string) RequestOption {
	return func(r *Request) {
		r.method = strings.ToUpper(strings.TrimSpace(method))
	}
}

// RequestWithURL sets the absolute request url
func RequestWithURL(rawURL string) RequestOption {
	return func(r *Request) {
		r.rawURL = rawURL
		r.url = nil
	}
}

// RequestWithHeaders replaces the headers with a copy of headers
func RequestWithHeaders(headers *Headers) RequestOption {
	return func(r *Request) {
		r.headers = headers.Clone()
	}
}

// RequestWithHeaderMap replaces the headers with the given mapping
func RequestWithHeaderMap(headers map[string]interface{}) RequestOption {
	return func(r *Request) {
		h, err := HeadersFromMap(headers)
		if err != nil {
			r.setErr(err)
			return
		}
		r.headers = h
	}
}

// RequestWithHeader appends one header value
func RequestWithHeader(name string, value string) RequestOption {
	return func(r *Request) {
		r.headers.Add(name, value)
	}
}

// RequestWithBody sets the raw body
func RequestWithBody(body []byte) RequestOption {
	return func(r *Request) {
		r.body = append([]byte{}, body...)
	}
}

// RequestWithJSONBody serializes v as the body and sets the content type
func RequestWithJSONBody(v interface{}) RequestOption {
	return func(r *Request) {
		body, err := jsoniter.Marshal(v)
		if err != nil {
			reqLog.Errorf("set request body err %s", err.Error())
			r.setErr(newConfigurationError("body", "%s", err.Error()))
			return
		}
		r.body = body
		r.headers.Set("Content-Type", "application/json")
	}
}

func (r *Request) setErr(err error) {
	if r.optErr == nil {
		r.optErr = err
	}
}

// NewRequest builds a request. The method defaults to GET, the url to
// http://example.com/ and the body to empty.
func NewRequest(opts ...RequestOption) (*Request, error) {
	r := &Request{
		method:  "GET",
		rawURL:  defaultRequestURL,
		headers: NewHeaders(),
		body:    []byte{},
	}
	return r.apply(opts...)
}

func (r *Request) apply(opts ...RequestOption) (*Request, error) {
	for _, o := range opts {
		o(r)
	}
	if r.optErr != nil {
		return nil, r.optErr
	}
	if r.method == "" {
		return nil, newConfigurationError("method", "method cannot be empty")
	}
	if r.url == nil {
		u, err := parseAbsoluteURL(r.rawURL)
		if err != nil {
			return nil, err
		}
		r.url = u
	}
	r.rawURL = r.url.String()
	return r, nil
}

func parseAbsoluteURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, newConfigurationError("url", "%s", err.Error())
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, newConfigurationError("url", "%q is not an absolute url", rawURL)
	}
	return u, nil
}

// Extend returns a copy of r with opts applied. r itself is never modified.
func (r *Request) Extend(opts ...RequestOption) (*Request, error) {
	u := *r.url
	c := &Request{
		method:  r.method,
		url:     &u,
		rawURL:  r.rawURL,
		headers: r.headers.Clone(),
		body:    r.body,
	}
	return c.apply(opts...)
}

// requestWithParsedURL replaces the url with an already parsed value
func requestWithParsedURL(u *url.URL) RequestOption {
	return func(r *Request) {
		r.url = u
	}
}

func (r *Request) Method() string {
	return r.method
}

// URL the absolute url string
func (r *Request) URL() string {
	return r.rawURL
}

// Headers returns a copy of the request headers
func (r *Request) Headers() *Headers {
	return r.headers.Clone()
}

// Header returns the last value of name
func (r *Request) Header(name string) (string, bool) {
	return r.headers.Get(name)
}

// Body returns the request body; callers must not modify it
func (r *Request) Body() []byte {
	return r.body
}

// Path the decoded path component, "/" when empty
func (r *Request) Path() string {
	if r.url.Path == "" {
		return "/"
	}
	return r.url.Path
}

// Query the raw query string without "?"
func (r *Request) Query() string {
	return r.url.RawQuery
}

func (r *Request) Fragment() string {
	return r.url.Fragment
}

func (r *Request) Scheme() string {
	return r.url.Scheme
}

func (r *Request) Host() string {
	return r.url.Host
}

// RequestURI the path plus query, as sent on the request line
func (r *Request) RequestURI() string {
	uri := r.url.EscapedPath()
	if uri == "" {
		uri = "/"
	}
	if r.url.RawQuery != "" {
		uri += "?" + r.url.RawQuery
	}
	return uri
}

// Href the path, query and fragment combined
func (r *Request) Href() string {
	href := r.RequestURI()
	if r.url.Fragment != "" {
		href += "#" + r.url.EscapedFragment()
	}
	return href
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s", r.method, r.rawURL)
}

// ToMap converts the request to its map form
func (r *Request) ToMap() (map[string]interface{}, error) {
	headers := make(map[string]interface{}, r.headers.Len())
	for name, values := range r.headers.ToMap() {
		headers[name] = values
	}
	fields := requestFields{
		Method:  r.method,
		URL:     r.rawURL,
		Headers: headers,
		Body:    string(r.body),
	}
	m := make(map[string]interface{})
	err := mapstructure.Decode(fields, &m)
	return m, err
}

// RequestFromMap builds a request from its map form, then applies opts.
func RequestFromMap(src map[string]interface{}, opts ...RequestOption) (*Request, error) {
	var fields requestFields
	if err := mapstructure.Decode(src, &fields); err != nil {
		return nil, newConfigurationError("request", "%s", err.Error())
	}
	base := make([]RequestOption, 0, 4+len(opts))
	if fields.Method != "" {
		base = append(base, RequestWithMethod(fields.Method))
	}
	if fields.URL != "" {
		base = append(base, RequestWithURL(fields.URL))
	}
	if fields.Headers != nil {
		base = append(base, RequestWithHeaderMap(fields.Headers))
	}
	if fields.Body != "" {
		base = append(base, RequestWithBody([]byte(fields.Body)))
	}
	return NewRequest(append(base, opts...)...)
}
