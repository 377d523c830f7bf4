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
	"bytes"
	"fmt"
	"sync"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// Response the result of executing one request
type Response struct {
	status    int
	headers   *Headers
	body      []byte
	log       []byte
	exception *string
}

// bufferPool buffers used to accumulate body and log output while a script runs
var bufferPool *sync.Pool = &sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 8192))
	},
}

var respLog *logrus.Entry = GetLogger("response")

// ResponseOption optional parameters of NewResponse
type ResponseOption func(r *Response)

func ResponseWithStatus(status int) ResponseOption {
	return func(r *Response) {
		r.status = status
	}
}

func ResponseWithHeaders(headers *Headers) ResponseOption {
	return func(r *Response) {
		r.headers = headers.Clone()
	}
}

func ResponseWithBody(body []byte) ResponseOption {
	return func(r *Response) {
		r.body = append([]byte{}, body...)
	}
}

func ResponseWithLog(log []byte) ResponseOption {
	return func(r *Response) {
		r.log = append([]byte{}, log...)
	}
}

func ResponseWithException(exception string) ResponseOption {
	return func(r *Response) {
		r.exception = &exception
	}
}

// NewResponse builds a response directly, status defaults to 200
func NewResponse(opts ...ResponseOption) *Response {
	r := &Response{
		status:  200,
		headers: NewHeaders(),
		body:    []byte{},
		log:     []byte{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Response) Status() int {
	return r.status
}

// Headers returns a copy of the response headers
func (r *Response) Headers() *Headers {
	return r.headers.Clone()
}

func (r *Response) Header(name string) (string, bool) {
	return r.headers.Get(name)
}

func (r *Response) Body() []byte {
	return r.body
}

// Log diagnostic output captured while the script ran
func (r *Response) Log() []byte {
	return r.log
}

// Exception the uncaught exception message, if any
func (r *Response) Exception() (string, bool) {
	if r.exception == nil {
		return "", false
	}
	return *r.exception, true
}

// String get response text from response body
func (r *Response) String() string {
	return string(r.body)
}

// Json deserialize the response body to json
func (r *Response) Json() (map[string]interface{}, error) {
	jsonResp := map[string]interface{}{}
	err := jsoniter.Unmarshal(r.body, &jsonResp)
	if err != nil {
		respLog.Errorf("Get json response error %s", err.Error())
		return nil, err
	}
	return jsonResp, nil
}

// Document parses the body as HTML
func (r *Response) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(r.body))
}

// ResponseBuilder accumulates a Response while a script runs. Body and log
// buffers come from a pool and are returned by Build.
type ResponseBuilder struct {
	status    int
	headers   *Headers
	body      *bytes.Buffer
	log       *bytes.Buffer
	exception *string
	built     bool
}

// NewResponseBuilder status defaults to 200
func NewResponseBuilder() *ResponseBuilder {
	body := bufferPool.Get().(*bytes.Buffer)
	body.Reset()
	log := bufferPool.Get().(*bytes.Buffer)
	log.Reset()
	return &ResponseBuilder{
		status:  200,
		headers: NewHeaders(),
		body:    body,
		log:     log,
	}
}

func (b *ResponseBuilder) Status(status int) *ResponseBuilder {
	b.status = status
	return b
}

func (b *ResponseBuilder) GetStatus() int {
	return b.status
}

// Header replaces every value of name
func (b *ResponseBuilder) Header(name string, value string) *ResponseBuilder {
	b.headers.Set(name, value)
	return b
}

// AddHeader appends a value to name
func (b *ResponseBuilder) AddHeader(name string, value string) *ResponseBuilder {
	b.headers.Add(name, value)
	return b
}

func (b *ResponseBuilder) Body(p []byte) *ResponseBuilder {
	if b.body == nil {
		return b
	}
	b.body.Write(p)
	return b
}

func (b *ResponseBuilder) Log(p []byte) *ResponseBuilder {
	if b.log == nil {
		return b
	}
	b.log.Write(p)
	return b
}

func (b *ResponseBuilder) Exception(msg string) *ResponseBuilder {
	b.exception = &msg
	return b
}

// Build copies the accumulated state into a Response and releases the
// pooled buffers. The builder cannot be used afterwards.
func (b *ResponseBuilder) Build() (*Response, error) {
	if b.built || b.body == nil {
		return nil, fmt.Errorf("response already built")
	}
	b.built = true
	r := &Response{
		status:    b.status,
		headers:   b.headers,
		body:      append([]byte{}, b.body.Bytes()...),
		log:       append([]byte{}, b.log.Bytes()...),
		exception: b.exception,
	}
	b.release()
	return r, nil
}

// release returns the pooled buffers. Safe to call more than once.
func (b *ResponseBuilder) release() {
	if b.body != nil {
		bufferPool.Put(b.body)
		b.body = nil
	}
	if b.log != nil {
		bufferPool.Put(b.log)
		b.log = nil
	}
}

func notFoundResponse() *Response {
	r := NewResponse(ResponseWithStatus(404), ResponseWithBody([]byte("Not Found")))
	r.headers.Set("Content-Type", "text/plain")
	return r
}

func internalErrorResponse(err error) *Response {
	r := NewResponse(ResponseWithStatus(500), ResponseWithBody([]byte("Internal Server Error")), ResponseWithException(err.Error()))
	r.headers.Set("Content-Type", "text/plain")
	return r
}
