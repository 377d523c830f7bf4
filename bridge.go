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
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wetrycode/argiope/sapi"
)

// Script is a request that has been resolved to a script under the docroot
type Script struct {
	Request  *Request
	Filename string
	Source   []byte
	Docroot  string
	Argv     []string
}

// bridge translates one Request into the engine's per-request state and
// collects what the engine emits back into a Response. A bridge lives for
// exactly one Activated to Deactivated cycle.
type bridge struct {
	script      *Script
	body        *bytes.Reader
	builder     *ResponseBuilder
	info        *sapi.RequestInfo
	headersSent bool
	log         *logrus.Entry
}

var bridgeLog *logrus.Entry = GetLogger("bridge")

func newBridge(script *Script) *bridge {
	return &bridge{
		script:  script,
		body:    bytes.NewReader(script.Request.Body()),
		builder: NewResponseBuilder(),
		log:     bridgeLog,
	}
}

// acquireInfo allocates the request descriptor. It is released by release.
func (b *bridge) acquireInfo() *sapi.RequestInfo {
	req := b.script.Request
	info := sapi.AcquireRequestInfo()
	info.Method = req.Method()
	info.RequestURI = req.RequestURI()
	info.Path = req.Path()
	info.QueryString = req.Query()
	info.ContentType, _ = req.headers.GetLine("Content-Type")
	if raw, ok := req.headers.Get("Content-Length"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && n >= 0 {
			info.ContentLength = n
		}
	}
	info.Cookie = strings.Join(req.headers.GetAll("Cookie"), "; ")
	info.PathTranslated = b.script.Filename
	info.DocumentRoot = b.script.Docroot
	info.Argv = append([]string{}, b.script.Argv...)
	b.info = info
	return info
}

// release frees everything the bridge allocated. Safe to call twice.
func (b *bridge) release() {
	if b.info != nil {
		b.info.Release()
		b.info = nil
	}
	b.builder.release()
}

func (b *bridge) UbWrite(p []byte) int {
	b.builder.Body(p)
	return len(p)
}

func (b *bridge) Flush() {}

func (b *bridge) SendHeaders(status int, lines []string) {
	if b.headersSent {
		return
	}
	b.headersSent = true
	b.builder.Status(status)
	for _, line := range lines {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			b.log.Warnf("drop malformed header line %q", line)
			continue
		}
		b.builder.AddHeader(strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]))
	}
}

func (b *bridge) ReadPost(max int) []byte {
	if max <= 0 || b.body.Len() == 0 {
		return nil
	}
	chunk := make([]byte, max)
	n, _ := b.body.Read(chunk)
	return chunk[:n]
}

func (b *bridge) ReadCookies() string {
	if b.info == nil {
		return ""
	}
	return b.info.Cookie
}

// RegisterVariables exposes the CGI-style server variables.
func (b *bridge) RegisterVariables(vars map[string]string) {
	req := b.script.Request
	for _, name := range req.headers.Names() {
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		vars[key], _ = req.headers.GetLine(name)
	}
	scriptName := req.Path()
	if rel, err := filepath.Rel(b.script.Docroot, b.script.Filename); err == nil && !strings.HasPrefix(rel, "..") {
		scriptName = "/" + filepath.ToSlash(rel)
	}
	vars["REQUEST_SCHEME"] = req.Scheme()
	vars["GATEWAY_INTERFACE"] = "CGI/1.1"
	vars["PHP_SELF"] = scriptName
	vars["SCRIPT_NAME"] = scriptName
	vars["PATH_INFO"] = req.Path()
	vars["SCRIPT_FILENAME"] = b.script.Filename
	vars["PATH_TRANSLATED"] = b.script.Filename
	vars["DOCUMENT_ROOT"] = b.script.Docroot
	vars["CONTEXT_DOCUMENT_ROOT"] = b.script.Docroot
	vars["SERVER_NAME"] = req.url.Hostname()
	vars["SERVER_PORT"] = serverPort(req)
	vars["REQUEST_URI"] = req.RequestURI()
	vars["SERVER_PROTOCOL"] = "HTTP/1.1"
	vars["SERVER_SOFTWARE"] = ServerSoftware
	vars["REQUEST_METHOD"] = req.Method()
	vars["QUERY_STRING"] = req.Query()
	if b.info != nil {
		if b.info.Cookie != "" {
			vars["HTTP_COOKIE"] = b.info.Cookie
		}
		if b.info.ContentType != "" {
			vars["CONTENT_TYPE"] = b.info.ContentType
		}
		if b.info.ContentLength >= 0 {
			vars["CONTENT_LENGTH"] = strconv.FormatInt(b.info.ContentLength, 10)
		}
	}
}

func serverPort(req *Request) string {
	if port := req.url.Port(); port != "" {
		return port
	}
	if req.Scheme() == "https" {
		return "443"
	}
	return "80"
}

// LogMessage captures one message, newline terminated.
func (b *bridge) LogMessage(msg string) {
	b.builder.Log([]byte(msg + "\n"))
}

func (b *bridge) RequestHeaders() map[string]string {
	req := b.script.Request
	headers := make(map[string]string, req.headers.Len())
	for _, name := range req.headers.Names() {
		headers[name], _ = req.headers.GetLine(name)
	}
	return headers
}
