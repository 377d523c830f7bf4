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
	"sync"
	"sync/atomic"
)

// RequestInfo is the per-request descriptor installed into an engine at
// activation. Descriptors are pooled: every AcquireRequestInfo must be paired
// with exactly one Release.
type RequestInfo struct {
	Method         string
	RequestURI     string
	Path           string
	QueryString    string
	ContentType    string
	ContentLength  int64
	Cookie         string
	PathTranslated string
	DocumentRoot   string
	Argv           []string
	// ResponseCode is written by the engine while the script runs
	ResponseCode int

	allocated bool
}

const defaultResponseCode = 200

var requestInfoPool *sync.Pool = &sync.Pool{
	New: func() interface{} {
		return new(RequestInfo)
	},
}

var liveRequestInfos int64

// AcquireRequestInfo takes a zeroed descriptor from the pool.
func AcquireRequestInfo() *RequestInfo {
	info := requestInfoPool.Get().(*RequestInfo)
	info.reset()
	info.allocated = true
	atomic.AddInt64(&liveRequestInfos, 1)
	return info
}

// Release returns the descriptor to the pool. Releasing twice is a no-op.
func (r *RequestInfo) Release() {
	if r == nil || !r.allocated {
		return
	}
	r.reset()
	r.allocated = false
	atomic.AddInt64(&liveRequestInfos, -1)
	requestInfoPool.Put(r)
}

// Allocated reports whether the descriptor is currently owned by a request
func (r *RequestInfo) Allocated() bool {
	return r != nil && r.allocated
}

// LiveRequestInfos the number of descriptors acquired but not yet released
func LiveRequestInfos() int64 {
	return atomic.LoadInt64(&liveRequestInfos)
}

func (r *RequestInfo) reset() {
	r.Method = ""
	r.RequestURI = ""
	r.Path = ""
	r.QueryString = ""
	r.ContentType = ""
	r.ContentLength = -1
	r.Cookie = ""
	r.PathTranslated = ""
	r.DocumentRoot = ""
	r.Argv = nil
	r.ResponseCode = defaultResponseCode
}
