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

import "sort"

// MiddlewaresInterface hooks run around every script dispatch.
// Lower priorities see the request first and the response last.
type MiddlewaresInterface interface {
	// GetPriority get middleware priority
	GetPriority() int

	// ProcessRequest runs before the rewrite rules. The returned request
	// replaces req.
	ProcessRequest(req *Request) (*Request, error)

	// ProcessResponse runs after the script, exceptions included. The
	// returned response replaces resp.
	ProcessResponse(req *Request, resp *Response) (*Response, error)

	// GetName get middleware name
	GetName() string
}

type MiddlewaresBase struct {
	Priority int
	Name     string
}

func (m MiddlewaresBase) GetPriority() int {
	return m.Priority
}

func (m MiddlewaresBase) GetName() string {
	return m.Name
}

func (m MiddlewaresBase) ProcessRequest(req *Request) (*Request, error) {
	return req, nil
}

func (m MiddlewaresBase) ProcessResponse(_ *Request, resp *Response) (*Response, error) {
	return resp, nil
}

type Middlewares []MiddlewaresInterface

func (p Middlewares) Len() int           { return len(p) }
func (p Middlewares) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p Middlewares) Less(i, j int) bool { return p[i].GetPriority() < p[j].GetPriority() }

// processRequest applies every middleware in priority order
func (p Middlewares) processRequest(req *Request) (*Request, error) {
	for _, m := range p {
		next, err := m.ProcessRequest(req)
		if err != nil {
			return nil, &MiddlewareError{Name: m.GetName(), Err: err}
		}
		if next != nil {
			req = next
		}
	}
	return req, nil
}

// processResponse applies every middleware in reverse priority order
func (p Middlewares) processResponse(req *Request, resp *Response) (*Response, error) {
	for i := len(p) - 1; i >= 0; i-- {
		next, err := p[i].ProcessResponse(req, resp)
		if err != nil {
			return nil, &MiddlewareError{Name: p[i].GetName(), Err: err}
		}
		if next != nil {
			resp = next
		}
	}
	return resp, nil
}

func sortMiddlewares(m Middlewares) Middlewares {
	sorted := append(Middlewares{}, m...)
	sort.Stable(sorted)
	return sorted
}
