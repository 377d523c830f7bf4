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
	"net/url"
	"regexp"
	"strings"
)

// RewriterKind the closed set of rewriter types
type RewriterKind int

const (
	// RewriterHeader substitutes inside a header value
	RewriterHeader RewriterKind = iota
	// RewriterPath substitutes inside the url path
	RewriterPath
	// RewriterHref substitutes inside path, query and fragment combined
	RewriterHref
	// RewriterMethod replaces the method
	RewriterMethod
)

var rewriterKindNames = map[RewriterKind]string{
	RewriterHeader: "header",
	RewriterPath:   "path",
	RewriterHref:   "href",
	RewriterMethod: "method",
}

func (k RewriterKind) String() string {
	if name, ok := rewriterKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HeaderSubstitution arguments of a header rewriter
type HeaderSubstitution struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// Substitution arguments of path and href rewriters
type Substitution struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// MethodReplacement arguments of a method rewriter. Without a pattern the
// method is replaced by the literal Replacement.
type MethodReplacement struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Rewriter is one tagged request transformation. Only the argument field
// that belongs to Kind is set.
type Rewriter struct {
	Kind   RewriterKind
	Header *HeaderSubstitution
	Sub    *Substitution
	Method *MethodReplacement
}

// HeaderRewriter builds a header rewriter
func HeaderRewriter(name string, pattern string, replacement string) (Rewriter, error) {
	re, err := compilePattern("rewriters.header", pattern)
	if err != nil {
		return Rewriter{}, err
	}
	return Rewriter{Kind: RewriterHeader, Header: &HeaderSubstitution{Name: name, Pattern: re, Replacement: replacement}}, nil
}

// PathRewriter builds a path rewriter
func PathRewriter(pattern string, replacement string) (Rewriter, error) {
	re, err := compilePattern("rewriters.path", pattern)
	if err != nil {
		return Rewriter{}, err
	}
	return Rewriter{Kind: RewriterPath, Sub: &Substitution{Pattern: re, Replacement: replacement}}, nil
}

// HrefRewriter builds an href rewriter
func HrefRewriter(pattern string, replacement string) (Rewriter, error) {
	re, err := compilePattern("rewriters.href", pattern)
	if err != nil {
		return Rewriter{}, err
	}
	return Rewriter{Kind: RewriterHref, Sub: &Substitution{Pattern: re, Replacement: replacement}}, nil
}

// MethodRewriter replaces the method with a literal
func MethodRewriter(replacement string) (Rewriter, error) {
	if strings.TrimSpace(replacement) == "" {
		return Rewriter{}, newConfigurationError("rewriters.method", "replacement method cannot be empty")
	}
	return Rewriter{Kind: RewriterMethod, Method: &MethodReplacement{Replacement: replacement}}, nil
}

// MethodPatternRewriter substitutes inside the method
func MethodPatternRewriter(pattern string, replacement string) (Rewriter, error) {
	re, err := compilePattern("rewriters.method", pattern)
	if err != nil {
		return Rewriter{}, err
	}
	return Rewriter{Kind: RewriterMethod, Method: &MethodReplacement{Pattern: re, Replacement: replacement}}, nil
}

// ParseRewriter parses a rewriter description
func ParseRewriter(desc StepDescription) (Rewriter, error) {
	typ := strings.ToLower(strings.TrimSpace(desc.Type))
	switch typ {
	case "header":
		if err := checkArgs("rewriters", typ, desc.Args, 3); err != nil {
			return Rewriter{}, err
		}
		return HeaderRewriter(desc.Args[0], desc.Args[1], desc.Args[2])
	case "path":
		if err := checkArgs("rewriters", typ, desc.Args, 2); err != nil {
			return Rewriter{}, err
		}
		return PathRewriter(desc.Args[0], desc.Args[1])
	case "href":
		if err := checkArgs("rewriters", typ, desc.Args, 2); err != nil {
			return Rewriter{}, err
		}
		return HrefRewriter(desc.Args[0], desc.Args[1])
	case "method":
		if err := checkArgs("rewriters", typ, desc.Args, 1, 2); err != nil {
			return Rewriter{}, err
		}
		if len(desc.Args) == 1 {
			return MethodRewriter(desc.Args[0])
		}
		return MethodPatternRewriter(desc.Args[0], desc.Args[1])
	}
	return Rewriter{}, newConfigurationError("rewriters", "unknown rewriter type: %s", desc.Type)
}

// Apply returns the rewritten request, or req itself when nothing changed.
func (rw Rewriter) Apply(req *Request) (*Request, error) {
	switch rw.Kind {
	case RewriterHeader:
		value, ok := req.headers.Get(rw.Header.Name)
		if !ok {
			return req, nil
		}
		replaced := replaceFirst(rw.Header.Pattern, value, rw.Header.Replacement)
		if replaced == value {
			return req, nil
		}
		return req.Extend(func(r *Request) {
			r.headers.Set(rw.Header.Name, replaced)
		})
	case RewriterPath:
		path := req.Path()
		replaced := replaceFirst(rw.Sub.Pattern, path, rw.Sub.Replacement)
		if replaced == path {
			return req, nil
		}
		u := *req.url
		u.Path = replaced
		u.RawPath = ""
		return req.Extend(requestWithParsedURL(&u))
	case RewriterHref:
		href := req.Href()
		replaced := replaceFirst(rw.Sub.Pattern, href, rw.Sub.Replacement)
		if replaced == href {
			return req, nil
		}
		base := &url.URL{Scheme: req.url.Scheme, Host: req.url.Host, User: req.url.User, Path: "/"}
		u, err := base.Parse(replaced)
		if err != nil {
			return nil, newConfigurationError("rewriters.href", "rewritten href %q is invalid: %s", replaced, err.Error())
		}
		return req.Extend(requestWithParsedURL(u))
	case RewriterMethod:
		method := rw.Method.Replacement
		if rw.Method.Pattern != nil {
			method = replaceFirst(rw.Method.Pattern, req.Method(), rw.Method.Replacement)
		}
		if method == req.Method() {
			return req, nil
		}
		return req.Extend(RequestWithMethod(method))
	}
	return req, nil
}
