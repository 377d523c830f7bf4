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
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionKind the closed set of condition types
type ConditionKind int

const (
	// ConditionExists the docroot-joined path exists
	ConditionExists ConditionKind = iota
	// ConditionNotExists the docroot-joined path does not exist
	ConditionNotExists
	// ConditionHeader a header value matches a pattern
	ConditionHeader
	// ConditionMethod the method matches a pattern
	ConditionMethod
	// ConditionPath the url path matches a pattern
	ConditionPath
	// ConditionExpr a boolean expression over the request
	ConditionExpr
)

var conditionKindNames = map[ConditionKind]string{
	ConditionExists:    "exists",
	ConditionNotExists: "not_exists",
	ConditionHeader:    "header",
	ConditionMethod:    "method",
	ConditionPath:      "path",
	ConditionExpr:      "expr",
}

func (k ConditionKind) String() string {
	if name, ok := conditionKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HeaderMatch arguments of a header condition
type HeaderMatch struct {
	Name    string
	Pattern *regexp.Regexp
}

// PatternMatch arguments of method and path conditions
type PatternMatch struct {
	Pattern *regexp.Regexp
}

// ExprMatch arguments of an expr condition
type ExprMatch struct {
	Source  string
	Program *vm.Program
}

// Condition is one tagged condition. Only the argument field that belongs
// to Kind is set.
type Condition struct {
	Kind   ConditionKind
	Header *HeaderMatch
	Match  *PatternMatch
	Expr   *ExprMatch
}

// ExistsCondition builds an exists condition
func ExistsCondition() Condition {
	return Condition{Kind: ConditionExists}
}

// NotExistsCondition builds a not_exists condition
func NotExistsCondition() Condition {
	return Condition{Kind: ConditionNotExists}
}

// HeaderCondition builds a header condition
func HeaderCondition(name string, pattern string) (Condition, error) {
	re, err := compilePattern("conditions.header", pattern)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Kind: ConditionHeader, Header: &HeaderMatch{Name: name, Pattern: re}}, nil
}

// MethodCondition builds a method condition
func MethodCondition(pattern string) (Condition, error) {
	re, err := compilePattern("conditions.method", pattern)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Kind: ConditionMethod, Match: &PatternMatch{Pattern: re}}, nil
}

// PathCondition builds a path condition
func PathCondition(pattern string) (Condition, error) {
	re, err := compilePattern("conditions.path", pattern)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Kind: ConditionPath, Match: &PatternMatch{Pattern: re}}, nil
}

// ExprCondition compiles a boolean expression. The expression sees
// method, path, query, url and headers (lowercased name to joined value).
func ExprCondition(source string) (Condition, error) {
	program, err := expr.Compile(source, expr.Env(exprEnv(nil)), expr.AsBool())
	if err != nil {
		return Condition{}, newConfigurationError("conditions.expr", "invalid expression %q: %s", source, err.Error())
	}
	return Condition{Kind: ConditionExpr, Expr: &ExprMatch{Source: source, Program: program}}, nil
}

// ParseCondition parses a condition description
func ParseCondition(desc StepDescription) (Condition, error) {
	typ := strings.ToLower(strings.TrimSpace(desc.Type))
	switch typ {
	case "exists":
		if err := checkArgs("conditions", typ, desc.Args, 0); err != nil {
			return Condition{}, err
		}
		return ExistsCondition(), nil
	case "not_exists":
		if err := checkArgs("conditions", typ, desc.Args, 0); err != nil {
			return Condition{}, err
		}
		return NotExistsCondition(), nil
	case "header":
		if err := checkArgs("conditions", typ, desc.Args, 2); err != nil {
			return Condition{}, err
		}
		return HeaderCondition(desc.Args[0], desc.Args[1])
	case "method":
		if err := checkArgs("conditions", typ, desc.Args, 1); err != nil {
			return Condition{}, err
		}
		return MethodCondition(desc.Args[0])
	case "path":
		if err := checkArgs("conditions", typ, desc.Args, 1); err != nil {
			return Condition{}, err
		}
		return PathCondition(desc.Args[0])
	case "expr":
		if err := checkArgs("conditions", typ, desc.Args, 1); err != nil {
			return Condition{}, err
		}
		return ExprCondition(desc.Args[0])
	}
	return Condition{}, newConfigurationError("conditions", "unknown condition type: %s", desc.Type)
}

// Matches evaluates the condition against req
func (c Condition) Matches(req *Request, docroot string, fs FileSystem) (bool, error) {
	switch c.Kind {
	case ConditionExists:
		return fs.Exists(joinDocroot(docroot, req.Path())), nil
	case ConditionNotExists:
		return !fs.Exists(joinDocroot(docroot, req.Path())), nil
	case ConditionHeader:
		value, ok := req.headers.Get(c.Header.Name)
		if !ok {
			return false, nil
		}
		return c.Header.Pattern.MatchString(value), nil
	case ConditionMethod:
		return c.Match.Pattern.MatchString(req.Method()), nil
	case ConditionPath:
		return c.Match.Pattern.MatchString(req.Path()), nil
	case ConditionExpr:
		out, err := expr.Run(c.Expr.Program, exprEnv(req))
		if err != nil {
			return false, fmt.Errorf("evaluate %q: %w", c.Expr.Source, err)
		}
		matched, _ := out.(bool)
		return matched, nil
	}
	return false, fmt.Errorf("unknown condition kind %d", c.Kind)
}

func exprEnv(req *Request) map[string]interface{} {
	env := map[string]interface{}{
		"method":  "",
		"path":    "",
		"query":   "",
		"url":     "",
		"headers": map[string]string{},
	}
	if req == nil {
		return env
	}
	headers := make(map[string]string, req.headers.Len())
	for _, name := range req.headers.Names() {
		headers[name], _ = req.headers.GetLine(name)
	}
	env["method"] = req.Method()
	env["path"] = req.Path()
	env["query"] = req.Query()
	env["url"] = req.URL()
	env["headers"] = headers
	return env
}
