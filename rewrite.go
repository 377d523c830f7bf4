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

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Operation combines the conditions of a rule
type Operation int

const (
	// OperationAnd every condition must match
	OperationAnd Operation = iota
	// OperationOr at least one condition must match
	OperationOr
)

func (o Operation) String() string {
	switch o {
	case OperationAnd:
		return "and"
	case OperationOr:
		return "or"
	}
	return "unknown"
}

// ParseOperation accepts "and" or "or" in any case. Empty means "and".
func ParseOperation(raw string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "and":
		return OperationAnd, nil
	case "or":
		return OperationOr, nil
	}
	return OperationAnd, newConfigurationError("operation", "unknown operation: %s", raw)
}

// StepDescription the data form of a condition or rewriter
type StepDescription struct {
	Type string   `json:"type" yaml:"type" mapstructure:"type"`
	Args []string `json:"args" yaml:"args" mapstructure:"args"`
}

// RuleDescription the data form of a rule
type RuleDescription struct {
	Operation  string            `json:"operation" yaml:"operation" mapstructure:"operation"`
	Conditions []StepDescription `json:"conditions" yaml:"conditions" mapstructure:"conditions"`
	Rewriters  []StepDescription `json:"rewriters" yaml:"rewriters" mapstructure:"rewriters"`
}

// Rule applies its rewriters in order when its condition group matches.
type Rule struct {
	Operation  Operation
	Conditions []Condition
	Rewriters  []Rewriter
}

// Matches evaluates the condition group. An empty group always matches.
func (r *Rule) Matches(req *Request, docroot string, fs FileSystem) (bool, error) {
	if len(r.Conditions) == 0 {
		return true, nil
	}
	for _, c := range r.Conditions {
		ok, err := c.Matches(req, docroot, fs)
		if err != nil {
			return false, err
		}
		if r.Operation == OperationOr && ok {
			return true, nil
		}
		if r.Operation == OperationAnd && !ok {
			return false, nil
		}
	}
	return r.Operation == OperationAnd, nil
}

// Apply runs every rewriter, each one on the previous one's output.
func (r *Rule) Apply(req *Request) (*Request, error) {
	var err error
	for _, rw := range r.Rewriters {
		req, err = rw.Apply(req)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

// RewriteRules an ordered rule list. Every rule is checked, in order,
// against the request as left by the rules before it.
type RewriteRules struct {
	rules []*Rule
}

// NewRewriteRules parses descriptions into rules. Any malformed
// description fails the whole set with a ConfigurationError.
func NewRewriteRules(descs []RuleDescription) (*RewriteRules, error) {
	rules := make([]*Rule, 0, len(descs))
	for i, desc := range descs {
		rule, err := ParseRule(desc)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return &RewriteRules{rules: rules}, nil
}

// Len the number of rules
func (rr *RewriteRules) Len() int {
	if rr == nil {
		return 0
	}
	return len(rr.rules)
}

// Rules the parsed rules in order
func (rr *RewriteRules) Rules() []*Rule {
	return rr.rules
}

// Rewrite applies the rule list to req. The original request is returned
// untouched when no rule changes it.
func (rr *RewriteRules) Rewrite(req *Request, docroot string, fs FileSystem) (*Request, error) {
	if rr == nil {
		return req, nil
	}
	current := req
	for i, rule := range rr.rules {
		ok, err := rule.Matches(current, docroot, fs)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if !ok {
			continue
		}
		current, err = rule.Apply(current)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return current, nil
}

// ParseRule parses one rule description
func ParseRule(desc RuleDescription) (*Rule, error) {
	op, err := ParseOperation(desc.Operation)
	if err != nil {
		return nil, err
	}
	rule := &Rule{
		Operation:  op,
		Conditions: make([]Condition, 0, len(desc.Conditions)),
		Rewriters:  make([]Rewriter, 0, len(desc.Rewriters)),
	}
	for _, c := range desc.Conditions {
		condition, err := ParseCondition(c)
		if err != nil {
			return nil, err
		}
		rule.Conditions = append(rule.Conditions, condition)
	}
	for _, r := range desc.Rewriters {
		rewriter, err := ParseRewriter(r)
		if err != nil {
			return nil, err
		}
		rule.Rewriters = append(rule.Rewriters, rewriter)
	}
	return rule, nil
}

// LoadRulesJSON parses a JSON array of rule descriptions
func LoadRulesJSON(data []byte) (*RewriteRules, error) {
	var descs []RuleDescription
	if err := jsoniter.Unmarshal(data, &descs); err != nil {
		return nil, newConfigurationError("rules", "%s", err.Error())
	}
	return NewRewriteRules(descs)
}

// LoadRulesYAML parses a YAML sequence of rule descriptions
func LoadRulesYAML(data []byte) (*RewriteRules, error) {
	var descs []RuleDescription
	if err := yaml.Unmarshal(data, &descs); err != nil {
		return nil, newConfigurationError("rules", "%s", err.Error())
	}
	return NewRewriteRules(descs)
}

// RulesFromValue decodes rules from a generic value such as a settings entry
func RulesFromValue(raw interface{}) (*RewriteRules, error) {
	var descs []RuleDescription
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &descs,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, newConfigurationError("rules", "%s", err.Error())
	}
	return NewRewriteRules(descs)
}

func compilePattern(kind string, raw string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(raw)
	if err != nil {
		return nil, newConfigurationError(kind, "invalid pattern %q: %s", raw, err.Error())
	}
	return re, nil
}

func checkArgs(kind string, typ string, args []string, want ...int) error {
	for _, n := range want {
		if len(args) == n {
			return nil
		}
	}
	return newConfigurationError(kind, "wrong number of parameters for %s: expected %v, got %d", typ, want, len(args))
}

// replaceFirst substitutes the first match of re in src. The replacement
// may reference groups as $n, ${n} or ${name}.
func replaceFirst(re *regexp.Regexp, src string, replacement string) string {
	m := re.FindStringSubmatchIndex(src)
	if m == nil {
		return src
	}
	expanded := re.ExpandString(nil, replacement, src, m)
	return src[:m[0]] + string(expanded) + src[m[1]:]
}
