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
	"fmt"
	"strconv"
	"strings"
)

// Ini is an ordered set of engine configuration directives.
type Ini struct {
	keys   []string
	values map[string]string
}

// NewIni creates an empty directive set
func NewIni() *Ini {
	return &Ini{
		keys:   make([]string, 0),
		values: make(map[string]string),
	}
}

// DefaultIni the baseline every engine is started with:
// errors are logged but never displayed, output is flushed implicitly and
// memory is capped.
func DefaultIni() *Ini {
	return NewIni().
		Set("error_reporting", "4343").
		Set("display_errors", "0").
		Set("register_argc_argv", "1").
		Set("log_errors", "1").
		Set("implicit_flush", "1").
		Set("memory_limit", "128M").
		Set("output_buffering", "0").
		Set("html_errors", "0").
		Set("max_execution_time", "0")
}

// Set adds or replaces a directive, keeping its first position.
func (i *Ini) Set(key string, value string) *Ini {
	if _, ok := i.values[key]; !ok {
		i.keys = append(i.keys, key)
	}
	i.values[key] = value
	return i
}

// Get returns the directive value
func (i *Ini) Get(key string) (string, bool) {
	v, ok := i.values[key]
	return v, ok
}

// Keys directive names in insertion order
func (i *Ini) Keys() []string {
	keys := make([]string, len(i.keys))
	copy(keys, i.keys)
	return keys
}

// Merge copies every directive of other over i.
func (i *Ini) Merge(other map[string]string) *Ini {
	for k, v := range other {
		i.Set(k, v)
	}
	return i
}

func (i *Ini) Clone() *Ini {
	c := NewIni()
	for _, k := range i.keys {
		c.Set(k, i.values[k])
	}
	return c
}

// String renders the directives in ini file syntax.
func (i *Ini) String() string {
	var b strings.Builder
	for _, k := range i.keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(i.values[k])
		b.WriteString("\n")
	}
	return b.String()
}

// Bool reports whether the directive is switched on
func (i *Ini) Bool(key string) bool {
	v, ok := i.values[key]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

// Bytes parses a size directive such as "128M". "-1" means unlimited and
// is returned as -1.
func (i *Ini) Bytes(key string) (int64, error) {
	v, ok := i.values[key]
	if !ok {
		return 0, fmt.Errorf("ini directive %s is not set", key)
	}
	return parseSize(v)
}

func parseSize(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "-1" {
		return -1, nil
	}
	if s == "" {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	var mul int64 = 1
	switch s[len(s)-1] {
	case 'k', 'K':
		mul = 1 << 10
	case 'm', 'M':
		mul = 1 << 20
	case 'g', 'G':
		mul = 1 << 30
	}
	if mul != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * mul, nil
}
