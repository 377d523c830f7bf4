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
	"sort"
	"strings"
)

// Headers is an ordered, case-insensitive multimap of header names to values.
// Names are stored lowercased. A name never maps to an empty value list.
type Headers struct {
	names  []string
	values map[string][]string
}

// NewHeaders creates an empty header map
func NewHeaders() *Headers {
	return &Headers{
		names:  make([]string, 0),
		values: make(map[string][]string),
	}
}

// HeadersFromMap builds headers from a name to value(s) mapping. A string
// becomes a single value and a string list keeps its order. Names are
// inserted in sorted order so construction is deterministic.
func HeadersFromMap(src map[string]interface{}) (*Headers, error) {
	h := NewHeaders()
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := src[k].(type) {
		case string:
			h.Add(k, v)
		case []string:
			for _, item := range v {
				h.Add(k, item)
			}
		case []interface{}:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, newConfigurationError("headers."+k, "header values must be strings, got %T", item)
				}
				h.Add(k, s)
			}
		default:
			return nil, newConfigurationError("headers."+k, "header value must be a string or a list of strings, got %T", v)
		}
	}
	return h, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Set replaces every value of name with value
func (h *Headers) Set(name string, value string) {
	key := normalizeName(name)
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, key)
	}
	h.values[key] = []string{value}
}

// Add appends value to name, creating the entry when absent
func (h *Headers) Add(name string, value string) {
	key := normalizeName(name)
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, key)
	}
	h.values[key] = append(h.values[key], value)
}

func (h *Headers) Has(name string) bool {
	_, ok := h.values[normalizeName(name)]
	return ok
}

// Get returns the most recently added value for name.
func (h *Headers) Get(name string) (string, bool) {
	values, ok := h.values[normalizeName(name)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[len(values)-1], true
}

// GetAll returns a copy of every value for name, in insertion order
func (h *Headers) GetAll(name string) []string {
	values := h.values[normalizeName(name)]
	all := make([]string, len(values))
	copy(all, values)
	return all
}

// GetLine joins every value of name with ", ". Headers that must not be
// folded, such as Set-Cookie, lose their boundaries here.
func (h *Headers) GetLine(name string) (string, bool) {
	values, ok := h.values[normalizeName(name)]
	if !ok {
		return "", false
	}
	return strings.Join(values, ", "), true
}

// Delete removes name and all of its values
func (h *Headers) Delete(name string) {
	key := normalizeName(name)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, n := range h.names {
		if n == key {
			h.names = append(h.names[:i], h.names[i+1:]...)
			break
		}
	}
}

func (h *Headers) Clear() {
	h.names = h.names[:0]
	h.values = make(map[string][]string)
}

// Len the number of distinct names
func (h *Headers) Len() int {
	return len(h.names)
}

// Names distinct names in insertion order
func (h *Headers) Names() []string {
	names := make([]string, len(h.names))
	copy(names, h.names)
	return names
}

// Range calls fn once per stored value, name by name in insertion order.
// Iteration stops when fn returns false.
func (h *Headers) Range(fn func(name string, value string) bool) {
	for _, name := range h.names {
		for _, value := range h.values[name] {
			if !fn(name, value) {
				return
			}
		}
	}
}

// HeaderEntry one (name, value) pair
type HeaderEntry struct {
	Name  string
	Value string
}

// Entries flattens the map into one entry per value
func (h *Headers) Entries() []HeaderEntry {
	entries := make([]HeaderEntry, 0, len(h.names))
	h.Range(func(name, value string) bool {
		entries = append(entries, HeaderEntry{Name: name, Value: value})
		return true
	})
	return entries
}

func (h *Headers) Clone() *Headers {
	c := NewHeaders()
	if h == nil {
		return c
	}
	for _, name := range h.names {
		c.names = append(c.names, name)
		c.values[name] = append([]string{}, h.values[name]...)
	}
	return c
}

// ToMap converts the headers to a plain map of value lists
func (h *Headers) ToMap() map[string][]string {
	m := make(map[string][]string, len(h.names))
	for _, name := range h.names {
		m[name] = append([]string{}, h.values[name]...)
	}
	return m
}

func (h *Headers) String() string {
	var b strings.Builder
	h.Range(func(name, value string) bool {
		b.WriteString(fmt.Sprintf("%s: %s\r\n", name, value))
		return true
	})
	return b.String()
}
