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
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileSystem is the read-only view of the docroot used for script
// resolution and rewrite existence checks.
type FileSystem interface {
	// Exists reports whether anything exists at name
	Exists(name string) bool
	// IsFile reports whether name is a regular file
	IsFile(name string) bool
	ReadFile(name string) ([]byte, error)
}

// AferoFileSystem adapts an afero filesystem
type AferoFileSystem struct {
	fs afero.Fs
}

// NewFileSystem wraps fs
func NewFileSystem(fs afero.Fs) *AferoFileSystem {
	return &AferoFileSystem{fs: fs}
}

// NewOsFileSystem the host operating system filesystem
func NewOsFileSystem() *AferoFileSystem {
	return NewFileSystem(afero.NewOsFs())
}

// NewMemFileSystem an in-memory filesystem, mostly for tests and embedding
func NewMemFileSystem() *AferoFileSystem {
	return NewFileSystem(afero.NewMemMapFs())
}

func (a *AferoFileSystem) Exists(name string) bool {
	ok, err := afero.Exists(a.fs, name)
	return err == nil && ok
}

func (a *AferoFileSystem) IsFile(name string) bool {
	info, err := a.fs.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

func (a *AferoFileSystem) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(a.fs, name)
}

// WriteFile creates name and its parent directories
func (a *AferoFileSystem) WriteFile(name string, data []byte) error {
	if err := a.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(a.fs, name, data, 0o644)
}

// Afero the wrapped filesystem
func (a *AferoFileSystem) Afero() afero.Fs {
	return a.fs
}

// joinDocroot joins a request path onto the docroot without letting ".."
// segments escape it.
func joinDocroot(docroot string, requestPath string) string {
	clean := path.Clean("/" + strings.TrimPrefix(requestPath, "/"))
	return filepath.Join(docroot, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}

// TranslatePath resolves a request path to a script under docroot. A path
// ending in "/" resolves to its index script first. The result must be a
// regular file.
func TranslatePath(fs FileSystem, docroot string, requestPath string, index string) (string, error) {
	if !strings.HasPrefix(requestPath, "/") {
		return "", &ScriptNotFoundError{Path: requestPath}
	}
	translated := joinDocroot(docroot, requestPath)
	if strings.HasSuffix(requestPath, "/") && index != "" {
		candidate := filepath.Join(translated, index)
		if fs.IsFile(candidate) {
			return candidate, nil
		}
	}
	if fs.IsFile(translated) {
		return translated, nil
	}
	return "", &ScriptNotFoundError{Path: translated}
}

// currentDir the default docroot
func currentDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
