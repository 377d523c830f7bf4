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
	"os"
	"syscall"
)

// FileLock advisory flock on a directory. serve holds one on the project
// directory so two servers cannot share a docroot.
type FileLock struct {
	dir string
	f   *os.File
}

func NewFileLock(dir string) *FileLock {
	return &FileLock{
		dir: dir,
	}
}

func (l *FileLock) lock(how int) error {
	f, err := os.Open(l.dir)
	if err != nil {
		return err
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return fmt.Errorf("cannot flock directory %s - %w", l.dir, err)
	}
	l.f = f
	return nil
}

// TryLock fails immediately when another process holds the lock
func (l *FileLock) TryLock() error {
	return l.lock(syscall.LOCK_EX | syscall.LOCK_NB)
}

// Lock blocks until the lock is acquired
func (l *FileLock) Lock() error {
	return l.lock(syscall.LOCK_EX)
}

func (l *FileLock) Unlock() error {
	if l.f == nil {
		return nil
	}
	defer func() {
		l.f.Close()
		l.f = nil
	}()
	return syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
}
