// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package plasmite

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fileLock wraps an advisory whole-file flock(2) held on an *os.File. The
// writer lock is exclusive and taken non-blocking so contention maps
// cleanly to Busy; the reader lock is shared. Both are held from OpenPool
// (or CreatePool) until Close, so they exclude each other for a handle's
// whole lifetime: a read-only Pool cannot be opened while a writable one
// is open, and a writable Pool cannot be opened while any read-only one
// is.
type fileLock struct {
	f *os.File
}

// tryLockExclusive attempts a non-blocking exclusive flock. A contended
// lock surfaces as Busy, matching §4.6's locking discipline.
func tryLockExclusive(f *os.File) (*fileLock, *Error) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return nil, newErr(KindBusy, "pool is locked by another writer")
		}
		return nil, newErr(KindIo, "flock exclusive").withCause(err)
	}
	return &fileLock{f: f}, nil
}

// lockExclusiveDeadline polls for the exclusive lock until it succeeds or
// deadline elapses, honoring §5's "every blocking operation accepts a
// deadline." A zero deadline means "try once, don't wait."
func lockExclusiveDeadline(f *os.File, deadline time.Time) (*fileLock, *Error) {
	const pollInterval = 5 * time.Millisecond
	for {
		lock, err := tryLockExclusive(f)
		if err == nil {
			return lock, nil
		}
		if err.Kind != KindBusy || deadline.IsZero() || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(pollInterval)
	}
}

// lockShared takes a shared flock, non-blocking. Shared locks among
// cooperating readers never conflict with each other, only with an
// exclusive writer lock, so contention here is rare and still maps to
// Busy rather than blocking silently.
func lockShared(f *os.File) (*fileLock, *Error) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return nil, newErr(KindBusy, "pool is locked exclusively")
		}
		return nil, newErr(KindIo, "flock shared").withCause(err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

// mmapFile maps the whole file read-write, shared across processes.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func munmapFile(buf []byte) error {
	return unix.Munmap(buf)
}

// msyncFull flushes the entire mapping, used only for the one-time header
// write at pool creation where there is no narrower range to target yet.
func msyncFull(buf []byte) error {
	return unix.Msync(buf, unix.MS_SYNC)
}

// vim: foldmethod=marker
