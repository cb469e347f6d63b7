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
	"context"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// bellSuffix names the sibling file followers watch for cross-process
// wakeups. It carries no data; only its mtime/inotify events matter.
const bellSuffix = ".bell"

// Notifier wakes followers blocked in Tail. A signal is always advisory:
// every waiter re-checks real pool state after waking, and Tail's bounded
// poll interval is the correctness fallback if a signal is ever missed.
// This mirrors the source ring's wakeup channel, generalized from a
// single in-process receiver to any number of in-process and
// cross-process followers.
type Notifier struct {
	mu  sync.Mutex
	cnd *sync.Cond
	gen uint64

	bellPath string
	bellFile *os.File
	inotify  int
	watch    int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// newNotifier opens (creating if needed) the bell file beside path and
// starts a background inotify watcher so Signal calls made by other
// processes wake this process's waiters too. If inotify setup fails
// (e.g. unsupported platform, exhausted watch descriptors), the Notifier
// still functions for in-process signaling and callers fall back on
// Tail's poll interval for cross-process wakeups.
func newNotifier(poolPath string) *Notifier {
	n := &Notifier{bellPath: poolPath + bellSuffix, inotify: -1}
	n.cnd = sync.NewCond(&n.mu)

	f, err := os.OpenFile(n.bellPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return n
	}
	n.bellFile = f

	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK)
	if err != nil {
		return n
	}
	wd, err := unix.InotifyAddWatch(fd, n.bellPath, unix.IN_MODIFY|unix.IN_ATTRIB)
	if err != nil {
		unix.Close(fd)
		return n
	}
	n.inotify = fd
	n.watch = wd
	n.stopCh = make(chan struct{})
	n.doneCh = make(chan struct{})
	go n.watchLoop()
	return n
}

func (n *Notifier) watchLoop() {
	defer close(n.doneCh)
	buf := make([]byte, 4096)
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}
		sz, err := unix.Read(n.inotify, buf)
		if err != nil || sz <= 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		n.broadcast()
	}
}

func (n *Notifier) broadcast() {
	n.mu.Lock()
	n.gen++
	n.mu.Unlock()
	n.cnd.Broadcast()
}

// Signal wakes every local waiter and, if the bell file is available,
// touches it so other processes' watchLoop goroutines wake too.
func (n *Notifier) Signal() {
	n.broadcast()
	if n.bellFile != nil {
		now := time.Now()
		_ = os.Chtimes(n.bellPath, now, now)
	}
}

// Wait blocks until the generation counter advances past lastGen, ctx is
// done, or deadline (if nonzero) elapses, and returns the generation
// observed.
func (n *Notifier) Wait(ctx context.Context, lastGen uint64, deadline time.Time) (uint64, *Error) {
	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				n.cnd.Broadcast()
			case <-done:
			}
		}()
	}
	defer close(done)

	if !deadline.IsZero() {
		// Wake the loop below once the deadline passes. Taking mu first
		// ensures the waiter is either parked in cnd.Wait or has not yet
		// checked the deadline, so the broadcast cannot be missed.
		timer := time.AfterFunc(time.Until(deadline), func() {
			n.mu.Lock()
			n.mu.Unlock()
			n.cnd.Broadcast()
		})
		defer timer.Stop()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for n.gen == lastGen {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return n.gen, newErr(KindIo, "wait canceled").withCause(ctx.Err())
			default:
			}
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return n.gen, newErr(KindBusy, "wait deadline exceeded")
		}
		n.cnd.Wait()
	}
	return n.gen, nil
}

// Generation returns the current local generation counter, the value a
// subsequent Wait call should pass as lastGen to detect the next signal.
func (n *Notifier) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// Close stops the background watcher and releases the inotify descriptor.
// The bell file itself is left on disk; it is harmless, sibling state.
func (n *Notifier) Close() error {
	if n.inotify >= 0 {
		close(n.stopCh)
		unix.Close(n.inotify)
		<-n.doneCh
	}
	if n.bellFile != nil {
		return n.bellFile.Close()
	}
	return nil
}

// vim: foldmethod=marker
