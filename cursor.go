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
	"bytes"
	"context"
	"errors"
	"time"
)

// ErrCursorDone is returned by Next once a Cursor has delivered its
// configured max count of messages. It is not one of the Kind taxonomy
// values in errors.go: running out of messages to deliver is an expected,
// successful end state, not a failure.
var ErrCursorDone = errors.New("plasmite: cursor exhausted its configured max count")

// DropEvent reports that a Cursor's next delivery skipped over messages
// the ring had already overwritten by the time it caught up: everything
// from FromSeq to ToSeq inclusive is gone for good.
type DropEvent struct {
	FromSeq uint64
	ToSeq   uint64
}

// Cursor is a follower's position in a pool. Next delivers messages in
// sequence order, blocking until one is available, reporting a DropEvent
// whenever the ring has overwritten messages the cursor hadn't reached
// yet, and resuming cleanly after every call whether or not the previous
// one timed out.
type Cursor struct {
	pool         *Pool
	nextSeq      uint64
	pollInterval time.Duration

	maxRemaining *uint64
	tagFilter    []byte
}

// Tail returns a Cursor that starts delivering at startSeq. Pass 0 to
// start at the pool's current oldest sequence (replay everything still
// available); pass Info().NewestSeq+1 to skip existing history and
// deliver only messages appended from here on.
func (p *Pool) Tail(startSeq uint64) *Cursor {
	return &Cursor{pool: p, nextSeq: startSeq, pollInterval: 200 * time.Millisecond}
}

// WithMax caps the number of messages this Cursor will deliver. Once n
// messages have been returned by Next, every subsequent call returns
// ErrCursorDone instead of blocking for more.
func (c *Cursor) WithMax(n uint64) *Cursor {
	c.maxRemaining = &n
	return c
}

// WithTagFilter restricts delivery to messages whose tags include tag.
// Messages that don't match are skipped silently; they never count
// against a configured max and never produce a DropEvent on their own.
func (c *Cursor) WithTagFilter(tag []byte) *Cursor {
	c.tagFilter = tag
	return c
}

func (c *Cursor) matchesFilter(env Envelope) bool {
	if c.tagFilter == nil {
		return true
	}
	for _, t := range env.Tags {
		if bytes.Equal(t, c.tagFilter) {
			return true
		}
	}
	return false
}

// Next blocks until a message is available, ctx is done, or deadline (if
// nonzero) elapses, in which case it returns a Busy error. A non-nil
// DropEvent may accompany a successful delivery, reporting sequences the
// ring overwrote before this cursor reached them. Once a configured
// WithMax count has been delivered, Next returns ErrCursorDone instead of
// blocking for more.
func (c *Cursor) Next(ctx context.Context, deadline time.Time) (Envelope, *DropEvent, error) {
	if c.maxRemaining != nil && *c.maxRemaining == 0 {
		return Envelope{}, nil, ErrCursorDone
	}

	var drop *DropEvent
	for {
		st, err := c.pool.refresh()
		if err != nil {
			return Envelope{}, nil, err
		}

		oldest, newest, ok := st.Bounds()
		if !ok {
			// Ring is empty; nothing to drop, nothing to deliver yet.
			if waited := c.wait(ctx, deadline); waited != nil {
				return Envelope{}, nil, waited
			}
			continue
		}

		if c.nextSeq == 0 {
			c.nextSeq = oldest
		}

		if c.nextSeq < oldest {
			if drop == nil {
				drop = &DropEvent{FromSeq: c.nextSeq}
			}
			drop.ToSeq = oldest - 1
			c.nextSeq = oldest
		}

		if c.nextSeq > newest {
			if waited := c.wait(ctx, deadline); waited != nil {
				return Envelope{}, drop, waited
			}
			continue
		}

		env, gerr := c.pool.Get(c.nextSeq)
		if gerr != nil {
			if KindOf(gerr) == KindNotFound {
				// Overwritten between our bounds check and the read;
				// loop around and let the drop/oldest logic catch up.
				continue
			}
			return Envelope{}, drop, gerr
		}
		c.nextSeq++

		if !c.matchesFilter(env) {
			continue
		}
		if c.maxRemaining != nil {
			*c.maxRemaining--
		}
		return env, drop, nil
	}
}

// wait blocks on the notifier for at most pollInterval (or until deadline,
// if that comes first). Running out the poll interval is not an error: it
// returns nil so Next reloads the header even if no signal ever arrived.
func (c *Cursor) wait(ctx context.Context, deadline time.Time) error {
	gen := c.pool.notify.Generation()
	waitUntil := time.Now().Add(c.pollInterval)
	if !deadline.IsZero() && deadline.Before(waitUntil) {
		waitUntil = deadline
	}
	_, werr := c.pool.notify.Wait(ctx, gen, waitUntil)
	if werr != nil {
		if werr.Kind == KindBusy && !waitUntil.Equal(deadline) {
			return nil
		}
		return werr
	}
	return nil
}

// vim: foldmethod=marker
