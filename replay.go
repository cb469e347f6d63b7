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
	"errors"
	"time"
)

// Replay delivers every message in [fromSeq, toSeq] (toSeq clamped to the
// pool's current newest sequence) spaced out by the gaps between their
// stored append times, divided by speed. speed <= 0 is treated as 1
// (real-time playback); a larger speed plays back faster. Unlike Tail,
// Replay collects its full message set up front and never follows
// messages appended after the call started — it is bounded historical
// playback, not a live follower.
//
// The returned channel is closed once every message has been sent, ctx is
// canceled, or a read error occurs; callers can recognize cancellation by
// checking ctx.Err() after the channel closes. A read error and normal
// completion close the channel the same way.
func (p *Pool) Replay(ctx context.Context, fromSeq, toSeq uint64, speed float64) <-chan Envelope {
	if speed <= 0 {
		speed = 1
	}
	out := make(chan Envelope)

	go func() {
		defer close(out)

		envelopes, err := p.collectRange(fromSeq, toSeq)
		if err != nil {
			return
		}

		var last time.Time
		for i, env := range envelopes {
			if i > 0 && !last.IsZero() {
				gap := env.Time.Sub(last)
				if gap > 0 {
					select {
					case <-time.After(time.Duration(float64(gap) / speed)):
					case <-ctx.Done():
						return
					}
				}
			}
			last = env.Time

			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// collectRange reads every committed message in [fromSeq, toSeq], clamped
// to the pool's bounds at the moment of the call.
func (p *Pool) collectRange(fromSeq, toSeq uint64) ([]Envelope, *Error) {
	st, err := p.refresh()
	if err != nil {
		return nil, err
	}
	oldest, newest, ok := st.Bounds()
	if !ok {
		return nil, nil
	}
	if fromSeq < oldest {
		fromSeq = oldest
	}
	if toSeq > newest {
		toSeq = newest
	}
	if fromSeq > toSeq {
		return nil, nil
	}

	out := make([]Envelope, 0, toSeq-fromSeq+1)
	for seq := fromSeq; seq <= toSeq; seq++ {
		env, gerr := p.Get(seq)
		if gerr != nil {
			if KindOf(gerr) == KindNotFound {
				continue
			}
			var pe *Error
			if errors.As(gerr, &pe) {
				return out, pe
			}
			return out, newErr(KindInternal, "unexpected error type from Get").withCause(gerr)
		}
		out = append(out, env)
	}
	return out, nil
}

// vim: foldmethod=marker
