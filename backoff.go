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
	"time"

	"github.com/cenkalti/backoff/v5"
)

// WithBusyRetry runs op, retrying with exponential backoff only while it
// keeps failing with Busy (lock contention from a concurrent writer).
// Any other Kind, including a Busy that persists past maxElapsed, is
// returned immediately. This package never calls it internally — §7
// treats Busy as "safe to retry with backoff" at the caller's discretion,
// not as a core behavior — it is exported for CLI/HTTP wrappers that want
// to opt in.
func WithBusyRetry[T any](ctx context.Context, maxElapsed time.Duration, op func() (T, *Error)) (T, *Error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, perr := op()
		if perr == nil {
			return v, nil
		}
		if perr.Kind != KindBusy {
			return v, backoff.Permanent(perr)
		}
		return v, perr
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxElapsed))

	if err == nil {
		return result, nil
	}
	if perr, ok := asError(err); ok {
		return result, perr
	}
	return result, newErr(KindBusy, "exceeded retry budget").withCause(err)
}

func asError(err error) (*Error, bool) {
	pe, ok := err.(*Error)
	if ok {
		return pe, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return asError(u.Unwrap())
	}
	return nil, false
}

// vim: foldmethod=marker
