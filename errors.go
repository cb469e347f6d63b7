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
	"errors"
	"fmt"
)

// Kind is the stable error taxonomy external collaborators key off of.
// The names are used verbatim in external envelopes; do not rename them.
type Kind string

const (
	KindUsage        Kind = "Usage"
	KindNotFound     Kind = "NotFound"
	KindAlreadyExists Kind = "AlreadyExists"
	KindBusy         Kind = "Busy"
	KindPermission   Kind = "Permission"
	KindCorrupt      Kind = "Corrupt"
	KindIo           Kind = "Io"
	KindInternal     Kind = "Internal"
)

// exitCodes maps each Kind to the exit code external wrappers should use.
// This package never calls os.Exit; it only carries the table so CLI/HTTP
// wrappers don't have to invent their own.
var exitCodes = map[Kind]int{
	KindUsage:         2,
	KindNotFound:      3,
	KindAlreadyExists: 4,
	KindBusy:          5,
	KindPermission:    6,
	KindCorrupt:       7,
	KindIo:            8,
	KindInternal:      1,
}

// TimeoutExitCode is the sentinel exit code for a deadline-exceeded
// outcome with no other output, distinct from every Kind above.
const TimeoutExitCode = 124

// ExitCode returns the exit code an external wrapper should surface for
// the given Kind.
func ExitCode(k Kind) int {
	if code, ok := exitCodes[k]; ok {
		return code
	}
	return exitCodes[KindInternal]
}

// Error is the structured error type every fallible plasmite operation
// returns. Path, Seq, and Offset are populated when meaningful and left
// at their zero value otherwise.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	Seq     *uint64
	Offset  *uint64
	Hint    string

	// Cause is the underlying error, if any (e.g. an *os.PathError).
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Seq != nil {
		msg += fmt.Sprintf(" (seq=%d)", *e.Seq)
	}
	if e.Offset != nil {
		msg += fmt.Sprintf(" (offset=%d)", *e.Offset)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, plasmite.KindCorrupt-shaped sentinel) work by
// comparing Kind when the target is also an *Error.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	if te.Kind == "" {
		return false
	}
	return e.Kind == te.Kind
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withPath(path string) *Error {
	e.Path = path
	return e
}

func (e *Error) withSeq(seq uint64) *Error {
	e.Seq = &seq
	return e
}

func (e *Error) withOffset(offset uint64) *Error {
	e.Offset = &offset
	return e
}

func (e *Error) withHint(hint string) *Error {
	e.Hint = hint
	return e
}

func (e *Error) withCause(err error) *Error {
	e.Cause = err
	return e
}

// KindOf returns the Kind carried by err if it is (or wraps) a *Error,
// and KindInternal otherwise — a contract violation the caller didn't
// originate from this package should never reach user code unlabeled.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
