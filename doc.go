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

// Package plasmite implements a bounded, append-only, memory-mapped ring
// of message envelopes, shared by a handful to dozens of cooperating
// processes on one host.
//
// A pool is one file: a fixed header, an inline seek index, and a ring
// region that wraps and overwrites its oldest entries once full. Every
// append gets a monotonically increasing sequence number. Readers can
// fetch a message by sequence (index-assisted, falling back to a forward
// scan) or tail the pool for new messages as they land, across process
// boundaries, without ever observing a half-written frame.
//
// This package does not parse the bytes it stores. Callers own the
// payload codec, the wire transport, and anything resembling a CLI.
package plasmite

// vim: foldmethod=marker
