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
	"golang.org/x/sys/unix"
)

// Durability selects how hard an append works to survive a crash before
// returning.
type Durability int

const (
	// DurabilityFast performs no explicit flush; the OS persists the
	// mmap'd pages eventually. Readers on the same host still see the
	// update immediately via the shared mapping.
	DurabilityFast Durability = iota

	// DurabilityFlush flushes the ring region after the state flip and
	// index write, then flushes the header region after publication, so
	// a crash leaves either the new frame+header durably present or a
	// state the validator recovers from by ignoring the uncommitted
	// frame.
	DurabilityFlush
)

// apply executes plan's writes against buf (the whole mapped file, so
// every offset in plan is already absolute) in the strict order §4.4
// requires, then publishes the new header and signals notify.
func (p *Pool) apply(plan AppendPlan, durability Durability) *Error {
	buf := p.mmap

	// Step 1: optional wrap marker.
	if plan.WrapWrite != nil {
		copy(buf[plan.WrapWrite.Offset:], plan.WrapWrite.Bytes)
	}

	// Step 2: frame header in the Writing state.
	copy(buf[plan.HeaderWrite.Offset:], plan.HeaderWrite.Bytes)

	// Step 3: payload.
	copy(buf[plan.PayloadWrite.Offset:], plan.PayloadWrite.Bytes)

	// Step 4: commit marker.
	copy(buf[plan.MarkerWrite.Offset:], plan.MarkerWrite.Bytes)

	// Step 5: flip state Writing -> Committed with a single aligned store.
	buf[plan.CommitOffset] = byte(frameCommitted)

	// Step 6: optional index slot write.
	if plan.IndexWrite != nil {
		writeIndexSlot(buf, plan.IndexWrite.SlotOffset, plan.IndexWrite.Seq, plan.IndexWrite.Offset)
	}

	if durability == DurabilityFlush {
		ringOffset, ringSize := p.state.RingBounds()
		if err := p.msync(int64(ringOffset), int64(ringSize)); err != nil {
			return newErr(KindIo, "flush ring region").withCause(err).withPath(p.path)
		}
	}

	// Step 7: publish a new header. Field values are stored first; the
	// generation counter is stored last, so a reader that observes the
	// new generation is guaranteed to observe every field alongside it.
	h := p.state.h
	h.NewestSeq = plan.NewNewestSeq
	h.OldestSeq = plan.NewOldestSeq
	h.HeadOff = plan.NewHeadOff
	h.TailOff = plan.NewTailOff
	h.TailNextOff = plan.NewTailNextOff
	newGeneration := h.Generation + 1

	encodeHeaderFieldsExceptGeneration(buf[:headerSize], h)
	// The generation store is the publication barrier: it must be the
	// last header write before readers are allowed to trust any of the
	// fields above.
	putGeneration(buf[:headerSize], newGeneration)
	h.Generation = newGeneration
	p.state = PoolState{h: h}

	if durability == DurabilityFlush {
		if err := p.msync(0, int64(headerSize)); err != nil {
			return newErr(KindIo, "flush header region").withCause(err).withPath(p.path)
		}
	}

	// Step 8: signal followers. Best-effort; never load-bearing.
	if p.notify != nil {
		p.notify.Signal()
	}

	return nil
}

func (p *Pool) msync(offset, length int64) error {
	pageSize := int64(unix.Getpagesize())
	alignedOffset := (offset / pageSize) * pageSize
	alignedLen := length + (offset - alignedOffset)
	if int(alignedOffset+alignedLen) > len(p.mmap) {
		alignedLen = int64(len(p.mmap)) - alignedOffset
	}
	return unix.Msync(p.mmap[alignedOffset:alignedOffset+alignedLen], unix.MS_SYNC)
}
