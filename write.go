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

	"go.uber.org/zap"
)

// Receipt confirms one Append: the sequence number assigned to the new
// message, and the sequence numbers of any older messages the append
// overwrote to make room.
type Receipt struct {
	Seq     uint64
	Dropped []uint64
}

// Append encodes data and tags via the pool's Codec and writes the result
// as a new frame, advancing the ring and, when the ring is full, dropping
// the oldest frames needed to make room. Append serializes against other
// Append calls on this same handle; a pool only ever has one writer
// across all processes, enforced by the exclusive file lock taken at
// open time.
//
// If the ring cannot hold a frame this large even when completely empty,
// Append returns a Usage error without touching the file.
func (p *Pool) Append(ctx context.Context, data []byte, tags [][]byte, durability Durability) (Receipt, error) {
	if err := ctxErr(ctx); err != nil {
		return Receipt{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.writable {
		return Receipt{}, newErr(KindUsage, "pool not opened for writing").withPath(p.path)
	}

	payload, cerr := p.codec.Encode(Meta{Time: p.clock.Now(), Tags: tags}, data)
	if cerr != nil {
		return Receipt{}, newErr(KindUsage, "encode payload").withCause(cerr)
	}
	if len(payload) > (1<<32 - 1) {
		return Receipt{}, newErr(KindUsage, "encoded payload of %d bytes exceeds the 4GiB frame limit", len(payload))
	}

	plan, perr := planAppend(p.state, uint32(len(payload)), p.readTailFrame)
	if perr != nil {
		return Receipt{}, perr
	}
	plan = plan.withPayload(payload)

	if err := p.apply(plan, durability); err != nil {
		return Receipt{}, err
	}

	if len(plan.DroppedSeqs) > 0 {
		p.logger.Debug("append dropped oldest frames", zap.Uint64("seq", plan.Seq), zap.Int("dropped_count", len(plan.DroppedSeqs)))
	}
	return Receipt{Seq: plan.Seq, Dropped: plan.DroppedSeqs}, nil
}

// readTailFrame implements tailFrameLenFunc against this pool's live
// mapping, used only by the planner to walk past frames it must
// overwrite to free space.
func (p *Pool) readTailFrame(off int64) (uint32, uint64, *Error) {
	ringOffset, ringSize := p.state.RingBounds()
	ringEnd := int64(ringOffset) + int64(ringSize)
	meta, err := decodeFrame(p.mmap, off, ringEnd-off)
	if err != nil {
		return 0, 0, err
	}
	return meta.FrameLen, meta.Seq, nil
}

func ctxErr(ctx context.Context) *Error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return newErr(KindIo, "context canceled").withCause(ctx.Err())
	default:
		return nil
	}
}

// vim: foldmethod=marker
