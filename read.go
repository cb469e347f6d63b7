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

import "time"

// Envelope is one decoded message as handed back to a caller: the
// sequence number assigned at append time, the metadata the pool's Codec
// recovered, and the data payload.
type Envelope struct {
	Seq  uint64
	Time time.Time
	Tags [][]byte
	Data []byte
}

// Get returns the message at seq. It reports NotFound if seq has never
// been assigned or has already been overwritten by the ring wrapping
// around.
func (p *Pool) Get(seq uint64) (Envelope, error) {
	st, err := p.refresh()
	if err != nil {
		return Envelope{}, err
	}

	oldest, newest, ok := st.Bounds()
	if !ok || seq < oldest || seq > newest {
		return Envelope{}, newErr(KindNotFound, "sequence %d not present", seq).withPath(p.path).withSeq(seq)
	}

	off, found := p.locate(st, seq)
	if !found {
		return Envelope{}, newErr(KindNotFound, "sequence %d not present", seq).withPath(p.path).withSeq(seq)
	}

	ringOffset, ringSize := st.RingBounds()
	ringEnd := int64(ringOffset) + int64(ringSize)
	meta, derr := decodeFrame(p.mmap, off, ringEnd-off)
	if derr != nil {
		return Envelope{}, derr
	}
	if meta.State != frameCommitted || meta.Seq != seq {
		return Envelope{}, newErr(KindNotFound, "sequence %d not present", seq).withPath(p.path).withSeq(seq)
	}

	return p.decodeEnvelope(meta, off)
}

func (p *Pool) decodeEnvelope(meta frameMeta, off int64) (Envelope, error) {
	raw := payloadBytes(p.mmap, off, meta)
	dup := make([]byte, len(raw))
	copy(dup, raw)

	codecMeta, data, cerr := p.codec.Decode(dup)
	if cerr != nil {
		if pe, ok := cerr.(*Error); ok {
			return Envelope{}, pe.withSeq(meta.Seq)
		}
		return Envelope{}, newErr(KindCorrupt, "decode payload").withCause(cerr).withSeq(meta.Seq)
	}
	return Envelope{Seq: meta.Seq, Time: codecMeta.Time, Tags: codecMeta.Tags, Data: data}, nil
}

// locate finds the absolute ring offset of seq, preferring the sequence
// index when present and trustworthy, and falling back to a forward scan
// from the tail (per §4.11) when the index is disabled, stale, or points
// at the wrong sequence — the index is an accelerator, never a source of
// truth.
func (p *Pool) locate(st PoolState, seq uint64) (int64, bool) {
	if slotOffset, _, ok := st.SlotFor(seq); ok {
		if candidateSeq, candidateOffset := readIndexSlot(p.mmap, slotOffset); candidateSeq == seq {
			off := int64(candidateOffset)
			ringOffset, ringSize := st.RingBounds()
			ringEnd := int64(ringOffset) + int64(ringSize)
			meta, err := decodeFrame(p.mmap, off, ringEnd-off)
			if err == nil && meta.State == frameCommitted && meta.Seq == seq {
				return off, true
			}
		}
	}
	return p.scanFor(st, seq)
}

// scanFor walks the ring from the tail looking for seq. It is the only
// correct path when indexing is disabled and the fallback whenever the
// index slot doesn't hold what we expect.
func (p *Pool) scanFor(st PoolState, seq uint64) (int64, bool) {
	ringOffset, ringSize := st.RingBounds()
	ringEnd := int64(ringOffset) + int64(ringSize)
	off := int64(st.h.TailOff)
	remaining := st.messageCount()

	for remaining > 0 {
		meta, err := decodeFrame(p.mmap, off, ringEnd-off)
		if err != nil {
			return 0, false
		}
		if meta.State == frameWrap {
			off = int64(ringOffset)
			continue
		}
		if meta.Seq == seq {
			return off, true
		}
		remaining--
		off += int64(meta.FrameLen)
		if off >= ringEnd {
			off = int64(ringOffset)
		}
	}
	return 0, false
}

// vim: foldmethod=marker
