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

// PoolState is a pure, in-memory mirror of the pool header. It performs no
// I/O; all mutation happens by computing a new PoolState value and handing
// it to the applier to publish.
type PoolState struct {
	h headerFields
}

// fromHeaderBytes validates format version and invariants and returns the
// decoded state.
func fromHeaderBytes(buf []byte) (PoolState, *Error) {
	h, err := decodeHeader(buf)
	if err != nil {
		return PoolState{}, err
	}
	st := PoolState{h: h}
	if verr := st.checkInvariants(); verr != nil {
		return PoolState{}, verr
	}
	return st, nil
}

func (s PoolState) checkInvariants() *Error {
	h := s.h
	if h.RingOffset != h.HeaderSize+h.IndexCapacity*indexSlotBytes {
		return newErr(KindCorrupt, "ring_offset %d != header_size %d + index_capacity %d * %d", h.RingOffset, h.HeaderSize, h.IndexCapacity, indexSlotBytes)
	}
	if h.FileSize != h.RingOffset+h.RingSize {
		return newErr(KindCorrupt, "file_size %d != ring_offset %d + ring_size %d", h.FileSize, h.RingOffset, h.RingSize)
	}
	if !s.IsEmpty() && h.NewestSeq < h.OldestSeq {
		return newErr(KindCorrupt, "newest_seq %d < oldest_seq %d", h.NewestSeq, h.OldestSeq)
	}
	if h.HeadOff < h.RingOffset || h.HeadOff >= h.RingOffset+h.RingSize {
		return newErr(KindCorrupt, "head_off %d out of ring bounds [%d, %d)", h.HeadOff, h.RingOffset, h.RingOffset+h.RingSize)
	}
	if h.TailOff < h.RingOffset || h.TailOff >= h.RingOffset+h.RingSize {
		return newErr(KindCorrupt, "tail_off %d out of ring bounds [%d, %d)", h.TailOff, h.RingOffset, h.RingOffset+h.RingSize)
	}
	return nil
}

// IsEmpty reports whether the pool currently holds no visible messages.
// An empty pool is represented by oldest_seq == 0 && newest_seq == 0.
func (s PoolState) IsEmpty() bool {
	return s.h.OldestSeq == 0 && s.h.NewestSeq == 0
}

// Bounds returns (oldest, newest) sequence numbers, or ok=false if empty.
func (s PoolState) Bounds() (oldest, newest uint64, ok bool) {
	if s.IsEmpty() {
		return 0, 0, false
	}
	return s.h.OldestSeq, s.h.NewestSeq, true
}

// RingBounds returns (ring_offset, ring_size).
func (s PoolState) RingBounds() (ringOffset, ringSize uint64) {
	return s.h.RingOffset, s.h.RingSize
}

// SlotFor returns the absolute file offset and slot index for seq's index
// slot, or ok=false when indexing is disabled (index_capacity == 0).
func (s PoolState) SlotFor(seq uint64) (slotOffset int64, slotIndex uint64, ok bool) {
	if s.h.IndexCapacity == 0 {
		return 0, 0, false
	}
	idx := seq % s.h.IndexCapacity
	return indexSlotOffset(s.h.IndexOffset, idx), idx, true
}

func (s PoolState) messageCount() uint64 {
	if s.IsEmpty() {
		return 0
	}
	return s.h.NewestSeq - s.h.OldestSeq + 1
}
