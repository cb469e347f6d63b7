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

// ringWrite is one ordered byte-range write the applier must perform
// against the mapped file.
type ringWrite struct {
	Offset int64
	Bytes  []byte
}

// indexWrite is the optional index slot update an AppendPlan may carry.
type indexWrite struct {
	SlotOffset int64
	Seq        uint64
	Offset     uint64
}

// AppendPlan is the deterministic, ephemeral result of planning one
// append. It carries everything the I/O applier needs, in the exact
// order §4.4 requires, without touching the file itself.
type AppendPlan struct {
	Seq            uint64
	NewHeadOff     uint64
	NewTailOff     uint64
	NewTailNextOff uint64
	NewOldestSeq   uint64
	NewNewestSeq   uint64

	WrapWrite    *ringWrite // step 1, optional
	FrameOffset  int64      // where the new frame header (and payload) land
	HeaderWrite  ringWrite  // step 2
	PayloadWrite ringWrite  // step 3
	MarkerWrite  ringWrite  // step 4
	CommitOffset int64      // step 5: byte offset of the frame's state field
	IndexWrite   *indexWrite // step 6, optional

	DroppedSeqs []uint64
}

// tailFrameLenFunc reads the stored frame_len of the committed frame at
// absolute offset off, used only to walk past overwritten tail frames.
// For a wrap marker it reports seq 0, which no committed frame carries.
// It is supplied by the caller so the planner stays a pure function of
// its explicit inputs (state, a read-only ring snapshot, and payload
// length) rather than reaching for file I/O itself.
type tailFrameLenFunc func(off int64) (frameLen uint32, seq uint64, perr *Error)

// planAppend computes a deterministic AppendPlan for appending payloadLen
// bytes to a pool currently in state st. readTailFrame lets the planner
// discover how far to advance the tail when the new frame must overwrite
// older committed frames; it is never used to discover anything about the
// frame being planned, only about frames already on disk.
func planAppend(st PoolState, payloadLen uint32, readTailFrame tailFrameLenFunc) (AppendPlan, *Error) {
	ringOffset, ringSize := st.RingBounds()
	frameLen := frameLenFor(payloadLen)

	if int64(frameLen) > int64(ringSize) {
		return AppendPlan{}, newErr(KindUsage, "payload of %d bytes (frame_len %d) does not fit in a %d-byte ring", payloadLen, frameLen, ringSize)
	}

	nextSeq := st.h.NewestSeq + 1
	oldestSeq := st.h.OldestSeq
	newestSeq := st.h.NewestSeq
	if st.IsEmpty() {
		nextSeq = 1
	}

	headOff := int64(st.h.HeadOff)
	tailOff := int64(st.h.TailOff)
	tailNextOff := int64(st.h.TailNextOff)

	var wrap *ringWrite
	ringEnd := int64(ringOffset) + int64(ringSize)

	if headOff+int64(frameLen) > ringEnd {
		remaining := uint32(ringEnd - headOff)
		wrap = &ringWrite{Offset: headOff, Bytes: encodeWrap(remaining)}
		headOff = int64(ringOffset)
	}

	var dropped []uint64
	empty := st.IsEmpty()

	overlaps := func(a1, a2, b1, b2 int64) bool {
		// Half-open interval overlap on a ring of size ringSize, expressed
		// in absolute offsets already known to lie within [ringOffset, ringEnd).
		return a1 < b2 && b1 < a2
	}

	for !empty {
		if !overlaps(headOff, headOff+int64(frameLen), tailOff, tailNextOff) {
			break
		}
		tFrameLen, tSeq, terr := readTailFrame(tailOff)
		if terr != nil {
			return AppendPlan{}, terr
		}
		dropped = append(dropped, tSeq)
		oldestSeq = tSeq + 1

		newTailOff := tailOff + int64(tFrameLen)
		if newTailOff >= ringEnd {
			newTailOff = int64(ringOffset)
		}
		tailOff = newTailOff

		if oldestSeq > newestSeq {
			// The new frame has overwritten every existing message; the
			// ring is logically empty again until this append commits.
			empty = true
			break
		}

		// Discover the frame_len of the new tail frame so tailNextOff
		// stays accurate for the next round of this loop (or for
		// publication, once the loop exits).
		nextFrameLen, nextTailSeq, nerr := readTailFrame(tailOff)
		if nerr != nil {
			return AppendPlan{}, nerr
		}
		if nextTailSeq == 0 {
			// The tail reached the wrap marker; the oldest surviving
			// frame starts at ringOffset.
			tailOff = int64(ringOffset)
			nextFrameLen, _, nerr = readTailFrame(tailOff)
			if nerr != nil {
				return AppendPlan{}, nerr
			}
		}
		tailNextOff = tailOff + int64(nextFrameLen)
		if tailNextOff > ringEnd {
			tailNextOff = ringEnd
		}
	}

	if empty {
		// The new frame is the ring's sole occupant: tail and head both
		// start at its offset, and tail_next_off must span the frame
		// itself rather than collapse to an empty interval, or the next
		// append's overlap test against this tail frame can never fire.
		tailOff = headOff
		tailNextOff = headOff + int64(frameLen)
		oldestSeq = nextSeq
	}

	plan := AppendPlan{
		Seq:            nextSeq,
		NewHeadOff:     uint64(headOff) + uint64(frameLen),
		NewTailOff:     uint64(tailOff),
		NewTailNextOff: uint64(tailNextOff),
		NewOldestSeq:   oldestSeq,
		NewNewestSeq:   nextSeq,
		WrapWrite:      wrap,
		FrameOffset:    headOff,
		HeaderWrite:    ringWrite{Offset: headOff, Bytes: encodeWriting(nextSeq, payloadLen)},
		MarkerWrite:    ringWrite{Offset: headOff + markerOffset(payloadLen), Bytes: commitMarkerValue[:]},
		CommitOffset:   headOff + commitStateOffset,
		DroppedSeqs:    dropped,
	}
	if plan.NewHeadOff >= uint64(ringEnd) {
		plan.NewHeadOff = uint64(ringOffset)
	}

	if slotOffset, _, ok := st.SlotFor(nextSeq); ok {
		plan.IndexWrite = &indexWrite{SlotOffset: slotOffset, Seq: nextSeq, Offset: uint64(headOff)}
	}

	return plan, nil
}

// withPayload finalizes PayloadWrite once the caller supplies the actual
// payload bytes (the planner itself never copies payload data).
func (p AppendPlan) withPayload(payload []byte) AppendPlan {
	p.PayloadWrite = ringWrite{Offset: p.FrameOffset + frameHeaderSize, Bytes: payload}
	return p
}
