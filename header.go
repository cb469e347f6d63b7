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
	"encoding/binary"
)

// headerFields is the exact on-disk shape of the pool header, decoded into
// Go types. It carries no methods of its own beyond encode/decode; the
// invariant checks and derived queries live on PoolState.
type headerFields struct {
	Magic         uint32
	FormatVersion uint32
	Flags         uint64
	FileSize      uint64
	HeaderSize    uint64
	IndexOffset   uint64
	IndexCapacity uint64
	RingOffset    uint64
	RingSize      uint64
	OldestSeq     uint64
	NewestSeq     uint64
	HeadOff       uint64
	TailOff       uint64
	TailNextOff   uint64
	Generation    uint64
	PoolUUID      [16]byte
}

func decodeHeader(buf []byte) (headerFields, *Error) {
	var h headerFields
	if len(buf) < headerSize {
		return h, newErr(KindCorrupt, "header buffer too small: %d < %d", len(buf), headerSize)
	}
	h.Magic = binary.LittleEndian.Uint32(buf[offMagic:])
	if h.Magic != headerMagic {
		return h, newErr(KindCorrupt, "bad pool magic 0x%08x", h.Magic)
	}
	h.FormatVersion = binary.LittleEndian.Uint32(buf[offFormatVersion:])
	if h.FormatVersion != formatVersion1 {
		return h, newErr(KindUsage, "unsupported format_version %d (this build understands %d)", h.FormatVersion, formatVersion1).
			withHint("rebuild the pool with a compatible plasmite version, or open with an older binary")
	}
	h.Flags = binary.LittleEndian.Uint64(buf[offFlags:])
	h.FileSize = binary.LittleEndian.Uint64(buf[offFileSize:])
	h.HeaderSize = binary.LittleEndian.Uint64(buf[offHeaderSize:])
	h.IndexOffset = binary.LittleEndian.Uint64(buf[offIndexOffset:])
	h.IndexCapacity = binary.LittleEndian.Uint64(buf[offIndexCapacity:])
	h.RingOffset = binary.LittleEndian.Uint64(buf[offRingOffset:])
	h.RingSize = binary.LittleEndian.Uint64(buf[offRingSize:])
	h.OldestSeq = binary.LittleEndian.Uint64(buf[offOldestSeq:])
	h.NewestSeq = binary.LittleEndian.Uint64(buf[offNewestSeq:])
	h.HeadOff = binary.LittleEndian.Uint64(buf[offHeadOff:])
	h.TailOff = binary.LittleEndian.Uint64(buf[offTailOff:])
	h.TailNextOff = binary.LittleEndian.Uint64(buf[offTailNextOff:])
	h.Generation = binary.LittleEndian.Uint64(buf[offGeneration:])
	copy(h.PoolUUID[:], buf[offPoolUUID:offPoolUUID+16])
	return h, nil
}

func encodeHeaderInto(buf []byte, h headerFields) {
	encodeHeaderFieldsExceptGeneration(buf, h)
	putGeneration(buf, h.Generation)
}

// encodeHeaderFieldsExceptGeneration writes every header field except the
// generation counter. Used by the applier so the generation store can be
// issued last, as the publication barrier (see apply() in applier.go).
func encodeHeaderFieldsExceptGeneration(buf []byte, h headerFields) {
	binary.LittleEndian.PutUint32(buf[offMagic:], h.Magic)
	binary.LittleEndian.PutUint32(buf[offFormatVersion:], h.FormatVersion)
	binary.LittleEndian.PutUint64(buf[offFlags:], h.Flags)
	binary.LittleEndian.PutUint64(buf[offFileSize:], h.FileSize)
	binary.LittleEndian.PutUint64(buf[offHeaderSize:], h.HeaderSize)
	binary.LittleEndian.PutUint64(buf[offIndexOffset:], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[offIndexCapacity:], h.IndexCapacity)
	binary.LittleEndian.PutUint64(buf[offRingOffset:], h.RingOffset)
	binary.LittleEndian.PutUint64(buf[offRingSize:], h.RingSize)
	binary.LittleEndian.PutUint64(buf[offOldestSeq:], h.OldestSeq)
	binary.LittleEndian.PutUint64(buf[offNewestSeq:], h.NewestSeq)
	binary.LittleEndian.PutUint64(buf[offHeadOff:], h.HeadOff)
	binary.LittleEndian.PutUint64(buf[offTailOff:], h.TailOff)
	binary.LittleEndian.PutUint64(buf[offTailNextOff:], h.TailNextOff)
	copy(buf[offPoolUUID:offPoolUUID+16], h.PoolUUID[:])
}

func putGeneration(buf []byte, generation uint64) {
	binary.LittleEndian.PutUint64(buf[offGeneration:], generation)
}

// maxSeqlockRetries bounds the read-consistency retry loop below. A
// writer's full field-then-generation publish (applier.go step 7) never
// holds the intermediate state for long, so a handful of retries is
// enough to rule out a torn read rather than declare corruption.
const maxSeqlockRetries = 64

// loadConsistentState reads the header using a seqlock-style pattern:
// the generation counter is sampled before and after decoding every other
// field, and the read is retried until the two samples agree. Because the
// applier always stores every other field before bumping generation, two
// matching samples guarantee the fields in between belong to one
// publication, never a torn mix of old and new.
func loadConsistentState(buf []byte) (PoolState, *Error) {
	for attempt := 0; attempt < maxSeqlockRetries; attempt++ {
		if len(buf) < headerSize {
			return PoolState{}, newErr(KindCorrupt, "header buffer too small: %d < %d", len(buf), headerSize)
		}
		g1 := readGenerationAt(buf)
		h, err := decodeHeader(buf)
		if err != nil {
			return PoolState{}, err
		}
		g2 := readGenerationAt(buf)
		if g1 != g2 {
			continue
		}
		st := PoolState{h: h}
		if verr := st.checkInvariants(); verr != nil {
			return PoolState{}, verr
		}
		return st, nil
	}
	return PoolState{}, newErr(KindCorrupt, "header generation did not settle after %d reads", maxSeqlockRetries).
		withHint("a writer may be stuck mid-publish; retry, or validate the pool")
}

func readGenerationAt(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[offGeneration:])
}

// indexSlotOffset returns the byte offset of index slot i within the file.
func indexSlotOffset(indexOffset uint64, i uint64) int64 {
	return int64(indexOffset) + int64(i)*indexSlotBytes
}

func readIndexSlot(buf []byte, off int64) (seq uint64, offset uint64) {
	seq = binary.LittleEndian.Uint64(buf[off:])
	offset = binary.LittleEndian.Uint64(buf[off+8:])
	return
}

// writeIndexSlot writes the two words of an index slot as two independent
// aligned 64-bit stores (never a single torn multi-word write); see
// SPEC_FULL.md §9 on the index-slot-ordering open question.
func writeIndexSlot(buf []byte, off int64, seq, offset uint64) {
	binary.LittleEndian.PutUint64(buf[off:], seq)
	binary.LittleEndian.PutUint64(buf[off+8:], offset)
}
