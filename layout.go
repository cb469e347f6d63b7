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

// Wire-format layout. Every multi-byte integer is little-endian. Every
// offset named here is aligned to frameAlign.
const (
	// frameAlign is the minimum alignment for frames and frame-header
	// reads. Must be a power of two, at least 8.
	frameAlign = 8

	// headerMagic identifies a plasmite pool file.
	headerMagic = uint32(0x706c_6153) // "Salp" LE, a nod to "plasma"

	// formatVersion1 is the only wire format this package understands.
	// Future versions are added at the end of the header's reserved
	// trailer; older binaries refuse newer format_version values.
	formatVersion1 = uint32(1)

	// indexSlotBytes is the on-disk size of one (seq, offset) index slot.
	indexSlotBytes = 16

	// frameMagic identifies a frame header within the ring.
	frameMagic = uint32(0x6672_616d) // "fram" in hex; LE bytes on disk read "mraf"

	// frameHeaderSize is the fixed, 8-byte-aligned size of a frame header:
	// magic(4) + state(1) + reserved(3) + seq(8) + payloadLen(4) + frameLen(4) = 24
	frameHeaderSize = 24

	// commitMarkerSize is the size of the fixed commit marker constant
	// written immediately after the payload.
	commitMarkerSize = 8
)

// commitMarkerValue is written verbatim at frameStart+frameHeaderSize+payloadLen
// (rounded up to alignment). It is chosen so that a torn or in-progress
// payload write cannot coincidentally produce this exact byte pattern at
// that fixed offset combined with a Committed state, since the state flip
// is a separate, later store (step 5 of the applier sequence).
var commitMarkerValue = [commitMarkerSize]byte{0x5e, 0x1e, 0xc7, 0xed, 0x5e, 0xed, 0xed, 0x00}

// frameState is the single-byte state of a frame header.
type frameState uint8

const (
	// frameWriting means the frame's header has been laid down but the
	// payload, commit marker, or state flip may not have completed.
	// Readers must treat it as invisible.
	frameWriting frameState = 0

	// frameCommitted means the frame decoded cleanly and its commit
	// marker verified; it is visible to readers.
	frameCommitted frameState = 1

	// frameWrap marks a wrap-marker record: scanners resume at
	// ringOffset instead of reading a payload here.
	frameWrap frameState = 2
)

// headerSize is the fixed size of the pool header, padded to frameAlign.
// Layout (all little-endian):
//
//	magic            uint32
//	formatVersion    uint32
//	flags            uint64
//	fileSize         uint64
//	headerSize       uint64
//	indexOffset      uint64
//	indexCapacity    uint64
//	ringOffset       uint64
//	ringSize         uint64
//	oldestSeq        uint64
//	newestSeq        uint64
//	headOff          uint64
//	tailOff          uint64
//	tailNextOff      uint64
//	generation       uint64
//	poolUUID         [16]byte
//	reservedTrailer  [...]byte (zero-filled, pads out to headerSize)
const (
	offMagic         = 0
	offFormatVersion = offMagic + 4
	offFlags         = 8
	offFileSize      = offFlags + 8
	offHeaderSize    = offFileSize + 8
	offIndexOffset   = offHeaderSize + 8
	offIndexCapacity = offIndexOffset + 8
	offRingOffset    = offIndexCapacity + 8
	offRingSize      = offRingOffset + 8
	offOldestSeq     = offRingSize + 8
	offNewestSeq     = offOldestSeq + 8
	offHeadOff       = offNewestSeq + 8
	offTailOff       = offHeadOff + 8
	offTailNextOff   = offTailOff + 8
	offGeneration    = offTailNextOff + 8
	offPoolUUID      = offGeneration + 8
	fixedHeaderFields = offPoolUUID + 16

	// headerSize is padded up to frameAlign and leaves room for a
	// reserved trailer so future format versions can append fields
	// without relocating the index region.
	headerReservedTrailer = 64
	headerSize            = ((fixedHeaderFields + headerReservedTrailer + frameAlign - 1) / frameAlign) * frameAlign
)

// alignUp rounds n up to the next multiple of align (align must be a power
// of two).
func alignUp(n, align int64) int64 {
	return (n + align - 1) &^ (align - 1)
}
