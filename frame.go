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
	"bytes"
	"encoding/binary"
)

// frameMeta is the decoded header of one ring frame.
type frameMeta struct {
	State      frameState
	Seq        uint64
	PayloadLen uint32
	FrameLen   uint32
}

// markerOffset returns the byte offset (relative to frame start) at which
// the commit marker is written for a frame whose payload is payloadLen
// bytes.
func markerOffset(payloadLen uint32) int64 {
	return alignUp(int64(frameHeaderSize)+int64(payloadLen), frameAlign)
}

// frameLenFor computes frame_len for a payload of the given length,
// per §4.1: the total aligned byte length consumed in the ring, including
// the commit marker and any alignment padding.
func frameLenFor(payloadLen uint32) uint32 {
	total := alignUp(markerOffset(payloadLen)+commitMarkerSize, frameAlign)
	return uint32(total)
}

// encodeWriting fills a frame header in the Writing state and returns its
// bytes. The caller writes these bytes at the frame's start offset.
func encodeWriting(seq uint64, payloadLen uint32) []byte {
	buf := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], frameMagic)
	buf[4] = byte(frameWriting)
	// buf[5:8] reserved, left zero
	binary.LittleEndian.PutUint64(buf[8:], seq)
	binary.LittleEndian.PutUint32(buf[16:], payloadLen)
	binary.LittleEndian.PutUint32(buf[20:], frameLenFor(payloadLen))
	return buf
}

// encodeWrap builds a wrap-marker frame header. remaining is the number of
// ring bytes between the write cursor and end-of-ring; it becomes the
// marker's frame_len so scanners know how far to skip before wrapping
// to ringOffset.
func encodeWrap(remaining uint32) []byte {
	buf := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], frameMagic)
	buf[4] = byte(frameWrap)
	binary.LittleEndian.PutUint64(buf[8:], 0)
	binary.LittleEndian.PutUint32(buf[16:], 0)
	binary.LittleEndian.PutUint32(buf[20:], remaining)
	return buf
}

// commitStateOffset is the byte offset of the state field within a frame
// header, used for the single aligned store that flips Writing->Committed.
const commitStateOffset = 4

// decodeFrame validates and decodes a frame header at the given ring
// offset. window is the number of ring bytes available to read starting
// at off, used to bound frame_len sanity checks during a scan.
func decodeFrame(ringBuf []byte, off int64, window int64) (frameMeta, *Error) {
	if off < 0 || off+frameHeaderSize > int64(len(ringBuf)) {
		return frameMeta{}, newErr(KindCorrupt, "frame header out of bounds").withOffset(uint64(off))
	}
	hdr := ringBuf[off : off+frameHeaderSize]

	magic := binary.LittleEndian.Uint32(hdr[0:])
	if magic != frameMagic {
		return frameMeta{}, newErr(KindCorrupt, "bad frame magic 0x%08x", magic).withOffset(uint64(off))
	}
	state := frameState(hdr[4])
	switch state {
	case frameWriting, frameCommitted, frameWrap:
	default:
		return frameMeta{}, newErr(KindCorrupt, "unknown frame state %d", state).withOffset(uint64(off))
	}

	seq := binary.LittleEndian.Uint64(hdr[8:])
	payloadLen := binary.LittleEndian.Uint32(hdr[16:])
	frameLen := binary.LittleEndian.Uint32(hdr[20:])

	if state == frameWrap {
		return frameMeta{State: state, FrameLen: frameLen}, nil
	}

	if int64(payloadLen) > window {
		return frameMeta{}, newErr(KindCorrupt, "payload_len %d exceeds ring bounds", payloadLen).withOffset(uint64(off))
	}
	if int64(frameLen) > window || frameLen < frameHeaderSize {
		return frameMeta{}, newErr(KindCorrupt, "frame_len %d out of window %d", frameLen, window).withOffset(uint64(off))
	}
	expectedLen := frameLenFor(payloadLen)
	if frameLen != expectedLen {
		return frameMeta{}, newErr(KindCorrupt, "frame_len %d != expected %d for payload_len %d", frameLen, expectedLen, payloadLen).withOffset(uint64(off))
	}

	if state == frameCommitted {
		mOff := off + markerOffset(payloadLen)
		if mOff+commitMarkerSize > int64(len(ringBuf)) {
			return frameMeta{}, newErr(KindCorrupt, "commit marker out of bounds").withOffset(uint64(off))
		}
		if !bytes.Equal(ringBuf[mOff:mOff+commitMarkerSize], commitMarkerValue[:]) {
			return frameMeta{}, newErr(KindCorrupt, "commit marker mismatch").withOffset(uint64(off)).withSeq(seq)
		}
	}

	return frameMeta{State: state, Seq: seq, PayloadLen: payloadLen, FrameLen: frameLen}, nil
}

// payloadBytes returns the payload slice for a decoded, committed frame at
// ring offset off.
func payloadBytes(ringBuf []byte, off int64, meta frameMeta) []byte {
	start := off + frameHeaderSize
	return ringBuf[start : start+int64(meta.PayloadLen)]
}
