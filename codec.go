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
	"time"
)

// Meta is the envelope metadata carried alongside a message's opaque data,
// as seen by a codec: the time it was appended and the tags it was
// appended with. The ring frame itself never interprets these; they only
// exist at the codec boundary.
type Meta struct {
	Time time.Time
	Tags [][]byte
}

// Codec turns (Meta, data) into the single opaque byte slice a frame
// stores, and back. The ring never looks inside a frame's payload; every
// byte beyond the frame header belongs to the codec.
type Codec interface {
	Encode(meta Meta, data []byte) ([]byte, error)
	Decode(payload []byte) (Meta, []byte, error)
}

// RawCodec concatenates a small length-prefixed metadata block in front of
// the caller's data, the simplest encoding that still lets tags and a
// timestamp travel with an otherwise opaque payload. It is the default
// Codec when none is supplied, matching a pool's on-disk payload being
// "just bytes" as far as the ring is concerned.
type RawCodec struct{}

func (RawCodec) Encode(meta Meta, data []byte) ([]byte, error) {
	tagsLen := 0
	for _, t := range meta.Tags {
		tagsLen += 4 + len(t)
	}
	out := make([]byte, 8+4+tagsLen+len(data))
	binary.LittleEndian.PutUint64(out[0:], uint64(meta.Time.UnixNano()))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(meta.Tags)))
	off := 12
	for _, t := range meta.Tags {
		binary.LittleEndian.PutUint32(out[off:], uint32(len(t)))
		off += 4
		off += copy(out[off:], t)
	}
	copy(out[off:], data)
	return out, nil
}

func (RawCodec) Decode(payload []byte) (Meta, []byte, error) {
	if len(payload) < 12 {
		return Meta{}, nil, newErr(KindCorrupt, "payload too small for raw codec header: %d bytes", len(payload))
	}
	nanos := binary.LittleEndian.Uint64(payload[0:])
	tagCount := binary.LittleEndian.Uint32(payload[8:])
	off := 12
	tags := make([][]byte, 0, tagCount)
	for i := uint32(0); i < tagCount; i++ {
		if off+4 > len(payload) {
			return Meta{}, nil, newErr(KindCorrupt, "truncated tag length at tag %d", i)
		}
		tl := binary.LittleEndian.Uint32(payload[off:])
		off += 4
		if off+int(tl) > len(payload) {
			return Meta{}, nil, newErr(KindCorrupt, "truncated tag body at tag %d", i)
		}
		tags = append(tags, payload[off:off+int(tl)])
		off += int(tl)
	}
	meta := Meta{Time: time.Unix(0, int64(nanos)).UTC(), Tags: tags}
	return meta, payload[off:], nil
}

// vim: foldmethod=marker
