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
	"encoding/hex"

	"github.com/c2h5oh/datasize"
)

// PoolInfo is a point-in-time snapshot of a pool's size and occupancy,
// returned by (*Pool).Info. Every ByteSize field renders as a human string
// (e.g. "512KB") via datasize, the same way its String() prints bytes,
// while remaining usable as a raw byte count.
type PoolInfo struct {
	Path          string
	PoolUUID      string
	FileSize      datasize.ByteSize
	HeaderSize    datasize.ByteSize
	IndexCapacity uint64
	RingSize      datasize.ByteSize
	UsedBytes     datasize.ByteSize
	WastedBytes   datasize.ByteSize
	FreeBytes     datasize.ByteSize
	Utilization   float64
	OldestSeq     uint64
	NewestSeq     uint64
	MessageCount  uint64
	Generation    uint64
}

// Info reports the pool's current size and occupancy. UsedBytes counts
// only live frame bytes (header, payload, commit marker, alignment
// padding); wrap-marker bytes are reported separately as WastedBytes,
// since they never hold a message and would otherwise inflate
// utilization with bookkeeping overhead.
func (p *Pool) Info() (PoolInfo, error) {
	st, err := p.refresh()
	if err != nil {
		return PoolInfo{}, err
	}

	_, ringSize := st.RingBounds()
	used, wasted, serr := occupiedBytes(st, p.mmap)
	if serr != nil {
		return PoolInfo{}, serr
	}
	free := ringSize - used - wasted

	info := PoolInfo{
		Path:          p.path,
		PoolUUID:      hex.EncodeToString(st.h.PoolUUID[:]),
		FileSize:      datasize.ByteSize(st.h.FileSize),
		HeaderSize:    datasize.ByteSize(st.h.HeaderSize),
		IndexCapacity: st.h.IndexCapacity,
		RingSize:      datasize.ByteSize(ringSize),
		UsedBytes:     datasize.ByteSize(used),
		WastedBytes:   datasize.ByteSize(wasted),
		FreeBytes:     datasize.ByteSize(free),
		OldestSeq:     st.h.OldestSeq,
		NewestSeq:     st.h.NewestSeq,
		MessageCount:  st.messageCount(),
		Generation:    st.h.Generation,
	}
	if ringSize > 0 {
		info.Utilization = float64(used) / float64(ringSize)
	}
	return info, nil
}

// occupiedBytes walks live frames from tailOff to headOff, summing
// frame_len for committed frames (used) and wrap markers (wasted).
func occupiedBytes(st PoolState, buf []byte) (used, wasted uint64, perr *Error) {
	if st.IsEmpty() {
		return 0, 0, nil
	}
	ringOffset, ringSize := st.RingBounds()
	ringEnd := int64(ringOffset) + int64(ringSize)
	off := int64(st.h.TailOff)
	remaining := st.messageCount()

	for remaining > 0 {
		meta, err := decodeFrame(buf, off, ringEnd-off)
		if err != nil {
			return 0, 0, err
		}
		if meta.State == frameWrap {
			wasted += uint64(meta.FrameLen)
			off = int64(ringOffset)
			continue
		}
		used += uint64(meta.FrameLen)
		remaining--
		off += int64(meta.FrameLen)
		if off >= ringEnd {
			off = int64(ringOffset)
		}
	}
	return used, wasted, nil
}

// vim: foldmethod=marker
