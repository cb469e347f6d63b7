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
	"crypto/rand"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pool is a handle onto one on-disk message pool: a memory-mapped file
// holding a fixed header, an optional sequence index, and a ring of
// framed messages. A Pool opened for writing holds the file's exclusive
// advisory lock for its whole lifetime; a Pool opened read-only holds a
// shared lock. Every exported method is safe for concurrent use from
// multiple goroutines within one process; across processes, the file
// lock and the header's generation barrier are what keep things honest.
type Pool struct {
	path string
	file *os.File
	mmap []byte

	state PoolState

	lock     *fileLock
	writable bool

	mu     sync.Mutex
	notify *Notifier

	logger *zap.Logger
	clock  Clock
	codec  Codec
}

// CreateOptions configures CreatePool.
type CreateOptions struct {
	// RingSize is the number of bytes reserved for the ring region.
	RingSize uint64

	// IndexCapacity is the number of (seq, offset) slots reserved for the
	// sequence index. Zero disables indexing; Get falls back to a linear
	// scan for every lookup.
	IndexCapacity uint64

	Logger *zap.Logger
	Clock  Clock
	Codec  Codec
}

// OpenOptions configures OpenPool.
type OpenOptions struct {
	// Writable requests the exclusive writer lock. Only one Pool across
	// all processes may hold it at a time; a second writer sees Busy.
	Writable bool

	// LockWait bounds how long OpenPool polls for a contended lock before
	// giving up with Busy. Zero means "try once, fail fast."
	LockWait time.Duration

	Logger *zap.Logger
	Clock  Clock
	Codec  Codec
}

func (o CreateOptions) logger() *zap.Logger { return loggerOrNop(o.Logger) }
func (o CreateOptions) clock() Clock {
	if o.Clock == nil {
		return SystemClock
	}
	return o.Clock
}
func (o CreateOptions) codec() Codec {
	if o.Codec == nil {
		return RawCodec{}
	}
	return o.Codec
}

func (o OpenOptions) logger() *zap.Logger { return loggerOrNop(o.Logger) }
func (o OpenOptions) clock() Clock {
	if o.Clock == nil {
		return SystemClock
	}
	return o.Clock
}
func (o OpenOptions) codec() Codec {
	if o.Codec == nil {
		return RawCodec{}
	}
	return o.Codec
}

// CreatePool lays out a brand new pool file at path and returns it already
// open for writing. It fails with AlreadyExists if path exists.
func CreatePool(path string, opts CreateOptions) (*Pool, error) {
	if opts.RingSize == 0 {
		return nil, newErr(KindUsage, "ring_size must be > 0")
	}

	f, oserr := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if oserr != nil {
		if os.IsExist(oserr) {
			return nil, newErr(KindAlreadyExists, "pool already exists").withPath(path)
		}
		return nil, newErr(KindIo, "create pool file").withPath(path).withCause(oserr)
	}

	lock, lerr := tryLockExclusive(f)
	if lerr != nil {
		f.Close()
		os.Remove(path)
		return nil, lerr
	}

	indexOffset := uint64(headerSize)
	ringOffset := indexOffset + opts.IndexCapacity*indexSlotBytes
	fileSize := ringOffset + opts.RingSize

	if err := f.Truncate(int64(fileSize)); err != nil {
		lock.unlock()
		f.Close()
		os.Remove(path)
		return nil, newErr(KindIo, "truncate pool file").withPath(path).withCause(err)
	}

	buf, merr := mmapFile(f, int64(fileSize))
	if merr != nil {
		lock.unlock()
		f.Close()
		os.Remove(path)
		return nil, newErr(KindIo, "mmap pool file").withPath(path).withCause(merr)
	}

	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		munmapFile(buf)
		lock.unlock()
		f.Close()
		os.Remove(path)
		return nil, newErr(KindInternal, "generate pool uuid").withCause(err)
	}

	h := headerFields{
		Magic:         headerMagic,
		FormatVersion: formatVersion1,
		FileSize:      fileSize,
		HeaderSize:    uint64(headerSize),
		IndexOffset:   indexOffset,
		IndexCapacity: opts.IndexCapacity,
		RingOffset:    ringOffset,
		RingSize:      opts.RingSize,
		OldestSeq:     0,
		NewestSeq:     0,
		HeadOff:       ringOffset,
		TailOff:       ringOffset,
		TailNextOff:   ringOffset,
		Generation:    0,
		PoolUUID:      uuid,
	}
	encodeHeaderInto(buf[:headerSize], h)
	if err := msyncFull(buf); err != nil {
		opts.logger().Warn("initial msync failed", zap.String("path", path), zap.Error(err))
	}

	st := PoolState{h: h}
	p := &Pool{
		path:     path,
		file:     f,
		mmap:     buf,
		state:    st,
		lock:     lock,
		writable: true,
		notify:   newNotifier(path),
		logger:   opts.logger(),
		clock:    opts.clock(),
		codec:    opts.codec(),
	}
	p.logger.Info("created pool", zap.String("path", path), zap.Uint64("ring_size", opts.RingSize), zap.Uint64("index_capacity", opts.IndexCapacity))
	return p, nil
}

// OpenPool opens an existing pool file. With opts.Writable set it takes
// (or waits up to opts.LockWait for) the exclusive writer lock; otherwise
// it takes a shared reader lock.
func OpenPool(path string, opts OpenOptions) (*Pool, error) {
	flag := os.O_RDWR
	f, oserr := os.OpenFile(path, flag, 0)
	if oserr != nil {
		if os.IsNotExist(oserr) {
			return nil, newErr(KindNotFound, "pool not found").withPath(path)
		}
		if os.IsPermission(oserr) {
			return nil, newErr(KindPermission, "cannot open pool").withPath(path).withCause(oserr)
		}
		return nil, newErr(KindIo, "open pool file").withPath(path).withCause(oserr)
	}

	var lock *fileLock
	var lerr *Error
	if opts.Writable {
		if opts.LockWait > 0 {
			lock, lerr = lockExclusiveDeadline(f, time.Now().Add(opts.LockWait))
		} else {
			lock, lerr = tryLockExclusive(f)
		}
	} else {
		lock, lerr = lockShared(f)
	}
	if lerr != nil {
		f.Close()
		return nil, lerr
	}

	stat, serr := f.Stat()
	if serr != nil {
		lock.unlock()
		f.Close()
		return nil, newErr(KindIo, "stat pool file").withPath(path).withCause(serr)
	}

	buf, merr := mmapFile(f, stat.Size())
	if merr != nil {
		lock.unlock()
		f.Close()
		return nil, newErr(KindIo, "mmap pool file").withPath(path).withCause(merr)
	}

	st, verr := loadConsistentState(buf)
	if verr != nil {
		munmapFile(buf)
		lock.unlock()
		f.Close()
		return nil, verr.withPath(path)
	}
	if int64(st.h.FileSize) != stat.Size() {
		munmapFile(buf)
		lock.unlock()
		f.Close()
		return nil, newErr(KindCorrupt, "file_size field %d != actual file size %d", st.h.FileSize, stat.Size()).withPath(path)
	}

	p := &Pool{
		path:     path,
		file:     f,
		mmap:     buf,
		state:    st,
		lock:     lock,
		writable: opts.Writable,
		notify:   newNotifier(path),
		logger:   opts.logger(),
		clock:    opts.clock(),
		codec:    opts.codec(),
	}
	p.logger.Debug("opened pool", zap.String("path", path), zap.Bool("writable", opts.Writable))
	return p, nil
}

// refresh takes a fresh, consistent snapshot of the mapped header, using
// the seqlock pattern so a concurrent writer in another process never
// hands back a torn read. It deliberately never touches p.state: that
// field belongs to the writer path (read and updated only under p.mu, by
// Append/apply and Resize), while refresh is called from read paths
// (Get, Info, Cursor, Replay) that hold no lock. Returning the snapshot
// by value keeps those callers race-free without needing one.
func (p *Pool) refresh() (PoolState, *Error) {
	return loadConsistentState(p.mmap)
}

// Close unmaps the file, releases the lock, and closes the file handle.
// It is safe to call once; calling it twice returns an error.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mmap == nil {
		return newErr(KindUsage, "pool already closed").withPath(p.path)
	}

	var firstErr error
	if p.notify != nil {
		if err := p.notify.Close(); err != nil {
			firstErr = err
		}
	}
	if err := munmapFile(p.mmap); err != nil && firstErr == nil {
		firstErr = newErr(KindIo, "munmap").withCause(err)
	}
	p.mmap = nil
	if err := p.lock.unlock(); err != nil && firstErr == nil {
		firstErr = newErr(KindIo, "unlock").withCause(err)
	}
	if err := p.file.Close(); err != nil && firstErr == nil {
		firstErr = newErr(KindIo, "close").withCause(err)
	}
	return firstErr
}

// Resize grows or shrinks a pool's ring. It requires exclusive access and
// is meant for offline maintenance: callers are expected to hold the
// writer lock with no other readers attached, since every existing
// sequence's ring offset is invalidated by a resize.
func (p *Pool) Resize(newRingSize uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.writable {
		return newErr(KindUsage, "pool not opened for writing").withPath(p.path)
	}
	if newRingSize == 0 {
		return newErr(KindUsage, "ring_size must be > 0")
	}

	st, err := p.refresh()
	if err != nil {
		return err
	}
	if !st.IsEmpty() {
		return newErr(KindUsage, "pool must be empty before resize").withPath(p.path).
			withHint("drain or recreate the pool instead of resizing in place")
	}

	h := st.h
	newFileSize := h.RingOffset + newRingSize

	if err := munmapFile(p.mmap); err != nil {
		return newErr(KindIo, "munmap for resize").withCause(err)
	}
	if err := p.file.Truncate(int64(newFileSize)); err != nil {
		return newErr(KindIo, "truncate for resize").withCause(err)
	}
	buf, merr := mmapFile(p.file, int64(newFileSize))
	if merr != nil {
		return newErr(KindIo, "remap after resize").withCause(merr)
	}
	p.mmap = buf

	h.RingSize = newRingSize
	h.FileSize = newFileSize
	h.HeadOff = h.RingOffset
	h.TailOff = h.RingOffset
	h.TailNextOff = h.RingOffset
	h.Generation++
	encodeHeaderInto(buf[:headerSize], h)
	p.state = PoolState{h: h}

	p.logger.Info("resized pool", zap.String("path", p.path), zap.Uint64("new_ring_size", newRingSize))
	return nil
}

// vim: foldmethod=marker
