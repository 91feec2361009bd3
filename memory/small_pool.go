// File: memory/small_pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Size-class free-list cache in front of an upstream resource.
//
//	Low   size <= 512     8 byte classes     lists   0..63
//	Mid   size <= 2048    32 byte classes    lists  64..111
//	High  size <= 16384   1024 byte classes  lists 112..125
//	Large bigger          straight upstream  LargeListID
//
// Each block carries a 16-byte header in front of the payload so that
// Deallocate can find its class without a lookup table.

package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/core/concurrency"
)

const (
	lowMax  = 512
	midMax  = 2048
	highMax = 16384

	lowGranularity  = 8
	midGranularity  = 32
	highGranularity = 1024

	lowLists  = lowMax / lowGranularity
	midLists  = (midMax - lowMax) / midGranularity
	highLists = (highMax - midMax) / highGranularity

	// NumLists is the number of cached size classes.
	NumLists = lowLists + midLists + highLists
	// LargeListID marks blocks that bypass the cache.
	LargeListID = NumLists

	// cacheBudget bounds count*(listID+1) per list.
	cacheBudget = 1023

	smallHeaderSize = 16
	smallMagic      = uint32(0x534d5031)
	smallFreedMagic = uint32(0x534d5030)
)

type smallHeader struct {
	magic  uint32
	listID uint32
	size   uint64
}

// ListID returns the size class serving size bytes.
func ListID(size int) int {
	if size <= 0 {
		size = 1
	}
	switch {
	case size <= lowMax:
		return (size - 1) / lowGranularity
	case size <= midMax:
		return lowLists + (size-lowMax-1)/midGranularity
	case size <= highMax:
		return lowLists + midLists + (size-midMax-1)/highGranularity
	}
	return LargeListID
}

// ClassSize returns the payload capacity of a size class.
func ClassSize(listID int) int {
	switch {
	case listID < lowLists:
		return (listID + 1) * lowGranularity
	case listID < lowLists+midLists:
		return lowMax + (listID-lowLists+1)*midGranularity
	case listID < NumLists:
		return midMax + (listID-lowLists-midLists+1)*highGranularity
	}
	panic(fmt.Sprintf("memory: list id %d has no fixed class size", listID))
}

func headerOf(b []byte) *smallHeader {
	assertf(cap(b) > 0, "small pool: empty block")
	return (*smallHeader)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(b)), -smallHeaderSize))
}

// BlockListID returns the size class recorded in a block's header.
func BlockListID(b []byte) int {
	return int(headerOf(b).listID)
}

// fullBlock rebuilds the upstream block from its payload.
func fullBlock(h *smallHeader, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(h)), smallHeaderSize+n)
}

type freeList struct {
	lock   concurrency.AtomicFlag
	blocks [][]byte
}

// SmallMultiPool caches freed blocks per size class. Not safe for
// concurrent use; see TSSmallMultiPool.
type SmallMultiPool struct {
	upstream api.Resource
	lists    [NumLists]freeList

	threadSafe bool
	upMu       sync.Mutex

	outstanding atomic.Int64
	cached      atomic.Int64
	inUse       atomic.Int64
	reserved    atomic.Int64
	opts        options
}

// NewSmallMultiPool creates a size-class cache over upstream (Default() if nil).
func NewSmallMultiPool(upstream api.Resource, opts ...Option) *SmallMultiPool {
	if upstream == nil {
		upstream = Default()
	}
	return &SmallMultiPool{upstream: upstream, opts: buildOptions("small", opts)}
}

func (p *SmallMultiPool) lockList(l *freeList) {
	if p.threadSafe {
		l.lock.Lock()
	}
}

func (p *SmallMultiPool) unlockList(l *freeList) {
	if p.threadSafe {
		l.lock.Unlock()
	}
}

func (p *SmallMultiPool) upAllocate(n int) ([]byte, error) {
	if p.threadSafe {
		p.upMu.Lock()
		defer p.upMu.Unlock()
	}
	return p.upstream.Allocate(n, alignSize)
}

func (p *SmallMultiPool) upDeallocate(b []byte) {
	if p.threadSafe {
		p.upMu.Lock()
		defer p.upMu.Unlock()
	}
	p.upstream.Deallocate(b)
}

// Allocate implements api.Resource. Alignment above 16 bytes is not
// supported because the payload follows the 16-byte header.
func (p *SmallMultiPool) Allocate(size, align int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory: size %d: %w", size, api.ErrInvalidArgument)
	}
	if align > alignSize {
		return nil, fmt.Errorf("memory: small pool alignment %d: %w", align, api.ErrNotSupported)
	}
	id := ListID(size)

	var block []byte
	if id != LargeListID {
		l := &p.lists[id]
		p.lockList(l)
		if n := len(l.blocks); n > 0 {
			block = l.blocks[n-1]
			l.blocks[n-1] = nil
			l.blocks = l.blocks[:n-1]
			p.cached.Add(-1)
		}
		p.unlockList(l)
	}

	if block == nil {
		n := size
		if id != LargeListID {
			n = ClassSize(id)
		}
		var err error
		block, err = p.upAllocate(smallHeaderSize + n)
		if err != nil {
			p.opts.outOfMemory(size)
			return nil, err
		}
		p.reserved.Add(int64(len(block)))
	}

	h := (*smallHeader)(unsafe.Pointer(unsafe.SliceData(block)))
	h.magic = smallMagic
	h.listID = uint32(id)
	h.size = uint64(size)
	p.outstanding.Add(1)
	p.inUse.Add(int64(size))
	return clip(block, smallHeaderSize, size), nil
}

// Deallocate implements api.Resource. A block with a foreign or corrupted
// header, or one freed twice, panics.
func (p *SmallMultiPool) Deallocate(b []byte) {
	h := headerOf(b)
	assertf(h.magic != smallFreedMagic, "small pool: double free of block %p", unsafe.SliceData(b))
	assertf(h.magic == smallMagic, "small pool: bad block header %#x", h.magic)
	id := int(h.listID)
	size := int(h.size)
	assertf(id == ListID(size), "small pool: size class mismatch: list %d for %d bytes", id, size)
	assertf(cap(b) <= size || (size == 0 && cap(b) == 1), "small pool: block capacity %d exceeds recorded size %d", cap(b), size)

	h.magic = smallFreedMagic
	p.outstanding.Add(-1)
	p.inUse.Add(-int64(size))

	if id == LargeListID {
		p.release(fullBlock(h, size))
		return
	}
	block := fullBlock(h, ClassSize(id))
	l := &p.lists[id]
	p.lockList(l)
	if (len(l.blocks)+1)*(id+1) <= cacheBudget {
		l.blocks = append(l.blocks, block)
		p.cached.Add(1)
		block = nil
	}
	p.unlockList(l)
	if block != nil {
		p.release(block)
	}
}

func (p *SmallMultiPool) release(block []byte) {
	p.reserved.Add(-int64(len(block)))
	p.upDeallocate(block)
}

// Trim returns every cached block to upstream.
func (p *SmallMultiPool) Trim() {
	for i := range p.lists {
		l := &p.lists[i]
		p.lockList(l)
		blocks := l.blocks
		l.blocks = nil
		p.unlockList(l)
		for _, b := range blocks {
			p.cached.Add(-1)
			p.release(b)
		}
	}
}

// CachedIn reports the number of cached blocks of one size class.
func (p *SmallMultiPool) CachedIn(listID int) int {
	l := &p.lists[listID]
	p.lockList(l)
	defer p.unlockList(l)
	return len(l.blocks)
}

// Stats implements api.StatsReporter.
func (p *SmallMultiPool) Stats() api.ResourceStats {
	return api.ResourceStats{
		Reserved:    p.reserved.Load(),
		InUse:       p.inUse.Load(),
		Outstanding: p.outstanding.Load(),
		Cached:      p.cached.Load(),
	}
}

// TSSmallMultiPool is a SmallMultiPool safe for concurrent use. Free lists
// are guarded by spin flags, the upstream resource by a mutex.
type TSSmallMultiPool struct {
	SmallMultiPool
}

// NewTSSmallMultiPool creates a thread-safe size-class cache.
func NewTSSmallMultiPool(upstream api.Resource, opts ...Option) *TSSmallMultiPool {
	if upstream == nil {
		upstream = Default()
	}
	p := &TSSmallMultiPool{}
	p.upstream = upstream
	p.opts = buildOptions("small", opts)
	p.threadSafe = true
	return p
}

var (
	_ api.Resource      = (*SmallMultiPool)(nil)
	_ api.Resource      = (*TSSmallMultiPool)(nil)
	_ api.StatsReporter = (*TSSmallMultiPool)(nil)
)
