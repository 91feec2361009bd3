// File: memory/tlsf.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Two-level segregated fit allocator over caller-supplied pools.
// Allocation and deallocation are O(1): a first-level bitmap selects the
// power-of-two range, a second-level bitmap selects one of 32 linear
// sub-ranges, and physically adjacent free blocks are merged immediately.
//
// Block layout (all offsets 16-byte aligned):
//
//	+0   prevPhys   offset of the previous physical block (valid if prevFree)
//	+8   size|flags payload size, bit0 free, bit1 prevFree
//	+16  payload    for free blocks: next and prev free-list references
//
// Every pool ends with a zero-size used sentinel so coalescing never walks
// past the pool.

package memory

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"unsafe"
)

const (
	alignLog2 = 4
	alignSize = 1 << alignLog2

	slLog2  = 5
	slCount = 1 << slLog2

	flShift    = slLog2 + alignLog2
	flMax      = 38
	flCount    = flMax - flShift + 1
	smallBlock = 1 << flShift

	blockHeaderSize = 16
	minBlockSize    = 16
	maxBlockSize    = uint64(1) << flMax

	flagFree     = 1
	flagPrevFree = 2
	flagMask     = flagFree | flagPrevFree

	// poolOverhead is the bookkeeping cost of one pool: first header and sentinel.
	poolOverhead = 2 * blockHeaderSize

	refPoolShift = 40
	refOffMask   = uint64(1)<<refPoolShift - 1
	nullRef      = ^uint64(0)
)

type tlsfPool struct {
	mem  []byte
	base uintptr
}

// TLSF is a two-level segregated fit allocator. It is not safe for
// concurrent use; TLSFResource adds growth and NewTSTLSFResource locking.
type TLSF struct {
	flBitmap uint32
	slBitmap [flCount]uint32
	heads    [flCount][slCount]uint64

	pools  []tlsfPool
	byAddr []int // pool indices sorted by base address

	used   uint64
	blocks int64
}

// NewTLSF returns an empty allocator. Memory is supplied with AddPool.
func NewTLSF() *TLSF {
	t := &TLSF{}
	for i := range t.heads {
		for j := range t.heads[i] {
			t.heads[i][j] = nullRef
		}
	}
	return t
}

// mappingInsert maps a block size to its free-list class.
func mappingInsert(size uint64) (fl, sl int) {
	if size < smallBlock {
		return 0, int(size / (smallBlock / slCount))
	}
	f := bits.Len64(size) - 1
	sl = int(size>>(uint(f)-slLog2)) ^ slCount
	fl = f - (flShift - 1)
	return fl, sl
}

// mappingSearch rounds size up so that every block in the returned class
// is large enough.
func mappingSearch(size uint64) (fl, sl int) {
	if size >= smallBlock {
		size += uint64(1)<<(uint(bits.Len64(size)-1)-slLog2) - 1
	}
	return mappingInsert(size)
}

// PoolOverhead reports the bytes a pool spends on headers.
func PoolOverhead() int { return poolOverhead }

// MaxAllocation is the largest payload a single block can hold.
func MaxAllocation() int {
	m := maxBlockSize - 1
	if m > uint64(math.MaxInt) {
		return math.MaxInt
	}
	return int(m)
}

func (t *TLSF) word(ref, delta uint64) *uint64 {
	p := &t.pools[ref>>refPoolShift]
	return (*uint64)(unsafe.Pointer(&p.mem[(ref&refOffMask)+delta]))
}

func (t *TLSF) sizeFlags(ref uint64) *uint64 { return t.word(ref, 8) }
func (t *TLSF) prevPhys(ref uint64) *uint64  { return t.word(ref, 0) }
func (t *TLSF) nextFree(ref uint64) *uint64  { return t.word(ref, 16) }
func (t *TLSF) prevFree(ref uint64) *uint64  { return t.word(ref, 24) }

func (t *TLSF) blockSize(ref uint64) uint64 { return *t.sizeFlags(ref) &^ flagMask }
func (t *TLSF) isFree(ref uint64) bool      { return *t.sizeFlags(ref)&flagFree != 0 }
func (t *TLSF) isPrevFree(ref uint64) bool  { return *t.sizeFlags(ref)&flagPrevFree != 0 }

func (t *TLSF) setSize(ref, size uint64) {
	w := t.sizeFlags(ref)
	*w = size | (*w & flagMask)
}

func (t *TLSF) setFlag(ref, flag uint64, on bool) {
	w := t.sizeFlags(ref)
	if on {
		*w |= flag
	} else {
		*w &^= flag
	}
}

// physNext returns the block physically following ref in the same pool.
func (t *TLSF) physNext(ref uint64) uint64 {
	return ref + blockHeaderSize + t.blockSize(ref)
}

func (t *TLSF) physPrev(ref uint64) uint64 {
	return ref&^refOffMask | *t.prevPhys(ref)
}

// linkNext records ref as the physical predecessor of the next block.
func (t *TLSF) linkNext(ref uint64) uint64 {
	next := t.physNext(ref)
	*t.prevPhys(next) = ref & refOffMask
	return next
}

func (t *TLSF) insertFree(ref uint64) {
	fl, sl := mappingInsert(t.blockSize(ref))
	head := t.heads[fl][sl]
	*t.nextFree(ref) = head
	*t.prevFree(ref) = nullRef
	if head != nullRef {
		*t.prevFree(head) = ref
	}
	t.heads[fl][sl] = ref
	t.flBitmap |= 1 << uint(fl)
	t.slBitmap[fl] |= 1 << uint(sl)
}

func (t *TLSF) removeFree(ref uint64, fl, sl int) {
	next, prev := *t.nextFree(ref), *t.prevFree(ref)
	if next != nullRef {
		*t.prevFree(next) = prev
	}
	if prev != nullRef {
		*t.nextFree(prev) = next
	} else {
		t.heads[fl][sl] = next
		if next == nullRef {
			t.slBitmap[fl] &^= 1 << uint(sl)
			if t.slBitmap[fl] == 0 {
				t.flBitmap &^= 1 << uint(fl)
			}
		}
	}
}

func (t *TLSF) unlink(ref uint64) {
	fl, sl := mappingInsert(t.blockSize(ref))
	t.removeFree(ref, fl, sl)
}

func (t *TLSF) searchSuitable(fl, sl int) (ref uint64, rfl, rsl int) {
	slMap := t.slBitmap[fl] & (^uint32(0) << uint(sl))
	if slMap == 0 {
		flMap := t.flBitmap & (^uint32(0) << uint(fl+1))
		if flMap == 0 {
			return nullRef, 0, 0
		}
		fl = bits.TrailingZeros32(flMap)
		slMap = t.slBitmap[fl]
	}
	sl = bits.TrailingZeros32(slMap)
	return t.heads[fl][sl], fl, sl
}

// locateFree removes and returns a free block of at least size bytes.
func (t *TLSF) locateFree(size uint64) uint64 {
	fl, sl := mappingSearch(size)
	if fl >= flCount {
		return nullRef
	}
	ref, fl, sl := t.searchSuitable(fl, sl)
	if ref == nullRef {
		return nullRef
	}
	t.removeFree(ref, fl, sl)
	return ref
}

// splitTail cuts the block down to size and frees the remainder if it can
// hold a block of its own.
func (t *TLSF) splitTail(ref, size uint64) {
	total := t.blockSize(ref)
	if total < size+blockHeaderSize+minBlockSize {
		return
	}
	t.setSize(ref, size)
	rest := t.physNext(ref)
	*t.sizeFlags(rest) = (total - size - blockHeaderSize) | flagFree
	*t.prevPhys(rest) = ref & refOffMask
	t.linkNext(rest)
	t.setFlag(t.physNext(rest), flagPrevFree, true)
	t.insertFree(rest)
}

// splitHead frees the first gap bytes of a free block and returns the
// block that starts at ref+gap.
func (t *TLSF) splitHead(ref, gap uint64) uint64 {
	total := t.blockSize(ref)
	rest := ref + gap
	*t.sizeFlags(rest) = (total - gap) | flagFree | flagPrevFree
	*t.prevPhys(rest) = ref & refOffMask
	t.linkNext(rest)
	t.setSize(ref, gap-blockHeaderSize)
	t.insertFree(ref)
	return rest
}

// AddPool hands mem to the allocator. mem must stay valid until the
// allocator is discarded and is used from its first 16-byte aligned byte.
// It returns false if mem is too small to hold a block.
func (t *TLSF) AddPool(mem []byte) bool {
	if len(mem) == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	skip := int(alignUptr(base, alignSize) - base)
	if skip >= len(mem) {
		return false
	}
	mem = mem[skip:]
	n := uint64(len(mem)) &^ (alignSize - 1)
	if n < poolOverhead+minBlockSize {
		return false
	}
	if n-poolOverhead >= maxBlockSize {
		n = maxBlockSize - alignSize + poolOverhead
	}
	assertf(len(t.pools) < 1<<(64-refPoolShift)-1, "too many pools")

	idx := len(t.pools)
	t.pools = append(t.pools, tlsfPool{mem: mem[:n:n], base: base + uintptr(skip)})
	pos := sort.Search(len(t.byAddr), func(i int) bool {
		return t.pools[t.byAddr[i]].base > t.pools[idx].base
	})
	t.byAddr = append(t.byAddr, 0)
	copy(t.byAddr[pos+1:], t.byAddr[pos:])
	t.byAddr[pos] = idx

	ref := uint64(idx) << refPoolShift
	*t.prevPhys(ref) = 0
	*t.sizeFlags(ref) = (n - poolOverhead) | flagFree
	sentinel := t.linkNext(ref)
	*t.sizeFlags(sentinel) = flagPrevFree
	t.insertFree(ref)
	return true
}

// Pools reports the number of registered pools.
func (t *TLSF) Pools() int { return len(t.pools) }

func (t *TLSF) payload(ref uint64, size int) []byte {
	p := &t.pools[ref>>refPoolShift]
	off := int(ref&refOffMask) + blockHeaderSize
	return clip(p.mem, off, size)
}

func (t *TLSF) payloadAddr(ref uint64) uintptr {
	return t.pools[ref>>refPoolShift].base + uintptr(ref&refOffMask) + blockHeaderSize
}

func adjustSize(size int) uint64 {
	s := uint64(alignUp(size, alignSize))
	if s < minBlockSize {
		s = minBlockSize
	}
	return s
}

// Allocate returns a block of size bytes aligned to align, or nil when no
// free block is large enough.
func (t *TLSF) Allocate(size, align int) []byte {
	if size < 0 || size > MaxAllocation() {
		return nil
	}
	if align < alignSize {
		align = alignSize
	}
	assertf(isPow2(align), "alignment %d is not a power of two", align)
	adjust := adjustSize(size)

	if align == alignSize {
		ref := t.locateFree(adjust)
		if ref == nullRef {
			return nil
		}
		return t.markUsed(ref, adjust, size)
	}

	// Over-aligned: search for enough room to carve a leading free block.
	gapMin := uint64(blockHeaderSize + minBlockSize)
	ref := t.locateFree(adjust + uint64(align) + gapMin)
	if ref == nullRef {
		return nil
	}
	addr := t.payloadAddr(ref)
	aligned := alignUptr(addr, uintptr(align))
	gap := uint64(aligned - addr)
	if gap != 0 && gap < gapMin {
		aligned = alignUptr(addr+uintptr(gapMin), uintptr(align))
		gap = uint64(aligned - addr)
	}
	if gap != 0 {
		ref = t.splitHead(ref, gap)
	}
	return t.markUsed(ref, adjust, size)
}

func (t *TLSF) markUsed(ref, adjust uint64, size int) []byte {
	t.splitTail(ref, adjust)
	t.setFlag(ref, flagFree, false)
	t.setFlag(t.physNext(ref), flagPrevFree, false)
	t.used += t.blockSize(ref)
	t.blocks++
	return t.payload(ref, size)
}

// lookup returns the block reference owning the payload at addr.
func (t *TLSF) lookup(addr uintptr) (uint64, bool) {
	i := sort.Search(len(t.byAddr), func(i int) bool {
		return t.pools[t.byAddr[i]].base > addr
	}) - 1
	if i < 0 {
		return 0, false
	}
	idx := t.byAddr[i]
	p := &t.pools[idx]
	if addr >= p.base+uintptr(len(p.mem)) {
		return 0, false
	}
	off := uint64(addr - p.base)
	if off < blockHeaderSize || off%alignSize != 0 {
		return 0, false
	}
	return uint64(idx)<<refPoolShift | (off - blockHeaderSize), true
}

// Owns reports whether b lies inside one of the allocator's pools.
func (t *TLSF) Owns(b []byte) bool {
	_, ok := t.lookup(addrOf(b))
	return ok
}

// Deallocate returns b to the allocator and merges it with free neighbours.
// Freeing a block twice, or a block the allocator does not own, panics.
func (t *TLSF) Deallocate(b []byte) {
	ref, ok := t.lookup(addrOf(b))
	assertf(ok, "tlsf: block %p not owned by allocator", unsafe.SliceData(b))
	assertf(!t.isFree(ref), "tlsf: double free of block %p", unsafe.SliceData(b))

	t.used -= t.blockSize(ref)
	t.blocks--
	t.setFlag(ref, flagFree, true)

	if t.isPrevFree(ref) {
		prev := t.physPrev(ref)
		t.unlink(prev)
		t.setSize(prev, t.blockSize(prev)+blockHeaderSize+t.blockSize(ref))
		ref = prev
	}
	next := t.physNext(ref)
	if t.isFree(next) {
		t.unlink(next)
		t.setSize(ref, t.blockSize(ref)+blockHeaderSize+t.blockSize(next))
	}
	next = t.linkNext(ref)
	t.setFlag(next, flagPrevFree, true)
	t.insertFree(ref)
}

// BlockSize returns the usable payload size of an allocated block, which
// may exceed the requested size.
func (t *TLSF) BlockSize(b []byte) int {
	ref, ok := t.lookup(addrOf(b))
	assertf(ok, "tlsf: block %p not owned by allocator", unsafe.SliceData(b))
	return int(t.blockSize(ref))
}

// Used reports payload bytes held by allocated blocks.
func (t *TLSF) Used() int64 { return int64(t.used) }

// Blocks reports the number of allocated blocks.
func (t *TLSF) Blocks() int64 { return t.blocks }

// Check walks every pool and validates the physical chain and free-list
// bookkeeping. It is meant for tests and debug probes.
func (t *TLSF) Check() error {
	listed := 0
	for fl := 0; fl < flCount; fl++ {
		for sl := 0; sl < slCount; sl++ {
			bit := t.slBitmap[fl]&(1<<uint(sl)) != 0
			head := t.heads[fl][sl]
			if bit != (head != nullRef) {
				return fmt.Errorf("tlsf: bitmap mismatch at class %d/%d", fl, sl)
			}
			for ref := head; ref != nullRef; ref = *t.nextFree(ref) {
				if !t.isFree(ref) {
					return fmt.Errorf("tlsf: used block %#x on free list", ref)
				}
				if f, s := mappingInsert(t.blockSize(ref)); f != fl || s != sl {
					return fmt.Errorf("tlsf: block %#x in wrong class", ref)
				}
				listed++
			}
		}
	}

	free := 0
	for idx := range t.pools {
		ref := uint64(idx) << refPoolShift
		prevFree := false
		for {
			if t.isPrevFree(ref) != prevFree {
				return fmt.Errorf("tlsf: prevFree flag mismatch at %#x", ref)
			}
			size := t.blockSize(ref)
			if size == 0 {
				break
			}
			if t.isFree(ref) {
				if prevFree {
					return fmt.Errorf("tlsf: adjacent free blocks at %#x", ref)
				}
				free++
			}
			prevFree = t.isFree(ref)
			next := t.physNext(ref)
			if prevFree && t.physPrev(next) != ref {
				return fmt.Errorf("tlsf: broken prevPhys link at %#x", next)
			}
			ref = next
		}
	}
	if free != listed {
		return fmt.Errorf("tlsf: %d free blocks but %d listed", free, listed)
	}
	return nil
}
