// Package physhost provides the reference/test-double implementation of
// the phys_page_alloc/phys_page_free contract (spec.md §6) consumed by
// memprotect (memprotect.PageAllocator and memprotect.DirectMap). The
// production buddy allocator is a collaborator kept out of scope (spec.md
// §1's Non-goals); FrameTable exists only so cmd/memprotect-dump and this
// package's own tests have frames to allocate from, the same role the
// teacher's own mem.Physmem plays for biscuit's vm package tests.
package physhost

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/biscuit-os/memprotect/archcap"
	"github.com/biscuit-os/memprotect/memprotect"
)

const percpuCap = 64

// frameSlot mirrors the teacher's Physpg_t: a refcount plus a free-list
// forward link, here additionally carrying the frame's backing bytes
// since FrameTable hosts a simulated arena rather than real RAM.
type frameSlot struct {
	refcnt int32
	next   uint32 // index of next free frame, or freeListEnd
	bytes  []byte
}

const freeListEnd = ^uint32(0)

type percpuFreeList struct {
	mu   sync.Mutex
	head uint32
	len  int32
	_    cpu.CacheLinePad
}

// FrameTable is a refcounted frame arena grounded on the teacher's
// Physmem_t (biscuit/src/mem/mem.go): a flat slice of frame metadata, a
// global free list protected by mu, and per-CPU free lists (here indexed
// by the injected CPUHint rather than runtime.CPUHint, which has no
// hosted-Go equivalent) that absorb frees and satisfy allocations without
// touching the global list or lock in the common case.
//
// Order-0 allocations are served from the free lists, matching the
// teacher's single-page free list. Allocations with order > 0 are
// satisfied from a bump region reserved at construction time; the bump
// pointer is never rewound, so order > 0 allocations never reuse a freed
// frame. FreePage does not distinguish the two regions: a frame from an
// order > 0 allocation that is freed joins the order-0 free lists like any
// other -- FrameTable is a reference double, not the production buddy
// allocator (spec.md's Non-goals).
type FrameTable struct {
	mu       sync.Mutex
	pageSize uint64
	startPPN memprotect.PPN

	frames   []frameSlot
	freeHead uint32
	freeLen  int32

	bumpNext  uint32
	bumpLimit uint32

	percpu  archcap.PerCPU[percpuFreeList]
	cpuHint func() int
}

// NewFrameTable builds a FrameTable of numFrames frames of pageSize bytes
// each, numbered starting at startPPN. bumpFraction (0 < f < 1) of the
// frames are set aside, highest-numbered first, for order>0 allocations;
// the rest seed the order-0 free list. cpuHint selects the calling CPU's
// per-CPU free list index; pass nil to always use slot 0 (the common case
// for single-goroutine tests).
func NewFrameTable(numFrames int, pageSize uint64, startPPN memprotect.PPN, bumpFraction float64, cpuHint func() int) *FrameTable {
	if cpuHint == nil {
		cpuHint = func() int { return 0 }
	}
	if bumpFraction < 0 || bumpFraction >= 1 {
		bumpFraction = 0.25
	}

	ft := &FrameTable{
		pageSize: pageSize,
		startPPN: startPPN,
		frames:   make([]frameSlot, numFrames),
		cpuHint:  cpuHint,
	}

	reserved := int(float64(numFrames) * bumpFraction)
	freeCount := numFrames - reserved
	ft.bumpNext = uint32(freeCount)
	ft.bumpLimit = uint32(numFrames)

	for i := 0; i < archcap.MaxCPUs; i++ {
		ft.percpu.At(i).head = freeListEnd
	}

	ft.freeHead = freeListEnd
	for i := freeCount - 1; i >= 0; i-- {
		ft.frames[i].next = ft.freeHead
		ft.freeHead = uint32(i)
		ft.freeLen++
	}
	return ft
}

func (ft *FrameTable) ppnToIdx(ppn memprotect.PPN) uint32 {
	return uint32(ppn - ft.startPPN)
}

func (ft *FrameTable) idxToPPN(idx uint32) memprotect.PPN {
	return ft.startPPN + memprotect.PPN(idx)
}

// AllocPage satisfies memprotect.PageAllocator. order 0 is served from the
// per-CPU free list, falling back to the global free list; order > 0 bump-
// allocates 2^order contiguous frames from the reserved high region.
func (ft *FrameTable) AllocPage(order uint, zero bool) (memprotect.PPN, bool) {
	if order == 0 {
		if idx, ok := ft.pcpuPop(); ok {
			return ft.finishAlloc(idx, 1, zero)
		}
		idx, ok := ft.globalPop()
		if !ok {
			return 0, false
		}
		return ft.finishAlloc(idx, 1, zero)
	}

	n := uint32(1) << order
	ft.mu.Lock()
	if ft.bumpNext+n > ft.bumpLimit {
		ft.mu.Unlock()
		return 0, false
	}
	base := ft.bumpNext
	ft.bumpNext += n
	ft.mu.Unlock()
	return ft.finishAlloc(base, n, zero)
}

func (ft *FrameTable) finishAlloc(base uint32, n uint32, zero bool) (memprotect.PPN, bool) {
	for i := base; i < base+n; i++ {
		ft.frames[i].refcnt = 1
		if ft.frames[i].bytes == nil {
			ft.frames[i].bytes = make([]byte, ft.pageSize)
		} else if zero {
			for j := range ft.frames[i].bytes {
				ft.frames[i].bytes[j] = 0
			}
		}
	}
	return ft.idxToPPN(base), true
}

func (ft *FrameTable) pcpuPop() (uint32, bool) {
	slot := ft.percpu.At(ft.cpuHint())
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.head == freeListEnd {
		return 0, false
	}
	idx := slot.head
	slot.head = ft.frames[idx].next
	slot.len--
	return idx, true
}

func (ft *FrameTable) globalPop() (uint32, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.freeHead == freeListEnd {
		return 0, false
	}
	idx := ft.freeHead
	ft.freeHead = ft.frames[idx].next
	ft.freeLen--
	return idx, true
}

// FreePage satisfies memprotect.PageAllocator. It drops the frame's
// refcount (per the teacher's Refdown) and, when it reaches zero, returns
// the frame to the calling CPU's free list (spilling to the global list
// once the per-CPU list is full), mirroring _phys_put/_pcpu_put.
func (ft *FrameTable) FreePage(ppn memprotect.PPN) {
	idx := ft.ppnToIdx(ppn)
	c := atomic.AddInt32(&ft.frames[idx].refcnt, -1)
	if c < 0 {
		panic("physhost: refcount underflow freeing a frame")
	}
	if c > 0 {
		return
	}
	if ft.pcpuPush(idx) {
		return
	}
	ft.mu.Lock()
	ft.frames[idx].next = ft.freeHead
	ft.freeHead = idx
	ft.freeLen++
	ft.mu.Unlock()
}

func (ft *FrameTable) pcpuPush(idx uint32) bool {
	slot := ft.percpu.At(ft.cpuHint())
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.len >= percpuCap {
		return false
	}
	ft.frames[idx].next = slot.head
	slot.head = idx
	slot.len++
	return true
}

// Refup increments a frame's reference count, the shared-frame counterpart
// to FreePage's decrement (Physmem_t.Refup). memprotect itself never calls
// this -- every page-table frame it allocates is owned exclusively by one
// Ctx -- but GlobalBroadcast's upper-half sharing means the frames backing
// a shared kernel subtable conceptually have more than one owner, and a
// host wiring real process teardown would call Refup when linking a shared
// subtable in rather than relying on FreePage's single-owner assumption.
func (ft *FrameTable) Refup(ppn memprotect.PPN) {
	idx := ft.ppnToIdx(ppn)
	c := atomic.AddInt32(&ft.frames[idx].refcnt, 1)
	if c <= 0 {
		panic("physhost: refup produced a non-positive refcount")
	}
}

// Refcnt reports a frame's current reference count.
func (ft *FrameTable) Refcnt(ppn memprotect.PPN) int {
	idx := ft.ppnToIdx(ppn)
	return int(atomic.LoadInt32(&ft.frames[idx].refcnt))
}

// Frame satisfies memprotect.DirectMap, standing in for the teacher's
// mem.Dmap HHDM window: a byte slice aliasing ppn's frame contents.
func (ft *FrameTable) Frame(ppn memprotect.PPN) []byte {
	idx := ft.ppnToIdx(ppn)
	if ft.frames[idx].bytes == nil {
		ft.frames[idx].bytes = make([]byte, ft.pageSize)
	}
	return ft.frames[idx].bytes
}
