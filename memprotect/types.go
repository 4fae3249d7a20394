// Package memprotect implements the multi-level paging engine described in
// spec.md §4.A-F and §4.I: PageTableWalker, SuperpageSplitter, Mapper,
// GlobalBroadcast, ContextRegistry, Swapper and Virt2Phys. It is
// polymorphic over architecture via archcap.Profile, grounded on the
// teacher kernel's own vm/mem split (biscuit/src/vm/as.go, biscuit/src/mem).
package memprotect

import (
	"encoding/binary"

	"github.com/biscuit-os/memprotect/archcap"
)

// PPN is a physical page number: the index of a 4 KiB (or Profile.PageSize)
// frame in physical RAM.
type PPN uint64

// VPN is a virtual page number within some address space.
type VPN uint64

// PageAllocator is the external phys_page_alloc/phys_page_free contract
// named in spec.md §6. The buddy allocator implementing it is explicitly
// out of scope for this module; memprotect only ever calls through this
// interface.
type PageAllocator interface {
	// AllocPage allocates 2^order contiguous frames, zeroing them iff zero
	// is true, and returns the base PPN. It returns ok=false on failure;
	// memprotect never retries -- the caller is responsible for pre-
	// reserving enough memory for boot-critical paths per spec.md §4.C.
	AllocPage(order uint, zero bool) (ppn PPN, ok bool)

	// FreePage releases a single frame previously returned by AllocPage
	// with order 0. memprotect only ever frees the page-table frames it
	// allocated itself (never user leaf frames, which belong to the
	// process memory map per spec.md §3).
	FreePage(ppn PPN)
}

// DirectMap gives memprotect byte-level access to a physical frame's
// contents, the role the teacher's mem.Dmap (an HHDM window over all of
// physical RAM) plays for biscuit's own vm package. Frame must return a
// slice of exactly Profile.PageSize() bytes backing ppn's frame; writes to
// the slice must be visible to every other holder of the same ppn.
type DirectMap interface {
	Frame(ppn PPN) []byte
}

// Ctx is an address-space context: the ownership record of one address
// space (spec.md §3). list_link is modeled as an explicit doubly linked
// list embedded in the struct, owned exclusively by Registry.
type Ctx struct {
	RootPPN PPN

	isMaster   bool
	next, prev *Ctx
}

// IsMaster reports whether ctx is the distinguished master context.
func (c *Ctx) IsMaster() bool { return c.isMaster }

func levelIndex(p archcap.Profile, vpn VPN, level int) uint64 {
	shift := p.BitsPerLevel() * uint(level)
	mask := archcap.EntriesPerTable(p) - 1
	return (uint64(vpn) >> shift) & mask
}

func pteByteOffset(idx uint64) uint64 { return idx * 8 }

func readWord(frame []byte, idx uint64) uint64 {
	off := pteByteOffset(idx)
	return binary.LittleEndian.Uint64(frame[off : off+8])
}

func writeWord(frame []byte, idx uint64, word uint64) {
	off := pteByteOffset(idx)
	binary.LittleEndian.PutUint64(frame[off:off+8], word)
}

func pteByteAddr(p archcap.Profile, ppn PPN, idx uint64) uint64 {
	return uint64(ppn)*p.PageSize() + pteByteOffset(idx)
}
