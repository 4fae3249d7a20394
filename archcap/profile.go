// Package archcap defines the architecture-capability contract that the
// paging engine (package memprotect) and the PMP engine (package pmp) are
// polymorphic over, per the "Polymorphism over architectures" design note.
// Each supported architecture implements Profile in its own file
// (amd64.go, riscv64.go). Neither file carries a build constraint: both
// profiles are compiled on every host, and callers pick one at run time
// by passing the Profile value (archcap.AMD64 or archcap.RV64Sv39).
package archcap

// PTEFlags carries the architecture-neutral {R,W,X,U,G,A,D} access bits
// described in spec.md §3. The concrete bit positions backing these flags
// are architecture-specific and never leak outside Profile.EncodePTE /
// Profile.DecodePTE.
type PTEFlags uint8

const (
	Read PTEFlags = 1 << iota
	Write
	Exec
	User
	Global
	Accessed
	Dirty
)

// Has reports whether all bits in want are set in f.
func (f PTEFlags) Has(want PTEFlags) bool {
	return f&want == want
}

// Any reports whether any bit in want is set in f.
func (f PTEFlags) Any(want PTEFlags) bool {
	return f&want != 0
}

func (f PTEFlags) String() string {
	var s [7]byte
	for i := range s {
		s[i] = '-'
	}
	put := func(i int, b PTEFlags, c byte) {
		if f.Any(b) {
			s[i] = c
		}
	}
	put(0, Read, 'R')
	put(1, Write, 'W')
	put(2, Exec, 'X')
	put(3, User, 'U')
	put(4, Global, 'G')
	put(5, Accessed, 'A')
	put(6, Dirty, 'D')
	return string(s[:])
}

// Profile is the capability set an architecture must provide. It is the
// vtable named in spec.md §9: PageTableWalker, SuperpageSplitter, Mapper
// and Swapper never branch on GOARCH directly, they call through Profile.
type Profile interface {
	// Name identifies the architecture, e.g. "amd64" or "riscv64/sv39".
	Name() string

	// PageSize is the base page size in bytes; always a power of two >= 4096.
	PageSize() uint64

	// Levels is the number of paging levels (2-5).
	Levels() int

	// BitsPerLevel is log2(entries per table); uniform across levels.
	BitsPerLevel() uint

	// SupportsSuperpages reports whether leaf PTEs are permitted above level 0.
	SupportsSuperpages() bool

	// UpperHalfStart is the first VPN of the canonical kernel half.
	UpperHalfStart() uint64

	// CanonicalHalfSize is the number of VPNs in each canonical half.
	CanonicalHalfSize() uint64

	// EncodePTE packs a PPN and flag set into a raw PTE word. A non-leaf
	// PTE is encoded by passing flags with none of {Read,Write,Exec} set.
	// superpage must be true iff this leaf is installed above level 0;
	// architectures that need no distinct "large page" bit (RISC-V) ignore it.
	EncodePTE(ppn uint64, flags PTEFlags, superpage bool) uint64

	// DecodePTE unpacks a raw PTE word. valid reports the Valid bit; leaf
	// reports valid && at least one of {R,W,X} is set, per spec.md §3.
	DecodePTE(word uint64) (ppn uint64, flags PTEFlags, valid, leaf bool)

	// Fence issues the architecture's memory-and-translation fence.
	Fence()
}

// EntriesPerTable is 2^BitsPerLevel(p).
func EntriesPerTable(p Profile) uint64 {
	return uint64(1) << p.BitsPerLevel()
}

// SpanOf returns the number of base pages one leaf PTE at level covers:
// 2^(BitsPerLevel*level).
func SpanOf(p Profile, level int) uint64 {
	return uint64(1) << (p.BitsPerLevel() * uint(level))
}

// IsCanonical reports whether vpn lies in either canonical half.
func IsCanonical(p Profile, vpn uint64) bool {
	half := p.CanonicalHalfSize()
	if vpn < half {
		return true
	}
	upper := p.UpperHalfStart()
	return vpn >= upper && vpn < upper+half
}

// IsKernelHalf reports whether vpn lies in the canonical kernel (upper) half.
// The caller must already know vpn is canonical.
func IsKernelHalf(p Profile, vpn uint64) bool {
	return vpn >= p.UpperHalfStart()
}
