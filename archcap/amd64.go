package archcap

// AMD64 PTE bit layout, grounded on the teacher kernel's own constants
// (biscuit/src/mem/mem.go: PTE_P/PTE_W/PTE_U/PTE_PCD/PTE_PS/PTE_G),
// extended with the {A,D} bits and a software-only "leaf marker" bit.
//
// x86-64 has no literal per-page read-disable bit: a present page is
// always readable, and bit 63 (NX) disables execute rather than granting
// it. To satisfy spec.md §3's architecture-neutral contract ("a non-leaf
// valid PTE has R=W=X=0"), bit 9 -- one of the three bits the AMD64 and
// Intel SDMs reserve for OS use -- carries a software-defined leaf marker
// that EncodePTE sets on every leaf and never on an intermediate table
// pointer. The teacher kernel uses the same class of bit for its own
// software-defined PTE_COW/PTE_WASCOW flags in vm/as.go.
const (
	amd64P    = uint64(1) << 0 // present / valid
	amd64W    = uint64(1) << 1 // writable
	amd64U    = uint64(1) << 2 // user accessible
	amd64PCD  = uint64(1) << 4 // cache disable
	amd64A    = uint64(1) << 5 // accessed
	amd64D    = uint64(1) << 6 // dirty
	amd64PS   = uint64(1) << 7 // page size (superpage) at level > 0
	amd64G    = uint64(1) << 8 // global
	amd64SOFT = uint64(1) << 9 // software leaf marker (OS-available bit)
	amd64NX   = uint64(1) << 63

	amd64PPNShift = 12
	amd64PPNMask  = uint64(0x000f_ffff_ffff_f000)
)

type amd64Profile struct{}

// AMD64 is the x86-64 4-level (PML4/PDPT/PD/PT) paging profile.
var AMD64 Profile = amd64Profile{}

func (amd64Profile) Name() string { return "amd64" }

func (amd64Profile) PageSize() uint64 { return 4096 }

func (amd64Profile) Levels() int { return 4 }

func (amd64Profile) BitsPerLevel() uint { return 9 }

func (amd64Profile) SupportsSuperpages() bool { return true }

// Canonical addresses on amd64 are the lowest and highest 2^47 bytes of the
// 64-bit space (sign-extended bit 47). In VPN units (>>12) that is 2^35
// VPNs per half, with the upper half starting at VPN 0xffff_8000_0000_0000>>12.
func (amd64Profile) UpperHalfStart() uint64 { return 0xffff_8000_0000_0000 >> 12 }

func (amd64Profile) CanonicalHalfSize() uint64 { return 1 << 35 }

func (amd64Profile) EncodePTE(ppn uint64, flags PTEFlags, superpage bool) uint64 {
	word := (ppn << amd64PPNShift) & amd64PPNMask
	word |= amd64P
	if flags.Any(Write) {
		word |= amd64W
	}
	if flags.Any(User) {
		word |= amd64U
	}
	if flags.Any(Global) {
		word |= amd64G
	}
	if flags.Any(Accessed) {
		word |= amd64A
	}
	if flags.Any(Dirty) {
		word |= amd64D
	}
	leaf := flags.Any(Read | Write | Exec)
	if leaf {
		word |= amd64SOFT
		if superpage {
			word |= amd64PS
		}
		if !flags.Any(Exec) {
			word |= amd64NX
		}
	}
	return word
}

func (amd64Profile) DecodePTE(word uint64) (ppn uint64, flags PTEFlags, valid, leaf bool) {
	valid = word&amd64P != 0
	if !valid {
		return 0, 0, false, false
	}
	ppn = (word & amd64PPNMask) >> amd64PPNShift
	leaf = word&amd64SOFT != 0
	if word&amd64W != 0 {
		flags |= Write
	}
	if word&amd64U != 0 {
		flags |= User
	}
	if word&amd64G != 0 {
		flags |= Global
	}
	if word&amd64A != 0 {
		flags |= Accessed
	}
	if word&amd64D != 0 {
		flags |= Dirty
	}
	if leaf {
		flags |= Read
		if word&amd64NX == 0 {
			flags |= Exec
		}
	}
	return ppn, flags, valid, leaf
}

func (amd64Profile) Fence() {
	fenceAMD64()
}
