package memprotect

import "github.com/biscuit-os/memprotect/archcap"

// WalkResult reports the outcome of a PageTableWalker traversal, per
// spec.md §4.A.
type WalkResult struct {
	PTEAddr    uint64 // physical byte address of the relevant PTE
	PTE        uint64 // raw PTE word at that address
	Level      int    // level at which the walk stopped
	Found      bool   // true iff PTE is a valid leaf
	VAddrValid bool   // false iff vpn is non-canonical
}

// Walk descends from the top-level table at root toward vpn, stopping at
// the deepest relevant PTE, per spec.md §4.A. It is pure with respect to
// page-table state (testable property 1 in spec.md §8): it never writes.
//
// Walk panics -- a FATAL page-table corruption per spec.md §7 -- if it
// finds a superpage leaf on an architecture without superpage support, a
// misaligned superpage PPN, or a non-leaf PTE at level 0.
func Walk(p archcap.Profile, dm DirectMap, root PPN, vpn VPN) WalkResult {
	if !archcap.IsCanonical(p, uint64(vpn)) {
		return WalkResult{VAddrValid: false}
	}

	level := p.Levels() - 1
	curPPN := root
	for {
		idx := levelIndex(p, vpn, level)
		addr := pteByteAddr(p, curPPN, idx)
		frame := dm.Frame(curPPN)
		word := readWord(frame, idx)
		ppn, _, valid, leaf := p.DecodePTE(word)

		if !valid {
			return WalkResult{PTEAddr: addr, PTE: word, Level: level, Found: false, VAddrValid: true}
		}

		if leaf {
			if level > 0 {
				if !p.SupportsSuperpages() {
					corrupt("leaf PTE at non-zero level on an architecture without superpage support")
				}
				span := archcap.SpanOf(p, level)
				if ppn%span != 0 {
					corrupt("superpage PPN misaligned to its level's span")
				}
			}
			return WalkResult{PTEAddr: addr, PTE: word, Level: level, Found: true, VAddrValid: true}
		}

		if level == 0 {
			corrupt("non-leaf PTE at level 0")
		}
		curPPN = PPN(ppn)
		level--
	}
}
