package memprotect

import "github.com/biscuit-os/memprotect/archcap"

// RangeCanonical reports whether [vpn, vpn+pages) lies wholly within one
// canonical half, per spec.md §4.C's "the range is wholly canonical"
// precondition. A range straddling the non-canonical gap between the two
// halves is rejected, as is one straddling the exact boundary between
// them (tested explicitly in spec.md §8's boundary behaviors).
func RangeCanonical(p archcap.Profile, vpn VPN, pages uint64) bool {
	if pages == 0 {
		return false
	}
	start := uint64(vpn)
	end := start + pages - 1
	half := p.CanonicalHalfSize()
	if start < half {
		return end < half
	}
	upper := p.UpperHalfStart()
	if start >= upper {
		return end >= upper && end < upper+half
	}
	return false
}

// chooseMapLevel picks the greatest level L for which vpn, ppn and
// remaining are all aligned/sufficiently long for a superpage at L, per
// spec.md §4.C's superpage-choice formula. Level 0 (a single base page)
// always qualifies.
func chooseMapLevel(p archcap.Profile, vpn VPN, ppn PPN, remaining uint64) int {
	for level := p.Levels() - 1; level > 0; level-- {
		if !p.SupportsSuperpages() {
			continue
		}
		span := archcap.SpanOf(p, level)
		if uint64(vpn)%span == 0 && uint64(ppn)%span == 0 && remaining >= span {
			return level
		}
	}
	return 0
}

// chooseUnmapLevel is chooseMapLevel with the ppn-alignment check omitted,
// per spec.md §4.C ("for unmap, the ppn check is omitted").
func chooseUnmapLevel(p archcap.Profile, vpn VPN, remaining uint64) int {
	for level := p.Levels() - 1; level > 0; level-- {
		if !p.SupportsSuperpages() {
			continue
		}
		span := archcap.SpanOf(p, level)
		if uint64(vpn)%span == 0 && remaining >= span {
			return level
		}
	}
	return 0
}

// descendAndLink walks from the top level down to targetLevel, allocating
// a fresh intermediate table wherever it finds an invalid PTE and
// splitting (via Split) wherever it finds a leaf superpage blocking the
// way, per spec.md §4.C's walk-and-maybe-split algorithm. It returns the
// physical byte address of the target-level PTE to install, and whether
// any entry in the top-level table was written along the way.
//
// Out-of-memory while allocating or splitting an intermediate table is
// FATAL (spec.md §4.C/§7): this is boot-critical code and callers must
// pre-reserve sufficient memory.
func descendAndLink(p archcap.Profile, dm DirectMap, alloc PageAllocator, root PPN, vpn VPN, targetLevel int) (pteAddr uint64, topEdit bool) {
	topLevel := p.Levels() - 1
	level := topLevel
	curPPN := root
	for level > targetLevel {
		idx := levelIndex(p, vpn, level)
		addr := pteByteAddr(p, curPPN, idx)
		frame := dm.Frame(curPPN)
		word := readWord(frame, idx)
		ppn, _, valid, leaf := p.DecodePTE(word)

		var nextPPN PPN
		switch {
		case !valid:
			newPPN, ok := alloc.AllocPage(0, true)
			if !ok {
				oom("allocating intermediate page table")
			}
			writeWord(frame, idx, p.EncodePTE(uint64(newPPN), 0, false))
			if level == topLevel {
				topEdit = true
			}
			nextPPN = newPPN
		case leaf:
			newPPN, ok := Split(p, dm, alloc, addr, word, level)
			if !ok {
				oom("splitting superpage to install a smaller mapping")
			}
			if level == topLevel {
				topEdit = true
			}
			nextPPN = newPPN
		default:
			nextPPN = PPN(ppn)
		}
		curPPN = nextPPN
		level--
	}

	idx := levelIndex(p, vpn, targetLevel)
	if targetLevel == topLevel {
		topEdit = true
	}
	return pteByteAddr(p, curPPN, idx), topEdit
}

// Map installs mappings covering exactly pages base pages starting at vpn,
// choosing the largest superpage at each step per spec.md §4.C. flags
// must include at least one of {Read,Write,Exec}; Write implies Read (the
// callable layer upgrades Write to Read|Write before calling Map, per
// spec.md §4.C -- Map itself only validates the invariant, it does not
// silently fix it up). topEdit is true iff at least one entry in the
// top-level table was written.
func Map(p archcap.Profile, dm DirectMap, alloc PageAllocator, ctx *Ctx, vpn VPN, ppn PPN, pages uint64, flags archcap.PTEFlags) (topEdit bool, err Errno) {
	if !flags.Any(archcap.Read | archcap.Write | archcap.Exec) {
		return false, EINVAL
	}
	if flags.Any(archcap.Write) && !flags.Any(archcap.Read) {
		return false, EINVAL
	}
	if !RangeCanonical(p, vpn, pages) {
		return false, EINVAL
	}

	remaining := pages
	curVPN, curPPN := vpn, ppn
	for remaining > 0 {
		level := chooseMapLevel(p, curVPN, curPPN, remaining)
		addr, edited := descendAndLink(p, dm, alloc, ctx.RootPPN, curVPN, level)
		if edited {
			topEdit = true
		}
		writeAtAddr(p, dm, addr, p.EncodePTE(uint64(curPPN), flags, level > 0))

		span := archcap.SpanOf(p, level)
		curVPN += VPN(span)
		curPPN += PPN(span)
		remaining -= span
	}
	return topEdit, EOK
}

// unmapStep removes or shrinks exactly one page-table entry's worth of
// mapping starting at vpn, splitting a superpage that only partially
// overlaps [vpn, vpn+remaining) before zeroing the affected sub-entries,
// per spec.md §4.C. It returns how many pages were advanced (which may
// exceed remaining, when skipping over an absent intermediate entry) and
// whether the top-level table was written.
func unmapStep(p archcap.Profile, dm DirectMap, alloc PageAllocator, root PPN, vpn VPN, remaining uint64) (advanced uint64, topEdit bool) {
	topLevel := p.Levels() - 1
	level := topLevel
	curPPN := root
	for {
		idx := levelIndex(p, vpn, level)
		addr := pteByteAddr(p, curPPN, idx)
		frame := dm.Frame(curPPN)
		word := readWord(frame, idx)
		ppn, _, valid, leaf := p.DecodePTE(word)

		if !valid {
			// Nothing to unmap here: short-circuit, per spec.md §4.C. Only
			// advance to the end of this slot, not a full span from vpn --
			// vpn need not be slot-aligned, and overshooting would skip
			// past a mapping later in the same slot.
			span := archcap.SpanOf(p, level)
			return span - uint64(vpn)%span, topEdit
		}

		if leaf {
			span := archcap.SpanOf(p, level)
			fullyCovered := level == 0 || (uint64(vpn)%span == 0 && remaining >= span)
			if fullyCovered {
				writeWord(frame, idx, 0)
				if level == topLevel {
					topEdit = true
				}
				return span, topEdit
			}
			if !p.SupportsSuperpages() {
				corrupt("leaf PTE at non-zero level on an architecture without superpage support")
			}
			newPPN, ok := Split(p, dm, alloc, addr, word, level)
			if !ok {
				oom("splitting superpage to unmap a sub-range")
			}
			if level == topLevel {
				topEdit = true
			}
			curPPN = newPPN
			level--
			continue
		}

		if level == 0 {
			corrupt("non-leaf PTE at level 0")
		}
		curPPN = PPN(ppn)
		level--
	}
}

// Unmap removes mappings covering [vpn, vpn+pages), splitting any
// superpage that only partially overlaps the range first, per
// spec.md §4.C. Unmapping a range with no existing mapping is a no-op.
// topEdit is true iff at least one entry in the top-level table was
// written (including as a side effect of splitting a top-level superpage).
func Unmap(p archcap.Profile, dm DirectMap, alloc PageAllocator, ctx *Ctx, vpn VPN, pages uint64) (topEdit bool, err Errno) {
	if !RangeCanonical(p, vpn, pages) {
		return false, EINVAL
	}

	remaining := pages
	curVPN := vpn
	for remaining > 0 {
		advanced, edited := unmapStep(p, dm, alloc, ctx.RootPPN, curVPN, remaining)
		if edited {
			topEdit = true
		}
		if advanced > remaining {
			advanced = remaining
		}
		curVPN += VPN(advanced)
		remaining -= advanced
	}
	return topEdit, EOK
}
