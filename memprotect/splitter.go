package memprotect

import "github.com/biscuit-os/memprotect/archcap"

// Split breaks the leaf superpage PTE at pteAddr (currently holding word
// pte, at the given level) into a fresh table of next-lower-level leaf
// PTEs covering the same physical range with the same flags, then
// atomically overwrites the original PTE with a non-leaf pointer to the
// new table, per spec.md §4.B. It returns the new table's PPN, or
// ok=false if the allocator is out of memory -- callers in the boot-
// critical Mapper path turn that into a FATAL halt per spec.md §4.C/§7;
// Split itself only reports failure.
//
// Split panics if called on an architecture without superpage support or
// on a PTE that is not in fact a valid leaf: both indicate the page table
// was corrupted by something else, per spec.md §4.B.
func Split(p archcap.Profile, dm DirectMap, alloc PageAllocator, pteAddr uint64, pte uint64, level int) (PPN, bool) {
	if level == 0 {
		corrupt("split requested at level 0, which has no sub-level to split into")
	}
	if !p.SupportsSuperpages() {
		corrupt("split requested on an architecture without superpage support")
	}
	basePPN, flags, valid, leaf := p.DecodePTE(pte)
	if !valid || !leaf {
		corrupt("split requested on a PTE that is not a valid leaf")
	}

	newTablePPN, ok := alloc.AllocPage(0, false)
	if !ok {
		return 0, false
	}

	entries := archcap.EntriesPerTable(p)
	subSpan := archcap.SpanOf(p, level-1)
	subIsSuperpage := level-1 > 0
	frame := dm.Frame(newTablePPN)
	for i := uint64(0); i < entries; i++ {
		subPPN := basePPN + i*subSpan
		word := p.EncodePTE(subPPN, flags, subIsSuperpage)
		writeWord(frame, i, word)
	}

	tableWord := p.EncodePTE(uint64(newTablePPN), 0, false)
	writeAtAddr(p, dm, pteAddr, tableWord)

	return newTablePPN, true
}

// writeAtAddr writes word to the PTE physical byte address addr, which
// must have been produced by this package (pteByteAddr/Walk's PTEAddr).
func writeAtAddr(p archcap.Profile, dm DirectMap, addr uint64, word uint64) {
	pageSize := p.PageSize()
	ppn := PPN(addr / pageSize)
	off := addr % pageSize
	frame := dm.Frame(ppn)
	idx := off / 8
	writeWord(frame, idx, word)
}
