package memprotect

import "github.com/biscuit-os/memprotect/archcap"

// LookupResult is the Virt2Phys result named in spec.md §4.I.
type LookupResult struct {
	Flags         archcap.PTEFlags
	Paddr         uint64
	PageBaseVAddr uint64
	PageBasePAddr uint64
	PageSize      uint64
	Present       bool // false means ABSENT: vaddr is unmapped or non-canonical
}

// Lookup is the observe-only Virt2Phys operation, spec.md §4.I. It reuses
// Walk and is therefore lock-free over a single context, per spec.md §5:
// it may return stale data racing a concurrent unmap but never corrupt
// data, since every read it performs is a single aligned word load.
func Lookup(p archcap.Profile, dm DirectMap, root PPN, vaddr uint64) LookupResult {
	pageSize := p.PageSize()
	vpn := VPN(vaddr / pageSize)

	res := Walk(p, dm, root, vpn)
	if !res.VAddrValid || !res.Found {
		return LookupResult{}
	}

	ppn, flags, _, _ := p.DecodePTE(res.PTE)
	pageSpan := archcap.SpanOf(p, res.Level) * pageSize
	pageBaseVAddr := uint64(vpn) / archcap.SpanOf(p, res.Level) * archcap.SpanOf(p, res.Level) * pageSize
	pageBasePAddr := ppn * pageSize
	offset := vaddr % pageSpan

	return LookupResult{
		Flags:         flags,
		Paddr:         pageBasePAddr + offset,
		PageBaseVAddr: pageBaseVAddr,
		PageBasePAddr: pageBasePAddr,
		PageSize:      pageSpan,
		Present:       true,
	}
}
