package pmp

import "github.com/biscuit-os/memprotect/util"

// Region is one entry of the process memory map's PMP-relevant
// projection, spec.md §3: "an ordered list of (paddr, size, W, X)
// regions, all aligned to the hardware's PMP granularity."
type Region struct {
	PAddr uint64
	Size  uint64
	W     bool
	X     bool
}

// Compile implements spec.md §4.G's encoding policy, evaluated in order
// for each region: a non-abutting 4-byte region gets NA4; a self-aligned
// power-of-two region of at least 8 bytes whose base address differs from
// its size gets NAPOT (so {PAddr: 8, Size: 8} is not NAPOT); everything else
// gets a TOR descriptor (preceded by a disabled base descriptor when it
// does not abut the previous region's end). R is unconditionally set.
// Compile returns ok=false, leaving the caller's previous Ctx untouched,
// the moment a region would need more descriptor slots than count
// provides (spec.md §4.G/§7's Out-of-PMP-slots failure).
func Compile(regions []Region, count int) (*Ctx, bool) {
	descs := make([]Descriptor, 0, count)
	hasPrev := false
	var prevEnd uint64

	for _, r := range regions {
		abuts := hasPrev && prevEnd == r.PAddr

		switch {
		case !abuts && r.Size == 4:
			if len(descs) >= count {
				return nil, false
			}
			descs = append(descs, Descriptor{
				Cfg:  Cfg{R: true, W: r.W, X: r.X, Mode: NA4},
				Addr: r.PAddr / 4,
			})

		case util.IsPow2(r.Size) && r.Size >= 8 && r.PAddr%r.Size == 0 && r.PAddr != r.Size:
			if len(descs) >= count {
				return nil, false
			}
			addr := (r.PAddr | (r.Size/2 - 1)) >> 2
			descs = append(descs, Descriptor{
				Cfg:  Cfg{R: true, W: r.W, X: r.X, Mode: NAPOT},
				Addr: addr,
			})

		default:
			need := 1
			if !abuts {
				need = 2
			}
			if len(descs)+need > count {
				return nil, false
			}
			if !abuts {
				descs = append(descs, Descriptor{Cfg: Cfg{Mode: Off}, Addr: r.PAddr / 4})
			}
			descs = append(descs, Descriptor{
				Cfg:  Cfg{R: true, W: r.W, X: r.X, Mode: TOR},
				Addr: (r.PAddr + r.Size) / 4,
			})
		}

		prevEnd = r.PAddr + r.Size
		hasPrev = true
	}

	full := make([]Descriptor, count)
	copy(full, descs)
	return &Ctx{Descriptors: full}, true
}
