package memprotect

import (
	"testing"

	"github.com/biscuit-os/memprotect/archcap"
)

func upperHalfEqual(t *testing.T, p archcap.Profile, dm DirectMap, a, b PPN) bool {
	t.Helper()
	topLevel := p.Levels() - 1
	startIdx := levelIndex(p, VPN(p.UpperHalfStart()), topLevel)
	entries := archcap.EntriesPerTable(p)
	fa, fb := dm.Frame(a), dm.Frame(b)
	for i := startIdx; i < entries; i++ {
		wa, wb := readWord(fa, i), readWord(fb, i)
		_, _, validA, _ := p.DecodePTE(wa)
		if !validA {
			continue
		}
		if wa != wb {
			return false
		}
	}
	return true
}

// TestBroadcast is testable property 6 / scenario S4 from spec.md §8: after
// two master-half maps, every live context's upper half matches master's.
func TestBroadcast(t *testing.T) {
	p := archcap.RV64Sv39
	h := newFakeHost(p.PageSize())
	reg, ok := NewRegistry(p, h, h)
	if !ok {
		t.Fatalf("NewRegistry failed")
	}

	c1, _ := reg.CreateContext()
	c2, _ := reg.CreateContext()

	base := VPN(p.UpperHalfStart())
	span := archcap.SpanOf(p, 1)

	topEdit, err := Map(p, h, h, reg.Master(), base, PPN(0x1000), span, archcap.Read|archcap.Write|archcap.Global)
	if err != EOK {
		t.Fatalf("first master map failed: %v", err)
	}
	if topEdit && archcap.IsKernelHalf(p, uint64(base)) {
		if err := Broadcast(p, h, reg); err != nil {
			t.Fatalf("broadcast failed: %v", err)
		}
	}

	topEdit, err = Map(p, h, h, reg.Master(), base+VPN(span), PPN(0x5000), span, archcap.Read|archcap.Global)
	if err != EOK {
		t.Fatalf("second master map failed: %v", err)
	}
	if topEdit {
		if err := Broadcast(p, h, reg); err != nil {
			t.Fatalf("broadcast failed: %v", err)
		}
	}

	for _, c := range []*Ctx{c1, c2} {
		if !upperHalfEqual(t, p, h, reg.Master().RootPPN, c.RootPPN) {
			t.Fatalf("upper half of context diverged from master after broadcast")
		}
	}
}

func TestBroadcastLeavesIndicesInvalidInMasterUntouched(t *testing.T) {
	p := archcap.RV64Sv39
	h := newFakeHost(p.PageSize())
	reg, _ := NewRegistry(p, h, h)

	base := VPN(p.UpperHalfStart())
	span := archcap.SpanOf(p, 1)

	if _, err := Map(p, h, h, reg.Master(), base, PPN(0x1000), span, archcap.Read|archcap.Global); err != EOK {
		t.Fatalf("master map failed: %v", err)
	}
	if err := Broadcast(p, h, reg); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	c, _ := reg.CreateContext()

	topLevel := p.Levels() - 1
	idx := levelIndex(p, base, topLevel)
	frame := h.Frame(c.RootPPN)
	stray := p.EncodePTE(0x9999, archcap.Read, false)
	writeWord(frame, idx+1, stray)

	if _, err := Unmap(p, h, h, reg.Master(), base, span); err != EOK {
		t.Fatalf("master unmap failed: %v", err)
	}
	if err := Broadcast(p, h, reg); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	// Per spec.md §4.D, an index invalid in the master is left untouched by
	// Broadcast even though it diverges from the master's (now-invalid) entry.
	word := readWord(h.Frame(c.RootPPN), idx+1)
	if word != stray {
		t.Fatalf("broadcast must not clear an index that is invalid in the master")
	}
}
