package memprotect

import (
	"testing"

	"github.com/biscuit-os/memprotect/archcap"
)

func TestCreateContextMirrorsMasterUpperHalf(t *testing.T) {
	p := archcap.RV64Sv39
	h := newFakeHost(p.PageSize())
	reg, ok := NewRegistry(p, h, h)
	if !ok {
		t.Fatalf("NewRegistry failed")
	}

	upperVPN := VPN(p.UpperHalfStart())
	if _, err := Map(p, h, h, reg.Master(), upperVPN, PPN(0x1000), 1, archcap.Read|archcap.Write|archcap.Global); err != EOK {
		t.Fatalf("master map failed: %v", err)
	}

	c, err := reg.CreateContext()
	if err != EOK {
		t.Fatalf("CreateContext failed: %v", err)
	}
	if c.IsMaster() {
		t.Fatalf("CreateContext must never return the master")
	}

	res := Lookup(p, h, c.RootPPN, uint64(upperVPN)*p.PageSize())
	if !res.Present {
		t.Fatalf("new context should already mirror the master's upper half at creation time")
	}
}

func TestDestroyContextPanicsOnMaster(t *testing.T) {
	p := archcap.RV64Sv39
	h := newFakeHost(p.PageSize())
	reg, _ := NewRegistry(p, h, h)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic destroying the master context")
		}
	}()
	reg.DestroyContext(reg.Master())
}

func TestDestroyContextFreesUserHalfOnly(t *testing.T) {
	p := archcap.RV64Sv39
	h := newFakeHost(p.PageSize())
	reg, _ := NewRegistry(p, h, h)

	upperVPN := VPN(p.UpperHalfStart())
	if _, err := Map(p, h, h, reg.Master(), upperVPN, PPN(0x1000), 1, archcap.Read|archcap.Global); err != EOK {
		t.Fatalf("master map failed: %v", err)
	}

	c, err := reg.CreateContext()
	if err != EOK {
		t.Fatalf("CreateContext failed: %v", err)
	}

	span := archcap.SpanOf(p, 1)
	if _, err := Map(p, h, h, c, VPN(0), PPN(0x20000), span, archcap.Read|archcap.Write); err != EOK {
		t.Fatalf("user map failed: %v", err)
	}

	before := h.live()
	reg.DestroyContext(c)
	after := h.live()
	if after >= before {
		t.Fatalf("expected frames to be freed on destroy: before=%d after=%d", before, after)
	}

	// The master's kernel mapping must survive the destruction of c,
	// since the upper half is shared rather than copied-by-value frames.
	res := Lookup(p, h, reg.Master().RootPPN, uint64(upperVPN)*p.PageSize())
	if !res.Present {
		t.Fatalf("master mapping must survive destruction of a non-master context")
	}
}

func TestRegistryContextsSnapshot(t *testing.T) {
	p := archcap.RV64Sv39
	h := newFakeHost(p.PageSize())
	reg, _ := NewRegistry(p, h, h)

	c1, _ := reg.CreateContext()
	c2, _ := reg.CreateContext()

	reg.mu.Lock()
	list := reg.contexts()
	reg.mu.Unlock()

	if len(list) != 2 {
		t.Fatalf("expected 2 live contexts, got %d", len(list))
	}

	reg.DestroyContext(c1)

	reg.mu.Lock()
	list = reg.contexts()
	reg.mu.Unlock()
	if len(list) != 1 || list[0] != c2 {
		t.Fatalf("expected only c2 to remain after destroying c1")
	}
}
