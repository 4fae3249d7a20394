package memprotect

import (
	"testing"

	"github.com/biscuit-os/memprotect/archcap"
)

func TestCountFramesCountsOnlyTableFrames(t *testing.T) {
	p := archcap.RV64Sv39
	h := newFakeHost(p.PageSize())
	root, _ := h.AllocPage(0, true)
	ctx := &Ctx{RootPPN: root}

	if _, err := Map(p, h, h, ctx, VPN(0x1000), PPN(0x80000), 1, archcap.Read); err != EOK {
		t.Fatalf("map failed: %v", err)
	}

	stats := CountFrames(p, h, root)
	// A single base-page mapping in an empty 3-level tree requires the
	// root plus two intermediate tables (levels 1 and 0): 3 table frames.
	// The mapped leaf frame itself is not counted.
	if stats.Total != 3 {
		t.Fatalf("expected exactly 3 table frames, got %d (%v)", stats.Total, stats.PerLevel)
	}
	if stats.PerLevel[p.Levels()-1] != 1 {
		t.Fatalf("expected exactly 1 root frame at the top level, got %d", stats.PerLevel[p.Levels()-1])
	}
}
