package memprotect

import "github.com/biscuit-os/memprotect/archcap"

// FrameStats summarizes the page-table (non-leaf) frames reachable from a
// context's root, broken down by level. Leaf frames (user pages) are
// never counted here -- they are not owned by the Ctx, per spec.md §3.
type FrameStats struct {
	PerLevel []int
	Total    int
}

// CountFrames walks every non-leaf frame reachable from root and tallies
// it by level, for the diag package's frame-accounting tools.
func CountFrames(p archcap.Profile, dm DirectMap, root PPN) FrameStats {
	stats := FrameStats{PerLevel: make([]int, p.Levels())}
	var walk func(ppn PPN, level int)
	walk = func(ppn PPN, level int) {
		stats.PerLevel[level]++
		stats.Total++
		if level == 0 {
			return
		}
		frame := dm.Frame(ppn)
		entries := archcap.EntriesPerTable(p)
		for i := uint64(0); i < entries; i++ {
			word := readWord(frame, i)
			childPPN, _, valid, leaf := p.DecodePTE(word)
			if !valid || leaf {
				continue
			}
			walk(PPN(childPPN), level-1)
		}
	}
	walk(root, p.Levels()-1)
	return stats
}
