package memprotect

import (
	"golang.org/x/sync/errgroup"

	"github.com/biscuit-os/memprotect/archcap"
)

// Broadcast re-establishes spec.md §4.D's invariant: for every non-master
// context C and every index i in the upper half of the top-level table,
// top_table(C)[i] == top_table(master)[i]. It must be called after any
// map/unmap on the master context that returned topEdit=true and whose
// flags included Global, per spec.md §4.D's contract.
//
// Only indices valid in the master are copied; an index invalid in the
// master but still valid in some non-master context is left untouched.
// This is not a bug: it is spec.md §4.D's documented behavior, carried
// over from the open question in spec.md §9 ("GlobalBroadcast does not
// currently clear PTEs that became invalid in the master but remain valid
// in some non-master context") -- the present spec resolves that question
// by specifying this exact, narrower contract rather than inventing a
// clearing pass the source never had.
//
// The per-context copy is fanned out with golang.org/x/sync/errgroup so a
// registry with many live contexts does not serialize behind one slow
// Frame() call; Broadcast itself never blocks past that fan-out (spec.md
// §5: "do not block and are callable from interrupt-disabled regions").
func Broadcast(p archcap.Profile, dm DirectMap, reg *Registry) error {
	topLevel := p.Levels() - 1
	entries := archcap.EntriesPerTable(p)
	startIdx := levelIndex(p, VPN(p.UpperHalfStart()), topLevel)

	reg.mu.Lock()
	contexts := reg.contexts()
	masterFrame := dm.Frame(reg.master.RootPPN)
	reg.mu.Unlock()

	var g errgroup.Group
	for _, c := range contexts {
		c := c
		g.Go(func() error {
			frame := dm.Frame(c.RootPPN)
			for i := startIdx; i < entries; i++ {
				word := readWord(masterFrame, i)
				if _, _, valid, _ := p.DecodePTE(word); !valid {
					continue
				}
				writeWord(frame, i, word)
			}
			return nil
		})
	}
	return g.Wait()
}
