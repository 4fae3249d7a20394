package memprotect

import (
	"sync"

	"github.com/biscuit-os/memprotect/archcap"
)

// Registry owns the master context and the doubly linked list of all live
// non-master contexts, per spec.md §4.E. Mutation of the list occurs only
// under the registry lock, matching the teacher's own single-lock-per-
// registry discipline (spec.md §5).
type Registry struct {
	prof  archcap.Profile
	dm    DirectMap
	alloc PageAllocator

	mu     sync.Mutex
	master *Ctx
	head   *Ctx // sentinel-free doubly linked list of non-master contexts
}

// NewRegistry allocates the master context's root table (left otherwise
// empty -- the caller installs kernel-half mappings via Map before any
// process context is created) and returns the registry owning it.
func NewRegistry(prof archcap.Profile, dm DirectMap, alloc PageAllocator) (*Registry, bool) {
	rootPPN, ok := alloc.AllocPage(0, true)
	if !ok {
		return nil, false
	}
	return &Registry{
		prof:   prof,
		dm:     dm,
		alloc:  alloc,
		master: &Ctx{RootPPN: rootPPN, isMaster: true},
	}, true
}

// Master returns the distinguished master context, created once at boot
// and never destroyed.
func (r *Registry) Master() *Ctx { return r.master }

func (r *Registry) link(c *Ctx) {
	c.next = r.head
	c.prev = nil
	if r.head != nil {
		r.head.prev = c
	}
	r.head = c
}

func (r *Registry) unlink(c *Ctx) {
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		r.head = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	}
	c.next, c.prev = nil, nil
}

// contexts returns a snapshot slice of the live non-master contexts. It
// must be called with r.mu held.
func (r *Registry) contexts() []*Ctx {
	var out []*Ctx
	for c := r.head; c != nil; c = c.next {
		out = append(out, c)
	}
	return out
}

// Contexts returns a snapshot of every live non-master context, for
// collaborators (diag's frame-profile/dump tools) that need to iterate
// the registry without reaching into its lock themselves.
func (r *Registry) Contexts() []*Ctx {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contexts()
}

// CreateContext allocates a root table, copies the master's upper-half
// top-level entries into it (so the new context's kernel half is
// byte-identical to the master's at the instant of creation, per
// spec.md §4.E), and links it into the registry.
func (r *Registry) CreateContext() (*Ctx, Errno) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rootPPN, ok := r.alloc.AllocPage(0, true)
	if !ok {
		return nil, EINVAL
	}

	topLevel := r.prof.Levels() - 1
	startIdx := levelIndex(r.prof, VPN(r.prof.UpperHalfStart()), topLevel)
	entries := archcap.EntriesPerTable(r.prof)

	masterFrame := r.dm.Frame(r.master.RootPPN)
	newFrame := r.dm.Frame(rootPPN)
	for i := startIdx; i < entries; i++ {
		writeWord(newFrame, i, readWord(masterFrame, i))
	}

	c := &Ctx{RootPPN: rootPPN}
	r.link(c)
	return c, EOK
}

// DestroyContext unlinks ctx and frees every non-leaf frame it owns
// exclusively. Per spec.md §3, every upper-half top-level entry points at
// a frame owned by the master (shared via GlobalBroadcast), so only the
// lower (user) half of the top-level table is walked and freed; the
// master's subtrees are never touched. Leaf (user page) frames are never
// freed here -- they belong to the process memory map.
func (r *Registry) DestroyContext(ctx *Ctx) {
	if ctx.isMaster {
		panic("memprotect: attempted to destroy the master context")
	}

	r.mu.Lock()
	r.unlink(ctx)
	r.mu.Unlock()

	topLevel := r.prof.Levels() - 1
	startIdx := levelIndex(r.prof, VPN(r.prof.UpperHalfStart()), topLevel)
	frame := r.dm.Frame(ctx.RootPPN)
	for i := uint64(0); i < startIdx; i++ {
		word := readWord(frame, i)
		ppn, _, valid, leaf := r.prof.DecodePTE(word)
		if !valid || leaf {
			continue
		}
		freeNonLeafDescendants(r.prof, r.dm, r.alloc, PPN(ppn), topLevel-1)
		r.alloc.FreePage(PPN(ppn))
	}
	r.alloc.FreePage(ctx.RootPPN)
}

// freeNonLeafDescendants walks every entry of tablePPN's table, recursing
// into and then freeing every valid non-leaf child, but never touching
// leaf entries (user pages, not owned by the Ctx tree per spec.md §3).
func freeNonLeafDescendants(p archcap.Profile, dm DirectMap, alloc PageAllocator, tablePPN PPN, level int) {
	if level < 0 {
		return
	}
	frame := dm.Frame(tablePPN)
	entries := archcap.EntriesPerTable(p)
	for i := uint64(0); i < entries; i++ {
		word := readWord(frame, i)
		ppn, _, valid, leaf := p.DecodePTE(word)
		if !valid || leaf {
			continue
		}
		childPPN := PPN(ppn)
		freeNonLeafDescendants(p, dm, alloc, childPPN, level-1)
		alloc.FreePage(childPPN)
	}
}
