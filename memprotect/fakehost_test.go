package memprotect

import "sync"

// fakeHost is a minimal PageAllocator+DirectMap double for memprotect's own
// tests, standing in for physhost.FrameTable the way biscuit's own vm tests
// stand up a small in-memory Physmem_t fixture rather than real RAM.
type fakeHost struct {
	mu     sync.Mutex
	frames map[PPN][]byte
	next   PPN
	size   uint64
}

func newFakeHost(pageSize uint64) *fakeHost {
	return &fakeHost{frames: make(map[PPN][]byte), next: 1, size: pageSize}
}

func (h *fakeHost) AllocPage(order uint, zero bool) (PPN, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ppn := h.next
	h.next += PPN(uint64(1) << order)
	h.frames[ppn] = make([]byte, h.size)
	return ppn, true
}

func (h *fakeHost) FreePage(ppn PPN) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.frames, ppn)
}

func (h *fakeHost) Frame(ppn PPN) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.frames[ppn]
	if !ok {
		f = make([]byte, h.size)
		h.frames[ppn] = f
	}
	return f
}

func (h *fakeHost) live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}
