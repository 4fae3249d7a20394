package memprotect

import (
	"testing"

	"github.com/biscuit-os/memprotect/archcap"
)

type fakeISRProvider struct{ cur *ISRContext }

func (f *fakeISRProvider) CurrentISRContext() *ISRContext { return f.cur }

type recordingShootdown struct{ targets []*Ctx }

func (r *recordingShootdown) Shootdown(ctx *Ctx) { r.targets = append(r.targets, ctx) }

func TestSwapToInstallsRootAndFences(t *testing.T) {
	p := archcap.RV64Sv39
	var installed PPN
	var fenced bool
	archcap.SetFenceHook("riscv64", func() { fenced = true })
	defer archcap.SetFenceHook("riscv64", func() {})

	s := NewSwapper(p, &fakeISRProvider{}, func(ppn PPN) { installed = ppn })
	ctx := &Ctx{RootPPN: PPN(0x42)}
	s.SwapTo(ctx)

	if installed != PPN(0x42) {
		t.Fatalf("installRoot got %#x, want 0x42", installed)
	}
	if !fenced {
		t.Fatalf("expected Fence to be called")
	}
}

func TestSwapFromISRSkipsKernelThreads(t *testing.T) {
	p := archcap.RV64Sv39
	var installed bool
	provider := &fakeISRProvider{cur: &ISRContext{Flags: ISRKernel}}
	s := NewSwapper(p, provider, func(PPN) { installed = true })

	s.SwapFromISR()
	if installed {
		t.Fatalf("kernel-thread ISR context must never be swapped")
	}
}

func TestSwapFromISRSwapsUserThreads(t *testing.T) {
	p := archcap.RV64Sv39
	ctx := &Ctx{RootPPN: PPN(7)}
	provider := &fakeISRProvider{cur: &ISRContext{Ctx: ctx}}
	var installed PPN
	s := NewSwapper(p, provider, func(ppn PPN) { installed = ppn })

	s.SwapFromISR()
	if installed != PPN(7) {
		t.Fatalf("expected swap to install ppn 7, got %#x", installed)
	}
}

func TestSwapFromISRPanicsOnMissingContext(t *testing.T) {
	p := archcap.RV64Sv39
	provider := &fakeISRProvider{cur: &ISRContext{}}
	s := NewSwapper(p, provider, func(PPN) {})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for missing MPU context on a user thread")
		}
	}()
	s.SwapFromISR()
}

func TestSwapToRequestsShootdownOfPreviousContext(t *testing.T) {
	p := archcap.RV64Sv39
	s := NewSwapper(p, &fakeISRProvider{}, func(PPN) {})
	rec := &recordingShootdown{}
	s.SetShootdownBroadcaster(rec)

	a := &Ctx{RootPPN: PPN(1)}
	b := &Ctx{RootPPN: PPN(2)}
	s.SwapTo(a)
	s.SwapTo(b)

	if len(rec.targets) != 1 || rec.targets[0] != a {
		t.Fatalf("expected exactly one shootdown of the previous context, got %v", rec.targets)
	}
}
