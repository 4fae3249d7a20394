package memprotect

import "github.com/biscuit-os/memprotect/archcap"

// ISRFlags classifies the CPU's current trap context, mirroring the
// teacher's interrupt-context flag bits.
type ISRFlags uint8

const (
	// ISRKernel marks a trap taken from (or returning to) a kernel thread,
	// which shares the master context and is never swapped.
	ISRKernel ISRFlags = 1 << iota
	// ISRUseSP marks a trap whose saved frame uses the alternate stack
	// pointer convention; carried for parity with the collaborator's ISR
	// record but unused by Swapper itself.
	ISRUseSP
	// ISRNoExc marks a trap that must not re-enter the fault handler
	// (already-faulting path); carried for parity, unused by Swapper.
	ISRNoExc
)

// ISRContext is the collaborator-owned per-CPU trap record named in
// spec.md §6 ("current_isr_context() -> &ISRContext"). Per spec.md §9's
// ownership note, ISRContext holds only a transient, non-owning pointer
// to the target Ctx -- memprotect never allocates or frees one.
type ISRContext struct {
	Flags ISRFlags
	Ctx   *Ctx
}

// ISRContextProvider is the current_isr_context() collaborator contract:
// a per-CPU accessor for the trap record active on the calling CPU.
type ISRContextProvider interface {
	CurrentISRContext() *ISRContext
}

// ShootdownBroadcaster is the deferred cross-CPU TLB shootdown obligation
// named as an open question in spec.md §9 ("implementers should add an
// IPI-driven fence"). Swapper never performs shootdown itself -- it calls
// through this collaborator exactly the way the teacher registers its own
// cross-CPU callbacks (vm.Cpumap's registration idiom, archcap.SetFenceHook
// here), leaving the IPI mechanism to the platform layer.
type ShootdownBroadcaster interface {
	// Shootdown requests that every other CPU currently running under ctx
	// invalidate its TLB for ctx before returning. It does not block for
	// remote completion -- per spec.md §5, CPUs observe a shootdown on
	// their own next fence or context switch.
	Shootdown(ctx *Ctx)
}

// noopShootdown is installed by default so Swapper is usable in
// single-CPU tests and hosts with no registered broadcaster.
type noopShootdown struct{}

func (noopShootdown) Shootdown(*Ctx) {}

// Swapper installs address-space contexts onto the current CPU on
// trap-return, per spec.md §4.F. One Swapper exists per booted kernel;
// InstallRoot is injected at construction rather than hidden behind a
// second global hook table, since unlike archcap.Fence (shared process-
// wide, selected once by build tag) each Swapper instance may in
// principle be wired to a different simulated CPU in tests.
type Swapper struct {
	prof        archcap.Profile
	provider    ISRContextProvider
	shootdown   ShootdownBroadcaster
	installRoot func(ppn PPN)

	current *Ctx
}

// NewSwapper constructs a Swapper. installRoot writes ppn into the
// current CPU's paging CSR (spec.md §6's "Paging CSR"); it must not
// itself issue the fence -- SwapTo/SwapFromISR do that via prof.Fence
// after installRoot returns, matching spec.md §4.F's ordering
// ("reconfigures... then issues... fence").
func NewSwapper(prof archcap.Profile, provider ISRContextProvider, installRoot func(ppn PPN)) *Swapper {
	return &Swapper{
		prof:        prof,
		provider:    provider,
		shootdown:   noopShootdown{},
		installRoot: installRoot,
	}
}

// SetShootdownBroadcaster installs the cross-CPU shootdown collaborator.
// Until called, Shootdown is a no-op, matching archcap.SetFenceHook's
// default-no-op discipline.
func (s *Swapper) SetShootdownBroadcaster(b ShootdownBroadcaster) {
	if b == nil {
		b = noopShootdown{}
	}
	s.shootdown = b
}

// SwapTo reconfigures the CPU's address-translation register to point at
// ctx.RootPPN and issues the architecture's memory-and-translation fence,
// per spec.md §4.F. It requests a cross-CPU shootdown for the context
// being switched away from, deferring actual IPI delivery to the
// registered ShootdownBroadcaster per spec.md §9's open question.
func (s *Swapper) SwapTo(ctx *Ctx) {
	prev := s.current
	s.installRoot(ctx.RootPPN)
	s.prof.Fence()
	s.current = ctx
	if prev != nil && prev != ctx {
		s.shootdown.Shootdown(prev)
	}
}

// SwapFromISR reads the current CPU's ISR context and, if it belongs to a
// user thread (ISRKernel not set) with a non-nil target Ctx, swaps to
// that context; kernel threads are never swapped, since they share the
// master context, per spec.md §4.F. A user ISR context with no target Ctx
// is the "missing MPU context" FATAL condition named in spec.md §7.
func (s *Swapper) SwapFromISR() {
	isr := s.provider.CurrentISRContext()
	if isr.Flags&ISRKernel != 0 {
		return
	}
	if isr.Ctx == nil {
		panic("memprotect: missing MPU context for user thread on swap")
	}
	s.SwapTo(isr.Ctx)
}
