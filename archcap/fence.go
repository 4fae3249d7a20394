package archcap

// Fence primitives are architecture-specific CPU instructions (INVLPG/
// MOV-to-CR3 on amd64, SFENCE.VMA on RISC-V) that this freestanding-agnostic
// package cannot issue directly without a hosting kernel runtime. Following
// the teacher's own registration pattern (vm.Cpumap in biscuit/src/vm/as.go,
// which lets the kernel runtime supply the CPU-id-to-APIC-id mapping used for
// TLB shootdown), each architecture's actual fence instruction is supplied by
// the host via SetFenceHook. Until a hook is installed, Fence is a no-op,
// which is what the unit tests run against unless they install a hook of
// their own.
var (
	amd64FenceHook   func() = func() {}
	riscv64FenceHook func() = func() {}
)

// SetFenceHook installs the real memory-and-translation fence instruction
// for the named architecture ("amd64" or "riscv64"). It panics on an unknown
// name so a typo is caught at boot rather than silently never fencing.
func SetFenceHook(arch string, fn func()) {
	if fn == nil {
		fn = func() {}
	}
	switch arch {
	case "amd64":
		amd64FenceHook = fn
	case "riscv64":
		riscv64FenceHook = fn
	default:
		panic("archcap: unknown architecture " + arch)
	}
}

func fenceAMD64() {
	amd64FenceHook()
}

func fenceRISCV64() {
	riscv64FenceHook()
}
