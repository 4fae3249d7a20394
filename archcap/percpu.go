package archcap

import "golang.org/x/sys/cpu"

// MaxCPUs bounds the per-CPU slot arrays used by physhost's per-CPU free
// lists, mirroring the teacher's own
// runtime.MAXCPUS-sized percpu array in biscuit/src/mem/mem.go.
const MaxCPUs = 256

// PerCPUSlot wraps one per-CPU array element with a trailing cache-line pad,
// so adjacent CPUs' slots never false-share a cache line under concurrent
// access -- the same shape as the teacher's percpu [runtime.MAXCPUS]pcpuphys_t
// array, made explicit with golang.org/x/sys/cpu.CacheLinePad.
type PerCPUSlot[T any] struct {
	Value T
	_     cpu.CacheLinePad
}

// PerCPU is a fixed-size, cache-line-padded per-CPU array.
type PerCPU[T any] [MaxCPUs]PerCPUSlot[T]

// At returns a pointer to the slot owned by the given CPU index.
func (p *PerCPU[T]) At(cpuIdx int) *T {
	return &p[cpuIdx].Value
}
