//go:build !amd64

package diag

import "fmt"

// Disassemble has no instruction table on this architecture --
// golang.org/x/arch ships no RISC-V decoder (spec.md's Non-goals note).
// It returns a hex dump and an explicit limitation message rather than
// silently producing nothing.
func Disassemble(code []byte, pc uint64) (string, error) {
	return fmt.Sprintf("%#x: % x (no disassembler available for this architecture)", pc, code), nil
}

// DemangleSymbol is identity on architectures without the amd64
// disassembler, since there is no decoded call site to annotate.
func DemangleSymbol(mangled string) string {
	return mangled
}
