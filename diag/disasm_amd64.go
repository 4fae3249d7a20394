//go:build amd64

package diag

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
	"golang.org/x/arch/x86/x86asm"
)

// Disassemble decodes the single instruction at code[0] (loaded at
// virtual address pc) and renders it in GNU syntax prefixed by pc. It
// resolves no symbols and demangles nothing; DemangleSymbol does that
// separately for a name the caller already has.
func Disassemble(code []byte, pc uint64) (string, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "", fmt.Errorf("diag: decode at %#x: %w", pc, err)
	}
	return fmt.Sprintf("%#x: %s", pc, x86asm.GNUSyntax(inst, pc, nil)), nil
}

// DemangleSymbol demangles a foreign (C/C++) symbol name resolved from an
// ELF symbol table alongside a disassembly, for crash reports that
// straddle a foreign-ABI boundary (firmware stubs, SBI calls). Names that
// are not mangled C/C++/Rust symbols are returned unchanged.
func DemangleSymbol(mangled string) string {
	return demangle.Filter(mangled)
}
