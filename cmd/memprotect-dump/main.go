// Command memprotect-dump wires the diag package to stdout: it builds a
// small demonstration registry backed by physhost.FrameTable, installs a
// handful of mappings, and prints the resulting frame-count table. With
// -pprof it additionally writes a pprof-format frame-usage profile,
// consumable by `go tool pprof`. This is the closest SPEC_FULL component
// to the teacher kernel's own free-standing build tools: a tiny,
// single-purpose command wired to the core.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/biscuit-os/memprotect/archcap"
	"github.com/biscuit-os/memprotect/diag"
	"github.com/biscuit-os/memprotect/memprotect"
	"github.com/biscuit-os/memprotect/physhost"
)

func profileForHost() archcap.Profile {
	if runtime.GOARCH == "arm64" || runtime.GOARCH == "riscv64" {
		return archcap.RV64Sv39
	}
	return archcap.AMD64
}

func main() {
	pprofOut := flag.String("pprof", "", "write a pprof-format frame-usage profile to this path")
	flag.Parse()

	prof := profileForHost()
	ft := physhost.NewFrameTable(1<<16, prof.PageSize(), memprotect.PPN(1), 0.25, nil)

	reg, ok := memprotect.NewRegistry(prof, ft, ft)
	if !ok {
		fmt.Fprintln(os.Stderr, "memprotect-dump: failed to allocate the master context")
		os.Exit(1)
	}

	kernelVPN := memprotect.VPN(prof.UpperHalfStart())
	if _, err := memprotect.Map(prof, ft, ft, reg.Master(), kernelVPN, memprotect.PPN(0), 512, archcap.Read|archcap.Write|archcap.Global); err != memprotect.EOK {
		fmt.Fprintf(os.Stderr, "memprotect-dump: mapping kernel half: %v\n", err)
		os.Exit(1)
	}

	proc, errno := reg.CreateContext()
	if errno != memprotect.EOK {
		fmt.Fprintf(os.Stderr, "memprotect-dump: creating demo context: %v\n", errno)
		os.Exit(1)
	}
	if _, err := memprotect.Map(prof, ft, ft, proc, memprotect.VPN(0x1000), memprotect.PPN(0x9000), 4, archcap.Read|archcap.Write|archcap.User); err != memprotect.EOK {
		fmt.Fprintf(os.Stderr, "memprotect-dump: mapping demo context: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(diag.Dump(prof, ft, reg.Master()))
	fmt.Print(diag.Dump(prof, ft, proc))

	if *pprofOut == "" {
		return
	}
	profData, err := diag.FrameProfile(prof, ft, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memprotect-dump: building pprof profile: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(*pprofOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memprotect-dump: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := profData.Write(f); err != nil {
		fmt.Fprintf(os.Stderr, "memprotect-dump: writing pprof profile: %v\n", err)
		os.Exit(1)
	}
}
