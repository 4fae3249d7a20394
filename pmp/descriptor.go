// Package pmp implements the no-MMU physical-memory-protection variant,
// spec.md §4.G-H: compiling a process's linear region list into a bounded
// set of hardware PMP descriptors, and writing those descriptors into the
// PMP control-and-status registers on context switch.
package pmp

// MatchMode is a PMP descriptor's address-matching mode, spec.md §3's
// PMP descriptor sum type, encoded with the same numeric values as the
// RISC-V privileged architecture's pmpcfg "A" field (OFF=0, TOR=1,
// NA4=2, NAPOT=3) -- the only hardware PMP encoding in the example
// corpus, reused here rather than inventing an abstract numbering.
type MatchMode uint8

const (
	Off MatchMode = iota
	TOR
	NA4
	NAPOT
)

func (m MatchMode) String() string {
	switch m {
	case Off:
		return "OFF"
	case TOR:
		return "TOR"
	case NA4:
		return "NA4"
	case NAPOT:
		return "NAPOT"
	default:
		return "unknown"
	}
}

// Cfg is one PMP descriptor's config byte, spec.md §3: "cfg carries
// {R, W, X, match_mode, lock=false}".
type Cfg struct {
	R, W, X bool
	Mode    MatchMode
	Lock    bool
}

const (
	cfgR    = uint8(1) << 0
	cfgW    = uint8(1) << 1
	cfgX    = uint8(1) << 2
	cfgAMin = 3 // bits 3-4 carry the match mode
	cfgL    = uint8(1) << 7
)

// Encode packs Cfg into the single byte a real pmpcfg register field
// holds.
func (c Cfg) Encode() uint8 {
	var b uint8
	if c.R {
		b |= cfgR
	}
	if c.W {
		b |= cfgW
	}
	if c.X {
		b |= cfgX
	}
	b |= uint8(c.Mode) << cfgAMin
	if c.Lock {
		b |= cfgL
	}
	return b
}

// DecodeCfg unpacks a raw pmpcfg byte back into a Cfg, the inverse of
// Cfg.Encode.
func DecodeCfg(b uint8) Cfg {
	return Cfg{
		R:    b&cfgR != 0,
		W:    b&cfgW != 0,
		X:    b&cfgX != 0,
		Mode: MatchMode((b >> cfgAMin) & 0x3),
		Lock: b&cfgL != 0,
	}
}

// Descriptor is one PMP region descriptor, spec.md §3: "a pair (cfg,
// addr) ... addr carries the encoded base/length."
type Descriptor struct {
	Cfg  Cfg
	Addr uint64
}

// Ctx is a compiled PMP context: a fixed-size descriptor array sized at
// compile time (16 or 64 per spec.md §6's PMP_COUNT).
type Ctx struct {
	Descriptors []Descriptor
}

// Count returns the compile-time-fixed number of descriptor slots.
func (c *Ctx) Count() int { return len(c.Descriptors) }
