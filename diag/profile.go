package diag

import (
	"fmt"

	"github.com/google/pprof/profile"

	"github.com/biscuit-os/memprotect/archcap"
	"github.com/biscuit-os/memprotect/memprotect"
)

// FrameProfile builds a pprof-format profile sampling page-table-frame
// ownership per live Ctx (master plus every registered context), for
// `go tool pprof` visualization of paging memory pressure.
func FrameProfile(p archcap.Profile, dm memprotect.DirectMap, reg *memprotect.Registry) (*profile.Profile, error) {
	valueType := &profile.ValueType{Type: "frames", Unit: "count"}
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{valueType},
		PeriodType: valueType,
		Period:     1,
	}

	contexts := append([]*memprotect.Ctx{reg.Master()}, reg.Contexts()...)
	nextID := uint64(1)

	for i, ctx := range contexts {
		label := fmt.Sprintf("ctx-%d", i)
		if ctx.IsMaster() {
			label = "master"
		}

		fn := &profile.Function{ID: nextID, Name: label}
		nextID++
		loc := &profile.Location{
			ID:      nextID,
			Address: uint64(ctx.RootPPN) * p.PageSize(),
			Line:    []profile.Line{{Function: fn, Line: 0}},
		}
		nextID++

		stats := memprotect.CountFrames(p, dm, ctx.RootPPN)
		prof.Function = append(prof.Function, fn)
		prof.Location = append(prof.Location, loc)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(stats.Total)},
			Label:    map[string][]string{"ctx": {label}},
		})
	}

	if err := prof.CheckValid(); err != nil {
		return nil, fmt.Errorf("diag: built an invalid pprof profile: %w", err)
	}
	return prof, nil
}
