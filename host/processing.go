// Package host models the parts of the image generation host that scripts
// plug into: the per-request processing record, the callback registry, the
// attention module registry and the sampling loop.
package host

import (
	"sort"

	"golang.org/x/exp/maps"
)

// Processing describes one generation request.
type Processing struct {
	Width     int
	Height    int
	Steps     int
	CFGScale  float32
	BatchSize int
	Seed      int64

	// ExtraGenerationParams is written into the image metadata.
	ExtraGenerationParams map[string]any

	// IncantCfgParams is shared state for guidance scripts. A nil map means
	// the host did not provide it.
	IncantCfgParams map[string]any

	fields map[string]any
}

func NewProcessing(width, height, steps int) *Processing {
	return &Processing{
		Width:                 width,
		Height:                height,
		Steps:                 steps,
		CFGScale:              3,
		BatchSize:             1,
		ExtraGenerationParams: make(map[string]any),
		IncantCfgParams:       make(map[string]any),
	}
}

// Set attaches a named field to the request. Parameter sweeps use this to
// override script arguments for one grid cell.
func (p *Processing) Set(field string, value any) {
	if p.fields == nil {
		p.fields = make(map[string]any)
	}

	p.fields[field] = value
}

func (p *Processing) Lookup(field string) (any, bool) {
	v, ok := p.fields[field]
	return v, ok
}

// Fields returns a copy of all fields set on the request.
func (p *Processing) Fields() map[string]any {
	return maps.Clone(p.fields)
}

// FieldNames returns the names of set fields in sorted order.
func (p *Processing) FieldNames() []string {
	names := maps.Keys(p.fields)
	sort.Strings(names)
	return names
}
