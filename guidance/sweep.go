package guidance

import (
	"fmt"
	"strings"

	"github.com/ollama/seg/host"
	"github.com/ollama/seg/host/xyz"
)

// activate turns guidance on for a request unless a value was already set.
func activate(p *host.Processing) {
	if _, ok := p.Lookup(FieldActive); !ok {
		p.Set(FieldActive, true)
	}
}

// ApplyField returns a sweep setter for field. Sweeping any guidance value
// activates guidance for the request.
func ApplyField(field string) xyz.ApplyFunc {
	return func(p *host.Processing, x any, _ []any) {
		activate(p)
		p.Set(field, x)
	}
}

// ApplyOverride is like ApplyField but sets the field before activating,
// so sweeping the active flag itself is honored. Boolean values arrive as
// "True"/"False" strings.
func ApplyOverride(field string, boolean bool) xyz.ApplyFunc {
	return func(p *host.Processing, x any, _ []any) {
		if boolean {
			x = strings.EqualFold(fmt.Sprint(x), "true")
		}
		p.Set(field, x)
		activate(p)
	}
}

// AxisOptions are the guidance axes offered to the parameter sweep grid.
func AxisOptions() []xyz.AxisOption {
	return []xyz.AxisOption{
		{Label: "[SEG] Active", Type: xyz.String, Apply: ApplyOverride(FieldActive, true), Choices: xyz.BooleanChoice(true)},
		{Label: "[SEG] SEG Blur Sigma", Type: xyz.Float, Apply: ApplyField(FieldBlurSigma)},
		{Label: "[SEG] SEG Start Step", Type: xyz.Int, Apply: ApplyField(FieldStartStep)},
		{Label: "[SEG] SEG End Step", Type: xyz.Int, Apply: ApplyField(FieldEndStep)},
	}
}
