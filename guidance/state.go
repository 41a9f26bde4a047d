package guidance

import (
	"github.com/google/uuid"

	"github.com/ollama/seg/host"
	"github.com/ollama/seg/logutil"
)

// State is the guidance configuration of one generation request.
type State struct {
	ID uuid.UUID

	Active        bool
	BlurSigma     float64
	BlurThreshold float64
	StartStep     int
	EndStep       int

	// Modules is fixed once the request is set up.
	Modules []host.NamedModule
}

func NewState(p Params, blurThreshold float64) *State {
	return &State{
		ID:            uuid.New(),
		Active:        p.Active,
		BlurSigma:     p.BlurSigma,
		BlurThreshold: blurThreshold,
		StartStep:     p.StartStep,
		EndStep:       p.EndStep,
	}
}

// InInterval reports whether step lies in [StartStep, EndStep].
func (s *State) InInterval(step int) bool {
	return s.StartStep <= step && step <= s.EndStep
}

// Gate enables or disables every installed target module for step and
// returns the new flag.
func (s *State) Gate(table *ModuleTable, step int) bool {
	enabled := s.InInterval(step)
	for _, m := range s.Modules {
		table.SetEnabled(m.Attention.ToQ, enabled)
	}

	logutil.Trace("step gate", "request", s.ID, "step", step, "enabled", enabled)
	return enabled
}
