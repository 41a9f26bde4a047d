// Package guidance implements Smoothed Energy Guidance (SEG): during a
// configurable range of denoising steps the query projection of the middle
// block self-attention is Gaussian blurred for the conditional half of the
// classifier-free guidance batch, flattening the attention energy landscape.
//
// Reference: Hong, "Smoothed Energy Guidance: Guiding Diffusion Models with
// Reduced Energy Curvature of Attention", arXiv:2408.00760.
package guidance

import (
	"log/slog"
	"strings"

	"github.com/ollama/seg/envconfig"
	"github.com/ollama/seg/host"
	"github.com/ollama/seg/host/ui"
)

const (
	owner = "seg"

	// StateKey is where the request state is published in the shared
	// guidance parameters.
	StateKey = "seg_params"
)

var _ host.Script = (*Script)(nil)

// Script wires SEG into the host: it owns the hook side table and the
// callbacks registered for the current request.
type Script struct {
	// BlurThreshold is the blur sigma exponent treated as infinite blur.
	BlurThreshold float64

	callbacks *host.Callbacks
	registry  *host.Registry
	table     *ModuleTable

	infotextFields  []ui.InfotextField
	pasteFieldNames []string
}

func NewScript(callbacks *host.Callbacks, registry *host.Registry) *Script {
	return &Script{
		BlurThreshold: envconfig.BlurThreshold,
		callbacks:     callbacks,
		registry:      registry,
		table:         NewModuleTable(),
	}
}

func (s *Script) Title() string {
	return "Smoothed Energy Guidance"
}

func (s *Script) Show(bool) host.Visibility {
	return host.AlwaysVisible
}

func (s *Script) SetupUI(bool) []ui.Control {
	d := DefaultParams()
	active := &ui.Checkbox{
		Label: "Active",
		ID:    "seg_active",
		Info:  "Recommended to keep CFG Scale fixed at 3.0, use Sigma to adjust.",
		Value: d.Active,
	}
	blurSigma := &ui.Slider{
		Label:   "SEG Blur Sigma",
		ID:      "seg_blur_sigma",
		Info:    "Exponential (2^n). Values >= 11 are infinite blur",
		Value:   d.BlurSigma,
		Minimum: 0,
		Maximum: 11,
		Step:    0.5,
	}
	startStep := &ui.Slider{Label: "Start Step", ID: "seg_start_step", Value: float64(d.StartStep), Maximum: 150, Step: 1, Integer: true}
	endStep := &ui.Slider{Label: "End Step", ID: "seg_end_step", Value: float64(d.EndStep), Maximum: 150, Step: 1, Integer: true}

	active.DoNotSaveToConfig = true
	blurSigma.DoNotSaveToConfig = true
	startStep.DoNotSaveToConfig = true
	endStep.DoNotSaveToConfig = true

	s.infotextFields = []ui.InfotextField{
		{Control: active, Apply: func(d map[string]string) any {
			_, ok := d[KeyActive]
			return ok
		}},
		{Control: blurSigma, Key: KeyBlurSigma},
		{Control: startStep, Key: KeyStartStep},
		{Control: endStep, Key: KeyEndStep},
	}

	controls := []ui.Control{active, blurSigma, startStep, endStep}
	s.pasteFieldNames = s.pasteFieldNames[:0]
	for _, c := range controls {
		s.pasteFieldNames = append(s.pasteFieldNames, c.ElemID())
	}

	return controls
}

// InfotextFields maps metadata keys back to controls. Valid after SetupUI.
func (s *Script) InfotextFields() []ui.InfotextField {
	return s.infotextFields
}

func (s *Script) PasteFieldNames() []string {
	return s.pasteFieldNames
}

// TargetModules returns the self-attention blocks of the middle block.
func (s *Script) TargetModules() []host.NamedModule {
	var modules []host.NamedModule
	for _, m := range s.registry.Filter("middle_block_", host.KindCrossAttention) {
		if strings.Contains(m.NetworkLayerName, "attn1") {
			modules = append(modules, m)
		}
	}
	return modules
}

// ProcessBatch clears anything left over from a previous request, then
// installs guidance for p when it is active.
func (s *Script) ProcessBatch(p *host.Processing, args ...any) {
	s.callbacks.RemoveCallbacks(owner)
	s.removeAllHooks()

	params, err := Resolve(p, args...)
	if err != nil {
		slog.Error("invalid seg parameters, skipping SEG", "error", err)
		return
	}

	if !params.Active {
		return
	}

	if params.BlurSigma == 0 {
		slog.Info("SEG blur sigma is 0, skipping SEG")
		return
	}

	if p.ExtraGenerationParams == nil {
		p.ExtraGenerationParams = make(map[string]any)
	}
	for k, v := range params.Infotext() {
		p.ExtraGenerationParams[k] = v
	}

	s.createHook(p, params)
}

func (s *Script) createHook(p *host.Processing, params Params) *State {
	state := NewState(params, s.BlurThreshold)

	if p.IncantCfgParams == nil {
		slog.Error("no incant_cfg_params found on request", "request", state.ID)
	} else {
		p.IncantCfgParams[StateKey] = state
	}

	modules := s.TargetModules()
	if len(modules) == 0 {
		slog.Error("no self attention modules found, cannot proceed with SEG", "request", state.ID)
		return state
	}
	state.Modules = modules

	if state.Active {
		s.table.Install(state.Modules, state.BlurSigma, state.BlurThreshold, p.Height, p.Width)
	}

	s.callbacks.OnCFGDenoiser(owner, func(params *host.CFGDenoiserParams) {
		s.OnCFGDenoiser(params, state)
	})
	s.callbacks.OnScriptUnloaded(owner, func() {
		s.Unhook(state)
	})

	slog.Debug("hooked callbacks", "request", state.ID, "modules", len(modules), "start", state.StartStep, "end", state.EndStep)
	return state
}

// OnCFGDenoiser runs before each denoising step.
func (s *Script) OnCFGDenoiser(params *host.CFGDenoiserParams, state *State) {
	if !state.Active {
		s.Unhook(state)
		return
	}

	state.Gate(s.table, params.SamplingStep)
}

// Unhook detaches guidance from the modules of state.
func (s *Script) Unhook(state *State) {
	s.table.Remove(state.Modules)
}

// PostprocessBatch drops the request's callbacks and hooks so nothing leaks
// into the next generation.
func (s *Script) PostprocessBatch(p *host.Processing, args ...any) {
	s.callbacks.RemoveCallbacks(owner)
	s.removeAllHooks()
}

func (s *Script) removeAllHooks() {
	s.table.Remove(s.TargetModules())
}
