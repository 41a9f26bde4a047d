package host

import (
	"context"
	"log/slog"

	"github.com/ollama/seg/host/ui"
	"github.com/ollama/seg/ml"
)

type Visibility int

const (
	Hidden Visibility = iota
	Visible
	AlwaysVisible
)

// Script is an always-on extension that hooks into each batch.
type Script interface {
	Title() string
	Show(isImg2Img bool) Visibility

	// SetupUI returns the script's controls. Their values are passed back
	// positionally as args to ProcessBatch and PostprocessBatch.
	SetupUI(isImg2Img bool) []ui.Control

	ProcessBatch(p *Processing, args ...any)
	PostprocessBatch(p *Processing, args ...any)
}

type scriptArgs struct {
	script Script
	args   []any
}

// Runner drives registered scripts around the sampler for each request.
type Runner struct {
	Sampler *Sampler

	scripts []scriptArgs
}

// Add registers s with the given UI values. Missing values are taken from
// the control defaults.
func (r *Runner) Add(s Script, args ...any) {
	controls := s.SetupUI(false)
	for i := len(args); i < len(controls); i++ {
		args = append(args, controls[i].Default())
	}

	r.scripts = append(r.scripts, scriptArgs{script: s, args: args})
}

// Process runs one batch: every script's ProcessBatch, the sampler, then
// every script's PostprocessBatch. PostprocessBatch runs even when sampling
// fails so scripts can release hooks.
func (r *Runner) Process(ctx context.Context, p *Processing) (*ml.Tensor, error) {
	for _, s := range r.scripts {
		s.script.ProcessBatch(p, s.args...)
	}

	defer func() {
		for _, s := range r.scripts {
			s.script.PostprocessBatch(p, s.args...)
		}
	}()

	x, err := r.Sampler.Sample(ctx, p)
	if err != nil {
		slog.Error("sampling failed", "error", err)
		return nil, err
	}

	return x, nil
}

// Unload tears down scripts, running their unload callbacks.
func (r *Runner) Unload() {
	r.Sampler.Callbacks.Unload()
	r.scripts = nil
}
