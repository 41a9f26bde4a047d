package guidance

import (
	"errors"
	"log/slog"

	"github.com/ollama/seg/host"
	"github.com/ollama/seg/logutil"
	"github.com/ollama/seg/ml"
	"github.com/ollama/seg/ml/nn"
)

const hookName = "seg_to_q_hook"

type moduleEntry struct {
	enabled bool
	parent  *nn.CrossAttention
}

// ModuleTable tracks per projection state that the hook needs: whether
// guidance is enabled for the current step and which attention block the
// projection belongs to.
type ModuleTable struct {
	entries map[*nn.Linear]*moduleEntry
}

func NewModuleTable() *ModuleTable {
	return &ModuleTable{entries: make(map[*nn.Linear]*moduleEntry)}
}

// Install attaches the query blur to the to_q projection of every module.
// Modules start disabled until the step gate enables them.
func (t *ModuleTable) Install(modules []host.NamedModule, blurSigma, blurThreshold float64, height, width int) {
	tr := Transform{
		BlurSigma:     blurSigma,
		BlurThreshold: blurThreshold,
		Height:        height,
		Width:         width,
	}

	hook := t.hook(tr)
	for _, m := range modules {
		t.entries[m.Attention.ToQ] = &moduleEntry{parent: m.Attention}
		m.Attention.ToQ.AddForwardHook(hookName, hook)
	}

	slog.Debug("installed query hooks", "modules", len(modules), "sigma", tr.Sigma(), "infinite", tr.Infinite())
}

// Remove detaches the hook and forgets the modules. Modules without a hook
// are ignored.
func (t *ModuleTable) Remove(modules []host.NamedModule) {
	var n int
	for _, m := range modules {
		delete(t.entries, m.Attention.ToQ)
		if m.Attention.ToQ.RemoveForwardHook(hookName) {
			n++
		}
	}

	if n > 0 {
		slog.Debug("removed query hooks", "modules", n)
	}
}

func (t *ModuleTable) Installed(m *nn.Linear) bool {
	_, ok := t.entries[m]
	return ok
}

func (t *ModuleTable) Enabled(m *nn.Linear) bool {
	e, ok := t.entries[m]
	return ok && e.enabled
}

// SetEnabled toggles guidance for an installed projection. It reports
// whether m is installed.
func (t *ModuleTable) SetEnabled(m *nn.Linear, enabled bool) bool {
	e, ok := t.entries[m]
	if ok {
		e.enabled = enabled
	}
	return ok
}

func (t *ModuleTable) Len() int {
	return len(t.entries)
}

func (t *ModuleTable) hook(tr Transform) nn.ForwardHook {
	return func(m *nn.Linear, _, output *ml.Tensor) *ml.Tensor {
		e, ok := t.entries[m]
		if !ok || !e.enabled {
			return nil
		}

		q, err := tr.Apply(output, e.parent.Heads)
		if err != nil {
			if errors.Is(err, ErrAspectMismatch) {
				slog.Warn("skipping query blur", "shape", output.Shape(), "height", tr.Height, "width", tr.Width, "error", err)
			} else {
				slog.Error("query blur failed", "shape", output.Shape(), "error", err)
			}
			return nil
		}

		logutil.Trace("blurred query", "shape", q.Shape(), "heads", e.parent.Heads)
		return q
	}
}
