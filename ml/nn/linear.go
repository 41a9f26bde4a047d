package nn

import (
	"fmt"

	"github.com/ollama/seg/ml"
)

// ForwardHook observes a Linear call after the output is computed. A non-nil
// return value replaces the output.
type ForwardHook func(m *Linear, input, output *ml.Tensor) *ml.Tensor

type namedHook struct {
	name string
	fn   ForwardHook
}

// Linear applies y = xWᵀ + b over the last dimension of x. Weight has shape
// [out_features, in_features].
type Linear struct {
	Weight *ml.Tensor
	Bias   *ml.Tensor

	hooks []namedHook
}

func (m *Linear) InFeatures() int  { return m.Weight.Dim(1) }
func (m *Linear) OutFeatures() int { return m.Weight.Dim(0) }

func (m *Linear) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	shape := x.Shape()
	in, out := m.InFeatures(), m.OutFeatures()
	if shape[len(shape)-1] != in {
		return nil, fmt.Errorf("linear: input %v does not match in_features %d", shape, in)
	}

	rows := len(x.Floats()) / in
	xs, w := x.Floats(), m.Weight.Floats()

	var b []float32
	if m.Bias != nil {
		b = m.Bias.Floats()
	}

	ys := make([]float32, rows*out)
	for r := range rows {
		row := xs[r*in : (r+1)*in]
		for o := range out {
			var sum float32
			if b != nil {
				sum = b[o]
			}
			for i, wv := range w[o*in : (o+1)*in] {
				sum += row[i] * wv
			}
			ys[r*out+o] = sum
		}
	}

	shape[len(shape)-1] = out
	y, err := ml.NewTensor(x.DType(), ys, shape...)
	if err != nil {
		return nil, err
	}

	for _, h := range m.hooks {
		if replaced := h.fn(m, x, y); replaced != nil {
			y = replaced
		}
	}

	return y, nil
}

// AddForwardHook registers fn under name, replacing any hook already
// registered with that name.
func (m *Linear) AddForwardHook(name string, fn ForwardHook) {
	for i, h := range m.hooks {
		if h.name == name {
			m.hooks[i].fn = fn
			return
		}
	}

	m.hooks = append(m.hooks, namedHook{name: name, fn: fn})
}

// RemoveForwardHook removes the hook registered under name. It reports
// whether a hook was removed.
func (m *Linear) RemoveForwardHook(name string) bool {
	for i, h := range m.hooks {
		if h.name == name {
			m.hooks = append(m.hooks[:i], m.hooks[i+1:]...)
			return true
		}
	}

	return false
}

func (m *Linear) HasForwardHook(name string) bool {
	for _, h := range m.hooks {
		if h.name == name {
			return true
		}
	}

	return false
}
