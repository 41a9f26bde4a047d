package nn

import (
	"fmt"
	"math"

	"github.com/ollama/seg/ml"
)

// CrossAttention is a multi-head attention block. With a nil context it
// attends over its own input (self-attention).
type CrossAttention struct {
	Heads int

	ToQ   *Linear
	ToK   *Linear
	ToV   *Linear
	ToOut *Linear
}

func (a *CrossAttention) HeadDim() int {
	return a.ToQ.OutFeatures() / a.Heads
}

// Forward computes softmax(QKᵀ/√d)V per head for x of shape
// [batch, seq_len, dim] and projects the result back to dim.
func (a *CrossAttention) Forward(x, context *ml.Tensor) (*ml.Tensor, error) {
	if context == nil {
		context = x
	}

	q, err := a.ToQ.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("to_q: %w", err)
	}

	k, err := a.ToK.Forward(context)
	if err != nil {
		return nil, fmt.Errorf("to_k: %w", err)
	}

	v, err := a.ToV.Forward(context)
	if err != nil {
		return nil, fmt.Errorf("to_v: %w", err)
	}

	if q.Dim(0) != k.Dim(0) || q.Dim(2) != k.Dim(2) {
		return nil, fmt.Errorf("attention: query %v does not match key %v", q.Shape(), k.Shape())
	}

	out, err := Attention(q, k, v, a.Heads)
	if err != nil {
		return nil, err
	}

	return a.ToOut.Forward(out)
}

// Attention implements scaled dot-product attention for tensors laid out as
// [batch, seq_len, heads*head_dim].
func Attention(q, k, v *ml.Tensor, heads int) (*ml.Tensor, error) {
	batch, seqQ, inner := q.Dim(0), q.Dim(1), q.Dim(2)
	seqK := k.Dim(1)
	if inner%heads != 0 {
		return nil, fmt.Errorf("attention: dim %d not divisible by %d heads", inner, heads)
	}

	headDim := inner / heads
	scale := float32(1 / math.Sqrt(float64(headDim)))
	qs, ks, vs := q.Floats(), k.Floats(), v.Floats()

	out := make([]float32, batch*seqQ*inner)
	scores := make([]float32, seqK)
	for b := range batch {
		for h := range heads {
			for i := range seqQ {
				qi := qs[(b*seqQ+i)*inner+h*headDim:][:headDim]

				maxScore := float32(math.Inf(-1))
				for j := range seqK {
					kj := ks[(b*seqK+j)*inner+h*headDim:][:headDim]
					var s float32
					for d := range headDim {
						s += qi[d] * kj[d]
					}
					scores[j] = s * scale
					maxScore = max(maxScore, scores[j])
				}

				var sum float32
				for j := range scores {
					scores[j] = float32(math.Exp(float64(scores[j] - maxScore)))
					sum += scores[j]
				}

				o := out[(b*seqQ+i)*inner+h*headDim:][:headDim]
				for j := range seqK {
					p := scores[j] / sum
					vj := vs[(b*seqK+j)*inner+h*headDim:][:headDim]
					for d := range headDim {
						o[d] += p * vj[d]
					}
				}
			}
		}
	}

	return ml.NewTensor(q.DType(), out, batch, seqQ, inner)
}
