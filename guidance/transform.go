package guidance

import (
	"errors"
	"fmt"
	"math"

	"github.com/pdevine/tensor"

	"github.com/ollama/seg/ml"
)

var (
	// ErrAspectMismatch is returned when the sequence length cannot be laid
	// out as a grid with the image aspect ratio.
	ErrAspectMismatch = errors.New("sequence length does not match image aspect ratio")

	// ErrOddBatch is returned when the batch cannot be split into an
	// unconditional and a conditional half.
	ErrOddBatch = errors.New("batch is not split into unconditional and conditional halves")
)

// Transform blurs the conditional half of a query projection output.
type Transform struct {
	// BlurSigma is the base 2 exponent of the Gaussian sigma.
	BlurSigma float64

	// BlurThreshold is the exponent above which the blur is infinite.
	BlurThreshold float64

	// Height and Width are the generated image dimensions.
	Height int
	Width  int
}

func (t Transform) Sigma() float64 {
	return math.Exp2(t.BlurSigma)
}

func (t Transform) Infinite() bool {
	return t.BlurSigma > t.BlurThreshold
}

func (t Transform) KernelSize() int {
	return KernelSize(t.Sigma())
}

// Downscale recovers the spatial grid of a flattened attention sequence
// assuming it keeps the image aspect ratio.
func (t Transform) Downscale(seq int) (h, w int, err error) {
	if t.Height <= 0 || t.Width <= 0 || seq <= 0 {
		return 0, 0, fmt.Errorf("%w: %d positions for %dx%d", ErrAspectMismatch, seq, t.Width, t.Height)
	}

	h = int(math.Round(math.Sqrt(float64(seq) * float64(t.Height) / float64(t.Width))))
	if h <= 0 {
		return 0, 0, fmt.Errorf("%w: %d positions for %dx%d", ErrAspectMismatch, seq, t.Width, t.Height)
	}

	w = seq / h
	if h*w != seq {
		return 0, 0, fmt.Errorf("%w: %d positions do not factor as %dx%d", ErrAspectMismatch, seq, h, w)
	}

	return h, w, nil
}

// Apply blurs out, a [2B, S, heads*head_dim] projection output whose first B
// rows are unconditional. The unconditional rows are returned unchanged and
// the result keeps out's shape and dtype.
func (t Transform) Apply(out *ml.Tensor, heads int) (*ml.Tensor, error) {
	shape := out.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("query projection must be [batch, seq, dim], got %v", shape)
	}

	batch, seq, inner := shape[0], shape[1], shape[2]
	if batch%2 != 0 {
		return nil, fmt.Errorf("%w: batch %d", ErrOddBatch, batch)
	}
	if heads <= 0 || inner%heads != 0 {
		return nil, fmt.Errorf("dim %d not divisible by %d heads", inner, heads)
	}

	h, w, err := t.Downscale(seq)
	if err != nil {
		return nil, err
	}

	halves, err := out.Chunk(2)
	if err != nil {
		return nil, err
	}

	half, headDim := batch/2, inner/heads
	uncond, q := halves[0].Dense(), halves[1].Dense()

	// [B, S, heads, head_dim] -> [B, heads, head_dim, S]
	if err := q.Reshape(half, seq, heads, headDim); err != nil {
		return nil, err
	}
	if err := q.T(0, 2, 3, 1); err != nil {
		return nil, err
	}
	if err := q.Transpose(); err != nil {
		return nil, err
	}

	planes, ok := q.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unsupported query dtype %s", q.Dtype())
	}

	channels := half * heads * headDim
	if t.Infinite() {
		planes, err = BlurInf(planes, channels, h, w)
	} else {
		planes, err = GaussianBlur2D(planes, channels, h, w, t.KernelSize(), t.Sigma())
	}
	if err != nil {
		return nil, err
	}

	// [B, heads, head_dim, S] -> [B, S, heads*head_dim]
	blurred := tensor.New(tensor.WithShape(half, heads, headDim, seq), tensor.WithBacking(planes))
	if err := blurred.T(0, 3, 1, 2); err != nil {
		return nil, err
	}
	if err := blurred.Transpose(); err != nil {
		return nil, err
	}
	if err := blurred.Reshape(half, seq, inner); err != nil {
		return nil, err
	}

	joined, err := tensor.Concat(0, uncond, blurred)
	if err != nil {
		return nil, err
	}

	return ml.FromDense(out.DType(), joined)
}
