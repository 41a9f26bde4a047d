package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/exp/rand"

	"github.com/ollama/seg/logutil"
	"github.com/ollama/seg/ml"
	"github.com/ollama/seg/ml/nn"
)

// LatentScale is the ratio between image pixels and latent positions.
const LatentScale = 8

const contextTokens = 4

// Block is one transformer attention layer of the denoiser.
type Block struct {
	Name string
	Attn *nn.CrossAttention

	// Cross blocks attend to the prompt context instead of themselves.
	Cross bool
}

// UNet is a small residual stack of attention blocks laid out like the
// input, middle and output stages of a diffusion UNet.
type UNet struct {
	Dim    int
	Heads  int
	Blocks []Block
}

var unetLayers = []string{
	"input_blocks_1_1_transformer_blocks_0",
	"middle_block_1_transformer_blocks_0",
	"output_blocks_3_1_transformer_blocks_0",
}

// NewUNet builds a denoiser with deterministic weights drawn from seed.
func NewUNet(dim, heads int, seed int64) (*UNet, error) {
	if heads <= 0 || dim%heads != 0 {
		return nil, fmt.Errorf("unet: dim %d not divisible by %d heads", dim, heads)
	}

	rng := rand.New(rand.NewSource(uint64(seed)))
	linear := func() *nn.Linear {
		w := make([]float32, dim*dim)
		for i := range w {
			w[i] = float32(rng.NormFloat64()) * 0.1
		}
		for i := range dim {
			w[i*dim+i] += 0.5
		}
		weight, _ := ml.NewTensor(ml.DTypeF32, w, dim, dim)
		return &nn.Linear{Weight: weight}
	}
	attention := func() *nn.CrossAttention {
		return &nn.CrossAttention{Heads: heads, ToQ: linear(), ToK: linear(), ToV: linear(), ToOut: linear()}
	}

	u := &UNet{Dim: dim, Heads: heads}
	for _, layer := range unetLayers {
		u.Blocks = append(u.Blocks,
			Block{Name: layer + "_attn1", Attn: attention()},
			Block{Name: layer + "_attn2", Attn: attention(), Cross: true},
		)
	}

	return u, nil
}

// Register declares every attention block of u in r.
func (u *UNet) Register(r *Registry) {
	for _, b := range u.Blocks {
		r.Register("diffusion_model_"+b.Name, KindCrossAttention, b.Attn)
	}
}

func (u *UNet) Forward(x, context *ml.Tensor) (*ml.Tensor, error) {
	h := x
	for _, b := range u.Blocks {
		var c *ml.Tensor
		if b.Cross {
			c = context
		}

		out, err := b.Attn.Forward(h, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name, err)
		}

		hs, outs := h.Floats(), out.Floats()
		sum := make([]float32, len(hs))
		for i := range hs {
			sum[i] = hs[i] + outs[i]
		}

		h, err = ml.NewTensor(h.DType(), sum, h.Shape()...)
		if err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Sampler runs classifier-free guided denoising. Every step evaluates the
// model once on a doubled batch holding the unconditional half followed by
// the conditional half.
type Sampler struct {
	Model     *UNet
	Callbacks *Callbacks
	DType     ml.DType
}

var ErrInvalidRequest = errors.New("invalid request")

func (s *Sampler) Sample(ctx context.Context, p *Processing) (*ml.Tensor, error) {
	h, w := p.Height/LatentScale, p.Width/LatentScale
	if h <= 0 || w <= 0 || p.Steps <= 0 {
		return nil, fmt.Errorf("%w: %dx%d for %d steps", ErrInvalidRequest, p.Width, p.Height, p.Steps)
	}

	batch := max(p.BatchSize, 1)
	seq, dim := h*w, s.Model.Dim

	rng := rand.New(rand.NewSource(uint64(p.Seed)))
	noise := make([]float32, batch*seq*dim)
	for i := range noise {
		noise[i] = float32(rng.NormFloat64())
	}
	x, err := ml.NewTensor(s.DType, noise, batch, seq, dim)
	if err != nil {
		return nil, err
	}

	prompt := make([]float32, batch*contextTokens*dim)
	for i := range prompt {
		prompt[i] = float32(rng.NormFloat64())
	}
	cond, err := ml.NewTensor(s.DType, prompt, batch, contextTokens, dim)
	if err != nil {
		return nil, err
	}

	promptContext, err := ml.Concat(ml.Zeros(s.DType, batch, contextTokens, dim), cond)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	for step := range p.Steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		s.Callbacks.CFGDenoiser(&CFGDenoiserParams{X: x, SamplingStep: step, TotalSamplingSteps: p.Steps})

		in, err := ml.Concat(x, x)
		if err != nil {
			return nil, err
		}

		out, err := s.Model.Forward(in, promptContext)
		if err != nil {
			return nil, err
		}

		halves, err := out.Chunk(2)
		if err != nil {
			return nil, err
		}

		xs, us, cs := x.Floats(), halves[0].Floats(), halves[1].Floats()
		next := make([]float32, len(xs))
		dt := 1 / float32(p.Steps)
		for i := range xs {
			guided := us[i] + p.CFGScale*(cs[i]-us[i])
			next[i] = xs[i] - dt*guided
		}

		x, err = ml.NewTensor(s.DType, next, x.Shape()...)
		if err != nil {
			return nil, err
		}

		logutil.Trace("denoising step", "step", step, "total", p.Steps)
	}

	slog.Debug("sampling complete", "steps", p.Steps, "shape", x.Shape(), "duration", time.Since(start))
	return x, nil
}
