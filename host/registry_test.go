package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/seg/ml/nn"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b, c := &nn.CrossAttention{Heads: 1}, &nn.CrossAttention{Heads: 2}, &nn.CrossAttention{Heads: 3}

	r.Register("input_blocks_1_attn1", KindCrossAttention, a)
	r.Register("middle_block_1_attn1", KindCrossAttention, b)
	r.Register("middle_block_1_norm", "LayerNorm", nil)
	r.Register("middle_block_1_attn2", KindCrossAttention, c)
	assert.Equal(t, 4, r.Len())

	var names []string
	for _, m := range r.Filter("middle_block_", KindCrossAttention) {
		names = append(names, m.NetworkLayerName)
	}
	assert.Equal(t, []string{"middle_block_1_attn1", "middle_block_1_attn2"}, names)

	assert.Len(t, r.Filter("", KindCrossAttention), 3)
	assert.Len(t, r.Filter("output_blocks_", ""), 0)
	assert.Len(t, r.Modules(), 4)

	// re-registering keeps the position
	d := &nn.CrossAttention{Heads: 4}
	r.Register("input_blocks_1_attn1", KindCrossAttention, d)
	assert.Equal(t, 4, r.Len())

	first := r.Modules()[0]
	assert.Equal(t, "input_blocks_1_attn1", first.NetworkLayerName)
	assert.Same(t, d, first.Attention)

	m, ok := r.Get("middle_block_1_attn1")
	require.True(t, ok)
	assert.Same(t, b, m.Attention)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestUNetRegister(t *testing.T) {
	u, err := NewUNet(8, 2, 1)
	require.NoError(t, err)
	assert.Len(t, u.Blocks, 6)

	r := NewRegistry()
	u.Register(r)
	assert.Equal(t, 6, r.Len())

	middle := r.Filter("middle_block_", KindCrossAttention)
	require.Len(t, middle, 2)
	assert.Equal(t, "diffusion_model_middle_block_1_transformer_blocks_0_attn1", middle[0].NetworkLayerName)
	assert.Equal(t, "diffusion_model_middle_block_1_transformer_blocks_0_attn2", middle[1].NetworkLayerName)
	assert.Equal(t, 4, middle[0].Attention.HeadDim())

	_, err = NewUNet(9, 2, 1)
	require.Error(t, err)
}
