package guidance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/seg/host"
	"github.com/ollama/seg/host/xyz"
)

func axis(t *testing.T, label string) xyz.AxisOption {
	t.Helper()
	for _, o := range AxisOptions() {
		if o.Label == label {
			return o
		}
	}

	t.Fatalf("no axis %q", label)
	return xyz.AxisOption{}
}

func TestAxisOptions(t *testing.T) {
	var labels []string
	for _, o := range AxisOptions() {
		labels = append(labels, o.Label)
	}

	assert.Equal(t, []string{"[SEG] Active", "[SEG] SEG Blur Sigma", "[SEG] SEG Start Step", "[SEG] SEG End Step"}, labels)
	assert.Equal(t, []string{"False", "True"}, axis(t, "[SEG] Active").Choices())
}

func TestSweepActivates(t *testing.T) {
	p := host.NewProcessing(512, 512, 20)
	require.NoError(t, axis(t, "[SEG] SEG Blur Sigma").ApplyAll(p, []string{"1", "2.5", "4"}, 1))

	got, err := Resolve(p, false, 11.0, 0, 150)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.InDelta(t, 2.5, got.BlurSigma, 0)

	p = host.NewProcessing(512, 512, 20)
	require.NoError(t, axis(t, "[SEG] SEG End Step").ApplyAll(p, []string{"5", "10"}, 0))
	got, err = Resolve(p)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, 5, got.EndStep)
}

func TestSweepActiveOverride(t *testing.T) {
	a := axis(t, "[SEG] Active")

	p := host.NewProcessing(512, 512, 20)
	require.NoError(t, a.ApplyAll(p, []string{"false", "true"}, 0))
	got, err := Resolve(p, true)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// later axes leave the explicit value alone
	require.NoError(t, axis(t, "[SEG] SEG Start Step").ApplyAll(p, []string{"3"}, 0))
	got, err = Resolve(p, true)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 3, got.StartStep)

	p = host.NewProcessing(512, 512, 20)
	require.NoError(t, a.ApplyAll(p, []string{"False", "True"}, 1))
	got, err = Resolve(p)
	require.NoError(t, err)
	assert.True(t, got.Active)

	require.Error(t, a.ApplyAll(p, []string{"maybe"}, 0))
}

func TestSweepFieldBeforeActive(t *testing.T) {
	p := host.NewProcessing(512, 512, 20)
	ApplyField(FieldBlurSigma)(p, 3.0, nil)
	ApplyOverride(FieldActive, true)(p, "False", nil)

	v, ok := p.Lookup(FieldActive)
	require.True(t, ok)
	assert.Equal(t, false, v)
}
