package host

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestCallbacks(t *testing.T) {
	c := NewCallbacks()

	var calls []string
	c.OnCFGDenoiser("a", func(p *CFGDenoiserParams) { calls = append(calls, "a") })
	c.OnCFGDenoiser("b", func(p *CFGDenoiserParams) { calls = append(calls, "b") })
	c.OnCFGDenoiser("a", func(p *CFGDenoiserParams) { calls = append(calls, "a2") })
	c.OnScriptUnloaded("a", func() { calls = append(calls, "unload a") })

	assert.Equal(t, c.Len("a"), 3)
	assert.Equal(t, c.Len("b"), 1)

	c.CFGDenoiser(&CFGDenoiserParams{SamplingStep: 1})
	assert.DeepEqual(t, calls, []string{"a", "b", "a2"})

	calls = nil
	c.RemoveCallbacks("a")
	assert.Equal(t, c.Len("a"), 0)
	c.CFGDenoiser(&CFGDenoiserParams{})
	c.Unload()
	assert.DeepEqual(t, calls, []string{"b"})

	c.RemoveCallbacks("missing")
	assert.Equal(t, c.Len("b"), 1)
}

func TestCallbacksUnload(t *testing.T) {
	c := NewCallbacks()

	var n int
	c.OnScriptUnloaded("a", func() { n++ })
	c.OnScriptUnloaded("b", func() { n++ })
	c.OnCFGDenoiser("a", func(*CFGDenoiserParams) {})

	c.Unload()
	assert.Equal(t, n, 2)
	assert.Equal(t, c.Len("a"), 1)
	assert.Equal(t, c.Len("b"), 0)

	c.Unload()
	assert.Equal(t, n, 2)
}

func TestCallbacksReceiveParams(t *testing.T) {
	c := NewCallbacks()

	var steps []int
	c.OnCFGDenoiser("a", func(p *CFGDenoiserParams) {
		steps = append(steps, p.SamplingStep)
		assert.Equal(t, p.TotalSamplingSteps, 3)
	})

	for step := range 3 {
		c.CFGDenoiser(&CFGDenoiserParams{SamplingStep: step, TotalSamplingSteps: 3})
	}
	assert.Check(t, is.DeepEqual(steps, []int{0, 1, 2}))
}
