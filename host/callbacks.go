package host

import (
	"log/slog"

	"github.com/ollama/seg/ml"
)

// CFGDenoiserParams is passed to denoiser callbacks before each step.
type CFGDenoiserParams struct {
	X                  *ml.Tensor
	SamplingStep       int
	TotalSamplingSteps int
}

type cfgDenoiserCallback struct {
	owner string
	fn    func(*CFGDenoiserParams)
}

type unloadCallback struct {
	owner string
	fn    func()
}

// Callbacks holds script callbacks keyed by owner so a script can drop all of
// its callbacks at once. Callbacks are invoked in registration order on the
// sampling goroutine.
type Callbacks struct {
	cfgDenoiser []cfgDenoiserCallback
	unloaded    []unloadCallback
}

func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

func (c *Callbacks) OnCFGDenoiser(owner string, fn func(*CFGDenoiserParams)) {
	c.cfgDenoiser = append(c.cfgDenoiser, cfgDenoiserCallback{owner: owner, fn: fn})
}

func (c *Callbacks) OnScriptUnloaded(owner string, fn func()) {
	c.unloaded = append(c.unloaded, unloadCallback{owner: owner, fn: fn})
}

// RemoveCallbacks drops every callback registered by owner.
func (c *Callbacks) RemoveCallbacks(owner string) {
	c.cfgDenoiser = removeOwned(c.cfgDenoiser, owner, func(cb cfgDenoiserCallback) string { return cb.owner })
	c.unloaded = removeOwned(c.unloaded, owner, func(cb unloadCallback) string { return cb.owner })
}

// Len returns the number of registered callbacks for owner.
func (c *Callbacks) Len(owner string) int {
	var n int
	for _, cb := range c.cfgDenoiser {
		if cb.owner == owner {
			n++
		}
	}
	for _, cb := range c.unloaded {
		if cb.owner == owner {
			n++
		}
	}
	return n
}

func (c *Callbacks) CFGDenoiser(params *CFGDenoiserParams) {
	for _, cb := range c.cfgDenoiser {
		cb.fn(params)
	}
}

// Unload runs and clears every script-unloaded callback.
func (c *Callbacks) Unload() {
	unloaded := c.unloaded
	c.unloaded = nil
	for _, cb := range unloaded {
		slog.Debug("running unload callback", "owner", cb.owner)
		cb.fn()
	}
}

func removeOwned[S ~[]E, E any](s S, owner string, ownerOf func(E) string) S {
	out := s[:0]
	for _, e := range s {
		if ownerOf(e) != owner {
			out = append(out, e)
		}
	}
	clear(s[len(out):])
	return out
}
