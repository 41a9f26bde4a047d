// Package ui describes script controls. The host renders them; scripts only
// declare labels, bounds and defaults.
package ui

import "strconv"

type Control interface {
	ElemID() string
	Default() any
}

type Checkbox struct {
	Label string
	ID    string
	Info  string
	Value bool

	DoNotSaveToConfig bool
}

func (c *Checkbox) ElemID() string { return c.ID }
func (c *Checkbox) Default() any   { return c.Value }

type Slider struct {
	Label   string
	ID      string
	Info    string
	Value   float64
	Minimum float64
	Maximum float64
	Step    float64

	// Integer sliders report int values.
	Integer bool

	DoNotSaveToConfig bool
}

func (s *Slider) ElemID() string { return s.ID }

func (s *Slider) Default() any {
	if s.Integer {
		return int(s.Value)
	}
	return s.Value
}

// Clamp limits v to the slider bounds and snaps it to the step grid.
func (s *Slider) Clamp(v float64) float64 {
	v = min(max(v, s.Minimum), s.Maximum)
	if s.Step > 0 {
		n := (v - s.Minimum) / s.Step
		v = s.Minimum + float64(int64(n+0.5))*s.Step
	}
	return min(v, s.Maximum)
}

// InfotextField restores a control value from parsed generation metadata.
type InfotextField struct {
	Control Control
	Key     string

	// Apply, when set, derives the value from the whole metadata map
	// instead of reading Key.
	Apply func(map[string]string) any
}

// Value returns the restored value for the field, or false when the
// metadata carries nothing for it.
func (f InfotextField) Value(params map[string]string) (any, bool) {
	if f.Apply != nil {
		return f.Apply(params), true
	}

	raw, ok := params[f.Key]
	if !ok {
		return nil, false
	}

	switch c := f.Control.(type) {
	case *Checkbox:
		b, err := strconv.ParseBool(raw)
		return b, err == nil
	case *Slider:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false
		}
		v = c.Clamp(v)
		if c.Integer {
			return int(v), true
		}
		return v, true
	}

	return raw, true
}
