// Package xyz exposes script parameters as axes of the host's parameter
// sweep grid.
package xyz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ollama/seg/host"
)

type AxisType int

const (
	String AxisType = iota
	Int
	Float
)

func (t AxisType) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	default:
		return "str"
	}
}

// ApplyFunc sets the value x for one grid cell on p. xs holds every value
// on the axis.
type ApplyFunc func(p *host.Processing, x any, xs []any)

type AxisOption struct {
	Label   string
	Type    AxisType
	Apply   ApplyFunc
	Choices func() []string
}

// Parse converts a raw axis value to the option's type.
func (o AxisOption) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch o.Type {
	case Int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.Label, err)
		}
		return v, nil
	case Float:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.Label, err)
		}
		return v, nil
	default:
		if o.Choices != nil {
			for _, c := range o.Choices() {
				if strings.EqualFold(c, raw) {
					return c, nil
				}
			}
			return nil, fmt.Errorf("%s: %q is not one of %v", o.Label, raw, o.Choices())
		}
		return raw, nil
	}
}

// ApplyAll parses every raw value and applies the one at index i to p.
func (o AxisOption) ApplyAll(p *host.Processing, raw []string, i int) error {
	xs := make([]any, len(raw))
	for j, r := range raw {
		v, err := o.Parse(r)
		if err != nil {
			return err
		}
		xs[j] = v
	}

	if i < 0 || i >= len(xs) {
		return fmt.Errorf("%s: index %d out of range", o.Label, i)
	}

	o.Apply(p, xs[i], xs)
	return nil
}

// BooleanChoice returns the True/False choices, False first when reverse.
func BooleanChoice(reverse bool) func() []string {
	return func() []string {
		if reverse {
			return []string{"False", "True"}
		}
		return []string{"True", "False"}
	}
}
