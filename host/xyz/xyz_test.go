package xyz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/seg/host"
)

func setter(field string) ApplyFunc {
	return func(p *host.Processing, x any, _ []any) {
		p.Set(field, x)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		opt  AxisOption
		raw  string
		want any
		err  bool
	}{
		{"int", AxisOption{Type: Int}, " 12 ", 12, false},
		{"bad int", AxisOption{Type: Int}, "1.5", nil, true},
		{"float", AxisOption{Type: Float}, "2.5", 2.5, false},
		{"bad float", AxisOption{Type: Float}, "x", nil, true},
		{"string", AxisOption{Type: String}, "euler", "euler", false},
		{"choice", AxisOption{Type: String, Choices: BooleanChoice(false)}, "true", "True", false},
		{"bad choice", AxisOption{Type: String, Choices: BooleanChoice(false)}, "yes", nil, true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opt.Parse(tt.raw)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyAll(t *testing.T) {
	o := AxisOption{Label: "Steps", Type: Int, Apply: setter("steps")}

	p := host.NewProcessing(512, 512, 20)
	require.NoError(t, o.ApplyAll(p, []string{"10", "20", "30"}, 2))
	v, ok := p.Lookup("steps")
	require.True(t, ok)
	assert.Equal(t, 30, v)

	require.Error(t, o.ApplyAll(p, []string{"10"}, 1))
	require.Error(t, o.ApplyAll(p, []string{"10", "ten"}, 0))
}

func TestBooleanChoice(t *testing.T) {
	assert.Equal(t, []string{"True", "False"}, BooleanChoice(false)())
	assert.Equal(t, []string{"False", "True"}, BooleanChoice(true)())
	assert.Equal(t, "str", String.String())
	assert.Equal(t, "int", Int.String())
	assert.Equal(t, "float", Float.String())
}
