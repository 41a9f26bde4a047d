package infotext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{true, "True"},
		{false, "False"},
		{11.0, "11.0"},
		{2.5, "2.5"},
		{float32(0.5), "0.5"},
		{150, "150"},
		{"euler a", "euler a"},
	}

	for _, tt := range cases {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestFormat(t *testing.T) {
	line := Format(map[string]any{
		"SEG Start Step": 0,
		"SEG Active":     true,
		"SEG Blur Sigma": 11.0,
		"Skipped":        nil,
		"Prompt":         "a, b: c",
	})

	assert.Equal(t, `Prompt: "a, b: c", SEG Active: True, SEG Blur Sigma: 11.0, SEG Start Step: 0`, line)
}

func TestParse(t *testing.T) {
	got := Parse(`Steps: 20, Sampler: DPM++ 2M, Prompt: "a, b: \"c\"", SEG Active: True, SEG Blur Sigma: 11.0`)
	assert.Equal(t, map[string]string{
		"Steps":          "20",
		"Sampler":        "DPM++ 2M",
		"Prompt":         `a, b: "c"`,
		"SEG Active":     "True",
		"SEG Blur Sigma": "11.0",
	}, got)

	assert.Empty(t, Parse(""))
}

func TestRoundTrip(t *testing.T) {
	params := map[string]any{
		"SEG Active":     true,
		"SEG Blur Sigma": 2.5,
		"SEG Start Step": 5,
		"SEG End Step":   10,
		"Note":           "x:y",
	}

	got := Parse(Format(params))
	assert.Equal(t, map[string]string{
		"SEG Active":     "True",
		"SEG Blur Sigma": "2.5",
		"SEG Start Step": "5",
		"SEG End Step":   "10",
		"Note":           "x:y",
	}, got)
}
