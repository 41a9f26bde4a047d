package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/seg/envconfig"
	"github.com/ollama/seg/guidance"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var b bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&b)
	cmd.SetErr(&b)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return b.String(), err
}

func TestKernel(t *testing.T) {
	out, err := execute(t, "kernel", "--sigma", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "sigma 2^0 = 1\n")
	assert.Contains(t, out, "kernel size 7\n")
	assert.Contains(t, out, "OFFSET")
	assert.Contains(t, out, "-3")
	assert.Contains(t, out, "0.399050")

	out, err = execute(t, "kernel", "--sigma", "40", "--threshold", "50")
	require.NoError(t, err)
	if diff := cmp.Diff("sigma 2^40 = 1099511627776\nkernel size 2147483647, too large to list (max 1025)\n", out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}

	out, err = execute(t, "kernel", "--sigma", "11", "--threshold", "10.5")
	require.NoError(t, err)
	if diff := cmp.Diff("sigma 2^11 = 2048\ninfinite blur above threshold 10.5\n", out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestBlur(t *testing.T) {
	out, err := execute(t, "blur", "--seq", "16", "--heads", "2", "--head-dim", "2", "--sigma", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "grid 4x4, sigma 2, kernel 5\n")
	assert.Contains(t, out, "input [2 16 4] F32\n")
	assert.Contains(t, out, "output [2 16 4] F32\n")

	out, err = execute(t, "blur", "--dtype", "BF16", "--sigma", "11")
	require.NoError(t, err)
	assert.Contains(t, out, "infinite\n")
	assert.Contains(t, out, "output [2 16 4] BF16\n")

	_, err = execute(t, "blur", "--seq", "10")
	require.ErrorIs(t, err, guidance.ErrAspectMismatch)

	_, err = execute(t, "blur", "--dtype", "F8")
	require.Error(t, err)
}

func TestSimulate(t *testing.T) {
	out, err := execute(t, "simulate", "--steps", "4", "--start", "1", "--end", "2", "--sigma", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "target modules 1\n")
	assert.NotContains(t, out, "max difference from unguided 0\n")
	assert.Contains(t, out, "SEG Active: True, SEG Blur Sigma: 2.0, SEG End Step: 2, SEG Start Step: 1\n")

	var guided []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "true" {
			guided = append(guided, fields[0])
		}
	}
	assert.Equal(t, []string{"1", "2"}, guided)

	out, err = execute(t, "simulate", "--steps", "3", "--active=false")
	require.NoError(t, err)
	assert.Contains(t, out, "max difference from unguided 0\n")
	assert.NotContains(t, out, "SEG Active")
}

func TestInfotext(t *testing.T) {
	line := "Steps: 20, SEG Active: True, SEG Blur Sigma: 3.5, SEG Start Step: 2, SEG End Step: 9"

	out, err := execute(t, "infotext", line)
	require.NoError(t, err)
	if diff := cmp.Diff("SEG Active: True, SEG Blur Sigma: 3.5, SEG End Step: 9, SEG Start Step: 2\n", out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}

	out, err = execute(t, "infotext", "--format", "json", line)
	require.NoError(t, err)
	expect := `{
  "seg_active": true,
  "seg_blur_sigma": 3.5,
  "seg_start_step": 2,
  "seg_end_step": 9
}
`
	if diff := cmp.Diff(expect, out); diff != "" {
		t.Errorf("unexpected output (-want +got):\n%s", diff)
	}

	out, err = execute(t, "infotext", "--format", "cbor", line)
	require.NoError(t, err)
	b, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)

	var p guidance.Params
	require.NoError(t, p.UnmarshalBinary(b))
	assert.Equal(t, guidance.Params{Active: true, BlurSigma: 3.5, StartStep: 2, EndStep: 9}, p)

	_, err = execute(t, "infotext", "--format", "yaml", line)
	require.Error(t, err)

	_, err = execute(t, "infotext")
	require.Error(t, err)
}

func TestEnv(t *testing.T) {
	t.Cleanup(envconfig.LoadConfig)
	t.Setenv("SEG_BLUR_THRESHOLD", "9.5")
	envconfig.LoadConfig()

	out, err := execute(t, "env")
	require.NoError(t, err)
	assert.Contains(t, out, "SEG_BLUR_THRESHOLD")
	assert.Contains(t, out, "9.5")
	assert.Contains(t, out, "SEG_NUM_PARALLEL")
	assert.Contains(t, out, "SD_WEBUI_LOG_LEVEL")
}
