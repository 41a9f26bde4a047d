package cmd

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ollama/seg/guidance"
	"github.com/ollama/seg/host"
	"github.com/ollama/seg/host/infotext"
	"github.com/ollama/seg/ml"
)

func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a guided generation on a toy denoiser",
		Args:  cobra.NoArgs,
		RunE:  simulateHandler,
	}

	d := guidance.DefaultParams()
	cmd.Flags().Bool("active", true, "Enable guidance")
	cmd.Flags().Float64("sigma", d.BlurSigma, "Blur sigma exponent (sigma = 2^n)")
	cmd.Flags().Int("start", d.StartStep, "First guided step")
	cmd.Flags().Int("end", d.EndStep, "Last guided step")
	cmd.Flags().Int("steps", 8, "Sampling steps")
	cmd.Flags().Int("height", 64, "Image height")
	cmd.Flags().Int("width", 64, "Image width")
	cmd.Flags().Int("dim", 8, "Model dimension")
	cmd.Flags().Int("heads", 2, "Attention heads")
	cmd.Flags().Int64("seed", 0, "Noise seed")
	cmd.Flags().Float32("cfg-scale", 3, "Classifier-free guidance scale")
	return cmd
}

type simulation struct {
	script  *guidance.Script
	runner  *host.Runner
	modules int

	steps []int
}

func newSimulation(dim, heads int, seed int64, args ...any) (*simulation, error) {
	model, err := host.NewUNet(dim, heads, seed)
	if err != nil {
		return nil, err
	}

	callbacks := host.NewCallbacks()
	registry := host.NewRegistry()
	model.Register(registry)

	s := &simulation{script: guidance.NewScript(callbacks, registry)}
	s.modules = len(s.script.TargetModules())
	s.runner = &host.Runner{Sampler: &host.Sampler{Model: model, Callbacks: callbacks, DType: ml.DTypeF32}}
	s.runner.Add(s.script, args...)

	callbacks.OnCFGDenoiser("simulate", func(p *host.CFGDenoiserParams) {
		s.steps = append(s.steps, p.SamplingStep)
	})

	return s, nil
}

func simulateHandler(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	active, _ := flags.GetBool("active")
	sigma, _ := flags.GetFloat64("sigma")
	start, _ := flags.GetInt("start")
	end, _ := flags.GetInt("end")
	steps, _ := flags.GetInt("steps")
	height, _ := flags.GetInt("height")
	width, _ := flags.GetInt("width")
	dim, _ := flags.GetInt("dim")
	heads, _ := flags.GetInt("heads")
	seed, _ := flags.GetInt64("seed")
	scale, _ := flags.GetFloat32("cfg-scale")

	request := func() *host.Processing {
		p := host.NewProcessing(width, height, steps)
		p.Seed = seed
		p.CFGScale = scale
		return p
	}

	base, err := newSimulation(dim, heads, seed, false)
	if err != nil {
		return err
	}

	want, err := base.runner.Process(cmd.Context(), request())
	if err != nil {
		return err
	}

	guided, err := newSimulation(dim, heads, seed, active, sigma, start, end)
	if err != nil {
		return err
	}
	defer guided.runner.Unload()

	p := request()
	got, err := guided.runner.Process(cmd.Context(), p)
	if err != nil {
		return err
	}

	state, _ := p.IncantCfgParams[guidance.StateKey].(*guidance.State)

	table := newTable(cmd, "STEP", "GUIDED")
	for _, step := range guided.steps {
		enabled := state != nil && state.Active && guided.modules > 0 && state.InInterval(step)
		table.Append([]string{strconv.Itoa(step), strconv.FormatBool(enabled)})
	}
	table.Render()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "target modules %d\n", guided.modules)
	fmt.Fprintf(out, "max difference from unguided %s\n", strconv.FormatFloat(maxAbsDiff(want, got), 'g', 6, 64))
	if line := infotext.Format(p.ExtraGenerationParams); line != "" {
		fmt.Fprintln(out, line)
	}

	return nil
}

func maxAbsDiff(a, b *ml.Tensor) float64 {
	var d float64
	bs := b.Floats()
	for i, v := range a.Floats() {
		d = math.Max(d, math.Abs(float64(v-bs[i])))
	}
	return d
}
