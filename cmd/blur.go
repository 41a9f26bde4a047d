package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/ollama/seg/envconfig"
	"github.com/ollama/seg/guidance"
	"github.com/ollama/seg/ml"
)

func NewBlurCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blur",
		Short: "Blur a sample query projection",
		Long:  "Blur the conditional half of a deterministic [2*batch, seq, heads*head_dim] query projection and print the result",
		Args:  cobra.NoArgs,
		RunE:  blurHandler,
	}

	cmd.Flags().Int("batch", 1, "Conditional batch size")
	cmd.Flags().Int("seq", 16, "Sequence length")
	cmd.Flags().Int("heads", 2, "Number of attention heads")
	cmd.Flags().Int("head-dim", 2, "Dimension of each head")
	cmd.Flags().Int("height", 64, "Image height")
	cmd.Flags().Int("width", 64, "Image width")
	cmd.Flags().Float64("sigma", 1, "Blur sigma exponent (sigma = 2^n)")
	cmd.Flags().Float64("threshold", envconfig.BlurThreshold, "Exponent above which the blur is infinite")
	cmd.Flags().String("dtype", "F32", "Activation dtype (F32, F16, BF16)")
	cmd.Flags().Int("items", 3, "Elements printed at each end of a dimension")
	return cmd
}

func blurHandler(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	batch, _ := flags.GetInt("batch")
	seq, _ := flags.GetInt("seq")
	heads, _ := flags.GetInt("heads")
	headDim, _ := flags.GetInt("head-dim")
	height, _ := flags.GetInt("height")
	width, _ := flags.GetInt("width")
	sigma, _ := flags.GetFloat64("sigma")
	threshold, _ := flags.GetFloat64("threshold")
	items, _ := flags.GetInt("items")

	name, _ := flags.GetString("dtype")
	dtype, err := ml.ParseDType(name)
	if err != nil {
		return err
	}

	if batch <= 0 || seq <= 0 || heads <= 0 || headDim <= 0 {
		return fmt.Errorf("batch, seq, heads and head-dim must be positive")
	}

	x, err := sampleProjection(dtype, 2*batch, seq, heads*headDim)
	if err != nil {
		return err
	}

	tr := guidance.Transform{BlurSigma: sigma, BlurThreshold: threshold, Height: height, Width: width}
	h, w, err := tr.Downscale(seq)
	if err != nil {
		return err
	}

	y, err := tr.Apply(x, heads)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "grid %dx%d, sigma %s", h, w, formatFloat(tr.Sigma()))
	if tr.Infinite() {
		fmt.Fprintln(out, ", infinite")
	} else {
		fmt.Fprintf(out, ", kernel %d\n", min(tr.KernelSize(), w-(w%2-1)))
	}

	opts := ml.DumpOptions{Items: items, Precision: 4}
	fmt.Fprintf(out, "input %v %s\n%s\n", x.Shape(), x.DType(), ml.Dump(x, opts))
	fmt.Fprintf(out, "output %v %s\n%s\n", y.Shape(), y.DType(), ml.Dump(y, opts))
	return nil
}

// sampleProjection fills a tensor with a smooth deterministic pattern.
func sampleProjection(dtype ml.DType, shape ...int) (*ml.Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = float32(math.Sin(float64(i) * 0.37))
	}

	return ml.NewTensor(dtype, data, shape...)
}
