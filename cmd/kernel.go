package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ollama/seg/envconfig"
	"github.com/ollama/seg/guidance"
)

// maxKernelRows is the largest kernel whose weights are printed.
const maxKernelRows = 1025

func NewKernelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kernel",
		Short: "Show the Gaussian kernel for a blur sigma",
		Args:  cobra.NoArgs,
		RunE:  kernelHandler,
	}

	cmd.Flags().Float64("sigma", guidance.DefaultParams().BlurSigma, "Blur sigma exponent (sigma = 2^n)")
	cmd.Flags().Float64("threshold", envconfig.BlurThreshold, "Exponent above which the blur is infinite")
	return cmd
}

func kernelHandler(cmd *cobra.Command, args []string) error {
	sigma, err := cmd.Flags().GetFloat64("sigma")
	if err != nil {
		return err
	}

	threshold, err := cmd.Flags().GetFloat64("threshold")
	if err != nil {
		return err
	}

	tr := guidance.Transform{BlurSigma: sigma, BlurThreshold: threshold}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sigma 2^%s = %s\n", formatFloat(sigma), formatFloat(tr.Sigma()))
	if tr.Infinite() {
		fmt.Fprintf(out, "infinite blur above threshold %s\n", formatFloat(threshold))
		return nil
	}

	size := tr.KernelSize()
	if size > maxKernelRows {
		fmt.Fprintf(out, "kernel size %d, too large to list (max %d)\n", size, maxKernelRows)
		return nil
	}
	fmt.Fprintf(out, "kernel size %d\n\n", size)

	table := newTable(cmd, "OFFSET", "WEIGHT")
	for i, w := range guidance.GaussianKernel1D(size, tr.Sigma()) {
		table.Append([]string{strconv.Itoa(i - size/2), strconv.FormatFloat(w, 'f', 6, 64)})
	}
	table.Render()
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
