package guidance

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ollama/seg/envconfig"
)

// MaxKernelSize bounds KernelSize. Blurs clamp the kernel to the plane
// width, so larger kernels never change the result.
const MaxKernelSize = math.MaxInt32

// KernelSize returns the odd kernel size covering ±3σ: ceil(6σ), rounded up
// to the next odd number when even, saturating at MaxKernelSize.
func KernelSize(sigma float64) int {
	if !(sigma > 0) {
		return 1
	}

	if 6*sigma >= MaxKernelSize {
		return MaxKernelSize
	}

	c := int(math.Ceil(6 * sigma))
	return c + 1 - c%2
}

// GaussianKernel1D samples a centered Gaussian at size evenly spaced points
// in [-(size-1)/2, (size-1)/2] and normalizes the weights to sum to one.
func GaussianKernel1D(size int, sigma float64) []float64 {
	if size < 1 {
		size = 1
	}

	half := float64(size-1) / 2
	kernel := make([]float64, size)

	var sum float64
	for i := range kernel {
		x := -half
		if size > 1 {
			x += float64(i) * (2 * half / float64(size-1))
		}
		kernel[i] = math.Exp(-0.5 * (x / sigma) * (x / sigma))
		sum += kernel[i]
	}

	for i := range kernel {
		kernel[i] /= sum
	}

	return kernel
}

// GaussianKernel2D is the outer product of the 1D kernel with itself, laid
// out row major.
func GaussianKernel2D(size int, sigma float64) []float64 {
	k := GaussianKernel1D(size, sigma)
	size = len(k)

	kernel := make([]float64, size*size)
	for y, ky := range k {
		for x, kx := range k {
			kernel[y*size+x] = ky * kx
		}
	}

	return kernel
}

// reflect maps i into [0, n) by mirroring at the borders without repeating
// the edge sample.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}

	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}

	return i
}

func checkPlanes(planes []float32, channels, height, width int) error {
	if channels <= 0 || height <= 0 || width <= 0 || len(planes) != channels*height*width {
		return fmt.Errorf("blur: %d values for %d channels of %dx%d", len(planes), channels, height, width)
	}
	return nil
}

// GaussianBlur2D convolves each of channels planes of height×width with a
// Gaussian kernel. The kernel size is clamped to the plane width and borders
// are reflect padded so the output has the input's shape. Channels are never
// mixed.
func GaussianBlur2D(planes []float32, channels, height, width, kernelSize int, sigma float64) ([]float32, error) {
	if err := checkPlanes(planes, channels, height, width); err != nil {
		return nil, err
	}

	kernelSize = max(1, min(kernelSize, width-(width%2-1)))
	kernel := GaussianKernel2D(kernelSize, sigma)
	pad := kernelSize / 2
	size := height * width

	// precompute reflected source indices for every padded row and column
	rows := make([]int, height+2*pad)
	for i := range rows {
		rows[i] = reflect(i-pad, height)
	}
	cols := make([]int, width+2*pad)
	for i := range cols {
		cols[i] = reflect(i-pad, width)
	}

	out := make([]float32, len(planes))

	var g errgroup.Group
	g.SetLimit(max(envconfig.NumParallel, 1))
	for c := range channels {
		g.Go(func() error {
			src := planes[c*size : (c+1)*size]
			dst := out[c*size : (c+1)*size]
			for y := range height {
				for x := range width {
					var sum float64
					for ky := range kernelSize {
						row := src[rows[y+ky]*width:]
						k := kernel[ky*kernelSize:]
						for kx := range kernelSize {
							sum += k[kx] * float64(row[cols[x+kx]])
						}
					}
					dst[y*width+x] = float32(sum)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// BlurInf replaces every position of each plane with the plane mean, the
// limit of a Gaussian blur as σ grows without bound.
func BlurInf(planes []float32, channels, height, width int) ([]float32, error) {
	if err := checkPlanes(planes, channels, height, width); err != nil {
		return nil, err
	}

	size := height * width
	out := make([]float32, len(planes))
	for c := range channels {
		var sum float64
		for _, v := range planes[c*size : (c+1)*size] {
			sum += float64(v)
		}

		mean := float32(sum / float64(size))
		for i := range size {
			out[c*size+i] = mean
		}
	}

	return out, nil
}
