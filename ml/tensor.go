package ml

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

var ErrShapeMismatch = errors.New("ml: data does not match shape")

type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeBF16
)

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

// Size is the number of bytes one element occupies when encoded.
func (d DType) Size() int {
	switch d {
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 4
	}
}

func ParseDType(s string) (DType, error) {
	switch s {
	case "F32", "f32", "float32":
		return DTypeF32, nil
	case "F16", "f16", "float16":
		return DTypeF16, nil
	case "BF16", "bf16", "bfloat16":
		return DTypeBF16, nil
	}

	return DTypeF32, fmt.Errorf("unsupported dtype %q", s)
}

// Tensor is a dense activation owned by the host. Values are kept as float32
// but are always representable in the storage dtype.
type Tensor struct {
	dtype DType
	shape []int
	data  []float32
}

// NewTensor takes ownership of data and rounds it to dtype precision.
func NewTensor(dtype DType, data []float32, shape ...int) (*Tensor, error) {
	if len(data) != mul(shape...) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}

	t := &Tensor{dtype: dtype, shape: slices.Clone(shape), data: data}
	t.quantize()
	return t, nil
}

func Zeros(dtype DType, shape ...int) *Tensor {
	return &Tensor{dtype: dtype, shape: slices.Clone(shape), data: make([]float32, mul(shape...))}
}

func FromBytes(dtype DType, b []byte, shape ...int) (*Tensor, error) {
	n := mul(shape...)
	if len(b) != n*dtype.Size() {
		return nil, fmt.Errorf("%w: %d bytes for %s shape %v", ErrShapeMismatch, len(b), dtype, shape)
	}

	var f32s []float32
	switch dtype {
	case DTypeF16:
		f32s = make([]float32, n)
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(b[i*2:])).Float32()
		}
	case DTypeBF16:
		f32s = bfloat16.DecodeFloat32(b)
	default:
		f32s = make([]float32, n)
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	}

	return &Tensor{dtype: dtype, shape: slices.Clone(shape), data: f32s}, nil
}

func (t *Tensor) quantize() {
	switch t.dtype {
	case DTypeF16:
		for i, f := range t.data {
			t.data[i] = float16.Fromfloat32(f).Float32()
		}
	case DTypeBF16:
		for i, f := range t.data {
			t.data[i] = bfloat16.ToFloat32(bfloat16.FromFloat32(f))
		}
	}
}

func (t *Tensor) DType() DType { return t.dtype }

func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

func (t *Tensor) Dim(n int) int { return t.shape[n] }

// Floats returns the backing values. Callers must not modify them.
func (t *Tensor) Floats() []float32 { return t.data }

func (t *Tensor) Bytes() []byte {
	switch t.dtype {
	case DTypeF16:
		b := make([]byte, len(t.data)*2)
		for i, f := range t.data {
			binary.LittleEndian.PutUint16(b[i*2:], float16.Fromfloat32(f).Bits())
		}
		return b
	case DTypeBF16:
		return bfloat16.EncodeFloat32(t.data)
	default:
		b := make([]byte, len(t.data)*4)
		for i, f := range t.data {
			binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
		}
		return b
	}
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{dtype: t.dtype, shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// Equal reports whether both tensors have the same dtype, shape and values.
func (t *Tensor) Equal(o *Tensor) bool {
	return t.dtype == o.dtype && slices.Equal(t.shape, o.shape) && slices.Equal(t.data, o.data)
}

// Dense copies the tensor into a float32 dense tensor of the same shape.
func (t *Tensor) Dense() *tensor.Dense {
	return tensor.New(tensor.WithShape(t.shape...), tensor.WithBacking(slices.Clone(t.data)))
}

// FromDense materializes d and stores it with the given dtype.
func FromDense(dtype DType, d tensor.Tensor) (*Tensor, error) {
	shape := d.Shape().Clone()

	m, ok := tensor.Materialize(d).(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("ml: unsupported tensor type %T", d)
	}

	if err := m.Reshape(shape.TotalSize()); err != nil {
		return nil, err
	}
	defer m.Reshape(shape...) //nolint:errcheck

	f32s, err := native.VectorF32(m)
	if err != nil {
		return nil, err
	}

	return NewTensor(dtype, slices.Clone(f32s), shape...)
}

// Chunk splits t into n equal parts along the first dimension.
func (t *Tensor) Chunk(n int) ([]*Tensor, error) {
	if len(t.shape) == 0 || n <= 0 || t.shape[0]%n != 0 {
		return nil, fmt.Errorf("%w: cannot chunk shape %v into %d", ErrShapeMismatch, t.shape, n)
	}

	shape := slices.Clone(t.shape)
	shape[0] /= n
	size := mul(shape...)

	chunks := make([]*Tensor, n)
	for i := range chunks {
		chunks[i] = &Tensor{dtype: t.dtype, shape: slices.Clone(shape), data: slices.Clone(t.data[i*size : (i+1)*size])}
	}

	return chunks, nil
}

// Concat joins tensors along the first dimension. All tensors must share
// dtype and trailing dimensions.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: nothing to concat", ErrShapeMismatch)
	}

	shape := slices.Clone(ts[0].shape)
	var data []float32
	for i, t := range ts {
		if t.dtype != ts[0].dtype || !slices.Equal(t.shape[1:], ts[0].shape[1:]) {
			return nil, fmt.Errorf("%w: cannot concat %s%v with %s%v", ErrShapeMismatch, ts[0].dtype, ts[0].shape, t.dtype, t.shape)
		}
		if i > 0 {
			shape[0] += t.shape[0]
		}
		data = append(data, t.data...)
	}

	return &Tensor{dtype: ts[0].dtype, shape: shape, data: data}, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, %v)", t.dtype, t.shape)
}

func mul[T constraints.Integer | constraints.Float](s ...T) T {
	p := T(1)
	for _, v := range s {
		p *= v
	}

	return p
}
