// Package ml defines the tensor abstraction the voxstyle networks are
// written against. A Backend owns long-lived storage (model parameters), a
// Context allocates transient tensors for a single forward pass, and Tensor
// exposes the operators the layers compose. Backends register themselves at
// init time; the reference implementation lives in ml/backend/dense.
package ml

import (
	"fmt"
)

// BackendParams configures backend construction.
type BackendParams struct {
	// Threads bounds how many goroutines a backend may use inside a single
	// operator. Zero or negative means one goroutine per available CPU.
	Threads int

	// Seed seeds parameter initialization. Contexts created from the same
	// backend draw from the same stream.
	Seed int64
}

type Backend interface {
	Name() string
	NewContext() Context
	Close()
}

var backends = make(map[string]func(BackendParams) (Backend, error))

func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

func NewBackend(name string, params BackendParams) (Backend, error) {
	if f, ok := backends[name]; ok {
		return f(params)
	}

	return nil, fmt.Errorf("unsupported backend %q", name)
}

// Context creates tensors. Contexts are not safe for concurrent use; create
// one per goroutine. Tensors allocated from a Context are released when it
// is closed, except those copied into longer-lived tensors first.
type Context interface {
	Empty(dtype DType, shape ...int) Tensor
	Zeros(dtype DType, shape ...int) Tensor
	FromFloatSlice(s []float32, shape ...int) (Tensor, error)
	FromFloat16Slice(s []uint16, shape ...int) (Tensor, error)

	// Arange returns a 1D float32 tensor of evenly spaced values in
	// [start, stop).
	Arange(start, stop, step float32) Tensor

	// Rand returns a float32 tensor of uniform values in [-1, 1).
	Rand(shape ...int) Tensor

	Close()
}

// PadMode selects how Pad3D fills the margin around a volume.
type PadMode int

const (
	PadZero PadMode = iota
	PadReflect
	PadReplicate
	PadCircular
)

func (m PadMode) String() string {
	switch m {
	case PadZero:
		return "zero"
	case PadReflect:
		return "reflect"
	case PadReplicate:
		return "replicate"
	case PadCircular:
		return "circular"
	default:
		return "unknown"
	}
}

// Valid reports whether m names a defined padding mode.
func (m PadMode) Valid() bool {
	return m >= PadZero && m <= PadCircular
}

// Tensor is a dense N-dimensional float array. Volumes are shaped
// (batch, channels, depth, height, width) with Dim(0) the batch axis.
//
// Operators return new tensors and never mutate their receiver, with the
// exception of Copy. Misuse (wrong arity, incompatible shapes) panics;
// configuration validation belongs to the layer constructors, not here.
type Tensor interface {
	Dim(n int) int
	Shape() []int
	DType() DType

	// Floats returns the values as float32, decoding the storage dtype if
	// necessary.
	Floats() []float32
	Bytes() []byte

	Add(ctx Context, t2 Tensor) Tensor
	Sub(ctx Context, t2 Tensor) Tensor
	Mul(ctx Context, t2 Tensor) Tensor
	Scale(ctx Context, s float64) Tensor
	Neg(ctx Context) Tensor

	// Mulmat multiplies the receiver, a (rows, cols) weight matrix, with a
	// (batch, cols) input, producing (batch, rows).
	Mulmat(ctx Context, t2 Tensor) Tensor

	// Mean averages over the given axes, keeping them as size-1 dims. With
	// no axes it averages over every axis.
	Mean(ctx Context, dims ...int) Tensor

	// Pad3D pads the three spatial axes of a 5D volume by p on each face.
	Pad3D(ctx Context, p int, mode PadMode) Tensor

	// Conv3D applies the receiver, a (out, in, k, k, k) kernel, to a
	// (batch, in, d, h, w) volume with the given stride and no padding.
	Conv3D(ctx Context, t2 Tensor, stride int) Tensor

	// AvgPool3D average-pools the spatial axes with a cubic window. When
	// countIncludePad is false, zero-padded cells do not contribute to the
	// divisor.
	AvgPool3D(ctx Context, kernel, stride, padding int, countIncludePad bool) Tensor

	// Upsample3D scales the spatial axes by an integer factor using
	// nearest-neighbor interpolation.
	Upsample3D(ctx Context, scale int) Tensor

	// BatchNorm normalizes each channel over batch and spatial axes.
	// InstanceNorm normalizes each (sample, channel) over spatial axes.
	// LayerNorm normalizes each sample over all non-batch axes. The
	// optional per-channel weight and bias may be nil.
	BatchNorm(ctx Context, w, b Tensor, eps float32) Tensor
	InstanceNorm(ctx Context, w, b Tensor, eps float32) Tensor
	LayerNorm(ctx Context, w, b Tensor, eps float32) Tensor

	RELU(ctx Context) Tensor
	LeakyRELU(ctx Context, negativeSlope float32) Tensor
	SELU(ctx Context) Tensor
	Tanh(ctx Context) Tensor

	Reshape(ctx Context, shape ...int) Tensor

	// Narrow copies a contiguous slice of length n starting at offset along
	// the given axis.
	Narrow(ctx Context, dim, offset, n int) Tensor

	// Copy writes the receiver's values into t2 and returns t2. Shapes must
	// hold the same number of elements.
	Copy(ctx Context, t2 Tensor) Tensor
}

type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeOther
)
