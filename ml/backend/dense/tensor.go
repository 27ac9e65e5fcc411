package dense

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"github.com/pdevine/tensor"
	"github.com/x448/float16"

	"github.com/voxstyle/voxstyle/ml"
)

type Tensor struct {
	c *Context
	t *tensor.Dense

	dtype ml.DType
}

func newTensor(c *Context, shape []int, data []float32) *Tensor {
	return &Tensor{
		c:     c,
		t:     tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
		dtype: ml.DTypeF32,
	}
}

func newTensorF16(c *Context, shape []int, data []uint16) *Tensor {
	return &Tensor{
		c:     c,
		t:     tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
		dtype: ml.DTypeF16,
	}
}

func (t *Tensor) Dim(n int) int {
	return t.t.Shape()[n]
}

func (t *Tensor) Shape() []int {
	return append([]int(nil), t.t.Shape()...)
}

func (t *Tensor) DType() ml.DType {
	return t.dtype
}

// floats returns the backing values as float32. For float32 tensors this is
// the live backing array, not a copy.
func (t *Tensor) floats() []float32 {
	switch t.dtype {
	case ml.DTypeF32:
		return t.t.Data().([]float32)
	case ml.DTypeF16:
		return decode(t.t.Data().([]uint16))
	default:
		panic("unsupported dtype")
	}
}

func (t *Tensor) Floats() []float32 {
	s := make([]float32, elements(t.t.Shape()))
	copy(s, t.floats())
	return s
}

func (t *Tensor) Bytes() []byte {
	s := t.floats()
	bts := make([]byte, 4*len(s))
	for i, v := range s {
		bits := math.Float32bits(v)
		bts[4*i] = byte(bits)
		bts[4*i+1] = byte(bits >> 8)
		bts[4*i+2] = byte(bits >> 16)
		bts[4*i+3] = byte(bits >> 24)
	}

	return bts
}

func (t *Tensor) Add(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binop(ctx, t2, func(a, b float32) float32 { return a + b })
}

func (t *Tensor) Sub(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binop(ctx, t2, func(a, b float32) float32 { return a - b })
}

func (t *Tensor) Mul(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return t.binop(ctx, t2, func(a, b float32) float32 { return a * b })
}

// binop applies f elementwise. t2 must either hold a single element or have
// the receiver's rank with every axis equal or 1; size-1 axes broadcast.
func (t *Tensor) binop(ctx ml.Context, t2 ml.Tensor, f func(a, b float32) float32) ml.Tensor {
	a, b := t.floats(), t2.(*Tensor).floats()
	shape, shape2 := t.t.Shape(), t2.(*Tensor).t.Shape()

	out := make([]float32, len(a))
	if len(b) == 1 {
		for i, v := range a {
			out[i] = f(v, b[0])
		}

		return newTensor(ctx.(*Context), shape, out)
	}

	if len(shape) != len(shape2) {
		panic(fmt.Sprintf("shape mismatch %v %v", shape, shape2))
	}

	strides2 := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		switch shape2[i] {
		case shape[i]:
			strides2[i] = stride
		case 1:
			strides2[i] = 0
		default:
			panic(fmt.Sprintf("shape mismatch %v %v", shape, shape2))
		}
		stride *= shape2[i]
	}

	index := make([]int, len(shape))
	for i, j := 0, 0; i < len(a); i++ {
		out[i] = f(a[i], b[j])

		for axis := len(shape) - 1; axis >= 0; axis-- {
			index[axis]++
			j += strides2[axis]
			if index[axis] < shape[axis] {
				break
			}

			j -= index[axis] * strides2[axis]
			index[axis] = 0
		}
	}

	return newTensor(ctx.(*Context), shape, out)
}

func (t *Tensor) Scale(ctx ml.Context, s float64) ml.Tensor {
	return t.mapped(ctx, func(v float32) float32 { return v * float32(s) })
}

func (t *Tensor) Neg(ctx ml.Context) ml.Tensor {
	return t.mapped(ctx, func(v float32) float32 { return -v })
}

func (t *Tensor) RELU(ctx ml.Context) ml.Tensor {
	return t.mapped(ctx, func(v float32) float32 { return max(v, 0) })
}

func (t *Tensor) LeakyRELU(ctx ml.Context, negativeSlope float32) ml.Tensor {
	return t.mapped(ctx, func(v float32) float32 {
		if v < 0 {
			return negativeSlope * v
		}
		return v
	})
}

const (
	seluScale = 1.0507009873554805
	seluAlpha = 1.6732632423543772
)

func (t *Tensor) SELU(ctx ml.Context) ml.Tensor {
	return t.mapped(ctx, func(v float32) float32 {
		if v < 0 {
			return seluScale * seluAlpha * (math32.Exp(v) - 1)
		}
		return seluScale * v
	})
}

func (t *Tensor) Tanh(ctx ml.Context) ml.Tensor {
	return t.mapped(ctx, math32.Tanh)
}

func (t *Tensor) mapped(ctx ml.Context, f func(float32) float32) ml.Tensor {
	s := t.floats()
	out := make([]float32, len(s))
	for i, v := range s {
		out[i] = f(v)
	}

	return newTensor(ctx.(*Context), t.t.Shape(), out)
}

func (t *Tensor) Mulmat(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	w, x := t, t2.(*Tensor)
	if len(w.t.Shape()) != 2 || len(x.t.Shape()) != 2 {
		panic("mulmat requires 2D tensors")
	}
	if w.t.Shape()[1] != x.t.Shape()[1] {
		panic(fmt.Sprintf("mulmat shape mismatch %v %v", w.t.Shape(), x.t.Shape()))
	}

	wt := tensor.New(tensor.WithShape(w.t.Shape()...), tensor.WithBacking(w.floats()))
	if err := wt.T(); err != nil {
		panic(err)
	}
	if err := wt.Transpose(); err != nil {
		panic(err)
	}

	xd := tensor.New(tensor.WithShape(x.t.Shape()...), tensor.WithBacking(x.floats()))
	out, err := tensor.MatMul(xd, wt)
	if err != nil {
		panic(err)
	}

	return &Tensor{c: ctx.(*Context), t: out.(*tensor.Dense), dtype: ml.DTypeF32}
}

func (t *Tensor) Mean(ctx ml.Context, dims ...int) ml.Tensor {
	shape := t.t.Shape()
	if len(dims) == 0 {
		for i := range shape {
			dims = append(dims, i)
		}
	}

	reduced := make([]bool, len(shape))
	for _, d := range dims {
		if d < 0 || d >= len(shape) {
			panic(fmt.Sprintf("invalid axis %d for shape %v", d, shape))
		}
		reduced[d] = true
	}

	outShape := make([]int, len(shape))
	for i, d := range shape {
		if reduced[i] {
			outShape[i] = 1
		} else {
			outShape[i] = d
		}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		if reduced[i] {
			strides[i] = 0
		} else {
			strides[i] = stride
			stride *= shape[i]
		}
	}

	sums := make([]float64, elements(outShape))
	s := t.floats()
	index := make([]int, len(shape))
	for i, j := 0, 0; i < len(s); i++ {
		sums[j] += float64(s[i])

		for axis := len(shape) - 1; axis >= 0; axis-- {
			index[axis]++
			j += strides[axis]
			if index[axis] < shape[axis] {
				break
			}

			j -= index[axis] * strides[axis]
			index[axis] = 0
		}
	}

	n := float64(len(s)) / float64(len(sums))
	out := make([]float32, len(sums))
	for i, v := range sums {
		out[i] = float32(v / n)
	}

	return newTensor(ctx.(*Context), outShape, out)
}

func (t *Tensor) Reshape(ctx ml.Context, shape ...int) ml.Tensor {
	if elements(shape) != elements(t.t.Shape()) {
		panic(fmt.Sprintf("cannot reshape %v to %v", t.t.Shape(), shape))
	}

	return newTensor(ctx.(*Context), shape, t.floats())
}

func (t *Tensor) Narrow(ctx ml.Context, dim, offset, n int) ml.Tensor {
	shape := t.t.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("invalid axis %d for shape %v", dim, shape))
	}
	if offset < 0 || n < 1 || offset+n > shape[dim] {
		panic(fmt.Sprintf("invalid slice [%d:%d] of axis %d in shape %v", offset, offset+n, dim, shape))
	}

	inner := 1
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}

	outShape := append([]int(nil), shape...)
	outShape[dim] = n

	s := t.floats()
	out := make([]float32, 0, elements(outShape))
	for i := 0; i < outer; i++ {
		base := (i*shape[dim] + offset) * inner
		out = append(out, s[base:base+n*inner]...)
	}

	return newTensor(ctx.(*Context), outShape, out)
}

func (t *Tensor) Copy(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	dst := t2.(*Tensor)
	if elements(t.t.Shape()) != elements(dst.t.Shape()) {
		panic(fmt.Sprintf("cannot copy %v into %v", t.t.Shape(), dst.t.Shape()))
	}

	switch dst.dtype {
	case ml.DTypeF32:
		copy(dst.t.Data().([]float32), t.floats())
	case ml.DTypeF16:
		data := dst.t.Data().([]uint16)
		for i, v := range t.floats() {
			data[i] = float16.Fromfloat32(v).Bits()
		}
	default:
		panic("unsupported dtype")
	}

	return dst
}
