// Package dense is the pure-Go reference backend for ml. Tensors are
// contiguous float32 (or float16 for parameters) arrays held in
// github.com/pdevine/tensor dense containers; convolution lowers to im2col
// plus a single float32 GEMM.
package dense

import (
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync/atomic"

	"github.com/x448/float16"

	"github.com/voxstyle/voxstyle/ml"
)

func init() {
	ml.RegisterBackend("dense", New)
}

type Backend struct {
	threads int
	seed    int64

	contexts atomic.Int64
}

func New(params ml.BackendParams) (ml.Backend, error) {
	threads := params.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	slog.Debug("dense backend", "threads", threads, "seed", params.Seed)
	return &Backend{threads: threads, seed: params.Seed}, nil
}

func (b *Backend) Name() string {
	return "dense"
}

func (b *Backend) NewContext() ml.Context {
	return &Context{
		b:   b,
		rng: rand.New(rand.NewSource(b.seed + b.contexts.Add(1))),
	}
}

func (b *Backend) Close() {}

type Context struct {
	b   *Backend
	rng *rand.Rand
}

func (c *Context) Empty(dtype ml.DType, shape ...int) ml.Tensor {
	n := elements(shape)
	switch dtype {
	case ml.DTypeF32:
		return newTensor(c, shape, make([]float32, n))
	case ml.DTypeF16:
		return newTensorF16(c, shape, make([]uint16, n))
	default:
		panic("unsupported dtype")
	}
}

func (c *Context) Zeros(dtype ml.DType, shape ...int) ml.Tensor {
	return c.Empty(dtype, shape...)
}

func (c *Context) FromFloatSlice(s []float32, shape ...int) (ml.Tensor, error) {
	if len(s) != elements(shape) {
		return nil, fmt.Errorf("invalid shape %v for %d elements", shape, len(s))
	}

	data := make([]float32, len(s))
	copy(data, s)
	return newTensor(c, shape, data), nil
}

func (c *Context) FromFloat16Slice(s []uint16, shape ...int) (ml.Tensor, error) {
	if len(s) != elements(shape) {
		return nil, fmt.Errorf("invalid shape %v for %d elements", shape, len(s))
	}

	data := make([]uint16, len(s))
	copy(data, s)
	return newTensorF16(c, shape, data), nil
}

func (c *Context) Arange(start, stop, step float32) ml.Tensor {
	if step <= 0 {
		panic("arange requires a positive step")
	}

	data := make([]float32, 0, int((stop-start)/step)+1)
	for v := start; v < stop; v += step {
		data = append(data, v)
	}

	return newTensor(c, []int{len(data)}, data)
}

func (c *Context) Rand(shape ...int) ml.Tensor {
	data := make([]float32, elements(shape))
	for i := range data {
		data[i] = c.rng.Float32()*2 - 1
	}

	return newTensor(c, shape, data)
}

func (c *Context) Close() {}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("invalid shape %v", shape))
		}
		n *= d
	}

	return n
}

func decode(s []uint16) []float32 {
	f32s := make([]float32, len(s))
	for i, v := range s {
		f32s[i] = float16.Frombits(v).Float32()
	}

	return f32s
}
