package dense

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/voxstyle/voxstyle/ml"
)

// The three norms differ only in which axes the statistics pool over:
// batch norm pools (batch, spatial) per channel, instance norm pools
// spatial per (sample, channel), layer norm pools everything but batch.
// The optional weight and bias are per-channel.

func (t *Tensor) BatchNorm(ctx ml.Context, w, b ml.Tensor, eps float32) ml.Tensor {
	shape := t.t.Shape()
	if len(shape) != 5 {
		panic("batchnorm requires a 5D tensor")
	}

	batch, channels := shape[0], shape[1]
	spatial := shape[2] * shape[3] * shape[4]

	s := t.floats()
	out := make([]float32, len(s))
	for c := 0; c < channels; c++ {
		var sum, sumsq float64
		for n := 0; n < batch; n++ {
			base := (n*channels + c) * spatial
			for _, v := range s[base : base+spatial] {
				sum += float64(v)
				sumsq += float64(v) * float64(v)
			}
		}

		mean, inv := moments(sum, sumsq, batch*spatial, eps)
		for n := 0; n < batch; n++ {
			base := (n*channels + c) * spatial
			for i, v := range s[base : base+spatial] {
				out[base+i] = (v - mean) * inv
			}
		}
	}

	return affine(ctx.(*Context), shape, out, w, b)
}

func (t *Tensor) InstanceNorm(ctx ml.Context, w, b ml.Tensor, eps float32) ml.Tensor {
	shape := t.t.Shape()
	if len(shape) != 5 {
		panic("instancenorm requires a 5D tensor")
	}

	batch, channels := shape[0], shape[1]
	spatial := shape[2] * shape[3] * shape[4]

	s := t.floats()
	out := make([]float32, len(s))
	for nc := 0; nc < batch*channels; nc++ {
		base := nc * spatial

		var sum, sumsq float64
		for _, v := range s[base : base+spatial] {
			sum += float64(v)
			sumsq += float64(v) * float64(v)
		}

		mean, inv := moments(sum, sumsq, spatial, eps)
		for i, v := range s[base : base+spatial] {
			out[base+i] = (v - mean) * inv
		}
	}

	return affine(ctx.(*Context), shape, out, w, b)
}

func (t *Tensor) LayerNorm(ctx ml.Context, w, b ml.Tensor, eps float32) ml.Tensor {
	shape := t.t.Shape()
	if len(shape) != 5 {
		panic("layernorm requires a 5D tensor")
	}

	batch := shape[0]
	sample := shape[1] * shape[2] * shape[3] * shape[4]

	s := t.floats()
	out := make([]float32, len(s))
	for n := 0; n < batch; n++ {
		base := n * sample

		var sum, sumsq float64
		for _, v := range s[base : base+sample] {
			sum += float64(v)
			sumsq += float64(v) * float64(v)
		}

		mean, inv := moments(sum, sumsq, sample, eps)
		for i, v := range s[base : base+sample] {
			out[base+i] = (v - mean) * inv
		}
	}

	return affine(ctx.(*Context), shape, out, w, b)
}

// moments turns running sums into the mean and inverse standard deviation.
// The variance is biased (divided by n), matching the convention the models
// were trained with.
func moments(sum, sumsq float64, n int, eps float32) (mean, inv float32) {
	m := sum / float64(n)
	v := sumsq/float64(n) - m*m
	if v < 0 {
		v = 0
	}

	return float32(m), 1 / math32.Sqrt(float32(v)+eps)
}

func affine(c *Context, shape []int, normalized []float32, w, b ml.Tensor) ml.Tensor {
	out := newTensor(c, shape, normalized)
	if w == nil && b == nil {
		return out
	}

	channels := shape[1]
	spatial := shape[2] * shape[3] * shape[4]
	if w != nil {
		ws := w.(*Tensor).floats()
		if len(ws) != channels {
			panic(fmt.Sprintf("norm weight has %d values for %d channels", len(ws), channels))
		}
		for i := range normalized {
			normalized[i] *= ws[i/spatial%channels]
		}
	}
	if b != nil {
		bs := b.(*Tensor).floats()
		if len(bs) != channels {
			panic(fmt.Sprintf("norm bias has %d values for %d channels", len(bs), channels))
		}
		for i := range normalized {
			normalized[i] += bs[i/spatial%channels]
		}
	}

	return out
}
