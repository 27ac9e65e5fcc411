package nn

import (
	"fmt"

	"github.com/voxstyle/voxstyle/ml"
)

// NormKind is the closed set of normalization schemes a block can carry.
type NormKind uint32

const (
	NormNone NormKind = iota
	NormBatch
	NormInstance
	NormLayer
	NormAdaptive
)

func (k NormKind) String() string {
	switch k {
	case NormNone:
		return "none"
	case NormBatch:
		return "bn"
	case NormInstance:
		return "in"
	case NormLayer:
		return "ln"
	case NormAdaptive:
		return "adain"
	default:
		return "unknown"
	}
}

const defaultEps = 1e-5

type Norm interface {
	Forward(ctx ml.Context, t ml.Tensor) ml.Tensor
	Parameters() map[string]ml.Tensor
}

// NewNorm resolves a fixed-parameter norm kind for the given channel width,
// with weight initialized to one and bias to zero. NormNone and
// NormAdaptive have no fixed parameters and are handled by the caller.
func NewNorm(ctx ml.Context, kind NormKind, channels int) (Norm, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	ones := make([]float32, channels)
	for i := range ones {
		ones[i] = 1
	}

	w, err := ctx.FromFloatSlice(ones, channels)
	if err != nil {
		return nil, err
	}
	b := ctx.Zeros(ml.DTypeF32, channels)

	switch kind {
	case NormBatch:
		return &BatchNorm{Weight: w, Bias: b, Eps: defaultEps}, nil
	case NormInstance:
		return &InstanceNorm{Weight: w, Bias: b, Eps: defaultEps}, nil
	case NormLayer:
		return &LayerNorm{Weight: w, Bias: b, Eps: defaultEps}, nil
	default:
		return nil, fmt.Errorf("unknown norm kind %d", kind)
	}
}

type BatchNorm struct {
	Weight ml.Tensor
	Bias   ml.Tensor
	Eps    float32
}

func (m *BatchNorm) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return t.BatchNorm(ctx, m.Weight, m.Bias, m.Eps)
}

func (m *BatchNorm) Parameters() map[string]ml.Tensor {
	return map[string]ml.Tensor{"weight": m.Weight, "bias": m.Bias}
}

type InstanceNorm struct {
	Weight ml.Tensor
	Bias   ml.Tensor
	Eps    float32
}

func (m *InstanceNorm) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return t.InstanceNorm(ctx, m.Weight, m.Bias, m.Eps)
}

func (m *InstanceNorm) Parameters() map[string]ml.Tensor {
	return map[string]ml.Tensor{"weight": m.Weight, "bias": m.Bias}
}

type LayerNorm struct {
	Weight ml.Tensor
	Bias   ml.Tensor
	Eps    float32
}

func (m *LayerNorm) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return t.LayerNorm(ctx, m.Weight, m.Bias, m.Eps)
}

func (m *LayerNorm) Parameters() map[string]ml.Tensor {
	return map[string]ml.Tensor{"weight": m.Weight, "bias": m.Bias}
}

// StyleParams supplies scale/shift pairs for adaptive normalization. Pair
// returns tensors broadcastable against a (batch, channels, d, h, w)
// feature map, typically shaped (batch, channels, 1, 1, 1). Providers are
// bound to one style vector for the duration of a forward pass.
type StyleParams interface {
	Pair(i int) (scale, shift ml.Tensor)
}

// AdaptiveNorm is instance normalization whose scale and shift come from a
// StyleParams provider instead of fixed weights. It owns no parameters.
type AdaptiveNorm struct {
	// Index keys this norm's pair within the provider.
	Index int
	Eps   float32
}

func (m *AdaptiveNorm) Forward(ctx ml.Context, t ml.Tensor, style StyleParams) ml.Tensor {
	scale, shift := style.Pair(m.Index)
	return t.InstanceNorm(ctx, nil, nil, m.Eps).Mul(ctx, scale).Add(ctx, shift)
}
