package nn

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/voxstyle/voxstyle/ml"
)

// Conv3D is a bare learned convolution. Weight is (out, in, k, k, k); the
// optional bias is per output channel.
type Conv3D struct {
	Weight ml.Tensor
	Bias   ml.Tensor
}

// NewConv3D allocates a convolution with uniform init bounded by
// 1/sqrt(fan-in), torch's default for conv layers.
func NewConv3D(ctx ml.Context, in, out, kernel int) *Conv3D {
	limit := 1 / math32.Sqrt(float32(in*kernel*kernel*kernel))
	return &Conv3D{
		Weight: ctx.Rand(out, in, kernel, kernel, kernel).Scale(ctx, float64(limit)),
		Bias:   ctx.Rand(out).Scale(ctx, float64(limit)),
	}
}

func (m *Conv3D) Forward(ctx ml.Context, t ml.Tensor, stride int) ml.Tensor {
	t = m.Weight.Conv3D(ctx, t, stride)
	if m.Bias != nil {
		t = t.Add(ctx, m.Bias.Reshape(ctx, 1, m.Bias.Dim(0), 1, 1, 1))
	}

	return t
}

func (m *Conv3D) Parameters() map[string]ml.Tensor {
	return map[string]ml.Tensor{"weight": m.Weight, "bias": m.Bias}
}

// ConvBlockConfig describes one padded convolution block. The zero value of
// Norm and Activation means none; PadMode defaults to zero padding.
type ConvBlockConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int

	Norm       NormKind
	Activation ActivationKind
	PadMode    ml.PadMode

	// StyleIndex keys the scale/shift pair when Norm is NormAdaptive.
	StyleIndex int
}

// ConvBlock pads, convolves, then optionally normalizes and activates.
type ConvBlock struct {
	Conv       *Conv3D
	Norm       Norm
	Adaptive   *AdaptiveNorm
	Activation Activation

	stride  int
	padding int
	padMode ml.PadMode
}

func NewConvBlock(ctx ml.Context, config ConvBlockConfig) (*ConvBlock, error) {
	switch {
	case config.InChannels < 1 || config.OutChannels < 1:
		return nil, fmt.Errorf("invalid channels %d -> %d", config.InChannels, config.OutChannels)
	case config.KernelSize < 1:
		return nil, fmt.Errorf("invalid kernel size %d", config.KernelSize)
	case config.Stride < 1:
		return nil, fmt.Errorf("invalid stride %d", config.Stride)
	case config.Padding < 0:
		return nil, fmt.Errorf("invalid padding %d", config.Padding)
	case !config.PadMode.Valid():
		return nil, fmt.Errorf("unknown padding mode %d", config.PadMode)
	}

	m := &ConvBlock{
		Conv:    NewConv3D(ctx, config.InChannels, config.OutChannels, config.KernelSize),
		stride:  config.Stride,
		padding: config.Padding,
		padMode: config.PadMode,
	}

	switch config.Norm {
	case NormNone:
	case NormAdaptive:
		m.Adaptive = &AdaptiveNorm{Index: config.StyleIndex, Eps: defaultEps}
	default:
		norm, err := NewNorm(ctx, config.Norm, config.OutChannels)
		if err != nil {
			return nil, err
		}
		m.Norm = norm
	}

	activation, err := NewActivation(ctx, config.Activation)
	if err != nil {
		return nil, err
	}
	m.Activation = activation

	return m, nil
}

func (m *ConvBlock) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return m.forward(ctx, t, nil)
}

// ForwardStyled is Forward with a style provider for adaptive
// normalization.
func (m *ConvBlock) ForwardStyled(ctx ml.Context, t ml.Tensor, style StyleParams) ml.Tensor {
	return m.forward(ctx, t, style)
}

func (m *ConvBlock) forward(ctx ml.Context, t ml.Tensor, style StyleParams) ml.Tensor {
	if m.padding > 0 {
		t = t.Pad3D(ctx, m.padding, m.padMode)
	}

	t = m.Conv.Forward(ctx, t, m.stride)

	switch {
	case m.Adaptive != nil:
		if style == nil {
			panic("conv block with adaptive norm requires style parameters")
		}
		t = m.Adaptive.Forward(ctx, t, style)
	case m.Norm != nil:
		t = m.Norm.Forward(ctx, t)
	}

	return m.Activation.Forward(ctx, t)
}

func (m *ConvBlock) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	merge(params, "conv", m.Conv.Parameters())
	if m.Norm != nil {
		merge(params, "norm", m.Norm.Parameters())
	}
	if p, ok := m.Activation.(*PReLU); ok {
		merge(params, "activation", p.Parameters())
	}

	return params
}

func merge(dst map[string]ml.Tensor, prefix string, src map[string]ml.Tensor) {
	for k, v := range src {
		dst[prefix+"."+k] = v
	}
}
