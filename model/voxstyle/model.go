// Package voxstyle assembles the 3D style/content translation networks: a
// style encoder and content encoder that disentangle a volume into a
// compact style code and a spatial content map, a decoder that recombines
// them through adaptively normalized residual blocks, and a multi-scale
// discriminator for the adversarial objective.
package voxstyle

import (
	"fmt"

	"github.com/voxstyle/voxstyle/ml"
	"github.com/voxstyle/voxstyle/ml/nn"
	"github.com/voxstyle/voxstyle/ml/nn/pooling"
)

// StyleEncoderOptions sizes the style tower. Downsample counts stride-2
// stages; the first two double the channel width, the rest keep it fixed.
type StyleEncoderOptions struct {
	InChannels int
	Downsample int
	StyleDim   int
	BottomDim  int

	Activation nn.ActivationKind
	PadMode    ml.PadMode
}

func DefaultStyleEncoderOptions() StyleEncoderOptions {
	return StyleEncoderOptions{
		InChannels: 14,
		Downsample: 4,
		StyleDim:   8,
		BottomDim:  32,
		Activation: nn.ActivationReLU,
		PadMode:    ml.PadReplicate,
	}
}

// StyleEncoder maps a (b, c, d, h, w) volume to a (b, style_dim, 1, 1, 1)
// style code. The tower carries no normalization so the appearance
// statistics the code summarizes survive to the pooling step.
type StyleEncoder struct {
	Blocks []*nn.ConvBlock
	Pool   pooling.Type
	Proj   *nn.Conv3D

	opts StyleEncoderOptions
}

func NewStyleEncoder(ctx ml.Context, opts StyleEncoderOptions) (*StyleEncoder, error) {
	switch {
	case opts.InChannels < 1:
		return nil, fmt.Errorf("invalid input channels %d", opts.InChannels)
	case opts.Downsample < 2:
		return nil, fmt.Errorf("style encoder needs at least 2 downsample stages, got %d", opts.Downsample)
	case opts.StyleDim < 1:
		return nil, fmt.Errorf("invalid style dimension %d", opts.StyleDim)
	case opts.BottomDim < 1:
		return nil, fmt.Errorf("invalid bottom dimension %d", opts.BottomDim)
	}

	m := &StyleEncoder{Pool: pooling.TypeGlobalAvg, opts: opts}

	block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
		InChannels:  opts.InChannels,
		OutChannels: opts.BottomDim,
		KernelSize:  7,
		Stride:      1,
		Padding:     3,
		Activation:  opts.Activation,
		PadMode:     opts.PadMode,
	})
	if err != nil {
		return nil, err
	}
	m.Blocks = append(m.Blocks, block)

	width := opts.BottomDim
	for i := 0; i < opts.Downsample; i++ {
		out := width
		if i < 2 {
			out = 2 * width
		}

		block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
			InChannels:  width,
			OutChannels: out,
			KernelSize:  4,
			Stride:      2,
			Padding:     1,
			Activation:  opts.Activation,
			PadMode:     opts.PadMode,
		})
		if err != nil {
			return nil, err
		}
		m.Blocks = append(m.Blocks, block)
		width = out
	}

	m.Proj = nn.NewConv3D(ctx, width, opts.StyleDim, 1)
	return m, nil
}

func (m *StyleEncoder) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	for _, block := range m.Blocks {
		t = block.Forward(ctx, t)
	}

	t = m.Pool.Forward(ctx, t)
	return m.Proj.Forward(ctx, t, 1)
}

func (m *StyleEncoder) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	for i, block := range m.Blocks {
		merge(params, fmt.Sprintf("blocks.%d", i), block.Parameters())
	}
	merge(params, "proj", m.Proj.Parameters())
	return params
}

// ContentEncoderOptions sizes the content tower. Every downsample stage
// doubles the channel width.
type ContentEncoderOptions struct {
	InChannels     int
	Downsample     int
	BottomDim      int
	ResidualBlocks int

	Activation nn.ActivationKind
	PadMode    ml.PadMode
}

func DefaultContentEncoderOptions() ContentEncoderOptions {
	return ContentEncoderOptions{
		InChannels:     14,
		Downsample:     2,
		BottomDim:      32,
		ResidualBlocks: 4,
		Activation:     nn.ActivationReLU,
		PadMode:        ml.PadReplicate,
	}
}

// Channels reports the width of the content feature map.
func (o ContentEncoderOptions) Channels() int {
	return o.BottomDim << o.Downsample
}

// ContentEncoder maps a volume to a spatial content feature map. Instance
// normalization throughout discards per-sample appearance statistics so
// only structure remains.
type ContentEncoder struct {
	Blocks   []*nn.ConvBlock
	Residual *nn.ResidualBlockStack

	opts ContentEncoderOptions
}

func NewContentEncoder(ctx ml.Context, opts ContentEncoderOptions) (*ContentEncoder, error) {
	switch {
	case opts.InChannels < 1:
		return nil, fmt.Errorf("invalid input channels %d", opts.InChannels)
	case opts.Downsample < 1:
		return nil, fmt.Errorf("invalid downsample count %d", opts.Downsample)
	case opts.BottomDim < 1:
		return nil, fmt.Errorf("invalid bottom dimension %d", opts.BottomDim)
	}

	m := &ContentEncoder{opts: opts}

	block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
		InChannels:  opts.InChannels,
		OutChannels: opts.BottomDim,
		KernelSize:  7,
		Stride:      1,
		Padding:     3,
		Norm:        nn.NormInstance,
		Activation:  opts.Activation,
		PadMode:     opts.PadMode,
	})
	if err != nil {
		return nil, err
	}
	m.Blocks = append(m.Blocks, block)

	width := opts.BottomDim
	for i := 0; i < opts.Downsample; i++ {
		block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
			InChannels:  width,
			OutChannels: 2 * width,
			KernelSize:  4,
			Stride:      2,
			Padding:     1,
			Norm:        nn.NormInstance,
			Activation:  opts.Activation,
			PadMode:     opts.PadMode,
		})
		if err != nil {
			return nil, err
		}
		m.Blocks = append(m.Blocks, block)
		width *= 2
	}

	m.Residual, err = nn.NewResidualBlockStack(ctx, opts.ResidualBlocks, nn.ResidualConfig{
		Channels:   width,
		Norm:       nn.NormInstance,
		Activation: opts.Activation,
		PadMode:    opts.PadMode,
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *ContentEncoder) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	for _, block := range m.Blocks {
		t = block.Forward(ctx, t)
	}

	return m.Residual.Forward(ctx, t)
}

func (m *ContentEncoder) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	for i, block := range m.Blocks {
		merge(params, fmt.Sprintf("blocks.%d", i), block.Parameters())
	}
	merge(params, "residual", m.Residual.Parameters())
	return params
}

func merge(dst map[string]ml.Tensor, prefix string, src map[string]ml.Tensor) {
	for k, v := range src {
		dst[prefix+"."+k] = v
	}
}
