package nn

import (
	"fmt"

	"github.com/voxstyle/voxstyle/ml"
)

// ResidualConfig describes one identity-preserving block: two kernel-3
// stride-1 convolutions at constant width with a skip connection. The
// geometry is fixed so the output shape always equals the input shape.
type ResidualConfig struct {
	Channels   int
	Norm       NormKind
	Activation ActivationKind
	PadMode    ml.PadMode

	// StyleIndex is the first of the two scale/shift pairs the block
	// consumes when Norm is NormAdaptive.
	StyleIndex int
}

type ResidualBlock struct {
	Conv1 *ConvBlock
	Conv2 *ConvBlock
}

func NewResidualBlock(ctx ml.Context, config ResidualConfig) (*ResidualBlock, error) {
	if config.Channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", config.Channels)
	}

	conv1, err := NewConvBlock(ctx, ConvBlockConfig{
		InChannels:  config.Channels,
		OutChannels: config.Channels,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
		Norm:        config.Norm,
		Activation:  config.Activation,
		PadMode:     config.PadMode,
		StyleIndex:  config.StyleIndex,
	})
	if err != nil {
		return nil, err
	}

	// The second convolution keeps the norm but defers activation to
	// whatever follows the skip.
	conv2, err := NewConvBlock(ctx, ConvBlockConfig{
		InChannels:  config.Channels,
		OutChannels: config.Channels,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
		Norm:        config.Norm,
		Activation:  ActivationNone,
		PadMode:     config.PadMode,
		StyleIndex:  config.StyleIndex + 1,
	})
	if err != nil {
		return nil, err
	}

	return &ResidualBlock{Conv1: conv1, Conv2: conv2}, nil
}

func (m *ResidualBlock) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return m.ForwardStyled(ctx, t, nil)
}

func (m *ResidualBlock) ForwardStyled(ctx ml.Context, t ml.Tensor, style StyleParams) ml.Tensor {
	residual := t
	t = m.Conv1.forward(ctx, t, style)
	t = m.Conv2.forward(ctx, t, style)
	return t.Add(ctx, residual)
}

func (m *ResidualBlock) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	merge(params, "conv1", m.Conv1.Parameters())
	merge(params, "conv2", m.Conv2.Parameters())
	return params
}

// ResidualBlockStack composes n residual blocks at one channel width. When
// the norm kind is adaptive, block i consumes style pairs 2i and 2i+1
// offset by the config's StyleIndex.
type ResidualBlockStack struct {
	Blocks []*ResidualBlock
}

func NewResidualBlockStack(ctx ml.Context, n int, config ResidualConfig) (*ResidualBlockStack, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid block count %d", n)
	}

	blocks := make([]*ResidualBlock, n)
	for i := range blocks {
		blockConfig := config
		blockConfig.StyleIndex = config.StyleIndex + 2*i

		block, err := NewResidualBlock(ctx, blockConfig)
		if err != nil {
			return nil, err
		}
		blocks[i] = block
	}

	return &ResidualBlockStack{Blocks: blocks}, nil
}

// NumStylePairs reports how many scale/shift pairs the stack consumes from
// a StyleParams provider.
func (m *ResidualBlockStack) NumStylePairs() int {
	return 2 * len(m.Blocks)
}

func (m *ResidualBlockStack) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	return m.ForwardStyled(ctx, t, nil)
}

func (m *ResidualBlockStack) ForwardStyled(ctx ml.Context, t ml.Tensor, style StyleParams) ml.Tensor {
	for _, block := range m.Blocks {
		t = block.ForwardStyled(ctx, t, style)
	}

	return t
}

func (m *ResidualBlockStack) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	for i, block := range m.Blocks {
		merge(params, fmt.Sprintf("blocks.%d", i), block.Parameters())
	}

	return params
}
