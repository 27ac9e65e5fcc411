package voxstyle

import (
	"fmt"

	"github.com/voxstyle/voxstyle/ml"
	"github.com/voxstyle/voxstyle/ml/nn"
)

// DecoderOptions sizes the decoder. The residual stack runs at
// BottomDim<<Upsample channels, the width of the content feature map it
// consumes; each upsample stage halves the width.
type DecoderOptions struct {
	BottomDim      int
	ResidualBlocks int
	Upsample       int
	OutChannels    int

	Activation nn.ActivationKind
	PadMode    ml.PadMode
}

func DefaultDecoderOptions() DecoderOptions {
	return DecoderOptions{
		BottomDim:      32,
		ResidualBlocks: 3,
		Upsample:       2,
		OutChannels:    14,
		Activation:     nn.ActivationReLU,
		PadMode:        ml.PadReplicate,
	}
}

// Channels reports the content feature width the decoder expects.
func (o DecoderOptions) Channels() int {
	return o.BottomDim << o.Upsample
}

// Decoder reconstructs a volume from a content feature map, injecting
// style through adaptive normalization in its residual stack. The decoder
// owns no normalization parameters for those layers; each forward pass
// supplies them through a StyleParams provider. The terminal tanh bounds
// outputs to (-1, 1).
type Decoder struct {
	Residual *nn.ResidualBlockStack
	Up       []*nn.ConvBlock
	Out      *nn.ConvBlock

	opts DecoderOptions
}

func NewDecoder(ctx ml.Context, opts DecoderOptions) (*Decoder, error) {
	switch {
	case opts.BottomDim < 1:
		return nil, fmt.Errorf("invalid bottom dimension %d", opts.BottomDim)
	case opts.Upsample < 1:
		return nil, fmt.Errorf("invalid upsample count %d", opts.Upsample)
	case opts.OutChannels < 1:
		return nil, fmt.Errorf("invalid output channels %d", opts.OutChannels)
	}

	m := &Decoder{opts: opts}

	var err error
	m.Residual, err = nn.NewResidualBlockStack(ctx, opts.ResidualBlocks, nn.ResidualConfig{
		Channels:   opts.Channels(),
		Norm:       nn.NormAdaptive,
		Activation: opts.Activation,
		PadMode:    opts.PadMode,
	})
	if err != nil {
		return nil, err
	}

	width := opts.Channels()
	for i := 0; i < opts.Upsample; i++ {
		block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
			InChannels:  width,
			OutChannels: width / 2,
			KernelSize:  5,
			Stride:      1,
			Padding:     2,
			Norm:        nn.NormLayer,
			Activation:  opts.Activation,
			PadMode:     opts.PadMode,
		})
		if err != nil {
			return nil, err
		}
		m.Up = append(m.Up, block)
		width /= 2
	}

	m.Out, err = nn.NewConvBlock(ctx, nn.ConvBlockConfig{
		InChannels:  width,
		OutChannels: opts.OutChannels,
		KernelSize:  7,
		Stride:      1,
		Padding:     3,
		Activation:  nn.ActivationTanh,
		PadMode:     opts.PadMode,
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NumStylePairs reports how many scale/shift pairs a StyleParams provider
// must supply, two per residual block.
func (m *Decoder) NumStylePairs() int {
	return m.Residual.NumStylePairs()
}

func (m *Decoder) Forward(ctx ml.Context, t ml.Tensor, style nn.StyleParams) ml.Tensor {
	t = m.Residual.ForwardStyled(ctx, t, style)

	for _, block := range m.Up {
		t = block.Forward(ctx, t.Upsample3D(ctx, 2))
	}

	return m.Out.Forward(ctx, t)
}

func (m *Decoder) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	merge(params, "residual", m.Residual.Parameters())
	for i, block := range m.Up {
		merge(params, fmt.Sprintf("up.%d", i), block.Parameters())
	}
	merge(params, "out", m.Out.Parameters())
	return params
}

// StyleMLP maps a style code to the scale/shift pairs the decoder's
// adaptive norms consume: a small fully connected trunk shared across
// pairs, then one head per pair producing 2×channels values.
type StyleMLP struct {
	Hidden []*nn.Linear
	Heads  []*nn.Linear

	channels []int
}

// NewStyleMLP builds a provider factory for the given pair widths,
// typically the decoder's residual width repeated NumStylePairs times.
func NewStyleMLP(ctx ml.Context, styleDim, hiddenDim, hiddenLayers int, channels []int) (*StyleMLP, error) {
	switch {
	case styleDim < 1:
		return nil, fmt.Errorf("invalid style dimension %d", styleDim)
	case hiddenDim < 1:
		return nil, fmt.Errorf("invalid hidden dimension %d", hiddenDim)
	case hiddenLayers < 1:
		return nil, fmt.Errorf("invalid hidden layer count %d", hiddenLayers)
	case len(channels) == 0:
		return nil, fmt.Errorf("no style pairs requested")
	}

	m := &StyleMLP{channels: append([]int(nil), channels...)}

	in := styleDim
	for i := 0; i < hiddenLayers; i++ {
		m.Hidden = append(m.Hidden, nn.NewLinear(ctx, in, hiddenDim))
		in = hiddenDim
	}

	for _, c := range channels {
		if c < 1 {
			return nil, fmt.Errorf("invalid pair width %d", c)
		}
		m.Heads = append(m.Heads, nn.NewLinear(ctx, hiddenDim, 2*c))
	}

	return m, nil
}

// Params binds the provider to one style code, shaped (b, style_dim) or
// (b, style_dim, 1, 1, 1).
func (m *StyleMLP) Params(ctx ml.Context, style ml.Tensor) nn.StyleParams {
	if len(style.Shape()) == 5 {
		style = style.Reshape(ctx, style.Dim(0), style.Dim(1))
	}

	t := style
	for _, layer := range m.Hidden {
		t = layer.Forward(ctx, t).RELU(ctx)
	}

	batch := t.Dim(0)
	bound := &boundStyle{pairs: make([][2]ml.Tensor, len(m.Heads))}
	for i, head := range m.Heads {
		c := m.channels[i]
		out := head.Forward(ctx, t)
		bound.pairs[i][0] = out.Narrow(ctx, 1, 0, c).Reshape(ctx, batch, c, 1, 1, 1)
		bound.pairs[i][1] = out.Narrow(ctx, 1, c, c).Reshape(ctx, batch, c, 1, 1, 1)
	}

	return bound
}

func (m *StyleMLP) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	for i, layer := range m.Hidden {
		merge(params, fmt.Sprintf("hidden.%d", i), layer.Parameters())
	}
	for i, head := range m.Heads {
		merge(params, fmt.Sprintf("heads.%d", i), head.Parameters())
	}
	return params
}

type boundStyle struct {
	pairs [][2]ml.Tensor
}

func (s *boundStyle) Pair(i int) (scale, shift ml.Tensor) {
	return s.pairs[i][0], s.pairs[i][1]
}
