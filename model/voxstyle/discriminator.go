package voxstyle

import (
	"fmt"

	"github.com/voxstyle/voxstyle/logutil"
	"github.com/voxstyle/voxstyle/ml"
	"github.com/voxstyle/voxstyle/ml/nn"
)

// DiscriminatorOptions sizes the critic ensemble. Layers counts the
// stride-2 stages per tower; Scales counts independently weighted towers,
// each applied to an input average-pooled once more than the last.
type DiscriminatorOptions struct {
	InChannels int
	BottomDim  int
	Layers     int
	Scales     int

	Norm       nn.NormKind
	Activation nn.ActivationKind
	PadMode    ml.PadMode
}

func DefaultDiscriminatorOptions() DiscriminatorOptions {
	return DiscriminatorOptions{
		InChannels: 14,
		BottomDim:  32,
		Layers:     4,
		Scales:     3,
		Norm:       nn.NormInstance,
		Activation: nn.ActivationLeakyReLU,
		PadMode:    ml.PadReplicate,
	}
}

type MultiScaleDiscriminator struct {
	Towers []*DiscriminatorTower

	opts DiscriminatorOptions
}

// DiscriminatorTower is one critic: stride-2 blocks that double in width,
// then a stride-1 projection to a single-channel score map.
type DiscriminatorTower struct {
	Blocks []*nn.ConvBlock
}

func NewMultiScaleDiscriminator(ctx ml.Context, opts DiscriminatorOptions) (*MultiScaleDiscriminator, error) {
	switch {
	case opts.InChannels < 1:
		return nil, fmt.Errorf("invalid input channels %d", opts.InChannels)
	case opts.BottomDim < 1:
		return nil, fmt.Errorf("invalid bottom dimension %d", opts.BottomDim)
	case opts.Layers < 1:
		return nil, fmt.Errorf("invalid layer count %d", opts.Layers)
	case opts.Scales < 1:
		return nil, fmt.Errorf("invalid scale count %d", opts.Scales)
	}

	m := &MultiScaleDiscriminator{opts: opts}
	for i := 0; i < opts.Scales; i++ {
		tower, err := newDiscriminatorTower(ctx, opts)
		if err != nil {
			return nil, err
		}
		m.Towers = append(m.Towers, tower)
	}

	return m, nil
}

func newDiscriminatorTower(ctx ml.Context, opts DiscriminatorOptions) (*DiscriminatorTower, error) {
	t := &DiscriminatorTower{}

	// The first stage skips normalization so the critic sees raw input
	// statistics.
	block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
		InChannels:  opts.InChannels,
		OutChannels: opts.BottomDim,
		KernelSize:  4,
		Stride:      2,
		Padding:     1,
		Activation:  opts.Activation,
		PadMode:     opts.PadMode,
	})
	if err != nil {
		return nil, err
	}
	t.Blocks = append(t.Blocks, block)

	width := opts.BottomDim
	for i := 0; i < opts.Layers-1; i++ {
		block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
			InChannels:  width,
			OutChannels: 2 * width,
			KernelSize:  4,
			Stride:      2,
			Padding:     1,
			Norm:        opts.Norm,
			Activation:  opts.Activation,
			PadMode:     opts.PadMode,
		})
		if err != nil {
			return nil, err
		}
		t.Blocks = append(t.Blocks, block)
		width *= 2
	}

	score, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
		InChannels:  width,
		OutChannels: 1,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
		PadMode:     ml.PadZero,
	})
	if err != nil {
		return nil, err
	}
	t.Blocks = append(t.Blocks, score)

	return t, nil
}

func (t *DiscriminatorTower) Forward(ctx ml.Context, x ml.Tensor) ml.Tensor {
	for _, block := range t.Blocks {
		x = block.Forward(ctx, x)
	}

	return x
}

// Forward returns one score map per scale, coarsest tower last. The
// running input is average-pooled (k3 s2 p1, padded cells excluded)
// between scales.
func (m *MultiScaleDiscriminator) Forward(ctx ml.Context, t ml.Tensor) []ml.Tensor {
	outputs := make([]ml.Tensor, 0, len(m.Towers))
	for i, tower := range m.Towers {
		score := tower.Forward(ctx, t)
		logutil.Trace("discriminator scale", "scale", i, "score", score.Shape(), "input", t.Shape())

		outputs = append(outputs, score)
		if i < len(m.Towers)-1 {
			t = t.AvgPool3D(ctx, 3, 2, 1, false)
		}
	}

	return outputs
}

// Loss is the least-squares adversarial objective: the sum over scales of
// the mean squared distance between each score map and the target, 1 for
// volumes the critic should accept and 0 for generated ones. The result is
// a single-element tensor.
func (m *MultiScaleDiscriminator) Loss(ctx ml.Context, t ml.Tensor, target float32) ml.Tensor {
	gt, err := ctx.FromFloatSlice([]float32{target}, 1)
	if err != nil {
		panic(err)
	}

	var loss ml.Tensor
	for _, score := range m.Forward(ctx, t) {
		diff := score.Sub(ctx, gt)
		mse := diff.Mul(ctx, diff).Mean(ctx).Reshape(ctx, 1)
		if loss == nil {
			loss = mse
		} else {
			loss = loss.Add(ctx, mse)
		}
	}

	return loss
}

func (m *MultiScaleDiscriminator) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	for i, tower := range m.Towers {
		for j, block := range tower.Blocks {
			merge(params, fmt.Sprintf("towers.%d.blocks.%d", i, j), block.Parameters())
		}
	}
	return params
}
