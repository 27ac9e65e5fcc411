package nn_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/voxstyle/voxstyle/ml"
	_ "github.com/voxstyle/voxstyle/ml/backend/dense"
	"github.com/voxstyle/voxstyle/ml/nn"
)

func setup(tb testing.TB) ml.Context {
	tb.Helper()

	b, err := ml.NewBackend("dense", ml.BackendParams{Seed: 42})
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(b.Close)

	ctx := b.NewContext()
	tb.Cleanup(ctx.Close)
	return ctx
}

// zero overwrites every parameter with zeros.
func zero(tb testing.TB, ctx ml.Context, params map[string]ml.Tensor) {
	tb.Helper()

	for _, p := range params {
		ctx.Zeros(ml.DTypeF32, p.Shape()...).Copy(ctx, p)
	}
}

func TestConvBlockOutputSize(t *testing.T) {
	ctx := setup(t)

	cases := []struct {
		size, kernel, stride, padding int
		want                          int
	}{
		{48, 7, 1, 3, 48},
		{48, 4, 2, 1, 24},
		{16, 3, 1, 1, 16},
		{16, 5, 1, 2, 16},
		{9, 3, 2, 1, 5},
		{8, 1, 1, 0, 8},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dk%ds%dp%d", tc.size, tc.kernel, tc.stride, tc.padding), func(t *testing.T) {
			block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
				InChannels:  2,
				OutChannels: 3,
				KernelSize:  tc.kernel,
				Stride:      tc.stride,
				Padding:     tc.padding,
				Norm:        nn.NormInstance,
				Activation:  nn.ActivationReLU,
				PadMode:     ml.PadReplicate,
			})
			if err != nil {
				t.Fatal(err)
			}

			got := block.Forward(ctx, ctx.Rand(2, 2, tc.size, tc.size, tc.size))
			if diff := cmp.Diff([]int{2, 3, tc.want, tc.want, tc.want}, got.Shape()); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestConvBlockBare(t *testing.T) {
	ctx := setup(t)

	// With no norm and no activation the block is just a padded convolution.
	block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
		InChannels:  2,
		OutChannels: 4,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
		PadMode:     ml.PadZero,
	})
	if err != nil {
		t.Fatal(err)
	}

	x := ctx.Rand(1, 2, 4, 4, 4)
	want := block.Conv.Forward(ctx, x.Pad3D(ctx, 1, ml.PadZero), 1)
	got := block.Forward(ctx, x)

	if diff := cmp.Diff(want.Floats(), got.Floats()); diff != "" {
		t.Error(diff)
	}
}

func TestConvBlockInvalid(t *testing.T) {
	ctx := setup(t)

	valid := nn.ConvBlockConfig{
		InChannels:  2,
		OutChannels: 2,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
	}

	cases := map[string]func(*nn.ConvBlockConfig){
		"zero channels":      func(c *nn.ConvBlockConfig) { c.InChannels = 0 },
		"zero kernel":        func(c *nn.ConvBlockConfig) { c.KernelSize = 0 },
		"zero stride":        func(c *nn.ConvBlockConfig) { c.Stride = 0 },
		"negative padding":   func(c *nn.ConvBlockConfig) { c.Padding = -1 },
		"unknown pad mode":   func(c *nn.ConvBlockConfig) { c.PadMode = ml.PadMode(9) },
		"unknown norm":       func(c *nn.ConvBlockConfig) { c.Norm = nn.NormKind(99) },
		"unknown activation": func(c *nn.ConvBlockConfig) { c.Activation = nn.ActivationKind(99) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			config := valid
			mutate(&config)
			if _, err := nn.NewConvBlock(ctx, config); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConvBlockAdaptiveRequiresStyle(t *testing.T) {
	ctx := setup(t)

	block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
		InChannels:  2,
		OutChannels: 2,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
		Norm:        nn.NormAdaptive,
	})
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic without style parameters")
		}
	}()

	block.Forward(ctx, ctx.Rand(1, 2, 4, 4, 4))
}

func TestConvBlockParameters(t *testing.T) {
	ctx := setup(t)

	block, err := nn.NewConvBlock(ctx, nn.ConvBlockConfig{
		InChannels:  2,
		OutChannels: 3,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
		Norm:        nn.NormInstance,
		Activation:  nn.ActivationPReLU,
	})
	if err != nil {
		t.Fatal(err)
	}

	params := block.Parameters()
	for _, name := range []string{"conv.weight", "conv.bias", "norm.weight", "norm.bias", "activation.slope"} {
		if _, ok := params[name]; !ok {
			t.Errorf("missing parameter %q", name)
		}
	}

	if diff := cmp.Diff([]int{3, 2, 3, 3, 3}, params["conv.weight"].Shape()); diff != "" {
		t.Error(diff)
	}
}

func TestLinear(t *testing.T) {
	ctx := setup(t)

	w, err := ctx.FromFloatSlice([]float32{1, 0, 0, 0, 0, 1}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ctx.FromFloatSlice([]float32{10, 20}, 2)
	if err != nil {
		t.Fatal(err)
	}

	lin := &nn.Linear{Weight: w, Bias: b}

	x, err := ctx.FromFloatSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}

	got := lin.Forward(ctx, x)
	if diff := cmp.Diff([]float32{11, 23, 14, 26}, got.Floats()); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff([]int{2, 2}, got.Shape()); diff != "" {
		t.Error(diff)
	}
}
