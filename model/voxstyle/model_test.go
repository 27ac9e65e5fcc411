package voxstyle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxstyle/voxstyle/ml"
	_ "github.com/voxstyle/voxstyle/ml/backend/dense"
	"github.com/voxstyle/voxstyle/model/voxstyle"
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

// smallStyleOptions keeps forward passes cheap enough for unit tests.
func smallStyleOptions() voxstyle.StyleEncoderOptions {
	opts := voxstyle.DefaultStyleEncoderOptions()
	opts.InChannels = 3
	opts.BottomDim = 4
	opts.Downsample = 2
	opts.StyleDim = 8
	return opts
}

func smallContentOptions() voxstyle.ContentEncoderOptions {
	opts := voxstyle.DefaultContentEncoderOptions()
	opts.InChannels = 3
	opts.BottomDim = 4
	opts.Downsample = 2
	opts.ResidualBlocks = 2
	return opts
}

func smallDecoderOptions() voxstyle.DecoderOptions {
	opts := voxstyle.DefaultDecoderOptions()
	opts.BottomDim = 4
	opts.Upsample = 2
	opts.ResidualBlocks = 2
	opts.OutChannels = 3
	return opts
}

func TestStyleEncoderShape(t *testing.T) {
	ctx := setup(t)

	enc, err := voxstyle.NewStyleEncoder(ctx, smallStyleOptions())
	require.NoError(t, err)

	// The global pool makes the code shape independent of spatial size.
	for _, size := range []int{8, 12, 16} {
		got := enc.Forward(ctx, ctx.Rand(2, 3, size, size, size))
		assert.Equal(t, []int{2, 8, 1, 1, 1}, got.Shape(), "size %d", size)
	}
}

func TestStyleEncoderInvalid(t *testing.T) {
	ctx := setup(t)

	opts := smallStyleOptions()
	opts.Downsample = 1
	_, err := voxstyle.NewStyleEncoder(ctx, opts)
	assert.Error(t, err)

	opts = smallStyleOptions()
	opts.StyleDim = 0
	_, err = voxstyle.NewStyleEncoder(ctx, opts)
	assert.Error(t, err)
}

func TestContentEncoderShape(t *testing.T) {
	ctx := setup(t)

	opts := smallContentOptions()
	enc, err := voxstyle.NewContentEncoder(ctx, opts)
	require.NoError(t, err)

	got := enc.Forward(ctx, ctx.Rand(2, 3, 12, 12, 12))
	assert.Equal(t, []int{2, opts.Channels(), 3, 3, 3}, got.Shape())
	assert.Equal(t, 16, opts.Channels())
}

func TestContentDecoderRoundTrip(t *testing.T) {
	ctx := setup(t)

	enc, err := voxstyle.NewContentEncoder(ctx, smallContentOptions())
	require.NoError(t, err)

	dec, err := voxstyle.NewDecoder(ctx, smallDecoderOptions())
	require.NoError(t, err)

	widths := make([]int, dec.NumStylePairs())
	for i := range widths {
		widths[i] = smallDecoderOptions().Channels()
	}
	mlp, err := voxstyle.NewStyleMLP(ctx, 8, 16, 2, widths)
	require.NoError(t, err)

	x := ctx.Rand(2, 3, 12, 12, 12)
	content := enc.Forward(ctx, x)

	style := ctx.Rand(2, 8)
	got := dec.Forward(ctx, content, mlp.Params(ctx, style))

	// The decoder undoes the encoder's downsampling exactly.
	assert.Equal(t, x.Shape(), got.Shape())

	for _, v := range got.Floats() {
		assert.Greater(t, v, float32(-1))
		assert.Less(t, v, float32(1))
	}
}

func TestStyleMLPPairs(t *testing.T) {
	ctx := setup(t)

	mlp, err := voxstyle.NewStyleMLP(ctx, 8, 16, 2, []int{4, 4, 6})
	require.NoError(t, err)

	// A 5D style code from the encoder is accepted as-is.
	style := ctx.Rand(2, 8, 1, 1, 1)
	params := mlp.Params(ctx, style)

	scale, shift := params.Pair(0)
	assert.Equal(t, []int{2, 4, 1, 1, 1}, scale.Shape())
	assert.Equal(t, []int{2, 4, 1, 1, 1}, shift.Shape())

	scale, shift = params.Pair(2)
	assert.Equal(t, []int{2, 6, 1, 1, 1}, scale.Shape())
	assert.Equal(t, []int{2, 6, 1, 1, 1}, shift.Shape())
}

func TestGenerator(t *testing.T) {
	ctx := setup(t)

	opts := voxstyle.GeneratorOptions{
		Style:           smallStyleOptions(),
		Content:         smallContentOptions(),
		Decoder:         smallDecoderOptions(),
		MLPHiddenDim:    16,
		MLPHiddenLayers: 2,
	}

	g, err := voxstyle.NewGenerator(ctx, opts)
	require.NoError(t, err)

	a := ctx.Rand(1, 3, 12, 12, 12)
	b := ctx.Rand(1, 3, 12, 12, 12)

	contentA, styleA := g.Encode(ctx, a)
	_, styleB := g.Encode(ctx, b)

	assert.Equal(t, []int{1, 16, 3, 3, 3}, contentA.Shape())
	assert.Equal(t, []int{1, 8, 1, 1, 1}, styleA.Shape())

	// Translation: A's structure rendered with B's appearance.
	got := g.Decode(ctx, contentA, styleB)
	assert.Equal(t, a.Shape(), got.Shape())
}

func TestGeneratorWidthMismatch(t *testing.T) {
	ctx := setup(t)

	opts := voxstyle.GeneratorOptions{
		Style:           smallStyleOptions(),
		Content:         smallContentOptions(),
		Decoder:         smallDecoderOptions(),
		MLPHiddenDim:    16,
		MLPHiddenLayers: 2,
	}
	opts.Decoder.BottomDim = 8

	_, err := voxstyle.NewGenerator(ctx, opts)
	assert.Error(t, err)
}

func TestGeneratorParameters(t *testing.T) {
	ctx := setup(t)

	opts := voxstyle.GeneratorOptions{
		Style:           smallStyleOptions(),
		Content:         smallContentOptions(),
		Decoder:         smallDecoderOptions(),
		MLPHiddenDim:    16,
		MLPHiddenLayers: 2,
	}

	g, err := voxstyle.NewGenerator(ctx, opts)
	require.NoError(t, err)

	params := g.Parameters()
	for _, name := range []string{
		"style_enc.blocks.0.conv.weight",
		"style_enc.proj.weight",
		"content_enc.residual.blocks.0.conv1.conv.weight",
		"decoder.residual.blocks.0.conv1.conv.weight",
		"decoder.up.0.norm.weight",
		"decoder.out.conv.bias",
		"mlp.hidden.0.weight",
		"mlp.heads.0.bias",
	} {
		assert.Contains(t, params, name)
	}

	// Adaptive norms own no parameters; their scale/shift comes from the MLP.
	assert.NotContains(t, params, "decoder.residual.blocks.0.conv1.norm.weight")
}

func TestDefaultGeometry(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size forward pass")
	}

	ctx := setup(t)

	g, err := voxstyle.NewGenerator(ctx, voxstyle.DefaultGeneratorOptions())
	require.NoError(t, err)

	x := ctx.Rand(1, 14, 48, 48, 48)
	content, style := g.Encode(ctx, x)

	assert.Equal(t, []int{1, 128, 12, 12, 12}, content.Shape())
	assert.Equal(t, []int{1, 8, 1, 1, 1}, style.Shape())

	got := g.Decode(ctx, content, style)
	assert.Equal(t, x.Shape(), got.Shape())
}
