package voxstyle

import (
	"fmt"

	"github.com/voxstyle/voxstyle/ml"
)

// GeneratorOptions bundles the three generator networks and the style
// mapping MLP. The decoder must consume exactly the width the content
// encoder produces.
type GeneratorOptions struct {
	Style   StyleEncoderOptions
	Content ContentEncoderOptions
	Decoder DecoderOptions

	MLPHiddenDim    int
	MLPHiddenLayers int
}

func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		Style:           DefaultStyleEncoderOptions(),
		Content:         DefaultContentEncoderOptions(),
		Decoder:         DefaultDecoderOptions(),
		MLPHiddenDim:    256,
		MLPHiddenLayers: 2,
	}
}

// Generator is the full autoencoder: encode splits a volume into content
// and style, decode recombines them. Decoding with another volume's style
// code is what translates appearance.
type Generator struct {
	Style   *StyleEncoder
	Content *ContentEncoder
	Decoder *Decoder
	MLP     *StyleMLP
}

func NewGenerator(ctx ml.Context, opts GeneratorOptions) (*Generator, error) {
	if c, d := opts.Content.Channels(), opts.Decoder.Channels(); c != d {
		return nil, fmt.Errorf("content encoder produces %d channels but decoder expects %d", c, d)
	}

	style, err := NewStyleEncoder(ctx, opts.Style)
	if err != nil {
		return nil, fmt.Errorf("style encoder: %w", err)
	}

	content, err := NewContentEncoder(ctx, opts.Content)
	if err != nil {
		return nil, fmt.Errorf("content encoder: %w", err)
	}

	decoder, err := NewDecoder(ctx, opts.Decoder)
	if err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}

	widths := make([]int, decoder.NumStylePairs())
	for i := range widths {
		widths[i] = opts.Decoder.Channels()
	}

	mlp, err := NewStyleMLP(ctx, opts.Style.StyleDim, opts.MLPHiddenDim, opts.MLPHiddenLayers, widths)
	if err != nil {
		return nil, fmt.Errorf("style mlp: %w", err)
	}

	return &Generator{Style: style, Content: content, Decoder: decoder, MLP: mlp}, nil
}

// Encode splits a volume into its content feature map and style code.
func (g *Generator) Encode(ctx ml.Context, t ml.Tensor) (content, style ml.Tensor) {
	return g.Content.Forward(ctx, t), g.Style.Forward(ctx, t)
}

// Decode reconstructs a volume from a content map and a style code.
func (g *Generator) Decode(ctx ml.Context, content, style ml.Tensor) ml.Tensor {
	return g.Decoder.Forward(ctx, content, g.MLP.Params(ctx, style))
}

func (g *Generator) Parameters() map[string]ml.Tensor {
	params := make(map[string]ml.Tensor)
	merge(params, "style_enc", g.Style.Parameters())
	merge(params, "content_enc", g.Content.Parameters())
	merge(params, "decoder", g.Decoder.Parameters())
	merge(params, "mlp", g.MLP.Parameters())
	return params
}
