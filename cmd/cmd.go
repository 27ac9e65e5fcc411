package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxstyle/voxstyle/logutil"
	"github.com/voxstyle/voxstyle/ml"
	_ "github.com/voxstyle/voxstyle/ml/backend/dense"
	"github.com/voxstyle/voxstyle/model/voxstyle"
)

func NewCLI() *cobra.Command {
	slog.SetDefault(logutil.NewLogger(os.Stderr, logutil.Level()))

	rootCmd := &cobra.Command{
		Use:           "voxstyle",
		Short:         "3D style/content translation networks",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	shapesCmd := &cobra.Command{
		Use:   "shapes",
		Short: "Run a random volume through the networks and print output shapes",
		RunE:  ShapesHandler,
	}

	shapesCmd.Flags().Int("size", 48, "Spatial size of the test volume")
	shapesCmd.Flags().Int("channels", 14, "Channel count of the test volume")
	shapesCmd.Flags().Int("scales", 1, "Discriminator scales")
	shapesCmd.Flags().Int("layers", 4, "Stride-2 stages per discriminator tower")
	shapesCmd.Flags().Int64("seed", 0, "Weight initialization seed")

	rootCmd.AddCommand(shapesCmd)
	return rootCmd
}

// ShapesHandler builds the generator and discriminator with default
// geometry and reports every interesting shape for one forward pass.
func ShapesHandler(cmd *cobra.Command, args []string) error {
	size, _ := cmd.Flags().GetInt("size")
	channels, _ := cmd.Flags().GetInt("channels")
	scales, _ := cmd.Flags().GetInt("scales")
	layers, _ := cmd.Flags().GetInt("layers")
	seed, _ := cmd.Flags().GetInt64("seed")

	b, err := ml.NewBackend("dense", ml.BackendParams{Seed: seed})
	if err != nil {
		return err
	}
	defer b.Close()

	ctx := b.NewContext()
	defer ctx.Close()

	opts := voxstyle.DefaultGeneratorOptions()
	opts.Style.InChannels = channels
	opts.Content.InChannels = channels
	opts.Decoder.OutChannels = channels

	g, err := voxstyle.NewGenerator(ctx, opts)
	if err != nil {
		return err
	}

	dopts := voxstyle.DefaultDiscriminatorOptions()
	dopts.InChannels = channels
	dopts.Scales = scales
	dopts.Layers = layers

	d, err := voxstyle.NewMultiScaleDiscriminator(ctx, dopts)
	if err != nil {
		return err
	}

	x := ctx.Rand(1, channels, size, size, size)
	fmt.Fprintln(cmd.OutOrStdout(), "input", x.Shape())

	content, style := g.Encode(ctx, x)
	fmt.Fprintln(cmd.OutOrStdout(), "content", content.Shape())
	fmt.Fprintln(cmd.OutOrStdout(), "style", style.Shape())

	y := g.Decode(ctx, content, style)
	fmt.Fprintln(cmd.OutOrStdout(), "decoded", y.Shape())

	for i, score := range d.Forward(ctx, x) {
		fmt.Fprintln(cmd.OutOrStdout(), "score", i, score.Shape())
	}

	return nil
}
