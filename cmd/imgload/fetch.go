package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Skryldev/image-loader/adapters/encoder"
	"github.com/Skryldev/image-loader/core"
	"github.com/Skryldev/image-loader/transform"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <uri>...",
		Short: "Load images and write them to disk or stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFetch,
	}
	cmd.Flags().StringP("transform", "t", "", `transformation, e.g. "trim,blur:15:10,scale:200:100"`)
	cmd.Flags().Float64P("density", "d", core.DefaultDensityFactor, "density factor")
	cmd.Flags().StringP("format", "f", "png", "output format: png or jpeg")
	cmd.Flags().Int("quality", 85, "jpeg quality")
	cmd.Flags().StringP("out", "o", "", "output file (single uri) or directory; - for stdout")
	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	spec, _ := cmd.Flags().GetString("transform")
	density, _ := cmd.Flags().GetFloat64("density")
	format, _ := cmd.Flags().GetString("format")
	quality, _ := cmd.Flags().GetInt("quality")
	out, _ := cmd.Flags().GetString("out")

	t, err := transform.Parse(spec)
	if err != nil {
		return err
	}
	enc, err := encoder.For(format, quality)
	if err != nil {
		return err
	}
	reqs := make([]core.ImageRequest, len(args))
	for i, uri := range args {
		if reqs[i], err = core.NewRequest(uri).DensityFactor(density).Transformation(t).Build(); err != nil {
			return err
		}
	}

	_, l, logger, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	type outcome struct {
		img *core.ImageData
		err error
	}
	results := make([]chan outcome, len(reqs))
	for i := range reqs {
		results[i] = make(chan outcome, 1)
		ch := results[i]
		l.Enqueue(reqs[i], core.CallbackFuncs{
			Response: func(_ core.ImageRequest, img *core.ImageData) { ch <- outcome{img: img} },
			Failure:  func(_ core.ImageRequest, err error) { ch <- outcome{err: err} },
		})
	}

	failed := 0
	for i, req := range reqs {
		var o outcome
		select {
		case o = <-results[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		if o.err != nil {
			failed++
			logger.Error("imgload.fetch.failed", "uri", req.URIString(), "error", o.err.Error())
			continue
		}
		data, err := enc.Encode(ctx, o.img)
		if err != nil {
			return err
		}
		dest := outputPath(out, i, len(reqs), string(enc.Format()))
		if dest == "-" {
			if err := writeAll(cmd.OutOrStdout(), data); err != nil {
				return err
			}
			continue
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%dx%d)\n", req.URIString(), dest, o.img.Meta.Width, o.img.Meta.Height)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(reqs))
	}
	return nil
}

// outputPath names the i-th of n outputs.  out is a file for a single
// request and a directory otherwise.
func outputPath(out string, i, n int, ext string) string {
	switch {
	case out == "-":
		return "-"
	case out != "" && n == 1:
		return out
	case out == "":
		out = "."
	}
	return fmt.Sprintf("%s/image-%03d.%s", out, i, ext)
}
