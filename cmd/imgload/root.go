package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	imageloader "github.com/Skryldev/image-loader"
	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "imgload",
		Short: "Load images from http, https and file URIs",
		Long: strings.TrimSpace(`
Fetch, decode and transform images through a bounded worker pool.
Settings come from an optional YAML file, a .env file and IMGLOAD_* variables.
`),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "override log.level")
	root.PersistentFlags().String("file-root", "", "enable file:// URIs under this directory")
	root.AddCommand(newFetchCmd(), newServeCmd())
	return root
}

// setup loads the configuration and builds a started Loader.  The returned
// function stops it.
func setup(cmd *cobra.Command) (config.Config, *imageloader.Loader, core.Logger, func(), error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if dir, _ := cmd.Flags().GetString("file-root"); dir != "" {
		cfg.File.Enabled = true
		cfg.File.Root = dir
	}
	logger := imageloader.NewLogger(cfg.Log, cmd.ErrOrStderr())

	opts := []imageloader.Option{imageloader.WithLogger(logger)}
	decoders, release, err := decodersFor(cfg)
	if err != nil {
		return cfg, nil, nil, nil, err
	}
	if decoders != nil {
		opts = append(opts, imageloader.WithDecoders(decoders))
	}

	l, err := imageloader.New(cfg, opts...)
	if err != nil {
		release()
		return cfg, nil, nil, nil, err
	}
	l.Start()
	logger.Debug("imgload.started", "workers", cfg.WorkerCount, "decoder", string(cfg.Decoder),
		"storage", string(cfg.Storage.Backend))
	return cfg, l, logger, func() {
		l.Stop()
		release()
	}, nil
}

func writeAll(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
