package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skryldev/image-loader/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve images over HTTP at /image?url=...",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, logger, stop, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := server.New(l, server.Options{
				RequestTimeout: cfg.JobTimeout,
				Logger:         logger,
				AllowFile:      cfg.Server.AllowFile,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(addr) }()
			logger.Info("imgload.serve", "addr", addr)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)
			select {
			case err := <-errCh:
				return err
			case <-sig:
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default server.addr)")
	return cmd
}
