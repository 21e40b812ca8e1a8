//go:build vips

package main

import (
	"github.com/Skryldev/image-loader/adapters/vips"
	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
)

// decodersFor starts libvips when the config selects it.
func decodersFor(cfg config.Config) (core.DecoderFactory, func(), error) {
	if cfg.Decoder != config.DecoderVips {
		return nil, func() {}, nil
	}
	backend := vips.NewBackend(vips.BackendConfig{
		MaxWorkers: cfg.WorkerCount,
		MaxBytes:   cfg.MaxImageBytes,
		MaxPixels:  cfg.MaxPixels,
		ChunkSize:  cfg.ChunkSize,
		AutoRotate: true,
	})
	return backend, backend.Shutdown, nil
}
