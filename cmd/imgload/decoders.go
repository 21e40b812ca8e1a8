//go:build !vips

package main

import (
	"fmt"

	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// decodersFor returns nil to keep the built-in decoder.  Binaries built
// without the vips tag reject decoder: vips.
func decodersFor(cfg config.Config) (core.DecoderFactory, func(), error) {
	if cfg.Decoder == config.DecoderVips {
		return nil, nil, apperrors.New(apperrors.CategoryConfig, "imgload.decoder",
			fmt.Errorf("built without libvips support; rebuild with -tags vips"))
	}
	return nil, func() {}, nil
}
