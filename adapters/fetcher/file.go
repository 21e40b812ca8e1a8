package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// FileFactory creates fetchers for file URIs.  When Root is set, paths
// outside it are refused.
type FileFactory struct {
	Root string
}

// Create declines every scheme other than file.
func (f *FileFactory) Create(req core.ImageRequest) (core.Fetcher, bool) {
	if req.Scheme() != "file" {
		return nil, false
	}
	return &fileFetcher{root: f.Root, path: req.URI().Path}, true
}

type fileFetcher struct {
	root string
	path string
}

func (f *fileFetcher) Fetch(ctx context.Context) (core.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "file.fetch", err)
	}

	path := filepath.Clean(filepath.FromSlash(f.path))
	if f.root != "" {
		root := filepath.Clean(f.root)
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, apperrors.New(apperrors.CategoryFetch, "file.fetch",
				fmt.Errorf("%w: %s is outside %s", apperrors.ErrNotFound, path, root))
		}
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", apperrors.ErrNotFound, path)
		}
		return nil, apperrors.New(apperrors.CategoryFetch, "file.fetch", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, apperrors.New(apperrors.CategoryFetch, "file.stat", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, apperrors.New(apperrors.CategoryFetch, "file.fetch",
			fmt.Errorf("%s is a directory", path))
	}
	return core.StreamResult{Body: file, Size: info.Size()}, nil
}
