// Package pipeline runs the fetch, decode and transform stages for one
// request and reports each stage to the registered hooks.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// Gate is consulted before each stage starts.  It records the state being
// entered and returns false when the request was canceled, in which case
// the stage is skipped.
type Gate func(next core.State) bool

// Pipeline executes the stages of a request with hook support.  Stages run
// strictly in order on the calling goroutine and are never retried.
type Pipeline struct {
	decoders core.DecoderFactory
	hooks    []core.Hook
}

// New returns a Pipeline decoding with decoders.
func New(decoders core.DecoderFactory) *Pipeline {
	return &Pipeline{decoders: decoders}
}

// AddHook registers an observer.  Hooks must be added before the pipeline
// is used concurrently.
func (p *Pipeline) AddHook(h core.Hook) *Pipeline {
	if h != nil {
		p.hooks = append(p.hooks, h)
	}
	return p
}

// Run fetches, decodes and transforms req.
func (p *Pipeline) Run(ctx context.Context, req core.ImageRequest, f core.Fetcher, gate Gate) (*core.ImageData, error) {
	src, err := p.Source(ctx, req, f, gate)
	if err != nil {
		return nil, err
	}
	return p.Transform(ctx, req, src, gate)
}

// Source fetches and decodes req without applying its transformation.
// The decoder is only created once the fetch succeeded.
func (p *Pipeline) Source(ctx context.Context, req core.ImageRequest, f core.Fetcher, gate Gate) (*core.ImageData, error) {
	if gate == nil {
		gate = open
	}
	if !gate(core.StateFetching) {
		return nil, canceled(core.StageFetch)
	}

	var result core.FetchResult
	err := p.runStage(ctx, core.StageFetch, req, func() (*core.ImageData, error) {
		var ferr error
		result, ferr = safeFetch(ctx, f)
		if ferr == nil && result == nil {
			ferr = fmt.Errorf("fetcher returned no result")
		}
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "pipeline.fetch", ferr)
	})
	if err != nil {
		return nil, err
	}

	if !gate(core.StateDecoding) {
		_ = core.CloseResult(result)
		return nil, canceled(core.StageDecode)
	}

	var img *core.ImageData
	err = p.runStage(ctx, core.StageDecode, req, func() (*core.ImageData, error) {
		dec, derr := p.safeCreate(req, result)
		if derr != nil {
			_ = core.CloseResult(result)
			return nil, apperrors.Wrap(apperrors.CategoryDecode, "pipeline.decode", derr)
		}
		img, derr = safeDecode(ctx, dec, result)
		if derr == nil && (img == nil || img.Image == nil) {
			derr = apperrors.ErrNilImage
		}
		if derr != nil {
			img = nil
		}
		return img, apperrors.Wrap(apperrors.CategoryDecode, "pipeline.decode", derr)
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Transform applies req's transformation to src.  src is returned as is
// when req has none.
func (p *Pipeline) Transform(ctx context.Context, req core.ImageRequest, src *core.ImageData, gate Gate) (*core.ImageData, error) {
	t := req.Transformation()
	if t == nil {
		return src, nil
	}
	if gate == nil {
		gate = open
	}
	if !gate(core.StateTransforming) {
		return nil, canceled(core.StageTransform)
	}

	var out *core.ImageData
	err := p.runStage(ctx, core.StageTransform, req, func() (*core.ImageData, error) {
		img, terr := safeTransform(t, src)
		if terr != nil {
			return nil, apperrors.Wrap(apperrors.CategoryTransform, t.Key(), terr)
		}
		out = src.WithImage(img)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// runStage executes fn between the hooks of stage.
func (p *Pipeline) runStage(ctx context.Context, stage core.Stage, req core.ImageRequest, fn func() (*core.ImageData, error)) error {
	p.callHooksBefore(ctx, stage, req)
	start := time.Now()
	img, err := fn()
	p.callHooksAfter(ctx, stage, req, img, time.Since(start), err)
	return err
}

func (p *Pipeline) callHooksBefore(ctx context.Context, stage core.Stage, req core.ImageRequest) {
	for _, h := range p.hooks {
		h.BeforeStage(ctx, stage, req)
	}
}

func (p *Pipeline) callHooksAfter(ctx context.Context, stage core.Stage, req core.ImageRequest, img *core.ImageData, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStage(ctx, stage, req, img, d, err)
	}
}

func safeFetch(ctx context.Context, f core.Fetcher) (res core.FetchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("fetcher panic: %v", r)
		}
	}()
	return f.Fetch(ctx)
}

func (p *Pipeline) safeCreate(req core.ImageRequest, result core.FetchResult) (dec core.Decoder, err error) {
	defer func() {
		if r := recover(); r != nil {
			dec, err = nil, fmt.Errorf("decoder factory panic: %v", r)
		}
	}()
	return p.decoders.Create(req, result)
}

// safeDecode closes result when the decoder panics; a decoder that returns
// normally owns it.
func safeDecode(ctx context.Context, dec core.Decoder, result core.FetchResult) (img *core.ImageData, err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = core.CloseResult(result)
			img, err = nil, fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return dec.Decode(ctx)
}

func safeTransform(t core.Transformation, src *core.ImageData) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("transformation panic: %v", r)
		}
	}()
	img, err = t.Transform(src.Image)
	if err == nil && img == nil {
		err = apperrors.ErrNilImage
	}
	return img, err
}

func canceled(stage core.Stage) error {
	return apperrors.New(apperrors.CategoryPipeline, "pipeline."+string(stage), apperrors.ErrCanceled)
}

func open(core.State) bool { return true }
