// Package server exposes a Loader over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	imageloader "github.com/Skryldev/image-loader"
	"github.com/Skryldev/image-loader/adapters/encoder"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/transform"
)

// Options configures the HTTP front end.
type Options struct {
	Quality        int           // JPEG quality; 0 selects the encoder default
	RequestTimeout time.Duration // per image request; 0 = none
	Logger         core.Logger

	// AllowFile accepts file:// sources.  Otherwise only http and https
	// are served, whatever fetchers the loader has.
	AllowFile bool
}

// Server serves GET /image, /healthz and /stats.
type Server struct {
	loader *imageloader.Loader
	opts   Options
	app    *fiber.App
}

// New builds the fiber app around l.
func New(l *imageloader.Loader, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	s := &Server{loader: l, opts: opts}
	s.app = fiber.New(fiber.Config{
		AppName:               "imgload",
		ServerHeader:          "imgload",
		DisableStartupMessage: true,
		ReadTimeout:           time.Minute,
		WriteTimeout:          time.Minute,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.app.Get("/image", s.handleImage)
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/stats", s.handleStats)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

// handleImage loads ?url with optional density, transform and format
// parameters and writes the encoded result.
func (s *Server) handleImage(c *fiber.Ctx) error {
	b := core.NewRequest(c.Query("url"))
	if d := c.Query("density"); d != "" {
		f, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid density: "+d)
		}
		b.DensityFactor(f)
	}
	t, err := transform.Parse(c.Query("transform"))
	if err != nil {
		return err
	}
	req, err := b.Transformation(t).Build()
	if err != nil {
		return err
	}
	if err := s.checkScheme(req); err != nil {
		return err
	}
	enc, err := encoder.For(c.Query("format"), s.opts.Quality)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	img, err := s.loader.Execute(ctx, req)
	if err != nil {
		return err
	}
	data, err := enc.Encode(ctx, img)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, enc.ContentType())
	c.Set("X-Image-Width", strconv.Itoa(img.Meta.Width))
	c.Set("X-Image-Height", strconv.Itoa(img.Meta.Height))
	c.Set("X-Image-Density", strconv.Itoa(img.Density))
	return c.Send(data)
}

func (s *Server) checkScheme(req core.ImageRequest) error {
	switch req.Scheme() {
	case "http", "https":
		return nil
	case "file":
		if s.opts.AllowFile {
			return nil
		}
	}
	return apperrors.New(apperrors.CategoryUnsupportedScheme, "server.image",
		fmt.Errorf("%w: %q", apperrors.ErrUnsupportedScheme, req.Scheme()))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"loader":  s.loader.Stats(),
		"metrics": s.loader.Metrics(),
	})
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.opts.Logger.Info("server.request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration_ms", time.Since(start).Milliseconds())
	return err
}

// handleError maps loader error categories to HTTP statuses.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.opts.Logger.Error("server.error", "path", c.Path(), "status", code, "error", err.Error())
	}
	return c.Status(code).JSON(fiber.Map{
		"error":    err.Error(),
		"category": string(apperrors.CategoryOf(err)),
	})
}

// StatusFor returns the HTTP status reported for a load error.
func StatusFor(err error) int {
	switch apperrors.CategoryOf(err) {
	case apperrors.CategoryInvalidArgument, apperrors.CategoryUnsupportedScheme:
		return fiber.StatusBadRequest
	case apperrors.CategoryFetch:
		var se *apperrors.StatusError
		if errors.As(err, &se) && se.Code == fiber.StatusNotFound || errors.Is(err, apperrors.ErrNotFound) {
			return fiber.StatusNotFound
		}
		return fiber.StatusBadGateway
	case apperrors.CategoryDecode, apperrors.CategoryTransform:
		return fiber.StatusUnprocessableEntity
	case apperrors.CategoryEncode:
		if errors.Is(err, apperrors.ErrUnsupportedFormat) {
			return fiber.StatusBadRequest
		}
	case apperrors.CategoryPipeline:
		switch {
		case errors.Is(err, apperrors.ErrQueueFull), errors.Is(err, apperrors.ErrStopped):
			return fiber.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			return fiber.StatusGatewayTimeout
		}
	}
	return fiber.StatusInternalServerError
}
