package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryInvalidArgument   Category = "invalid_argument"
	CategoryUnsupportedScheme Category = "unsupported_scheme"
	CategoryFetch             Category = "fetch"
	CategoryDecode            Category = "decode"
	CategoryTransform         Category = "transform"
	CategoryEncode            Category = "encode"
	CategoryPipeline          Category = "pipeline"
	CategoryStorage           Category = "storage"
	CategoryConfig            Category = "config"
)

// LoadError is the structured error type used throughout the module.
type LoadError struct {
	Category Category
	Op       string // operation name
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// New creates a LoadError.
func New(category Category, op string, err error) *LoadError {
	return &LoadError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.  An error that is already a
// LoadError keeps its original category.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return New(category, op, err)
}

// CategoryOf returns the category of the outermost LoadError in err's chain,
// or the empty string.
func CategoryOf(err error) Category {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	return CategoryOf(err) == cat
}

// StatusError reports an HTTP exchange that finished with a status the
// caller does not accept.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Code)
}

// Sentinel errors for common failure modes.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrUnsupportedResult = errors.New("unsupported fetch result")
	ErrEmptyInput        = errors.New("empty input")
	ErrNilImage          = errors.New("decoder produced no image")
	ErrImageTooLarge     = errors.New("image exceeds pixel limit")
	ErrQueueFull         = errors.New("worker pool queue full")
	ErrStopped           = errors.New("loader stopped")
	ErrCanceled          = errors.New("request canceled")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExecuted   = errors.New("call already executed")
	ErrTooManyRedirects  = errors.New("too many redirects")
)
