package httpcall

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Skryldev/image-loader/errors"
)

// CallState is the lifecycle position of a Call.
type CallState int32

const (
	StateIdle CallState = iota
	StateRunning
	StateFinished
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// ── Client ────────────────────────────────────────────────────────────────────

// Client creates calls sharing one connection pool per timeout pair.  It is
// safe for concurrent use.
type Client struct {
	base       *http.Transport
	userAgent  string
	transports sync.Map // timeoutKey -> *http.Transport
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransport sets the transport that per-timeout transports are cloned from.
func WithTransport(t *http.Transport) ClientOption {
	return func(c *Client) { c.base = t }
}

// WithUserAgent sets the User-Agent sent when a request does not carry one.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient returns a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{}
	for _, o := range opts {
		o(c)
	}
	if c.base == nil {
		c.base = http.DefaultTransport.(*http.Transport).Clone()
	}
	return c
}

// NewCall prepares a single exchange.  Nothing is sent until Execute.
func (c *Client) NewCall(props RequestProperties) *Call {
	return &Call{client: c, props: props}
}

// CloseIdleConnections closes idle connections of every cached transport.
func (c *Client) CloseIdleConnections() {
	c.transports.Range(func(_, v any) bool {
		v.(*http.Transport).CloseIdleConnections()
		return true
	})
}

type timeoutKey struct{ connect, read time.Duration }

func (c *Client) transportFor(p RequestProperties) *http.Transport {
	key := timeoutKey{p.connectTimeout, p.readTimeout}
	if t, ok := c.transports.Load(key); ok {
		return t.(*http.Transport)
	}
	t := c.base.Clone()
	t.DialContext = (&net.Dialer{Timeout: p.connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = p.connectTimeout
	t.ResponseHeaderTimeout = p.readTimeout
	actual, _ := c.transports.LoadOrStore(key, t)
	return actual.(*http.Transport)
}

// ── Call ──────────────────────────────────────────────────────────────────────

// Call is one HTTP exchange.  It executes at most once.  Cancel may be
// called from any goroutine at any time: it marks the call canceled
// immediately and aborts the exchange if it is still in flight.
type Call struct {
	client *Client
	props  RequestProperties

	executed atomic.Bool
	state    atomic.Int32
	canceled atomic.Bool

	mu        sync.Mutex
	cancelReq context.CancelFunc
}

// Properties returns the request properties of this call.
func (c *Call) Properties() RequestProperties { return c.props }

// State returns the current lifecycle state.
func (c *Call) State() CallState { return CallState(c.state.Load()) }

// IsExecuted reports whether Execute has been called.
func (c *Call) IsExecuted() bool { return c.executed.Load() }

// IsCancellationRequested reports whether Cancel has been called.
func (c *Call) IsCancellationRequested() bool { return c.canceled.Load() }

// Cancel requests cancellation.  It never blocks.
func (c *Call) Cancel() {
	c.mu.Lock()
	c.canceled.Store(true)
	cancel := c.cancelReq
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Execute performs the exchange on the calling goroutine.  A response that
// arrives after cancellation was requested is closed and reported as
// canceled.
func (c *Call) Execute(ctx context.Context) (*Response, error) {
	if !c.executed.CompareAndSwap(false, true) {
		return nil, apperrors.New(apperrors.CategoryFetch, "httpcall.execute", apperrors.ErrAlreadyExecuted)
	}

	reqCtx, cancelReq := context.WithCancel(ctx)
	c.mu.Lock()
	if c.canceled.Load() {
		c.mu.Unlock()
		cancelReq()
		c.state.Store(int32(StateFinished))
		return nil, canceledErr()
	}
	c.cancelReq = cancelReq
	c.mu.Unlock()

	c.state.Store(int32(StateRunning))
	resp, err := c.do(reqCtx, cancelReq)
	c.state.Store(int32(StateFinished))

	if err != nil {
		cancelReq()
		if c.canceled.Load() {
			return nil, canceledErr()
		}
		return nil, apperrors.New(apperrors.CategoryFetch, "httpcall.execute", err)
	}
	if c.canceled.Load() {
		_ = resp.Close()
		return nil, canceledErr()
	}
	return resp, nil
}

func (c *Call) do(ctx context.Context, release context.CancelFunc) (*Response, error) {
	p := c.props

	var body io.Reader
	if len(p.body) > 0 {
		body = bytes.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, string(p.method), p.uri.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = p.header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if c.client.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.client.userAgent)
	}

	hc := &http.Client{
		Transport:     c.client.transportFor(p),
		CheckRedirect: redirectPolicy(p.allowCrossProtocolRedirects),
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		URL:        resp.Request.URL,
	}
	if p.useStream {
		out.stream = &streamBody{ReadCloser: resp.Body, release: release}
		return out, nil
	}

	defer release()
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	out.buffered = buf
	return out, nil
}

// redirectPolicy follows up to MaxRedirects hops.  Without cross-protocol
// permission a scheme change stops redirection and the 3xx response is
// returned as is.
func redirectPolicy(allowCrossProtocol bool) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > MaxRedirects {
			return fmt.Errorf("%w: %d", apperrors.ErrTooManyRedirects, len(via)-1)
		}
		prev := via[len(via)-1]
		if !allowCrossProtocol && req.URL.Scheme != prev.URL.Scheme {
			return http.ErrUseLastResponse
		}
		return nil
	}
}

func canceledErr() error {
	return apperrors.New(apperrors.CategoryFetch, "httpcall.execute", apperrors.ErrCanceled)
}

// IsCanceled reports whether err came from a canceled call or context.
func IsCanceled(err error) bool {
	return errors.Is(err, apperrors.ErrCanceled) || errors.Is(err, context.Canceled)
}
