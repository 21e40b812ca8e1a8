package httpcall_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/httpcall"
)

func mustProps(t *testing.T, b *httpcall.PropertiesBuilder) httpcall.RequestProperties {
	t.Helper()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return p
}

func TestExecute_Buffered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Header", "value")
		fmt.Fprint(w, "foo")
	}))
	defer srv.Close()

	call := httpcall.NewClient().NewCall(mustProps(t, httpcall.NewProperties(srv.URL)))
	if call.State() != httpcall.StateIdle {
		t.Errorf("state before execute: %s", call.State())
	}

	resp, err := call.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if call.IsCancellationRequested() {
		t.Error("cancellation should not be requested")
	}
	if call.State() != httpcall.StateFinished || !call.IsExecuted() {
		t.Errorf("state after execute: %s executed=%v", call.State(), call.IsExecuted())
	}
	if resp.StatusCode != http.StatusOK || !resp.IsSuccessful() {
		t.Errorf("status: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Header") != "value" {
		t.Errorf("header: %q", resp.Header.Get("X-Header"))
	}
	if resp.IsStream() {
		t.Error("expected a buffered response")
	}
	if body, _ := resp.String(); body != "foo" {
		t.Errorf("body: %q", body)
	}
}

func TestExecute_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "streamed")
	}))
	defer srv.Close()

	props := mustProps(t, httpcall.NewProperties(srv.URL).UseStream(true))
	resp, err := httpcall.NewClient().NewCall(props).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.IsStream() {
		t.Fatal("expected a streamed response")
	}
	body, err := resp.String()
	if err != nil || body != "streamed" {
		t.Errorf("body: %q, %v", body, err)
	}
	if err := resp.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestExecute_MethodHeadersBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-Test") != "1" || r.UserAgent() != "imgload-test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		buf := make([]byte, 4)
		n, _ := r.Body.Read(buf)
		fmt.Fprintf(w, "%s", buf[:n])
	}))
	defer srv.Close()

	props := mustProps(t, httpcall.NewProperties(srv.URL).
		Method(httpcall.MethodPost).
		Header("X-Test", "1").
		Body([]byte("ping")))
	resp, err := httpcall.NewClient(httpcall.WithUserAgent("imgload-test")).NewCall(props).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if body, _ := resp.String(); resp.StatusCode != http.StatusOK || body != "ping" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestExecute_Twice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	call := httpcall.NewClient().NewCall(mustProps(t, httpcall.NewProperties(srv.URL)))
	if _, err := call.Execute(context.Background()); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := call.Execute(context.Background()); !errors.Is(err, apperrors.ErrAlreadyExecuted) {
		t.Errorf("second Execute: got %v, want ErrAlreadyExecuted", err)
	}
}

func TestCancel_FlagIsImmediate(t *testing.T) {
	call := httpcall.NewClient().NewCall(mustProps(t, httpcall.NewProperties("http://127.0.0.1:1/")))
	call.Cancel()
	if !call.IsCancellationRequested() {
		t.Fatal("IsCancellationRequested must be true right after Cancel")
	}
	_, err := call.Execute(context.Background())
	if !httpcall.IsCanceled(err) {
		t.Errorf("Execute after Cancel: got %v, want canceled", err)
	}
}

func TestCancel_AbortsInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	props := mustProps(t, httpcall.NewProperties(srv.URL).ReadTimeout(time.Minute))
	call := httpcall.NewClient().NewCall(props)

	errCh := make(chan error, 1)
	go func() {
		_, err := call.Execute(context.Background())
		errCh <- err
	}()

	<-started
	call.Cancel()
	if !call.IsCancellationRequested() {
		t.Error("flag must be set while Execute is still running")
	}

	select {
	case err := <-errCh:
		if !httpcall.IsCanceled(err) {
			t.Errorf("got %v, want canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after Cancel")
	}
}

func TestRedirects(t *testing.T) {
	var hops atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "done")
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		hops.Add(1)
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := httpcall.NewClient()

	resp, err := client.NewCall(mustProps(t, httpcall.NewProperties(srv.URL+"/start"))).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if body, _ := resp.String(); body != "done" || resp.URL.Path != "/final" {
		t.Errorf("redirect not followed: %q at %s", body, resp.URL)
	}

	_, err = client.NewCall(mustProps(t, httpcall.NewProperties(srv.URL+"/loop").
		AllowCrossProtocolRedirects(true))).Execute(context.Background())
	if !errors.Is(err, apperrors.ErrTooManyRedirects) {
		t.Errorf("loop: got %v, want ErrTooManyRedirects", err)
	}
	if got := hops.Load(); got != httpcall.MaxRedirects+1 {
		t.Errorf("hops: got %d, want %d", got, httpcall.MaxRedirects+1)
	}
}

func TestRedirects_CrossProtocol(t *testing.T) {
	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "secure")
	}))
	defer tlsSrv.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, tlsSrv.URL, http.StatusMovedPermanently)
	}))
	defer srv.Close()

	client := httpcall.NewClient(httpcall.WithTransport(tlsSrv.Client().Transport.(*http.Transport).Clone()))

	resp, err := client.NewCall(mustProps(t, httpcall.NewProperties(srv.URL))).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != http.StatusMovedPermanently {
		t.Errorf("without permission: got %d, want the 301 itself", resp.StatusCode)
	}

	resp, err = client.NewCall(mustProps(t, httpcall.NewProperties(srv.URL).
		AllowCrossProtocolRedirects(true))).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if body, _ := resp.String(); body != "secure" {
		t.Errorf("with permission: got %d %q", resp.StatusCode, body)
	}
}

func TestProperties_Validation(t *testing.T) {
	tests := []struct {
		name string
		b    *httpcall.PropertiesBuilder
	}{
		{"bad scheme", httpcall.NewProperties("ftp://example.com/")},
		{"no host", httpcall.NewProperties("http:///path")},
		{"zero connect timeout", httpcall.NewProperties("http://example.com/").ConnectTimeout(0)},
		{"negative read timeout", httpcall.NewProperties("http://example.com/").ReadTimeout(-time.Second)},
	}
	for _, tc := range tests {
		if _, err := tc.b.Build(); !apperrors.IsCategory(err, apperrors.CategoryInvalidArgument) {
			t.Errorf("%s: got %v, want invalid_argument", tc.name, err)
		}
	}

	p := mustProps(t, httpcall.NewProperties("http://example.com/a").Header("A", "1"))
	derived := mustProps(t, p.ToBuilder().UseStream(true).Header("B", "2"))
	if p.UseStream() || p.Header().Get("B") != "" {
		t.Error("ToBuilder must not alias the original properties")
	}
	if !derived.UseStream() || derived.Header().Get("A") != "1" || derived.Method() != httpcall.MethodGet {
		t.Error("ToBuilder must carry the original properties")
	}
}
