package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"homelab-epg/consts"
	"homelab-epg/epg"
)

type countingObserver struct {
	mu    sync.Mutex
	codes []int
}

func (o *countingObserver) ObserveRequest(host string, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes = append(o.codes, status)
}

func TestDoSetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != consts.UA {
			t.Errorf("unexpected user agent %q", got)
		}
		if got := r.Header.Get("Referer"); got != "https://example.com/" {
			t.Errorf("unexpected referer %q", got)
		}
		if got := r.URL.Query().Get("date"); got != "2025-01-01" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New()
	data, err := c.Bytes(context.Background(), Request{
		URL:    srv.URL + "/schedule?country=US",
		Query:  url.Values{"date": {"2025-01-01"}},
		Header: map[string]string{"Referer": "https://example.com/"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ok" {
		t.Errorf("unexpected body %q", data)
	}
}

func TestDoReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	obs := &countingObserver{}
	c := New(WithObserver(obs))
	_, err := c.Bytes(context.Background(), Request{URL: srv.URL})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("unexpected status %d", statusErr.StatusCode)
	}
	if len(obs.codes) != 1 || obs.codes[0] != http.StatusForbidden {
		t.Errorf("observer saw %v", obs.codes)
	}
}

func TestDoNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	obs := &countingObserver{}
	_, err := New(WithObserver(obs)).Bytes(context.Background(), Request{URL: addr, Timeout: time.Second})
	if !errors.Is(err, epg.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if len(obs.codes) != 1 || obs.codes[0] != 0 {
		t.Errorf("observer saw %v", obs.codes)
	}
}

func TestDoDecodesCompressedBodies(t *testing.T) {
	payload := []byte(`{"name":"KGTV"}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/gzip":
			zw := gzip.NewWriter(&buf)
			zw.Write(payload)
			zw.Close()
			w.Header().Set("Content-Encoding", "gzip")
		case "/br":
			bw := brotli.NewWriter(&buf)
			bw.Write(payload)
			bw.Close()
			w.Header().Set("Content-Encoding", "br")
		default:
			buf.Write(payload)
		}
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := New()
	for _, path := range []string{"/gzip", "/br", "/plain"} {
		var v struct{ Name string }
		if err := c.JSON(context.Background(), Request{URL: srv.URL + path}, &v); err != nil {
			t.Errorf("%s: %v", path, err)
			continue
		}
		if v.Name != "KGTV" {
			t.Errorf("%s: unexpected value %+v", path, v)
		}
	}
}

func TestJSONParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	var v map[string]any
	err := New().JSON(context.Background(), Request{URL: srv.URL}, &v)
	if !errors.Is(err, epg.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestFormPostKeepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			if r.Method != http.MethodPost || r.FormValue("username") != "viewer" {
				http.Error(w, "bad login", http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		case "/guide":
			if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
				http.Error(w, "no session", http.StatusForbidden)
				return
			}
			w.Write([]byte("<html><body><p class=show>News</p></body></html>"))
		}
	}))
	defer srv.Close()

	c := New()
	ctx := context.Background()
	if _, err := c.Bytes(ctx, Request{URL: srv.URL + "/login", Form: url.Values{"username": {"viewer"}}}); err != nil {
		t.Fatal(err)
	}
	doc, err := c.Document(ctx, Request{URL: srv.URL + "/guide"})
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Find("p.show").Text(); got != "News" {
		t.Errorf("unexpected document text %q", got)
	}
}

func TestIntervalSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New(WithInterval(100 * time.Millisecond))
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Bytes(context.Background(), Request{URL: srv.URL}); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("requests were not spaced: %v", elapsed)
	}
}

func TestIntervalHonoursCancel(t *testing.T) {
	c := New(WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	// Drain the single burst token.
	c.limiter.Allow()
	cancel()
	if _, err := c.Do(ctx, Request{URL: "http://127.0.0.1:1/"}); !errors.Is(err, epg.ErrNetwork) {
		t.Fatalf("expected ErrNetwork on cancelled wait, got %v", err)
	}
}
