// Package fetch is the HTTP client shared by all guide sources. Each call
// takes an immutable Request; the Client holds only the transport, a cookie
// jar and a politeness limiter.
package fetch

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"homelab-epg/consts"
	"homelab-epg/epg"
)

// Request describes one HTTP call. The zero Method is GET; a non-nil Form is
// sent as an urlencoded POST body.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Header  map[string]string
	Form    url.Values
	Body    []byte
	Timeout time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %s: %s", e.URL, e.Status)
}

func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// RequestObserver is told about every completed request. Status is zero when
// no response was received.
type RequestObserver interface {
	ObserveRequest(host string, status int)
}

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   RequestObserver
	userAgent  string
}

type Option func(*Client)

// WithInterval spaces requests at least d apart.
func WithInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func WithObserver(o RequestObserver) Option {
	return func(c *Client) { c.observer = o }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTransport replaces the underlying round tripper, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

func New(opts ...Option) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	c := &Client{
		httpClient: &http.Client{Jar: jar},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		userAgent:  consts.UA,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req and returns the response with its body already decoded. The
// caller must close the body. Non-2xx responses are returned as *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", epg.ErrNetwork, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = consts.REQUEST_TIMEOUT
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	logger := zap.L()
	logger.Debug("HTTP request.", zap.String("method", httpReq.Method), zap.String("url", httpReq.URL.String()))

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		c.observe(httpReq.URL.Host, 0)
		return nil, fmt.Errorf("%w: %s %s: %w", epg.ErrNetwork, httpReq.Method, httpReq.URL.Redacted(), err)
	}
	c.observe(httpReq.URL.Host, res.StatusCode)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		cancel()
		return nil, &StatusError{URL: httpReq.URL.Redacted(), StatusCode: res.StatusCode, Status: res.Status}
	}

	body, err := decodeBody(res)
	if err != nil {
		res.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s: %w", epg.ErrParse, httpReq.URL.Redacted(), err)
	}
	res.Body = &cancelBody{ReadCloser: body, raw: res.Body, cancel: cancel}
	return res, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	method := req.Method
	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		if method == "" {
			method = http.MethodPost
		}
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		if method == "" {
			method = http.MethodPost
		}
		body = bytes.NewReader(req.Body)
		contentType = "application/json"
	}
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (c *Client) observe(host string, status int) {
	if c.observer != nil {
		c.observer.ObserveRequest(host, status)
	}
}

// Bytes returns the whole decoded response body.
func (c *Client) Bytes(ctx context.Context, req Request) ([]byte, error) {
	res, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", epg.ErrNetwork, req.URL, err)
	}
	return data, nil
}

// JSON decodes the response body into v.
func (c *Client) JSON(ctx context.Context, req Request, v any) error {
	if req.Header == nil {
		req.Header = map[string]string{"Accept": "application/json"}
	}
	res, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", epg.ErrParse, req.URL, err)
	}
	return nil
}

// Document parses the response body as HTML.
func (c *Client) Document(ctx context.Context, req Request) (*goquery.Document, error) {
	res, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", epg.ErrParse, req.URL, err)
	}
	return doc, nil
}

func decodeBody(res *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		return gzip.NewReader(res.Body)
	case "br":
		return io.NopCloser(brotli.NewReader(res.Body)), nil
	case "deflate":
		return zlib.NewReader(res.Body)
	default:
		return res.Body, nil
	}
}

type cancelBody struct {
	io.ReadCloser
	raw    io.Closer
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	if rawErr := b.raw.Close(); err == nil {
		err = rawErr
	}
	b.cancel()
	return err
}
