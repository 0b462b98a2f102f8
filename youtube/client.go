// Package youtube talks to the video platform over plain HTTP: the watch
// page, the internal player endpoint and timed-text URLs.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL        = "https://www.youtube.com"
	DefaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultTimeout        = 15 * time.Second
	DefaultMaxBodyBytes   = 8 << 20
)

type Config struct {
	BaseURL           string
	UserAgent         string
	AcceptLanguage    string
	Timeout           time.Duration
	MaxBodyBytes      int64
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *logrus.Logger
}

// Client issues rate-limited requests with a bounded timeout per request.
// It is safe for concurrent use.
type Client struct {
	baseURL        *url.URL
	userAgent      string
	acceptLanguage string
	timeout        time.Duration
	maxBody        int64
	limiter        *rate.Limiter
	http           *http.Client
	log            *logrus.Logger
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Snippet returns the start of the body, for error messages.
func (r *Response) Snippet() string {
	const max = 256
	s := strings.TrimSpace(string(r.Body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrap(err, "youtube: parse base url")
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, errors.Errorf("youtube: base url %q must be http or https", base)
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	acceptLanguage := strings.TrimSpace(cfg.AcceptLanguage)
	if acceptLanguage == "" {
		acceptLanguage = DefaultAcceptLanguage
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Client{
		baseURL:        baseURL,
		userAgent:      userAgent,
		acceptLanguage: acceptLanguage,
		timeout:        timeout,
		maxBody:        maxBody,
		limiter:        rate.NewLimiter(limit, burst),
		http:           httpClient,
		log:            log,
	}, nil
}

// BaseURL returns a copy of the configured base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// ResolveURL resolves ref against the base URL, so that relative caption
// URLs such as "/api/timedtext?..." can be fetched.
func (c *Client) ResolveURL(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", errors.Wrapf(err, "youtube: parse url %q", ref)
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

// Get fetches rawURL. The error is non-nil only when no response was
// received; non-2xx responses are returned as they are.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, header, nil)
}

// PostJSON sends body encoded as JSON to rawURL.
func (c *Client) PostJSON(ctx context.Context, rawURL string, header http.Header, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "youtube: encode request body")
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return c.do(ctx, http.MethodPost, rawURL, h, payload)
}

func (c *Client) do(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "youtube: rate limit wait")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, errors.Wrap(err, "youtube: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", c.acceptLanguage)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "youtube: %s %s", method, redact(req.URL))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Wrapf(err, "youtube: read response from %s", redact(req.URL))
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("youtube: response from %s exceeds %d bytes", redact(req.URL), c.maxBody)
	}

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"url":      redact(req.URL),
		"status":   resp.StatusCode,
		"size":     len(data),
		"duration": time.Since(start),
	}).Debug("Upstream request completed")

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// redact drops the query string, which carries signatures and API keys.
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}
