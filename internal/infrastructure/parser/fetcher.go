package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/extractor"
	"HypothesisValidator/internal/ports"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultMaxBody   = 10 << 20
	maxRedirects     = 10
)

var errBodyTooLarge = errors.New("response body exceeds limit")

// FetcherOptions configures the HTTP fetcher.
type FetcherOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	HostRate     rate.Limit
	HostBurst    int
}

// HTTPFetcher downloads pages and runs them through the extractor registry.
type HTTPFetcher struct {
	client   *http.Client
	registry *extractor.Registry
	opts     FetcherOptions
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ ports.ArticleFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher fills option defaults; a nil client gets one with the configured timeout.
func NewHTTPFetcher(client *http.Client, reg *extractor.Registry, opts FetcherOptions, logger *slog.Logger) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	if opts.HostRate <= 0 {
		opts.HostRate = rate.Inf
	}
	if opts.HostBurst <= 0 {
		opts.HostBurst = 1
	}
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}
	}
	if reg == nil {
		reg = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client:   client,
		registry: reg,
		opts:     opts,
		logger:   logger,
		limiters: map[string]*rate.Limiter{},
	}
}

// Fetch downloads rawURL and extracts its title and text. Every failure is a *domain.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (domain.ParsedArticle, error) {
	fail := func(status int, err error) (domain.ParsedArticle, error) {
		return domain.ParsedArticle{}, &domain.FetchError{URL: rawURL, StatusCode: status, Err: err}
	}

	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fail(0, fmt.Errorf("parse url: %w", err))
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return fail(0, fmt.Errorf("unsupported scheme %q", target.Scheme))
	}

	if err := f.limiterFor(target.Hostname()).Wait(ctx); err != nil {
		return fail(0, fmt.Errorf("rate limiter wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fail(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("request document: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fail(resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	contentType := resp.Header.Get("Content-Type")
	if !isMarkup(contentType) {
		return fail(resp.StatusCode, fmt.Errorf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return fail(resp.StatusCode, errBodyTooLarge)
	}

	parsed, err := f.registry.Extract(extractor.Page{URL: resp.Request.URL, ContentType: contentType, Body: body})
	if err != nil {
		return fail(resp.StatusCode, err)
	}

	f.logger.Debug("article fetched",
		"url", rawURL,
		"final_url", resp.Request.URL.String(),
		"bytes", len(body),
		"chars", len(parsed.Content),
		"duration", time.Since(started),
	)
	return parsed, nil
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	host = strings.ToLower(host)
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.opts.HostRate, f.opts.HostBurst)
		f.limiters[host] = lim
	}
	return lim
}

// isMarkup accepts HTML-ish responses and responses without a declared type.
func isMarkup(contentType string) bool {
	if contentType == "" {
		return true
	}
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch media {
	case "text/html", "application/xhtml+xml", "application/xml", "text/xml", "text/plain":
		return true
	default:
		return false
	}
}
