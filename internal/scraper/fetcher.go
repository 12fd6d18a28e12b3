// Package scraper is the HTTP side of sift: it fetches result pages for the
// engine adapters with browser fingerprints, proxy rotation and pacing.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/internal/fingerprint"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/pkg/httpclient"
	"github.com/FranksOps/sift/pkg/proxy"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/useragent"
)

const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// ErrChallenged is returned when an upstream answered with a captcha or bot
// wall instead of a results page.
var ErrChallenged = errors.New("challenged by bot protection")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	MaxBodyBytes int64
	ProxyPool    *proxy.Pool
	Identities   *useragent.Pool
	Fingerprint  fingerprint.Profile
	// Limits paces requests per upstream host. Nil disables pacing.
	Limits *ratelimit.Set
	// Detectors defaults to bypass.DefaultDetectors.
	Detectors []bypass.Detector
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

// Fetcher performs single URL fetches using the configured bypass strategies.
// It satisfies serp.Transport and is safe for concurrent use.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher initializes a new Fetcher with the given configuration.
// By holding a single client across requests, cookie jars (if configured) persist for the lifetime of the Fetcher.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Identities == nil {
		cfg.Identities = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy is chosen per request and travels in the request context.
	opts := fingerprint.Options{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.ProxyPool != nil {
		opts.Proxy = proxy.FromContext
	}
	transport, err := fingerprint.Transport(cfg.Fingerprint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{
		config: cfg,
		client: client,
		logger: cfg.Logger,
	}, nil
}

// Fetch GETs targetURL with header and returns the body. Identity headers the
// caller left empty are filled from the identity pool. Challenge pages and
// non-2xx statuses are errors.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, header http.Header) ([]byte, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	host := u.Hostname()

	if f.config.Limits != nil {
		if err := f.config.Limits.Wait(ctx, host); err != nil {
			return nil, fmt.Errorf("rate limiter failed: %w", err)
		}
	}

	h := f.prepareHeader(header)

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		if activeProxy = f.config.ProxyPool.Next(host); activeProxy != nil {
			ctx = proxy.WithProxy(ctx, activeProxy)
		}
	}

	resp, err := f.client.Get(ctx, targetURL, h)
	if err != nil {
		// A cancelled caller says nothing about the proxy.
		if activeProxy != nil && ctx.Err() == nil {
			f.proxyFailed(activeProxy, host, "connect")
		}
		metrics.RecordFetch(metrics.Fetch{Host: host, Err: err})
		f.logger.Debug("fetch failed", "url", targetURL, "err", err)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	src, challenged := bypass.Analyze(&bypass.Response{
		URL:        resp.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, f.config.Detectors)

	if activeProxy != nil {
		if challenged || blockedStatus(resp.StatusCode) {
			f.proxyFailed(activeProxy, host, "blocked")
		} else {
			_ = f.config.ProxyPool.MarkSuccess(activeProxy)
		}
	}

	metrics.RecordFetch(metrics.Fetch{
		Host:         host,
		StatusCode:   resp.StatusCode,
		DetectionSrc: src,
		Bytes:        len(resp.Body),
	})
	f.logger.Debug("fetched",
		"url", targetURL,
		"status", resp.StatusCode,
		"bytes", len(resp.Body),
		"duration", resp.Duration,
		"detected", src,
	)

	if challenged {
		return nil, fmt.Errorf("%w: %s", ErrChallenged, src)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: targetURL, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

func blockedStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusTooManyRequests
}

// proxyFailed benches u: everywhere after repeated connect failures, or for
// host alone when host blocked it.
func (f *Fetcher) proxyFailed(u *url.URL, host, reason string) {
	if reason == "blocked" {
		_ = f.config.ProxyPool.MarkBlocked(u, host)
	} else {
		_ = f.config.ProxyPool.MarkFailure(u)
	}
	metrics.ProxyFailures.WithLabelValues(u.Redacted(), reason).Inc()
	f.logger.Debug("proxy failed", "proxy", u.Redacted(), "host", host, "reason", reason)
}

func (f *Fetcher) prepareHeader(header http.Header) http.Header {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("User-Agent") == "" || h.Get("Accept-Language") == "" {
		id := f.config.Identities.Next()
		if h.Get("User-Agent") == "" {
			h.Set("User-Agent", id.UserAgent)
		}
		if h.Get("Accept-Language") == "" {
			h.Set("Accept-Language", id.AcceptLanguage)
		}
	}
	if h.Get("Accept") == "" {
		h.Set("Accept", defaultAccept)
	}
	return h
}
