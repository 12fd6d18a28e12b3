package serp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/http/httpguts"
)

const formContentType = "application/x-www-form-urlencoded"

// Option configures an adapter at construction time.
type Option func(*options)

type options struct {
	baseURL         string
	startpageScheme StartpageScheme
}

// WithBaseURL points an adapter at a different origin, such as a
// self-hosted LibreX instance or a test server.
func WithBaseURL(base string) Option {
	return func(o *options) { o.baseURL = base }
}

func buildOptions(engine, defaultBase string, opts []Option) (options, error) {
	o := options{baseURL: defaultBase}
	for _, opt := range opts {
		opt(&o)
	}
	o.baseURL = strings.TrimRight(o.baseURL, "/")
	u, err := url.Parse(o.baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return o, newError(engine, KindConfiguration, fmt.Errorf("invalid base url %q", o.baseURL))
	}
	return o, nil
}

func newEngineParser(engine, noResults, item, title, link, description string) (*Parser, error) {
	p, err := NewParser(noResults, item, title, link, description)
	if err != nil {
		var ee *EngineError
		if errors.As(err, &ee) {
			ee.Engine = engine
		}
		return nil, err
	}
	return p, nil
}

// baseHeader returns the header pairs every adapter sends.
func baseHeader(base string, req Request) [][2]string {
	return [][2]string{
		{"User-Agent", req.UserAgent},
		{"Accept-Language", req.AcceptLanguage},
		{"Referer", base + "/"},
		{"Origin", base},
	}
}

// buildHeader validates pairs and turns them into an http.Header. Invalid
// header bytes are reported as ErrUnexpected.
func buildHeader(engine string, pairs [][2]string) (http.Header, error) {
	h := make(http.Header, len(pairs))
	for _, kv := range pairs {
		if !httpguts.ValidHeaderFieldName(kv[0]) {
			return nil, newError(engine, KindUnexpected, fmt.Errorf("invalid header name %q", kv[0]))
		}
		if !httpguts.ValidHeaderFieldValue(kv[1]) {
			return nil, newError(engine, KindUnexpected, fmt.Errorf("invalid value for header %s", kv[0]))
		}
		h.Set(kv[0], kv[1])
	}
	return h, nil
}

// fetchDocument fetches target through tr and parses the body.
func fetchDocument(ctx context.Context, engine string, tr Transport, target string, h http.Header) (*goquery.Document, error) {
	if tr == nil {
		return nil, newError(engine, KindUnexpected, errors.New("nil transport"))
	}
	body, err := tr.Fetch(ctx, target, h)
	if err != nil {
		return nil, newError(engine, KindRequest, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, newError(engine, KindUnexpected, fmt.Errorf("parse html: %w", err))
	}
	return doc, nil
}

// innerHTML returns the trimmed inner markup of s, or false if it cannot be
// rendered.
func innerHTML(s *goquery.Selection) (string, bool) {
	h, err := s.Html()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(h), true
}

// description renders the description node and strips leading date spans.
func description(s *goquery.Selection) (string, bool) {
	h, err := s.Html()
	if err != nil {
		return "", false
	}
	return CleanDescription(h), true
}
