// Package serp scrapes ranked web results from upstream search engines and
// normalizes them into a single Result type.
//
// Every adapter follows the same pipeline: build the upstream URL and header
// set, fetch the page through a Transport, check the engine's no-results
// signal, then hand each result container to a Parser with an
// engine-specific mapping function.
package serp

import (
	"context"
	"net/http"
	"slices"
)

// Result is a single normalized search hit.
type Result struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Engines     []string `json:"engines"`
}

// HasEngine reports whether name is one of the engines the result came from.
func (r Result) HasEngine(name string) bool {
	return slices.Contains(r.Engines, name)
}

func newResult(title, link, description, engine string) Result {
	return Result{
		Title:       title,
		URL:         link,
		Description: description,
		Engines:     []string{engine},
	}
}

// Request carries the per-call parameters for a single upstream query.
type Request struct {
	Query          string
	Page           uint
	UserAgent      string
	AcceptLanguage string
	// SafeSearch is 0 (off), 1 (moderate) or 2 and above (strict).
	SafeSearch uint8
}

// Transport fetches raw HTML for a URL. Implementations own retries,
// timeouts, proxying and TLS; any failure they return is reported to the
// caller as ErrRequest.
type Transport interface {
	Fetch(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// TransportFunc adapts a plain function to the Transport interface.
type TransportFunc func(ctx context.Context, url string, header http.Header) ([]byte, error)

// Fetch calls f.
func (f TransportFunc) Fetch(ctx context.Context, url string, header http.Header) ([]byte, error) {
	return f(ctx, url, header)
}

// Engine is implemented by every upstream adapter. Implementations hold no
// mutable state and are safe for concurrent use.
type Engine interface {
	Name() string
	// Search returns the results of one upstream page in the order the
	// engine presented them. It fails with ErrEmptyResultSet when the
	// upstream page reports that nothing matched.
	Search(ctx context.Context, tr Transport, req Request) ([]Result, error)
}
