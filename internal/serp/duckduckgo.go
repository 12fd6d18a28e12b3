package serp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	duckDuckGoName    = "duckduckgo"
	duckDuckGoBaseURL = "https://html.duckduckgo.com"
	// duckDuckGoPageSize is the number of results the html endpoint serves
	// per page.
	duckDuckGoPageSize = 30
)

// DuckDuckGo scrapes the JavaScript-free html.duckduckgo.com frontend.
type DuckDuckGo struct {
	base   string
	parser *Parser
}

// NewDuckDuckGo creates the DuckDuckGo adapter.
func NewDuckDuckGo(opts ...Option) (*DuckDuckGo, error) {
	o, err := buildOptions(duckDuckGoName, duckDuckGoBaseURL, opts)
	if err != nil {
		return nil, err
	}
	p, err := newEngineParser(duckDuckGoName, ".no-results", ".results>.result", ".result__title>.result__a", ".result__url", ".result__snippet")
	if err != nil {
		return nil, err
	}
	return &DuckDuckGo{base: o.baseURL, parser: p}, nil
}

func (d *DuckDuckGo) Name() string { return duckDuckGoName }

// SearchURL builds the results URL. The first page leaves the offset
// parameters empty.
func (d *DuckDuckGo) SearchURL(query string, page uint) string {
	q := url.QueryEscape(query)
	if page == 0 {
		return fmt.Sprintf("%s/html/?q=%s&s=&dc=&v=1&o=json&api=/d.js", d.base, q)
	}
	offset := duckDuckGoPageSize * page
	return fmt.Sprintf("%s/html/?q=%s&s=%d&dc=%d&v=1&o=json&api=/d.js", d.base, q, offset, offset+1)
}

// Search ignores req.SafeSearch.
func (d *DuckDuckGo) Search(ctx context.Context, tr Transport, req Request) ([]Result, error) {
	pairs := append(baseHeader(d.base, req),
		[2]string{"Content-Type", formContentType},
		[2]string{"Sec-GPC", "1"},
	)
	h, err := buildHeader(duckDuckGoName, pairs)
	if err != nil {
		return nil, err
	}

	doc, err := fetchDocument(ctx, duckDuckGoName, tr, d.SearchURL(req.Query, req.Page), h)
	if err != nil {
		return nil, err
	}

	if d.parser.NoResults(doc).Length() > 0 {
		return nil, newError(duckDuckGoName, KindEmptyResultSet, nil)
	}

	return d.parser.Results(doc, func(title, link, desc *goquery.Selection) (Result, bool) {
		// The visible url text carries no scheme.
		u, ok := innerHTML(link)
		if !ok {
			return Result{}, false
		}
		dsc, ok := description(desc)
		if !ok {
			return Result{}, false
		}
		return newResult(strings.TrimSpace(title.Text()), "https://"+u, dsc, duckDuckGoName), true
	}), nil
}
