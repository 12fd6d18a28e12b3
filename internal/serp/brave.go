package serp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	braveName    = "brave"
	braveBaseURL = "https://search.brave.com"
	braveNoMatch = "Not many great matches came back for your search"
)

// Brave scrapes search.brave.com.
type Brave struct {
	base   string
	parser *Parser
}

// NewBrave creates the Brave adapter.
func NewBrave(opts ...Option) (*Brave, error) {
	o, err := buildOptions(braveName, braveBaseURL, opts)
	if err != nil {
		return nil, err
	}
	p, err := newEngineParser(braveName, "#results h4", "#results [data-pos]", "a > .url", "a", ".snippet-description")
	if err != nil {
		return nil, err
	}
	return &Brave{base: o.baseURL, parser: p}, nil
}

func (b *Brave) Name() string { return braveName }

// SearchURL builds the results URL. Brave's offset is the page number.
func (b *Brave) SearchURL(query string, page uint) string {
	return fmt.Sprintf("%s/search?q=%s&offset=%d", b.base, url.QueryEscape(query), page)
}

// BraveSafeSearch maps a safe-search level to Brave's cookie value.
func BraveSafeSearch(level uint8) string {
	switch level {
	case 0:
		return "off"
	case 1:
		return "moderate"
	default:
		return "strict"
	}
}

func (b *Brave) Search(ctx context.Context, tr Transport, req Request) ([]Result, error) {
	pairs := append(baseHeader(b.base, req),
		[2]string{"Content-Type", formContentType},
		[2]string{"Sec-GPC", "1"},
		[2]string{"Cookie", "safe_search=" + BraveSafeSearch(req.SafeSearch)},
	)
	h, err := buildHeader(braveName, pairs)
	if err != nil {
		return nil, err
	}

	doc, err := fetchDocument(ctx, braveName, tr, b.SearchURL(req.Query, req.Page), h)
	if err != nil {
		return nil, err
	}

	if strings.Contains(b.parser.NoResults(doc).First().Text(), braveNoMatch) {
		return nil, newError(braveName, KindEmptyResultSet, nil)
	}

	return b.parser.Results(doc, func(title, link, desc *goquery.Selection) (Result, bool) {
		href, ok := link.Attr("href")
		if !ok {
			return Result{}, false
		}
		d, ok := description(desc)
		if !ok {
			return Result{}, false
		}
		return newResult(strings.TrimSpace(title.Text()), strings.TrimSpace(href), d, braveName), true
	}), nil
}
