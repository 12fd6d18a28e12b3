package serp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	libreXName    = "librex"
	libreXBaseURL = "https://search.ahwx.org"
)

// LibreX scrapes a LibreX metasearch instance. The default is a public
// instance; WithBaseURL selects another.
type LibreX struct {
	base   string
	parser *Parser
}

// NewLibreX creates the LibreX adapter.
func NewLibreX(opts ...Option) (*LibreX, error) {
	o, err := buildOptions(libreXName, libreXBaseURL, opts)
	if err != nil {
		return nil, err
	}
	p, err := newEngineParser(libreXName,
		".text-result-container>p",
		".text-result-container>.text-result-wrapper",
		"a>h2",
		"a",
		"span",
	)
	if err != nil {
		return nil, err
	}
	return &LibreX{base: o.baseURL, parser: p}, nil
}

func (l *LibreX) Name() string { return libreXName }

// SearchURL builds the results URL. LibreX paginates by result offset.
func (l *LibreX) SearchURL(query string, page uint) string {
	return fmt.Sprintf("%s/search.php?q=%s&p=%d&t=10", l.base, url.QueryEscape(query), 10*page)
}

// LibreXCookie encodes the instance preferences LibreX reads from its
// "preferences" cookie.
func LibreXCookie(safeSearch uint8) string {
	level := "on"
	if safeSearch == 0 {
		level = "off"
	}
	settings := [][2]string{
		{"theme", "amoled"},
		{"disable_special", "on"},
		{"disable_frontends", "on"},
		{"language", "en"},
		{"number_of_results", "20"},
		{"safe_search", level},
		{"engine", "auto"},
		{"save", "1"},
	}
	pairs := make([]string, 0, len(settings))
	for _, kv := range settings {
		pairs = append(pairs, kv[0]+"="+kv[1])
	}
	return "preferences=" + strings.Join(pairs, ", ")
}

func (l *LibreX) Search(ctx context.Context, tr Transport, req Request) ([]Result, error) {
	pairs := append(baseHeader(l.base, req),
		[2]string{"Content-Type", formContentType},
		[2]string{"Sec-GPC", "1"},
		[2]string{"Cookie", LibreXCookie(req.SafeSearch)},
	)
	h, err := buildHeader(libreXName, pairs)
	if err != nil {
		return nil, err
	}

	doc, err := fetchDocument(ctx, libreXName, tr, l.SearchURL(req.Query, req.Page), h)
	if err != nil {
		return nil, err
	}

	if l.parser.NoResults(doc).Length() > 0 {
		return nil, newError(libreXName, KindEmptyResultSet, nil)
	}

	return l.parser.Results(doc, func(title, link, desc *goquery.Selection) (Result, bool) {
		href, ok := link.Attr("href")
		if !ok {
			return Result{}, false
		}
		d, ok := description(desc)
		if !ok {
			return Result{}, false
		}
		return newResult(strings.TrimSpace(title.Text()), href, d, libreXName), true
	}), nil
}
