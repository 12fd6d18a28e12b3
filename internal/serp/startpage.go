package serp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	startpageName    = "startpage"
	startpageBaseURL = "https://www.startpage.com"
	startpagePerPage = 20
)

// StartpageScheme selects how Startpage is asked for later pages and how
// preferences are packed into the cookie.
type StartpageScheme string

const (
	// StartpageOffset requests num=20 results starting at start=20*page and
	// sends preferences as a single EEE/N1N encoded cookie value.
	StartpageOffset StartpageScheme = "offset"
	// StartpagePageIndex requests page=page+1 and sends each preference as
	// its own cookie pair.
	StartpagePageIndex StartpageScheme = "page-index"
)

// WithStartpageScheme overrides the default StartpageOffset scheme. Other
// adapters ignore it.
func WithStartpageScheme(s StartpageScheme) Option {
	return func(o *options) { o.startpageScheme = s }
}

// Startpage scrapes www.startpage.com.
type Startpage struct {
	base   string
	scheme StartpageScheme
	parser *Parser
}

// NewStartpage creates the Startpage adapter.
func NewStartpage(opts ...Option) (*Startpage, error) {
	o, err := buildOptions(startpageName, startpageBaseURL, opts)
	if err != nil {
		return nil, err
	}
	scheme := o.startpageScheme
	switch scheme {
	case "":
		scheme = StartpageOffset
	case StartpageOffset, StartpagePageIndex:
	default:
		return nil, newError(startpageName, KindConfiguration, fmt.Errorf("unknown startpage scheme %q", scheme))
	}
	p, err := newEngineParser(startpageName, ".no-results", ".w-gl>.result", ".result-title>h2", ".result-title", ".description")
	if err != nil {
		return nil, err
	}
	return &Startpage{base: o.baseURL, scheme: scheme, parser: p}, nil
}

func (s *Startpage) Name() string { return startpageName }

// Scheme reports the pagination scheme in use.
func (s *Startpage) Scheme() StartpageScheme { return s.scheme }

// SearchURL builds the results URL for the configured scheme.
func (s *Startpage) SearchURL(query string, page uint) string {
	q := url.QueryEscape(query)
	if s.scheme == StartpagePageIndex {
		return fmt.Sprintf("%s/sp/search?q=%s&page=%d", s.base, q, page+1)
	}
	return fmt.Sprintf("%s/sp/search?q=%s&num=%d&start=%d", s.base, q, startpagePerPage, startpagePerPage*page)
}

// startpagePreferences lists the fourteen preference fields Startpage reads.
// The family filter flag is inverted: 1 disables filtering.
func startpagePreferences(safeSearch uint8) [][2]string {
	familyFilterOff := "0"
	if safeSearch == 0 {
		familyFilterOff = "1"
	}
	return [][2]string{
		{"date_time", "world"},
		{"disable_family_filter", familyFilterOff},
		{"disable_open_in_new_window", "1"},
		{"enable_post_method", "0"},
		{"enable_proxy_safety_suggest", "0"},
		{"enable_stay_control", "0"},
		{"instant_answers", "0"},
		{"lang_homepage", "s%2Fdevice%2Fen"},
		{"language", "english"},
		{"language_ui", "english"},
		{"num_of_results", fmt.Sprint(startpagePerPage)},
		{"search_results_region", "all"},
		{"suggestions", "0"},
		{"wt_unit", "celsius"},
	}
}

// StartpageCookie encodes the preference cookie for scheme.
func StartpageCookie(scheme StartpageScheme, safeSearch uint8) string {
	prefs := startpagePreferences(safeSearch)
	parts := make([]string, 0, len(prefs))
	if scheme == StartpagePageIndex {
		for _, kv := range prefs {
			parts = append(parts, kv[0]+"="+kv[1])
		}
		return strings.Join(parts, "; ")
	}
	for _, kv := range prefs {
		parts = append(parts, kv[0]+"EEE"+kv[1])
	}
	return "preferences=" + strings.Join(parts, "N1N")
}

func (s *Startpage) Search(ctx context.Context, tr Transport, req Request) ([]Result, error) {
	pairs := append(baseHeader(s.base, req),
		[2]string{"Content-Type", formContentType},
		[2]string{"Sec-GPC", "1"},
		[2]string{"Cookie", StartpageCookie(s.scheme, req.SafeSearch)},
	)
	h, err := buildHeader(startpageName, pairs)
	if err != nil {
		return nil, err
	}

	doc, err := fetchDocument(ctx, startpageName, tr, s.SearchURL(req.Query, req.Page), h)
	if err != nil {
		return nil, err
	}

	if s.parser.NoResults(doc).Length() > 0 {
		return nil, newError(startpageName, KindEmptyResultSet, nil)
	}

	return s.parser.Results(doc, func(title, link, desc *goquery.Selection) (Result, bool) {
		href, ok := link.Attr("href")
		if !ok {
			return Result{}, false
		}
		d, ok := description(desc)
		if !ok {
			return Result{}, false
		}
		return newResult(strings.TrimSpace(title.Text()), href, d, startpageName), true
	}), nil
}
