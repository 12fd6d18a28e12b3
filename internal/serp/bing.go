package serp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	bingName    = "bing"
	bingBaseURL = "https://www.bing.com"
	// bingClickPrefix marks result links wrapped by Bing's click tracker.
	bingClickPrefix = "https://www.bing.com/ck/a?"
	bingItemClass   = "b_algo"
)

// bingCookie is the fixed set of feature flags Bing expects from a browser.
var bingCookie = strings.Join([]string{
	"_C_ETH=1",
	"_EDGE_V=1",
	"_Rwho=u=d",
	"bngps=s=0",
	"_UR=QS=4",
	"ANIMIA=FRE=1",
	"BCP=AD=0&AL=0&SM=0",
	"bngps=s=0",
	"SRCHD=AF=NOFORM",
}, "; ")

var bingPayload = regexp.MustCompile(`&u=a1([^&]+)`)

// Bing scrapes www.bing.com.
type Bing struct {
	base   string
	parser *Parser
}

// NewBing creates the Bing adapter.
func NewBing(opts ...Option) (*Bing, error) {
	o, err := buildOptions(bingName, bingBaseURL, opts)
	if err != nil {
		return nil, err
	}
	p, err := newEngineParser(bingName, "#b_results", "li."+bingItemClass, "h2 > a", "div > a", "div > p")
	if err != nil {
		return nil, err
	}
	return &Bing{base: o.baseURL, parser: p}, nil
}

func (b *Bing) Name() string { return bingName }

// SearchURL builds the results URL. Bing counts results from 1 in steps of
// ten and tags later pages with a FORM marker.
func (b *Bing) SearchURL(query string, page uint) string {
	q := url.QueryEscape(query)
	start := 10*page + 1
	switch page {
	case 0:
		return fmt.Sprintf("%s/search?q=%s&pq=%s", b.base, q, q)
	case 1:
		return fmt.Sprintf("%s/search?q=%s&pq=%s&first=%d&FORM=PERE", b.base, q, q, start)
	default:
		return fmt.Sprintf("%s/search?q=%s&pq=%s&first=%d&FORM=PERE%d", b.base, q, q, start, page-1)
	}
}

// Search ignores req.SafeSearch; Bing keys safe search off the account.
func (b *Bing) Search(ctx context.Context, tr Transport, req Request) ([]Result, error) {
	pairs := append(baseHeader(b.base, req), [2]string{"Cookie", bingCookie})
	h, err := buildHeader(bingName, pairs)
	if err != nil {
		return nil, err
	}

	doc, err := fetchDocument(ctx, bingName, tr, b.SearchURL(req.Query, req.Page), h)
	if err != nil {
		return nil, err
	}

	// Bing almost always finds something; it only signals an empty page by
	// tagging the results container itself with the item class.
	if b.parser.NoResults(doc).First().HasClass(bingItemClass) {
		return nil, newError(bingName, KindEmptyResultSet, nil)
	}

	return b.parser.Results(doc, func(title, link, desc *goquery.Selection) (Result, bool) {
		href, ok := link.Attr("href")
		if !ok {
			return Result{}, false
		}
		if strings.HasPrefix(href, bingClickPrefix) {
			href = DecodeBingURL(href)
		}
		d, ok := description(desc)
		if !ok {
			return Result{}, false
		}
		return newResult(strings.TrimSpace(title.Text()), href, d, bingName), true
	}), nil
}

// DecodeBingURL recovers the destination of a Bing click-tracking link from
// its base64 "u=a1" parameter. Links without a decodable payload are
// returned unchanged.
func DecodeBingURL(link string) string {
	m := bingPayload.FindStringSubmatch(link)
	if m == nil {
		return link
	}
	payload := strings.TrimRight(m[1], "=")
	enc := base64.RawStdEncoding
	if strings.ContainsAny(payload, "-_") {
		enc = base64.RawURLEncoding
	}
	decoded, err := enc.DecodeString(payload)
	if err != nil || !utf8.Valid(decoded) {
		return link
	}
	return string(decoded)
}
