// Package bypass recognises bot-protection and captcha pages so they are
// reported as failed requests instead of being parsed as empty result pages.
package bypass

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Response is the part of an upstream reply detectors look at.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) path() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Path
}

func (r *Response) host() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the CDN detectors followed by the search engines'
// own challenge pages, each scoped to that engine's public hosts.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		BingDetector(BingHosts...),
		DuckDuckGoDetector(DuckDuckGoHosts...),
		BraveDetector(BraveHosts...),
		StartpageDetector(StartpageHosts...),
		detectTooManyRequests,
	}
}

// Analyze runs the response through the detectors and returns the source of
// the first one that fires.
func Analyze(res *Response, detectors []Detector) (source string, detected bool) {
	if res == nil {
		return "", false
	}
	for _, d := range detectors {
		if ok, src := d(res); ok {
			return src, true
		}
	}
	return "", false
}

func getHeader(headers http.Header, key string) string {
	if vals, ok := headers[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	// Case-insensitive fallback
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func bodyContains(res *Response, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(res.Body, []byte(n)) {
			return true
		}
	}
	return false
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(res.Header, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bodyContains(res, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(res.Header, "Server")), "akamai") {
		return true, "Akamai"
	}
	// Akamai often returns a generic "Reference #" block page
	if bodyContains(res, "Reference #") && bodyContains(res, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(res.Header, "Server")), "datadome") {
		return true, "DataDome"
	}
	if getHeader(res.Header, "X-DataDome") != "" || getHeader(res.Header, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bodyContains(res, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if getHeader(res.Header, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bodyContains(res, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

// Engine challenge pages are recognised by markup. Text that mentions a
// marker in a title or snippet does not match.
var (
	bingChallenge  = cascadia.MustCompile(`#b_captcha, form[action*="/turing/captcha"], iframe[src*="/turing/captcha"]`)
	ddgChallenge   = cascadia.MustCompile(`[class*="anomaly-modal"], form#challenge-form`)
	braveChallenge = cascadia.MustCompile(`#captcha-container, [class*="pow-captcha"], form[action*="/captcha"]`)
)

// Default hosts for the engine detectors.
var (
	BingHosts       = []string{"www.bing.com", "bing.com", "cn.bing.com"}
	DuckDuckGoHosts = []string{"html.duckduckgo.com", "duckduckgo.com"}
	BraveHosts      = []string{"search.brave.com"}
	StartpageHosts  = []string{"www.startpage.com", "startpage.com", "eu.startpage.com"}
)

// BingDetector matches the Turing captcha Bing serves to suspected bots.
// Like the other engine detectors it only fires for responses from hosts.
func BingDetector(hosts ...string) Detector {
	return engineDetector("Bing", hosts, func(res *Response) bool {
		return strings.HasPrefix(res.path(), "/turing/captcha") || documentMatches(res, bingChallenge)
	})
}

// DuckDuckGoDetector matches the anomaly modal the HTML endpoint returns,
// often with a 200 status.
func DuckDuckGoDetector(hosts ...string) Detector {
	return engineDetector("DuckDuckGo", hosts, func(res *Response) bool {
		return documentMatches(res, ddgChallenge)
	})
}

// BraveDetector matches Brave Search's captcha interstitial.
func BraveDetector(hosts ...string) Detector {
	return engineDetector("Brave", hosts, func(res *Response) bool {
		return strings.HasPrefix(res.path(), "/captcha") || documentMatches(res, braveChallenge)
	})
}

// StartpageDetector matches Startpage's captcha redirect target.
func StartpageDetector(hosts ...string) Detector {
	return engineDetector("Startpage", hosts, func(res *Response) bool {
		return strings.HasPrefix(res.path(), "/sp/captcha")
	})
}

func engineDetector(source string, hosts []string, match func(*Response) bool) Detector {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[strings.ToLower(h)] = struct{}{}
	}
	return func(res *Response) (bool, string) {
		if _, ok := set[res.host()]; !ok {
			return false, ""
		}
		if match(res) {
			return true, source
		}
		return false, ""
	}
}

func documentMatches(res *Response, m goquery.Matcher) bool {
	if len(res.Body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return false
	}
	return doc.FindMatcher(m).Length() > 0
}

func detectTooManyRequests(res *Response) (bool, string) {
	if res.StatusCode == http.StatusTooManyRequests {
		return true, "RateLimited"
	}
	return false, ""
}
