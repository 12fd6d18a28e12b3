package serp

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// MapFunc turns the title, link and description nodes of one result
// container into a Result. Returning false drops the item.
type MapFunc func(title, link, description *goquery.Selection) (Result, bool)

// Parser extracts result containers from an upstream page using five
// selectors compiled once at construction. A Parser is never modified after
// NewParser returns and may be shared between goroutines.
type Parser struct {
	noResults   cascadia.Selector
	item        cascadia.Selector
	title       cascadia.Selector
	link        cascadia.Selector
	description cascadia.Selector
}

// NewParser compiles the no-results, result-item, title, link and
// description selectors. The last three are evaluated relative to each
// result item. Any invalid expression is reported as ErrConfiguration.
func NewParser(noResults, item, title, link, description string) (*Parser, error) {
	var p Parser
	for _, s := range []struct {
		dst  *cascadia.Selector
		expr string
	}{
		{&p.noResults, noResults},
		{&p.item, item},
		{&p.title, title},
		{&p.link, link},
		{&p.description, description},
	} {
		sel, err := cascadia.Compile(s.expr)
		if err != nil {
			return nil, &EngineError{
				Kind: KindConfiguration,
				Err:  fmt.Errorf("compile selector %q: %w", s.expr, err),
			}
		}
		*s.dst = sel
	}
	return &p, nil
}

// NoResults runs the no-results selector against doc. Each call is a fresh
// query; the returned selection may be empty.
func (p *Parser) NoResults(doc *goquery.Document) *goquery.Selection {
	return doc.FindMatcher(p.noResults)
}

// Results visits every result item in document order. Items missing a
// title, link or description node are skipped, as are items fn rejects.
// The returned slice is never nil.
func (p *Parser) Results(doc *goquery.Document, fn MapFunc) []Result {
	results := make([]Result, 0)
	doc.FindMatcher(p.item).Each(func(_ int, item *goquery.Selection) {
		title := item.FindMatcher(p.title).First()
		link := item.FindMatcher(p.link).First()
		desc := item.FindMatcher(p.description).First()
		if title.Length() == 0 || link.Length() == 0 || desc.Length() == 0 {
			return
		}
		if r, ok := fn(title, link, desc); ok {
			results = append(results, r)
		}
	})
	return results
}
