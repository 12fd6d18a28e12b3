package serp

import (
	"regexp"
	"strings"
)

// leadingSpan matches a published-date style <span>…</span> at the start of
// a description, with an optional middot separator after it.
var leadingSpan = regexp.MustCompile(`(?s)^\s*<span\b[^>]*>.*?</span>(?:\s*(?:&nbsp;|\x{00a0})?\s*(?:Â·|·|&middot;|&#183;))?`)

// CleanDescription strips every leading <span> fragment from raw description
// markup and trims the result. Applying it twice gives the same string as
// applying it once.
func CleanDescription(raw string) string {
	for {
		loc := leadingSpan.FindStringIndex(raw)
		if loc == nil {
			break
		}
		raw = raw[loc[1]:]
	}
	return strings.TrimSpace(raw)
}
