package serp

import (
	"context"
	"strings"
	"testing"
)

func TestBraveSafeSearchCookie(t *testing.T) {
	tests := []struct {
		level uint8
		want  string
	}{
		{0, "safe_search=off"},
		{1, "safe_search=moderate"},
		{2, "safe_search=strict"},
		{7, "safe_search=strict"},
	}
	e := newTestEngine(t, "brave")
	for _, tt := range tests {
		tr := &fakeTransport{body: "<html></html>"}
		if _, err := e.Search(context.Background(), tr, Request{Query: "q", SafeSearch: tt.level}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := tr.header.Get("Cookie"); got != tt.want {
			t.Errorf("level %d: got cookie %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestBingCookie(t *testing.T) {
	e := newTestEngine(t, "bing")
	tr := &fakeTransport{body: "<html></html>"}
	if _, err := e.Search(context.Background(), tr, Request{Query: "q", SafeSearch: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cookie := tr.header.Get("Cookie")
	if n := len(strings.Split(cookie, "; ")); n != 9 {
		t.Errorf("expected 9 cookie entries, got %d in %q", n, cookie)
	}
	for _, want := range []string{"_EDGE_V=1", "SRCHD=AF=NOFORM", "BCP=AD=0&AL=0&SM=0"} {
		if !strings.Contains(cookie, want) {
			t.Errorf("cookie %q missing %s", cookie, want)
		}
	}
	if tr.header.Get("Sec-GPC") != "" {
		t.Errorf("bing should not send Sec-GPC")
	}
}

func TestLibreXCookie(t *testing.T) {
	off := LibreXCookie(0)
	if !strings.HasPrefix(off, "preferences=") {
		t.Fatalf("unexpected cookie %q", off)
	}
	fields := strings.Split(strings.TrimPrefix(off, "preferences="), ", ")
	if len(fields) != 8 {
		t.Errorf("expected 8 preference fields, got %d: %v", len(fields), fields)
	}
	if !strings.Contains(off, "safe_search=off") {
		t.Errorf("expected safe_search=off in %q", off)
	}
	for _, level := range []uint8{1, 2} {
		if c := LibreXCookie(level); !strings.Contains(c, "safe_search=on") {
			t.Errorf("level %d: expected safe_search=on in %q", level, c)
		}
	}
}

func TestStartpageCookie(t *testing.T) {
	t.Run("offset", func(t *testing.T) {
		c := StartpageCookie(StartpageOffset, 0)
		if !strings.HasPrefix(c, "preferences=date_timeEEEworldN1N") {
			t.Errorf("unexpected cookie prefix %q", c)
		}
		if n := len(strings.Split(strings.TrimPrefix(c, "preferences="), "N1N")); n != 14 {
			t.Errorf("expected 14 fields, got %d", n)
		}
		if !strings.Contains(c, "disable_family_filterEEE1") {
			t.Errorf("safe search off should disable the family filter: %q", c)
		}
		if !strings.Contains(StartpageCookie(StartpageOffset, 1), "disable_family_filterEEE0") {
			t.Errorf("safe search on should keep the family filter")
		}
	})

	t.Run("page-index", func(t *testing.T) {
		c := StartpageCookie(StartpagePageIndex, 2)
		pairs := strings.Split(c, "; ")
		if len(pairs) != 14 {
			t.Errorf("expected 14 cookie pairs, got %d", len(pairs))
		}
		if pairs[1] != "disable_family_filter=0" {
			t.Errorf("unexpected family filter pair %q", pairs[1])
		}
		if !strings.Contains(StartpageCookie(StartpagePageIndex, 0), "disable_family_filter=1") {
			t.Errorf("safe search off should disable the family filter")
		}
	})

	t.Run("sent on request", func(t *testing.T) {
		for _, scheme := range []StartpageScheme{StartpageOffset, StartpagePageIndex} {
			e := newTestEngine(t, "startpage", WithStartpageScheme(scheme))
			tr := &fakeTransport{body: startpageFixture}
			res, err := e.Search(context.Background(), tr, Request{Query: "q", Page: 1})
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", scheme, err)
			}
			if len(res) != 1 {
				t.Errorf("%s: expected 1 result, got %d", scheme, len(res))
			}
			if got := tr.header.Get("Cookie"); got != StartpageCookie(scheme, 0) {
				t.Errorf("%s: unexpected cookie %q", scheme, got)
			}
		}
	})
}
