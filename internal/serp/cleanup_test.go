package serp

import "testing"

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Just text  ", "Just text"},
		{"leading span", `<span class="news_dt">Mar 3, 2024</span>Body`, "Body"},
		{"span with nbsp middot", "<span>Mar 3, 2024</span>&nbsp;Â· Body", "Body"},
		{"span with raw middot", "<span>Mar 3, 2024</span> · Body", "Body"},
		{"span with entity middot", "<span>2 days ago</span> &middot; Body", "Body"},
		{"two leading spans", "<span>a</span><span>b</span> Body", "Body"},
		{"leading whitespace", "\n   <span>a</span> Body", "Body"},
		{"inner span kept", "Body <span>kept</span>", "Body <span>kept</span>"},
		{"unterminated span", "<span>never closed", "<span>never closed"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanDescription(tt.in)
			if got != tt.want {
				t.Errorf("CleanDescription(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := CleanDescription(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}
