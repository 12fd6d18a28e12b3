// Package proxy rotates outbound proxies and tracks their health.
//
// Health is tracked on two levels. Connection failures count against the
// proxy itself and, after MaxFailures in a row, bench it for Cooldown on
// every host. Blocks (a captcha, 403 or 429 from an upstream) bench the
// proxy for BlockCooldown on that host only.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool does not hold.
var ErrUnknownProxy = errors.New("proxy: not found in pool")

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures is the number of consecutive connection failures that
	// bench a proxy for all hosts.
	MaxFailures int
	// Cooldown is how long a benched proxy stays out of rotation.
	Cooldown time.Duration
	// BlockCooldown is how long a proxy stays out of rotation for a host
	// that blocked it. Defaults to Cooldown.
	BlockCooldown time.Duration
}

type endpoint struct {
	url       *url.URL
	key       string
	failures  int
	benched   time.Time
	blocked   map[string]time.Time // host -> until
	successes int
}

func (e *endpoint) available(host string, now time.Time) bool {
	if now.Before(e.benched) {
		return false
	}
	if until, ok := e.blocked[host]; ok {
		if now.Before(until) {
			return false
		}
		delete(e.blocked, host)
	}
	return true
}

// Pool hands out proxies round-robin, skipping those benched for the
// requested host. It is safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	cursor    int
	cfg       Config
	now       func() time.Time
}

// NewPool creates a new proxy pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.BlockCooldown <= 0 {
		cfg.BlockCooldown = cfg.Cooldown
	}
	return &Pool{cfg: cfg, now: time.Now}
}

// LoadFile reads proxies from a file, expecting one URL per line.
// Lines starting with '#' or empty lines are ignored.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}
	return p.Add(urls...)
}

// Add parses raw proxy URLs and appends them to the rotation. A missing
// scheme means http. Duplicates are ignored. Nothing is added if any entry
// fails to parse.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: parse %q: missing host", raw)
		}
		parsed = append(parsed, u)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range parsed {
		if p.lookup(u) != nil {
			continue
		}
		p.endpoints = append(p.endpoints, &endpoint{
			url:     u,
			key:     u.String(),
			blocked: make(map[string]time.Time),
		})
	}
	return nil
}

// Next returns the next proxy usable for host, or nil if the pool is empty or
// every proxy is benched for host.
func (p *Pool) Next(host string) *url.URL {
	host = strings.ToLower(host)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.endpoints {
		e := p.endpoints[p.cursor]
		p.cursor = (p.cursor + 1) % len(p.endpoints)
		if e.available(host, now) {
			return e.url
		}
	}
	return nil
}

// MarkSuccess records a request that reached the upstream through u. It
// clears the connection failure streak.
func (p *Pool) MarkSuccess(u *url.URL) error {
	return p.update(u, func(e *endpoint, _ time.Time) {
		e.successes++
		e.failures = 0
	})
}

// MarkFailure records a connection failure through u. MaxFailures in a row
// bench the proxy for every host.
func (p *Pool) MarkFailure(u *url.URL) error {
	return p.update(u, func(e *endpoint, now time.Time) {
		e.failures++
		if e.failures >= p.cfg.MaxFailures {
			e.failures = 0
			e.benched = now.Add(p.cfg.Cooldown)
		}
	})
}

// MarkBlocked records that host refused requests arriving through u. The
// proxy stays in rotation for other hosts.
func (p *Pool) MarkBlocked(u *url.URL, host string) error {
	host = strings.ToLower(host)
	return p.update(u, func(e *endpoint, now time.Time) {
		e.blocked[host] = now.Add(p.cfg.BlockCooldown)
	})
}

func (p *Pool) update(u *url.URL, fn func(*endpoint, time.Time)) error {
	if u == nil {
		return errors.New("proxy: nil proxy url")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.lookup(u)
	if e == nil {
		return ErrUnknownProxy
	}
	fn(e, p.now())
	return nil
}

// lookup must be called with p.mu held.
func (p *Pool) lookup(u *url.URL) *endpoint {
	key := u.String()
	for _, e := range p.endpoints {
		if e.key == key {
			return e
		}
	}
	return nil
}

// Len reports how many proxies the pool holds, healthy or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Status is a point-in-time view of one proxy.
type Status struct {
	URL          string // credentials redacted
	Successes    int
	Failures     int
	BenchedUntil time.Time
	BlockedHosts []string
}

// Snapshot reports the state of every proxy, in rotation order.
func (p *Pool) Snapshot() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]Status, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		st := Status{
			URL:       e.url.Redacted(),
			Successes: e.successes,
			Failures:  e.failures,
		}
		if now.Before(e.benched) {
			st.BenchedUntil = e.benched
		}
		for h, until := range e.blocked {
			if now.Before(until) {
				st.BlockedHosts = append(st.BlockedHosts, h)
			}
		}
		slices.Sort(st.BlockedHosts)
		out = append(out, st)
	}
	return out
}

type contextKey struct{}

// WithProxy returns a context that routes requests made with it through u.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the proxy stored by WithProxy, or nil.
func FromContext(ctx context.Context) *url.URL {
	u, _ := ctx.Value(contextKey{}).(*url.URL)
	return u
}
