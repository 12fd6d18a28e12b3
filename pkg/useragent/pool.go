// Package useragent rotates browser identities for upstream requests.
package useragent

import (
	"crypto/rand"
	"math/big"
	"sync/atomic"
)

// Identity is a User-Agent and the Accept-Language sent alongside it.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
}

const defaultLanguage = "en-US,en;q=0.5"

// DefaultPool provides a realistic set of modern desktop browser identities.
var DefaultPool = []Identity{
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "en-US,en;q=0.9"},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36", "en-US,en;q=0.9"},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "en-US,en;q=0.9"},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0", defaultLanguage},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0", defaultLanguage},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0", defaultLanguage},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15", "en-US,en;q=0.9"},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0", "en-US,en;q=0.9"},
}

// Fixed builds identities from plain user agent strings that all share one
// Accept-Language value. An empty acceptLanguage uses a generic English one.
func Fixed(acceptLanguage string, uas ...string) []Identity {
	if acceptLanguage == "" {
		acceptLanguage = defaultLanguage
	}
	ids := make([]Identity, 0, len(uas))
	for _, ua := range uas {
		ids = append(ids, Identity{UserAgent: ua, AcceptLanguage: acceptLanguage})
	}
	return ids
}

// Pool hands out identities sequentially or at random.
type Pool struct {
	ids     []Identity
	counter atomic.Uint64
}

// NewPool creates a pool. An empty slice falls back to DefaultPool.
func NewPool(ids []Identity) *Pool {
	if len(ids) == 0 {
		ids = DefaultPool
	}
	copied := make([]Identity, len(ids))
	copy(copied, ids)
	return &Pool{ids: copied}
}

// Next returns identities round-robin. It is safe for concurrent use.
func (p *Pool) Next() Identity {
	if len(p.ids) == 0 {
		return Identity{}
	}
	idx := p.counter.Add(1) - 1
	return p.ids[idx%uint64(len(p.ids))]
}

// Random returns a uniformly chosen identity using crypto/rand.
func (p *Pool) Random() Identity {
	if len(p.ids) == 0 {
		return Identity{}
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.ids))))
	if err != nil {
		return p.Next()
	}
	return p.ids[n.Int64()]
}

// Len reports the pool size.
func (p *Pool) Len() int { return len(p.ids) }
