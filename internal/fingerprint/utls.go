// Package fingerprint builds HTTP transports whose TLS ClientHello matches a
// real browser.
package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

var helloIDs = map[Profile]utls.ClientHelloID{
	ProfileChrome:  utls.HelloChrome_Auto,
	ProfileFirefox: utls.HelloFirefox_Auto,
	ProfileSafari:  utls.HelloIOS_Auto,
	ProfileRandom:  utls.HelloRandomizedNoALPN,
}

// Profiles returns every supported profile name, sorted.
func Profiles() []string {
	names := []string{string(ProfileGo)}
	for p := range helloIDs {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

// ParseProfile maps a config string to a Profile. Empty selects Chrome.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProfileChrome, nil
	}
	if p == ProfileGo {
		return p, nil
	}
	if _, ok := helloIDs[p]; !ok {
		return "", fmt.Errorf("fingerprint: unknown profile %q", s)
	}
	return p, nil
}

// Options tunes the transport returned by Transport.
type Options struct {
	// Proxy picks the proxy for a request from its context. Nil, or a nil
	// result, connects directly. http, https and socks5 proxies are supported.
	Proxy func(ctx context.Context) *url.URL
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

// Transport returns an http.RoundTripper configured with the specified
// TLS fingerprint profile. If the profile is "go", it returns a standard
// http.Transport. Otherwise, it wraps http.Transport to use utls.UClient.
//
// Browser profiles advertise h2 in ALPN, which http.Transport cannot speak
// over a custom DialTLSContext, so ALPN is pinned to http/1.1.
//
// For browser profiles HTTPS requests never use http.Transport's own proxy
// support, which would finish the handshake with crypto/tls. The dialer opens
// the tunnel itself and runs the uTLS handshake inside it.
func Transport(p Profile, o Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	if p == ProfileGo {
		if o.Proxy != nil {
			transport.Proxy = func(req *http.Request) (*url.URL, error) {
				return o.Proxy(req.Context()), nil
			}
		} else {
			transport.Proxy = nil
		}
		if o.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	id, ok := helloIDs[p]
	if !ok {
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	transport.Proxy = nil
	if o.Proxy != nil {
		// Plain HTTP is forwarded by http.Transport.
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" {
				return nil, nil
			}
			return o.Proxy(req.Context()), nil
		}
		// Idle TLS connections are keyed by target address alone and would
		// be shared across proxies.
		transport.DisableKeepAlives = true
	}

	transport.ForceAttemptHTTP2 = false
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		var (
			conn net.Conn
			err  error
		)
		if pu := proxyFor(ctx, o.Proxy); pu != nil {
			conn, err = dialThrough(ctx, dialer, pu, addr, o.InsecureSkipVerify)
		} else {
			conn, err = dialer.DialContext(ctx, network, addr)
		}
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		cfg := &utls.Config{ServerName: host, InsecureSkipVerify: o.InsecureSkipVerify}
		uConn, err := handshake(ctx, conn, cfg, id)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}

func proxyFor(ctx context.Context, fn func(context.Context) *url.URL) *url.URL {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func handshake(ctx context.Context, conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) (*utls.UConn, error) {
	if id == utls.HelloRandomizedNoALPN {
		uConn := utls.UClient(conn, cfg, id)
		return uConn, uConn.HandshakeContext(ctx)
	}

	// Specs carry per-connection state, so build a fresh one each dial.
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, err
	}
	pinHTTP1(&spec)

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, err
	}
	return uConn, uConn.HandshakeContext(ctx)
}

func pinHTTP1(spec *utls.ClientHelloSpec) {
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
}
