package fingerprint

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	xproxy "golang.org/x/net/proxy"
)

var defaultProxyPorts = map[string]string{
	"http":    "80",
	"https":   "443",
	"socks5":  "1080",
	"socks5h": "1080",
}

// dialThrough opens a TCP stream to addr via the proxy at pu.
func dialThrough(ctx context.Context, d *net.Dialer, pu *url.URL, addr string, insecure bool) (net.Conn, error) {
	switch pu.Scheme {
	case "http", "https":
		return dialConnect(ctx, d, pu, addr, insecure)
	case "socks5", "socks5h":
		return dialSOCKS5(ctx, d, pu, addr)
	default:
		return nil, fmt.Errorf("fingerprint: unsupported proxy scheme %q", pu.Scheme)
	}
}

func proxyAddr(pu *url.URL) string {
	if pu.Port() != "" {
		return pu.Host
	}
	return net.JoinHostPort(pu.Hostname(), defaultProxyPorts[pu.Scheme])
}

func dialSOCKS5(ctx context.Context, d *net.Dialer, pu *url.URL, addr string) (net.Conn, error) {
	var auth *xproxy.Auth
	if pu.User != nil {
		pw, _ := pu.User.Password()
		auth = &xproxy.Auth{User: pu.User.Username(), Password: pw}
	}
	sd, err := xproxy.SOCKS5("tcp", proxyAddr(pu), auth, d)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: socks5 proxy %s: %w", pu.Redacted(), err)
	}
	cd, ok := sd.(xproxy.ContextDialer)
	if !ok {
		return nil, errors.New("fingerprint: socks5 dialer does not support contexts")
	}
	conn, err := cd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: socks5 proxy %s: %w", pu.Redacted(), err)
	}
	return conn, nil
}

// dialConnect asks an HTTP proxy for a CONNECT tunnel to addr.
func dialConnect(ctx context.Context, d *net.Dialer, pu *url.URL, addr string, insecure bool) (net.Conn, error) {
	raw, err := d.DialContext(ctx, "tcp", proxyAddr(pu))
	if err != nil {
		return nil, fmt.Errorf("fingerprint: dial proxy %s: %w", pu.Redacted(), err)
	}

	// Unblocks the CONNECT exchange if ctx ends first.
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	fail := func(err error) (net.Conn, error) {
		stop()
		_ = raw.Close()
		return nil, fmt.Errorf("fingerprint: connect via %s: %w", pu.Redacted(), err)
	}

	conn := raw
	if pu.Scheme == "https" {
		tc := tls.Client(conn, &tls.Config{ServerName: pu.Hostname(), InsecureSkipVerify: insecure})
		if err := tc.HandshakeContext(ctx); err != nil {
			return fail(err)
		}
		conn = tc
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if pu.User != nil {
		pw, _ := pu.User.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(pu.User.Username() + ":" + pw))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		return fail(err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return fail(err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return fail(fmt.Errorf("proxy answered %s", resp.Status))
	}
	if br.Buffered() > 0 {
		return fail(errors.New("unexpected data after CONNECT response"))
	}

	if !stop() {
		return fail(ctx.Err())
	}
	return conn, nil
}
