package fingerprint

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor != 1 {
			w.WriteHeader(http.StatusHTTPVersionNotSupported)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	profiles := []Profile{
		ProfileChrome,
		ProfileFirefox,
		ProfileSafari,
		ProfileGo,
		ProfileRandom,
	}

	for _, p := range profiles {
		t.Run(string(p), func(t *testing.T) {
			// httptest.NewTLSServer uses self-signed certs.
			rt, err := Transport(p, Options{InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}

			tr, ok := rt.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", rt)
			}
			if p != ProfileGo && tr.DialTLSContext == nil {
				t.Fatalf("expected DialTLSContext for profile %s", p)
			}

			client := &http.Client{Transport: tr}
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_VerifiesByDefault(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	rt, err := Transport(ProfileChrome, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client := &http.Client{Transport: rt}
	if resp, err := client.Get(ts.URL); err == nil {
		resp.Body.Close()
		t.Fatal("expected certificate verification failure for self-signed server")
	}
}

func TestTransport_ProxyFunc(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:3128")
	pick := func(context.Context) *url.URL { return u }

	tests := []struct {
		profile Profile
		target  string
		want    *url.URL
	}{
		{ProfileGo, "http://example.com", u},
		{ProfileGo, "https://example.com", u},
		{ProfileFirefox, "http://example.com", u},
		// Tunnelled by the uTLS dialer instead.
		{ProfileFirefox, "https://example.com", nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.profile)+" "+tt.target, func(t *testing.T) {
			rt, err := Transport(tt.profile, Options{Proxy: pick})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			req, _ := http.NewRequest(http.MethodGet, tt.target, nil)
			got, err := rt.(*http.Transport).Proxy(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && got.String() != tt.want.String()) {
				t.Errorf("expected proxy %v, got %v", tt.want, got)
			}
		})
	}

	rt, _ := Transport(ProfileChrome, Options{})
	if rt.(*http.Transport).Proxy != nil {
		t.Errorf("expected no proxy func without Options.Proxy")
	}
}

// startConnectProxy runs a minimal HTTP CONNECT proxy.
func startConnectProxy(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var tunnels atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			http.Error(w, "CONNECT only", http.StatusMethodNotAllowed)
			return
		}
		upstream, err := net.Dial("tcp", r.Host)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		client, brw, err := w.(http.Hijacker).Hijack()
		if err != nil {
			_ = upstream.Close()
			return
		}
		tunnels.Add(1)
		_, _ = client.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n"))
		go func() {
			_, _ = io.Copy(upstream, brw)
			_ = upstream.Close()
		}()
		_, _ = io.Copy(client, upstream)
		_ = client.Close()
	}))
	t.Cleanup(srv.Close)
	return srv, &tunnels
}

// startHelloRecorder runs a TLS server that notes whether the ClientHello
// carried GREASE cipher suites, which browsers send and crypto/tls does not.
func startHelloRecorder(t *testing.T) (*httptest.Server, *atomic.Bool) {
	t.Helper()
	var grease atomic.Bool
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			for _, c := range hello.CipherSuites {
				if c&0x0f0f == 0x0a0a {
					grease.Store(true)
				}
			}
			return nil, nil
		},
	}
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv, &grease
}

func TestTransport_HTTPSThroughConnectProxy(t *testing.T) {
	tests := []struct {
		profile    Profile
		wantGrease bool
	}{
		{ProfileChrome, true},
		{ProfileGo, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			prx, tunnels := startConnectProxy(t)
			upstream, grease := startHelloRecorder(t)
			pu, _ := url.Parse(prx.URL)

			rt, err := Transport(tt.profile, Options{
				Proxy:              func(context.Context) *url.URL { return pu },
				InsecureSkipVerify: true,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			resp, err := (&http.Client{Transport: rt}).Get(upstream.URL)
			if err != nil {
				t.Fatalf("request through proxy failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200, got %d", resp.StatusCode)
			}
			if tunnels.Load() != 1 {
				t.Errorf("expected one CONNECT tunnel, got %d", tunnels.Load())
			}
			if grease.Load() != tt.wantGrease {
				t.Errorf("expected GREASE in ClientHello = %v", tt.wantGrease)
			}
		})
	}
}

func TestTransport_ProxyRefused(t *testing.T) {
	prx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Proxy-Authenticate", "Basic")
		w.WriteHeader(http.StatusProxyAuthRequired)
	}))
	defer prx.Close()
	pu, _ := url.Parse(prx.URL)

	rt, _ := Transport(ProfileChrome, Options{Proxy: func(context.Context) *url.URL { return pu }})
	resp, err := (&http.Client{Transport: rt}).Get("https://www.bing.com/search?q=x")
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected error when proxy refuses CONNECT")
	}
	if !strings.Contains(err.Error(), "407") {
		t.Errorf("expected proxy status in error, got %v", err)
	}
}

func TestDialThrough_UnsupportedScheme(t *testing.T) {
	pu, _ := url.Parse("ftp://127.0.0.1:21")
	if _, err := dialThrough(context.Background(), &net.Dialer{}, pu, "example.com:443", false); err == nil {
		t.Fatal("expected error for unsupported proxy scheme")
	}
}

func TestProxyAddr(t *testing.T) {
	tests := map[string]string{
		"http://p.example":      "p.example:80",
		"https://p.example":     "p.example:443",
		"socks5://p.example":    "p.example:1080",
		"http://user:pw@p:3128": "p:3128",
	}
	for raw, want := range tests {
		pu, _ := url.Parse(raw)
		if got := proxyAddr(pu); got != want {
			t.Errorf("proxyAddr(%s) = %s, want %s", raw, got, want)
		}
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"), Options{})
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `fingerprint: unknown profile "unknown_browser"` {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"", ProfileChrome, false},
		{"chrome", ProfileChrome, false},
		{" Firefox ", ProfileFirefox, false},
		{"SAFARI", ProfileSafari, false},
		{"go", ProfileGo, false},
		{"random", ProfileRandom, false},
		{"netscape", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProfile(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProfile(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProfile(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	got := Profiles()
	want := []string{"chrome", "firefox", "go", "random", "safari"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
