package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSearch(t *testing.T) {
	before := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("bing", OutcomeOK))
	beforeResults := testutil.ToFloat64(EngineResultsTotal.WithLabelValues("bing"))

	RecordSearch("bing", OutcomeOK, 7, 300*time.Millisecond)

	if got := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("bing", OutcomeOK)); got != before+1 {
		t.Errorf("expected requests %v, got %v", before+1, got)
	}
	if got := testutil.ToFloat64(EngineResultsTotal.WithLabelValues("bing")); got != beforeResults+7 {
		t.Errorf("expected results %v, got %v", beforeResults+7, got)
	}

	RecordSearch("bing", "empty", 0, time.Millisecond)
	if got := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("bing", "empty")); got < 1 {
		t.Errorf("expected empty outcome to be counted, got %v", got)
	}
}

func TestRecordFetch(t *testing.T) {
	RecordFetch(Fetch{Host: "www.bing.com", StatusCode: 200, Bytes: 11})
	if got := testutil.ToFloat64(FetchRequestsTotal.WithLabelValues("www.bing.com", "200", "false", "")); got < 1 {
		t.Errorf("expected fetch to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(FetchBytesTotal.WithLabelValues("www.bing.com")); got < 11 {
		t.Errorf("expected at least 11 bytes, got %v", got)
	}

	RecordFetch(Fetch{Host: "search.brave.com", Err: errors.New("dial tcp: refused")})
	if got := testutil.ToFloat64(FetchRequestsTotal.WithLabelValues("search.brave.com", "error", "false", "")); got != 1 {
		t.Errorf("expected transport error to be labelled error, got %v", got)
	}

	RecordFetch(Fetch{Host: "html.duckduckgo.com", StatusCode: 200, DetectionSrc: "DuckDuckGo"})
	if got := testutil.ToFloat64(FetchRequestsTotal.WithLabelValues("html.duckduckgo.com", "200", "true", "DuckDuckGo")); got != 1 {
		t.Errorf("expected detection to be labelled, got %v", got)
	}
}

func TestMetricsServer(t *testing.T) {
	srv, err := Start(0, nil)
	if err != nil {
		t.Fatalf("failed to start metrics server: %v", err)
	}
	defer srv.Stop(context.Background())

	RecordSearch("startpage", OutcomeOK, 3, time.Second)

	_, port, _ := net.SplitHostPort(srv.Addr())
	resp, err := http.Get("http://127.0.0.1:" + port + "/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	if !strings.Contains(output, `sift_engine_requests_total{engine="startpage",outcome="ok"}`) {
		t.Errorf("expected sift_engine_requests_total metric for startpage")
	}
	if !strings.Contains(output, "sift_engine_duration_seconds_bucket") {
		t.Errorf("expected sift_engine_duration_seconds metric")
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	if _, err := Start(port, nil); err == nil {
		t.Fatal("expected error when port is taken")
	}
}

func TestStop_Nil(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
