package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/serp"
	"github.com/google/uuid"
)

// stubEngine implements serp.Engine without touching the transport.
type stubEngine struct {
	name    string
	results []serp.Result
	err     error
	delay   time.Duration
	onCall  func()
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Search(ctx context.Context, tr serp.Transport, req serp.Request) ([]serp.Result, error) {
	if s.onCall != nil {
		s.onCall()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, &serp.EngineError{Engine: s.name, Kind: serp.KindRequest, Err: ctx.Err()}
		}
	}
	return s.results, s.err
}

var noopTransport = serp.TransportFunc(func(ctx context.Context, url string, h http.Header) ([]byte, error) {
	return nil, nil
})

func TestPipeline_Run(t *testing.T) {
	a := serp.Result{Title: "A", URL: "https://a.example", Engines: []string{"alpha"}}
	b := serp.Result{Title: "B", URL: "https://a.example", Engines: []string{"beta"}}

	p := Pipeline{
		Engines: []serp.Engine{
			&stubEngine{name: "alpha", results: []serp.Result{a}, delay: 20 * time.Millisecond},
			&stubEngine{name: "beta", results: []serp.Result{b}},
			&stubEngine{name: "gamma", err: &serp.EngineError{Engine: "gamma", Kind: serp.KindEmptyResultSet}},
		},
		Transport: noopTransport,
	}

	run, err := p.Run(context.Background(), serp.Request{Query: "q", Page: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("expected UUID run id, got %q", run.ID)
	}
	if run.Query != "q" || run.Page != 2 {
		t.Errorf("unexpected run header %+v", run)
	}
	if len(run.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(run.Outcomes))
	}

	// Order follows Engines, not completion.
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if run.Outcomes[i].Engine != want {
			t.Errorf("outcome %d: expected %s, got %s", i, want, run.Outcomes[i].Engine)
		}
	}

	// Same URL from two engines stays as two separate results.
	if len(run.Outcomes[0].Results) != 1 || len(run.Outcomes[1].Results) != 1 {
		t.Errorf("expected results to stay per engine")
	}
	if !run.Outcomes[0].Results[0].HasEngine("alpha") || run.Outcomes[0].Results[0].HasEngine("beta") {
		t.Errorf("expected provenance to be untouched")
	}

	if !errors.Is(run.Outcomes[2].Err, serp.ErrEmptyResultSet) {
		t.Errorf("expected empty result set for gamma, got %v", run.Outcomes[2].Err)
	}
	if run.Outcomes[2].Kind() != serp.KindEmptyResultSet {
		t.Errorf("expected KindEmptyResultSet, got %v", run.Outcomes[2].Kind())
	}
	if run.Outcomes[0].Duration < 20*time.Millisecond {
		t.Errorf("expected duration to be measured, got %v", run.Outcomes[0].Duration)
	}
}

func TestPipeline_FailureDoesNotCancelOthers(t *testing.T) {
	p := Pipeline{
		Engines: []serp.Engine{
			&stubEngine{name: "fails", err: &serp.EngineError{Engine: "fails", Kind: serp.KindRequest, Err: errors.New("boom")}},
			&stubEngine{name: "slow", results: []serp.Result{{Title: "ok"}}, delay: 30 * time.Millisecond},
		},
		Transport: noopTransport,
	}

	run, err := p.Run(context.Background(), serp.Request{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Outcomes[1].Err != nil || len(run.Outcomes[1].Results) != 1 {
		t.Errorf("expected slow engine to finish, got %+v", run.Outcomes[1])
	}
}

func TestPipeline_Concurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	track := func() {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	}

	var engines []serp.Engine
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		engines = append(engines, &stubEngine{name: name, onCall: track})
	}

	p := Pipeline{Engines: engines, Transport: noopTransport, Concurrency: 2}
	if _, err := p.Run(context.Background(), serp.Request{Query: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 engines in flight, saw %d", peak.Load())
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	p := Pipeline{
		Engines:   []serp.Engine{&stubEngine{name: "slow", delay: time.Second}},
		Transport: noopTransport,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	run, err := p.Run(ctx, serp.Request{Query: "q"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if run == nil || !errors.Is(run.Outcomes[0].Err, serp.ErrRequest) {
		t.Errorf("expected partial run with request error outcome")
	}
}

func TestPipeline_Misconfigured(t *testing.T) {
	if _, err := (&Pipeline{Transport: noopTransport}).Run(context.Background(), serp.Request{}); err == nil {
		t.Errorf("expected error with no engines")
	}
	if _, err := (&Pipeline{Engines: []serp.Engine{&stubEngine{name: "a"}}}).Run(context.Background(), serp.Request{}); err == nil {
		t.Errorf("expected error with nil transport")
	}
}
