// Package pipeline fans one query out to several engines and collects each
// engine's outcome side by side. Outcomes are never merged or re-ranked.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Outcome is what one engine produced for the query.
type Outcome struct {
	Engine   string
	Results  []serp.Result
	Err      error
	Duration time.Duration
}

// Kind classifies Err. It is only meaningful when Err is non-nil.
func (o Outcome) Kind() serp.Kind {
	return serp.KindOf(o.Err)
}

// Run is the collected output of one fan-out.
type Run struct {
	ID       string
	Query    string
	Page     uint
	Started  time.Time
	Outcomes []Outcome
}

// Pipeline runs engines concurrently against a shared transport.
type Pipeline struct {
	Engines   []serp.Engine
	Transport serp.Transport
	// Concurrency caps in-flight engines. Zero runs them all at once.
	Concurrency int
	Logger      *slog.Logger
}

// Run searches every engine and returns outcomes in Engines order. Engine
// failures are reported per outcome; the error return is reserved for a
// misconfigured pipeline or a cancelled context.
func (p *Pipeline) Run(ctx context.Context, req serp.Request) (*Run, error) {
	if len(p.Engines) == 0 {
		return nil, errors.New("pipeline: no engines configured")
	}
	if p.Transport == nil {
		return nil, errors.New("pipeline: transport is nil")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	run := &Run{
		ID:       uuid.NewString(),
		Query:    req.Query,
		Page:     req.Page,
		Started:  time.Now().UTC(),
		Outcomes: make([]Outcome, len(p.Engines)),
	}
	logger = logger.With("run", run.ID)

	// Workers never return an error so one engine's failure does not cancel
	// the others.
	g, gCtx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}

	for i, e := range p.Engines {
		g.Go(func() error {
			run.Outcomes[i] = search(gCtx, logger, e, p.Transport, req)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return run, err
	}
	return run, nil
}

func search(ctx context.Context, logger *slog.Logger, e serp.Engine, tr serp.Transport, req serp.Request) Outcome {
	name := e.Name()
	start := time.Now()
	results, err := e.Search(ctx, tr, req)
	d := time.Since(start)

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = serp.KindOf(err).String()
		logger.Warn("engine search failed", "engine", name, "kind", outcome, "err", err)
	} else {
		logger.Debug("engine search done", "engine", name, "results", len(results), "duration", d)
	}
	metrics.RecordSearch(name, outcome, len(results), d)

	return Outcome{
		Engine:   name,
		Results:  results,
		Err:      err,
		Duration: d,
	}
}
