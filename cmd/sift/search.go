package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/sift/internal/config"
	"github.com/FranksOps/sift/internal/fingerprint"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/report"
	"github.com/FranksOps/sift/internal/scraper"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/FranksOps/sift/pkg/proxy"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/useragent"
)

// errAllFailed makes the exit status non-zero when no engine answered.
var errAllFailed = errors.New("no engine returned results")

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search every selected engine and print results per engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, cfg, logger, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.StringSliceP("engines", "e", nil, "engines to query (default all): "+strings.Join(serp.Names(), ", "))
	f.UintP("page", "p", 0, "zero-based result page")
	f.Uint8("safe-search", 0, "0 off, 1 moderate, 2 strict")
	f.String("user-agent", "", "User-Agent header (default rotates browser identities)")
	f.String("accept-language", "", "Accept-Language header")
	f.StringP("output", "o", report.FormatText, "output format: "+strings.Join(report.Formats(), ", "))
	f.Duration("timeout", 0, "per-request timeout")
	f.String("fingerprint", "", "TLS fingerprint: "+strings.Join(fingerprint.Profiles(), ", "))
	f.String("proxy-file", "", "file with one proxy URL per line")
	f.Float64("rps", 0, "requests per second per engine host")
	f.Int("concurrency", 0, "engines queried at once (0 = all)")
	f.String("startpage-scheme", "", "startpage paging scheme: offset or page-index")
	f.String("librex-url", "", "LibreX instance base URL")
	f.Int("metrics-port", 0, "serve Prometheus metrics on this port during the run")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, query string) error {
	if cfg.Metrics.Port > 0 {
		srv, err := metrics.Start(cfg.Metrics.Port, logger)
		if err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	engines, err := buildEngines(cfg)
	if err != nil {
		return err
	}

	fetcher, proxies, err := buildFetcher(cfg, logger)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Engines:     engines,
		Transport:   fetcher,
		Concurrency: cfg.Fanout.Concurrency,
		Logger:      logger,
	}

	run, err := p.Run(ctx, serp.Request{
		Query:          query,
		Page:           cfg.Page,
		UserAgent:      cfg.UserAgent,
		AcceptLanguage: cfg.AcceptLanguage,
		SafeSearch:     cfg.SafeSearch,
	})
	if err != nil && run == nil {
		return err
	}
	logProxyHealth(logger, proxies)

	summary := report.GenerateSummary(run)
	if werr := report.Write(cmd.OutOrStdout(), cfg.Output, summary); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	if summary.Succeeded == 0 {
		return errAllFailed
	}
	return nil
}

func buildEngines(cfg *config.Config) ([]serp.Engine, error) {
	engines := make([]serp.Engine, 0, len(cfg.Engines))
	for _, name := range cfg.Engines {
		var opts []serp.Option
		switch name {
		case "librex":
			if cfg.LibreX.BaseURL != "" {
				opts = append(opts, serp.WithBaseURL(cfg.LibreX.BaseURL))
			}
		case "startpage":
			opts = append(opts, serp.WithStartpageScheme(serp.StartpageScheme(cfg.Startpage.Scheme)))
		}
		e, err := serp.New(name, opts...)
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
	}
	return engines, nil
}

func buildFetcher(cfg *config.Config, logger *slog.Logger) (*scraper.Fetcher, *proxy.Pool, error) {
	profile, err := fingerprint.ParseProfile(cfg.Fetch.Fingerprint)
	if err != nil {
		return nil, nil, err
	}

	var pool *proxy.Pool
	if cfg.Fetch.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.Fetch.ProxyFile); err != nil {
			return nil, nil, err
		}
		logger.Info("loaded proxies", "count", pool.Len(), "file", cfg.Fetch.ProxyFile)
	}

	var identities *useragent.Pool
	if cfg.UserAgent != "" {
		identities = useragent.NewPool(useragent.Fixed(cfg.AcceptLanguage, cfg.UserAgent))
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Fetch.Timeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		UseCookieJar: cfg.Fetch.CookieJar,
		ProxyPool:    pool,
		Identities:   identities,
		Fingerprint:  profile,
		Limits:       ratelimit.NewSet(cfg.Fetch.RequestsPerSecond, cfg.Fetch.Jitter),
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return fetcher, pool, nil
}

func logProxyHealth(logger *slog.Logger, pool *proxy.Pool) {
	if pool == nil {
		return
	}
	for _, st := range pool.Snapshot() {
		logger.Debug("proxy status",
			"proxy", st.URL,
			"successes", st.Successes,
			"benched", !st.BenchedUntil.IsZero(),
			"blocked_hosts", st.BlockedHosts,
		)
	}
}
