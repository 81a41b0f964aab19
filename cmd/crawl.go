package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consent-probe/internal/browser"
	"github.com/xkilldash9x/consent-probe/internal/candidate"
	"github.com/xkilldash9x/consent-probe/internal/classify"
	"github.com/xkilldash9x/consent-probe/internal/config"
	"github.com/xkilldash9x/consent-probe/internal/engine"
	"github.com/xkilldash9x/consent-probe/internal/observability"
	"github.com/xkilldash9x/consent-probe/internal/observation"
	"github.com/xkilldash9x/consent-probe/internal/orchestrator"
)

// newCrawlCmd creates and configures the `crawl` command.
func newCrawlCmd() *cobra.Command {
	crawlCmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs the consent measurement protocol over a candidate list",
		Long: `Crawl visits every candidate domain on desktop and mobile viewports,
records the consent banner's first layer, attempts an opt-out, and appends
one observation row per trial to the output CSV. Interrupted crawls resume
from the rows already written.`,
		// Bind flags to their corresponding Viper keys. This is the idiomatic
		// way to ensure that command-line flags correctly override values from
		// the config file and environment variables.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for flag, key := range map[string]string{
				"input":        "crawl.input",
				"out":          "crawl.out",
				"evidence":     "crawl.evidence",
				"concurrency":  "crawl.concurrency",
				"runs":         "crawl.runs",
				"locale":       "crawl.locale",
				"geo":          "crawl.geo_country",
				"resume":       "crawl.resume",
				"retry-errors": "crawl.retry_errors",
				"headful":      "browser.headful",
				"timeout":      "network.navigation_timeout",
				"settle":       "network.settle_delay",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from Execute (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			return runCrawl(ctx, cfg, logger)
		},
	}

	crawlCmd.Flags().StringP("input", "i", "candidate.csv", "Candidate CSV with domain and stratum columns")
	crawlCmd.Flags().StringP("out", "o", "observations_raw.csv", "Output CSV path; existing rows are kept and resumed from")
	crawlCmd.Flags().String("evidence", "evidence", "Directory for per-domain screenshot evidence")
	crawlCmd.Flags().IntP("concurrency", "j", 3, "Number of trials measured in parallel")
	crawlCmd.Flags().IntP("runs", "r", 2, "Repeat runs per domain and device")
	crawlCmd.Flags().String("locale", "th-TH", "Browser locale for every session")
	crawlCmd.Flags().String("geo", "TH", "Geo country code recorded on each row")
	crawlCmd.Flags().Bool("resume", true, "Skip trials already present in the output CSV")
	crawlCmd.Flags().Bool("retry-errors", false, "With --resume, re-run trials that previously errored")
	crawlCmd.Flags().Bool("headful", false, "Run the browser with a visible window")
	crawlCmd.Flags().Duration("timeout", 30*time.Second, "Per-page navigation timeout")
	crawlCmd.Flags().Duration("settle", 3500*time.Millisecond, "Post-navigation settle delay")

	return crawlCmd
}

// runCrawl wires the candidate list, browser manager, engine, sink and
// orchestrator together and executes the crawl.
func runCrawl(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	candidates, dropped, err := candidate.Load(cfg.Crawl.Input)
	if err != nil {
		return fmt.Errorf("failed to load candidates: %w", err)
	}
	if dropped > 0 {
		logger.Warn("Dropped malformed candidate rows", zap.Int("dropped", dropped))
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no usable candidates in %s", cfg.Crawl.Input)
	}

	done := map[string]struct{}{}
	if cfg.Crawl.Resume {
		done, err = observation.LoadDoneKeys(cfg.Crawl.Out, cfg.Crawl.RetryErrors)
		if err != nil {
			return fmt.Errorf("failed to read existing output for resume: %w", err)
		}
	}

	trials := orchestrator.BuildTrials(candidates, cfg.Crawl.Runs, done)
	logger.Info("Crawl plan ready",
		zap.Int("candidates", len(candidates)),
		zap.Int("already_done", len(done)),
		zap.Int("pending_trials", len(trials)),
		zap.String("out", cfg.Crawl.Out),
	)
	if len(trials) == 0 {
		fmt.Println("Nothing to do: all trials already present in the output CSV.")
		return nil
	}

	manager := browser.NewManager(cfg, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}()

	open := func(ctx context.Context, device browser.Device, locale string) (browser.Page, error) {
		session, err := manager.NewSession(ctx, device, locale)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	eng := engine.New(engine.Config{
		NavTimeout:  cfg.Network.NavigationTimeout,
		Settle:      cfg.Network.SettleDelay,
		Locale:      cfg.Crawl.Locale,
		GeoCountry:  cfg.Crawl.GeoCountry,
		EvidenceDir: cfg.Crawl.Evidence,
	}, classify.DefaultRules(), open, logger)

	sink := observation.NewSink(cfg.Crawl.Out)

	orch, err := orchestrator.New(orchestrator.Options{
		Runs:        cfg.Crawl.Runs,
		Concurrency: cfg.Crawl.Concurrency,
		Resume:      cfg.Crawl.Resume,
		RetryErrors: cfg.Crawl.RetryErrors,
		Locale:      cfg.Crawl.Locale,
		GeoCountry:  cfg.Crawl.GeoCountry,
	}, eng, sink, logger)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	completed, failed, err := orch.Crawl(ctx, trials)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Crawl aborted gracefully",
				zap.Int("completed", completed),
				zap.Int("remaining", len(trials)-completed))
			return fmt.Errorf("crawl aborted by user signal")
		}
		return err
	}

	fmt.Printf("\nCrawl complete: %d trials written (%d script errors) -> %s\n",
		completed, failed, cfg.Crawl.Out)
	return nil
}

func init() {
	rootCmd.AddCommand(newCrawlCmd())
}
