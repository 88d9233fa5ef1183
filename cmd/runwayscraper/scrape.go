package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"runwayscraper/pkg/auth"
	"runwayscraper/pkg/config"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/scraper"
)

var (
	// Scrape command flags
	scrapeMode     string
	scrapeWorkers  int
	scrapeTimeout  string
	scrapeSort     string
	scrapeClient   string
	scrapeRetries  int
	metricsAddr    string
	resumeInstance string
	forceRestart   bool
	seasonFilters  []string
	designerFilter []string
	reextractURLs  []string
	profileName    string
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Extract runway seasons, designers, and looks into local storage",
	Long: `Walk the runway archive and record every season, designer, look, and image
into the configured storage backend.

Runs are resumable: pass --resume latest to continue the most recent
instance, or --resume <instance-id> to continue a specific one. Completed
units are skipped on resume, and per-unit failures are recorded without
aborting the rest of the run.`,
	Example: `  # Extract every season with default settings
  runwayscraper scrape

  # Only Fall 2024, one designer at a time
  runwayscraper scrape --season "fall 2024" --mode single

  # Resume the latest checkpoint with 8 workers against SQLite
  runwayscraper scrape --resume latest --workers 8 --storage sqlite

  # Re-extract a designer whose gallery changed
  runwayscraper scrape --resume latest --reextract https://www.vogue.com/fashion-shows/fall-2024-ready-to-wear/prada

  # Headless browser fetching with metrics exposed
  runwayscraper scrape --client browser --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVar(&scrapeMode, "mode", "", "extraction mode (single, multi-season, multi-designer, multi-look)")
	scrapeCmd.Flags().IntVar(&scrapeWorkers, "workers", 0, "number of concurrent workers")
	scrapeCmd.Flags().StringVar(&scrapeTimeout, "unit-timeout", "", "per-unit timeout, e.g. 5m")
	scrapeCmd.Flags().StringVar(&scrapeSort, "sort", "", "season dispatch order (asc, desc)")
	scrapeCmd.Flags().StringVar(&scrapeClient, "client", "", "page client (http, browser)")
	scrapeCmd.Flags().IntVar(&scrapeRetries, "max-retries", 0, "maximum retry attempts per fetch")
	scrapeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090")
	scrapeCmd.Flags().StringVar(&resumeInstance, "resume", "", "instance to resume: \"latest\" or an instance id")
	scrapeCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "start a fresh instance, ignoring existing checkpoints")
	scrapeCmd.Flags().StringSliceVar(&seasonFilters, "season", nil, "only extract seasons matching this filter (repeatable)")
	scrapeCmd.Flags().StringSliceVar(&designerFilter, "designer", nil, "only extract designers matching this filter (repeatable)")
	scrapeCmd.Flags().StringSliceVar(&reextractURLs, "reextract", nil, "designer URLs to clear and fetch again (repeatable)")
	scrapeCmd.Flags().StringVarP(&profileName, "profile", "a", "", "use a specific stored session profile")
}

func runScrape(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if scrapeMode != "" {
		flags["mode"] = scrapeMode
	}
	if scrapeWorkers > 0 {
		flags["workers"] = scrapeWorkers
	}
	if scrapeSort != "" {
		flags["sort"] = scrapeSort
	}
	if scrapeClient != "" {
		flags["client"] = scrapeClient
	}
	if scrapeRetries > 0 {
		flags["max-retries"] = scrapeRetries
	}
	if metricsAddr != "" {
		flags["metrics-addr"] = metricsAddr
	}
	if timeout, err := parseDuration(scrapeTimeout); err != nil {
		return fmt.Errorf("invalid --unit-timeout: %w", err)
	} else if timeout > 0 {
		flags["unit-timeout"] = timeout
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	applyStoredProfile(cfg)

	log := logger.GetLogger()

	s, err := scraper.New(cfg)
	if err != nil {
		return err
	}

	if cfg.Scraper.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.Metrics().Handler())
		srv := &http.Server{Addr: cfg.Scraper.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.ErrorWithFields("metrics server stopped", map[string]interface{}{
					"addr":  cfg.Scraper.MetricsAddr,
					"error": err.Error(),
				})
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := s.Run(ctx, scraper.Options{
		Resume:       resumeInstance,
		ForceRestart: forceRestart,
		Seasons:      seasonFilters,
		Designers:    designerFilter,
		Reextract:    reextractURLs,
	})
	if err != nil {
		log.ErrorWithFields("extraction failed", map[string]interface{}{"error": err.Error()})
		return err
	}

	printReport(report)
	return nil
}

// applyStoredProfile fills in session credentials from the credential store
// when the configuration carries none. Missing credentials are not fatal:
// most of the archive is reachable anonymously.
func applyStoredProfile(cfg *config.Config) {
	if cfg.Source.SessionCookie != "" && profileName == "" {
		return
	}

	manager, err := auth.NewManager()
	if err != nil {
		return
	}

	var profile *auth.Profile
	if profileName != "" {
		profile, err = manager.Retrieve(profileName)
	} else {
		profile, err = manager.RetrieveDefault()
	}
	if err != nil || profile == nil {
		return
	}

	if profile.SessionCookie != "" {
		cfg.Source.SessionCookie = profile.SessionCookie
	}
	if profile.UserAgent != "" {
		cfg.Source.UserAgent = profile.UserAgent
	}
}

func printReport(report *scraper.Report) {
	fmt.Printf("\nInstance: %s\n", report.InstanceID)
	fmt.Printf("Units: %d processed, %d completed, %d skipped, %d failed\n",
		report.Result.Processed, report.Result.Completed, report.Result.Skipped, report.Result.Failed)
	fmt.Printf("Looks: %d/%d extracted (%.1f%%)\n",
		report.Progress.ExtractedLooks, report.Progress.TotalLooks, report.Progress.CompletionPercentage)

	if len(report.Result.Errors) > 0 {
		fmt.Println("\nFailures:")
		for _, ue := range report.Result.Errors {
			fmt.Printf("  %s\n", ue.Error())
		}
		fmt.Println("\nRe-run with --resume latest to retry the failed units.")
	}
}
