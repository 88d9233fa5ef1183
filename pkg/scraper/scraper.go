package scraper

import (
	"context"
	"sort"
	"strings"

	"runwayscraper/internal/scheduler"
	"runwayscraper/pkg/checkpoint"
	"runwayscraper/pkg/config"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/models"
	"runwayscraper/pkg/pageclient"
	"runwayscraper/pkg/progress"
	"runwayscraper/pkg/retry"
	"runwayscraper/pkg/storage"
)

// Scraper orchestrates discovery, scheduling, storage, and progress for one
// extraction run.
type Scraper struct {
	cfg         *config.Config
	factory     scheduler.ClientFactory
	checkpoints *checkpoint.Manager
	metrics     *progress.Metrics
	retryCfg    *retry.Config
	log         logger.Logger
}

// Options selects what a run extracts and how it relates to earlier runs.
type Options struct {
	// Resume names the storage instance to continue: empty for a fresh
	// run, "latest" for the checkpointed one, or an explicit instance id.
	Resume string

	// ForceRestart ignores any checkpoint and starts a fresh instance.
	ForceRestart bool

	// Seasons filters discovery to seasons whose "name year" contains one
	// of these strings, case-insensitively. Empty means all seasons.
	Seasons []string

	// Designers filters to designer names or URLs containing one of
	// these strings, case-insensitively. Empty means all designers.
	Designers []string

	// Reextract clears completion state for these designer URLs before
	// dispatch, forcing their looks to be fetched again.
	Reextract []string
}

// Report is the outcome of one run.
type Report struct {
	InstanceID string
	Result     scheduler.Result
	Progress   models.OverallProgress
}

// New builds a scraper from validated configuration.
func New(cfg *config.Config) (*Scraper, error) {
	log := logger.GetLogger()
	metrics := progress.NewMetrics()

	factory := pageclient.NewFactory(cfg.Source, cfg.RateLimit, log)
	factory.SetObserver(func(client, result string) {
		metrics.PageFetches.WithLabelValues(client, result).Inc()
	})

	return &Scraper{
		cfg:         cfg,
		factory:     factory,
		checkpoints: checkpoint.NewManager(cfg.Storage.DataDir, log),
		metrics:     metrics,
		retryCfg:    retry.FromConfig(cfg.Retry, log),
		log:         log,
	}, nil
}

// Metrics exposes the run's Prometheus registry for serving.
func (s *Scraper) Metrics() *progress.Metrics {
	return s.metrics
}

// Run executes one extraction pass and returns a report. Unit failures are
// collected in the report, not returned as an error; the error return is for
// failures that prevent the run from proceeding at all.
func (s *Scraper) Run(ctx context.Context, opts Options) (*Report, error) {
	instanceID, err := s.resolveInstance(opts)
	if err != nil {
		return nil, err
	}

	engine, err := storage.NewEngine(s.cfg.Storage, instanceID, s.log)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	if err := s.checkpoints.Save(engine.InstanceID()); err != nil {
		return nil, err
	}

	for _, url := range opts.Reextract {
		if err := engine.ForceReextract(ctx, url); err != nil {
			return nil, err
		}
	}

	tracker := progress.New(engine, s.metrics, s.log)

	logger.LogComponentStart("scraper", map[string]interface{}{
		"instance_id": engine.InstanceID(),
		"mode":        s.cfg.Scraper.Mode,
		"backend":     s.cfg.Storage.Backend,
		"workers":     s.workerCount(),
	})

	units, discoveryFailures, err := s.discover(ctx, engine, opts)
	if err != nil {
		return nil, err
	}

	runner := &unitProcessor{
		engine:   engine,
		retryCfg: s.retryCfg,
		log:      s.log,
	}

	pool := scheduler.NewPool(scheduler.Config{
		NumWorkers:  s.workerCount(),
		Factory:     s.factory,
		Process:     runner.process,
		Skip:        runner.skip,
		UnitTimeout: s.cfg.Scraper.UnitTimeout,
		Metrics:     s.metrics,
		Logger:      s.log,
	})

	result := pool.Run(ctx, units)

	// Pages that failed during discovery never became units; account for
	// them here so the report shows what the next pass has to revisit.
	for _, failure := range discoveryFailures {
		result.Processed++
		result.Failed++
		result.Errors = append(result.Errors, failure)
	}

	s.markCompletedSeasons(ctx, engine)

	prog, err := tracker.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	logger.LogComponentStop("scraper", "run finished")
	return &Report{
		InstanceID: engine.InstanceID(),
		Result:     result,
		Progress:   prog,
	}, nil
}

func (s *Scraper) workerCount() int {
	if s.cfg.Scraper.Mode == config.ModeSingle {
		return 1
	}
	return s.cfg.Scraper.MaxWorkers
}

func (s *Scraper) resolveInstance(opts Options) (string, error) {
	if opts.ForceRestart {
		return "", nil
	}
	return s.checkpoints.Resolve(opts.Resume, s.cfg.Storage.Backend)
}

// discover fetches the listing pages, seeds storage with what they name,
// and derives the work units for the configured mode. Pages that will not
// load come back as failures rather than aborting the run.
func (s *Scraper) discover(ctx context.Context, engine storage.Engine, opts Options) ([]scheduler.Unit, []scheduler.UnitError, error) {
	client, err := s.factory.New()
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	retryCfg := *s.retryCfg
	retryCfg.Context = ctx

	refs, err := retry.DoWithResult(func() ([]pageclient.SeasonRef, error) {
		return client.FetchSeasons(ctx)
	}, &retryCfg)
	if err != nil {
		return nil, nil, err
	}

	refs = filterSeasons(refs, opts.Seasons)
	sortSeasonRefs(refs, s.cfg.Scraper.SeasonOrder)
	if len(refs) == 0 {
		return nil, nil, errors.NotFound("no seasons matched the given filters")
	}

	var units []scheduler.Unit
	var failures []scheduler.UnitError
	for _, ref := range refs {
		season := models.Season{Name: ref.Name, Year: ref.Year, URL: ref.URL}
		if _, err := engine.UpsertSeason(ctx, season); err != nil {
			return nil, nil, err
		}

		key := season.Key()
		if s.cfg.Scraper.Mode == config.ModeMultiSeason {
			units = append(units, scheduler.Unit{
				Type:      scheduler.UnitTypeSeason,
				SeasonKey: key,
				SeasonURL: ref.URL,
			})
			continue
		}

		designerUnits, designerFailures, err := s.discoverDesigners(ctx, client, engine, key, ref.URL, opts, &retryCfg)
		if err != nil {
			return nil, nil, err
		}
		units = append(units, designerUnits...)
		failures = append(failures, designerFailures...)
	}

	s.log.InfoWithFields("discovery finished", map[string]interface{}{
		"seasons":  len(refs),
		"units":    len(units),
		"failures": len(failures),
	})
	return units, failures, nil
}

func (s *Scraper) discoverDesigners(
	ctx context.Context,
	client pageclient.PageClient,
	engine storage.Engine,
	key models.SeasonKey,
	seasonURL string,
	opts Options,
	retryCfg *retry.Config,
) ([]scheduler.Unit, []scheduler.UnitError, error) {
	refs, err := retry.DoWithResult(func() ([]pageclient.DesignerRef, error) {
		return client.FetchDesigners(ctx, seasonURL)
	}, retryCfg)
	if err != nil {
		// A season page that will not load should not sink the whole
		// run; report it as a failed unit and move on.
		s.log.ErrorWithFields("season discovery failed", map[string]interface{}{
			"season": key.String(),
			"error":  err.Error(),
		})
		failure := scheduler.UnitError{
			Unit: scheduler.Unit{
				Type:      scheduler.UnitTypeSeason,
				SeasonKey: key,
				SeasonURL: seasonURL,
			},
			Err: err,
		}
		return nil, []scheduler.UnitError{failure}, nil
	}

	var units []scheduler.Unit
	var failures []scheduler.UnitError
	for _, ref := range refs {
		if !matchesAny(opts.Designers, ref.Name, ref.URL) {
			continue
		}
		designer := models.Designer{Name: ref.Name, URL: ref.URL}
		if _, err := engine.UpsertDesigner(ctx, key, designer); err != nil {
			return nil, nil, err
		}

		if s.cfg.Scraper.Mode == config.ModeMultiLook {
			lookUnits, lookFailures, err := s.discoverLooks(ctx, client, engine, key, ref, retryCfg)
			if err != nil {
				return nil, nil, err
			}
			units = append(units, lookUnits...)
			failures = append(failures, lookFailures...)
			continue
		}

		units = append(units, scheduler.Unit{
			Type:        scheduler.UnitTypeDesigner,
			SeasonKey:   key,
			SeasonURL:   seasonURL,
			DesignerURL: ref.URL,
		})
	}
	return units, failures, nil
}

// discoverLooks enumerates a designer's looks so they can be dispatched as
// independent units. The gallery fetched here also seeds the look count.
func (s *Scraper) discoverLooks(
	ctx context.Context,
	client pageclient.PageClient,
	engine storage.Engine,
	key models.SeasonKey,
	ref pageclient.DesignerRef,
	retryCfg *retry.Config,
) ([]scheduler.Unit, []scheduler.UnitError, error) {
	designerURL := ref.URL
	gallery, err := retry.DoWithResult(func() (*pageclient.Gallery, error) {
		return client.FetchLooks(ctx, designerURL)
	}, retryCfg)
	if err != nil {
		s.log.ErrorWithFields("look discovery failed", map[string]interface{}{
			"designer": designerURL,
			"error":    err.Error(),
		})
		failure := scheduler.UnitError{
			Unit: scheduler.Unit{
				Type:        scheduler.UnitTypeDesigner,
				SeasonKey:   key,
				DesignerURL: designerURL,
			},
			Err: err,
		}
		return nil, []scheduler.UnitError{failure}, nil
	}

	designer := models.Designer{
		URL:          designerURL,
		Name:         ref.Name,
		SlideshowURL: gallery.SlideshowURL,
		TotalLooks:   gallery.TotalLooks,
	}
	if _, err := engine.UpsertDesigner(ctx, key, designer); err != nil {
		return nil, nil, err
	}

	units := make([]scheduler.Unit, 0, len(gallery.Looks))
	for _, look := range gallery.Looks {
		units = append(units, scheduler.Unit{
			Type:        scheduler.UnitTypeLook,
			SeasonKey:   key,
			DesignerURL: designerURL,
			LookNumber:  look.LookNumber,
		})
	}
	return units, nil, nil
}

// markCompletedSeasons flips the completion flag on every season whose
// designers all finished. Validation failures just mean the season is not
// done yet.
func (s *Scraper) markCompletedSeasons(ctx context.Context, engine storage.Engine) {
	snap, err := engine.Snapshot(ctx)
	if err != nil {
		s.log.WithError(err).Warn("failed to load snapshot for season completion")
		return
	}
	for _, season := range snap.Seasons {
		if season.Completed {
			continue
		}
		if err := engine.MarkSeasonCompleted(ctx, season.Key()); err != nil {
			if !errors.IsValidation(err) {
				s.log.WithError(err).WithField("season", season.Key().String()).
					Warn("failed to mark season completed")
			}
		}
	}
}

func filterSeasons(refs []pageclient.SeasonRef, filters []string) []pageclient.SeasonRef {
	if len(filters) == 0 {
		return refs
	}
	var out []pageclient.SeasonRef
	for _, ref := range refs {
		if matchesAny(filters, ref.Name+" "+ref.Year) {
			out = append(out, ref)
		}
	}
	return out
}

func matchesAny(filters []string, candidates ...string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		for _, c := range candidates {
			if strings.Contains(strings.ToLower(c), strings.ToLower(f)) {
				return true
			}
		}
	}
	return false
}

func sortSeasonRefs(refs []pageclient.SeasonRef, order string) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Year != refs[j].Year {
			if order == "asc" {
				return refs[i].Year < refs[j].Year
			}
			return refs[i].Year > refs[j].Year
		}
		return refs[i].Name < refs[j].Name
	})
}
