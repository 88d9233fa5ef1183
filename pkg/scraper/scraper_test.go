package scraper

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

const (
	fallURL   = "https://example.com/fashion-shows/fall-2024-ready-to-wear"
	springURL = "https://example.com/fashion-shows/spring-2023-ready-to-wear"
	acmeURL   = fallURL + "/acme-studio"
	birchURL  = fallURL + "/birch-atelier"
	corvidURL = springURL + "/corvid"
)

// catalog is a small in-memory site: one fall season with two designers and
// one spring season with one designer.
type catalog struct {
	looksCalls    int64
	failLooks     map[string]bool
	failDesigners map[string]bool
}

func (c *catalog) client() *pageclient.Mock {
	return &pageclient.Mock{
		SeasonsFunc: func(ctx context.Context) ([]pageclient.SeasonRef, error) {
			return []pageclient.SeasonRef{
				{Name: "Spring Ready-to-Wear", Year: "2023", URL: springURL},
				{Name: "Fall Ready-to-Wear", Year: "2024", URL: fallURL},
			}, nil
		},
		DesignersFunc: func(ctx context.Context, seasonURL string) ([]pageclient.DesignerRef, error) {
			if c.failDesigners[seasonURL] {
				return nil, errors.Navigation("season page did not load: %s", seasonURL)
			}
			switch seasonURL {
			case fallURL:
				return []pageclient.DesignerRef{
					{Name: "Acme Studio", URL: acmeURL},
					{Name: "Birch Atelier", URL: birchURL},
				}, nil
			case springURL:
				return []pageclient.DesignerRef{
					{Name: "Corvid", URL: corvidURL},
				}, nil
			}
			return nil, errors.NotFound("unknown season %s", seasonURL)
		},
		LooksFunc: func(ctx context.Context, designerURL string) (*pageclient.Gallery, error) {
			atomic.AddInt64(&c.looksCalls, 1)
			if c.failLooks[designerURL] {
				return nil, errors.Navigation("slideshow did not load for %s", designerURL)
			}
			total := 2
			if designerURL == corvidURL {
				total = 1
			}
			gallery := &pageclient.Gallery{
				SlideshowURL: designerURL + "/slideshow/collection",
				TotalLooks:   total,
			}
			for n := 1; n <= total; n++ {
				gallery.Looks = append(gallery.Looks, pageclient.LookImages{
					LookNumber: n,
					Images: []models.Image{{
						URL:       fmt.Sprintf("%s/look-%d.jpg", designerURL, n),
						AltText:   fmt.Sprintf("Look %d", n),
						Timestamp: time.Now(),
					}},
				})
			}
			return gallery, nil
		},
	}
}

func (c *catalog) galleryFetches() int {
	return int(atomic.LoadInt64(&c.looksCalls))
}

type mockFactory struct {
	cat *catalog
}

func (f *mockFactory) New() (pageclient.PageClient, error) {
	return f.cat.client(), nil
}

var _ scheduler.ClientFactory = (*mockFactory)(nil)

func newTestScraper(t *testing.T, dataDir string, cat *catalog, mutate func(*config.Config)) *Scraper {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dataDir
	cfg.Scraper.MaxWorkers = 2
	cfg.Scraper.SeasonOrder = "desc"
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	log := logger.NewNopLogger()
	return &Scraper{
		cfg:         cfg,
		factory:     &mockFactory{cat: cat},
		checkpoints: checkpoint.NewManager(cfg.Storage.DataDir, log),
		metrics:     progress.NewMetrics(),
		retryCfg: &retry.Config{
			MaxAttempts: 1,
			Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
			RetryIf:     retry.DefaultRetryIf,
			Context:     context.Background(),
			Logger:      log,
		},
		log: log,
	}
}

func TestRunExtractsWholeCatalog(t *testing.T) {
	dataDir := t.TempDir()
	cat := &catalog{}
	s := newTestScraper(t, dataDir, cat, nil)

	report, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Result.Processed)
	assert.Equal(t, 3, report.Result.Completed)
	assert.Equal(t, 0, report.Result.Failed)
	assert.Equal(t, 5, report.Progress.TotalLooks)
	assert.Equal(t, 5, report.Progress.ExtractedLooks)
	assert.InDelta(t, 100.0, report.Progress.CompletionPercentage, 0.01)

	// The run left a checkpoint pointing at its instance.
	cp, err := checkpoint.NewManager(dataDir, logger.NewNopLogger()).Load()
	require.NoError(t, err)
	assert.Equal(t, report.InstanceID, cp.InstanceID)

	// The stored tree is fully completed.
	engine, err := storage.NewJSONEngine(dataDir, report.InstanceID, logger.NewNopLogger())
	require.NoError(t, err)
	defer engine.Close()

	snap, err := engine.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Seasons, 2)
	for _, season := range snap.Seasons {
		assert.True(t, season.Completed, "season %s should be completed", season.Key())
		for _, designer := range season.Designers {
			assert.True(t, designer.Completed, "designer %s should be completed", designer.Name)
		}
	}
}

func TestRunResumeSkipsCompletedWork(t *testing.T) {
	dataDir := t.TempDir()
	cat := &catalog{}
	s := newTestScraper(t, dataDir, cat, nil)

	_, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)
	fetchesAfterFirst := cat.galleryFetches()

	report, err := s.Run(context.Background(), Options{Resume: "latest"})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Result.Skipped)
	assert.Equal(t, 0, report.Result.Completed)
	// No gallery was refetched for already-extracted designers.
	assert.Equal(t, fetchesAfterFirst, cat.galleryFetches())
}

func TestRunSeasonFilter(t *testing.T) {
	cat := &catalog{}
	s := newTestScraper(t, t.TempDir(), cat, nil)

	report, err := s.Run(context.Background(), Options{Seasons: []string{"fall"}})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Result.Processed)
	assert.Equal(t, 4, report.Progress.TotalLooks)
}

func TestRunDesignerFilter(t *testing.T) {
	cat := &catalog{}
	s := newTestScraper(t, t.TempDir(), cat, nil)

	report, err := s.Run(context.Background(), Options{Designers: []string{"birch"}})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Result.Processed)
	assert.Equal(t, 1, report.Result.Completed)
}

func TestRunNoSeasonsMatch(t *testing.T) {
	cat := &catalog{}
	s := newTestScraper(t, t.TempDir(), cat, nil)

	_, err := s.Run(context.Background(), Options{Seasons: []string{"winter 1890"}})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRunMultiSeasonMode(t *testing.T) {
	cat := &catalog{}
	s := newTestScraper(t, t.TempDir(), cat, func(cfg *config.Config) {
		cfg.Scraper.Mode = config.ModeMultiSeason
	})

	report, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	// One unit per season, all designers extracted inside them.
	assert.Equal(t, 2, report.Result.Processed)
	assert.Equal(t, 2, report.Result.Completed)
	assert.Equal(t, 5, report.Progress.ExtractedLooks)
}

func TestRunMultiLookMode(t *testing.T) {
	cat := &catalog{}
	s := newTestScraper(t, t.TempDir(), cat, func(cfg *config.Config) {
		cfg.Scraper.Mode = config.ModeMultiLook
	})

	report, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	// One unit per look across the whole catalog.
	assert.Equal(t, 5, report.Result.Processed)
	assert.Equal(t, 5, report.Result.Completed)
	assert.Equal(t, 5, report.Progress.ExtractedLooks)
}

func TestRunSingleModeUsesOneWorker(t *testing.T) {
	cat := &catalog{}
	s := newTestScraper(t, t.TempDir(), cat, func(cfg *config.Config) {
		cfg.Scraper.Mode = config.ModeSingle
	})

	assert.Equal(t, 1, s.workerCount())

	report, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Result.Completed)
}

func TestRunCollectsFailuresAndResumes(t *testing.T) {
	dataDir := t.TempDir()
	cat := &catalog{failLooks: map[string]bool{birchURL: true}}
	s := newTestScraper(t, dataDir, cat, nil)

	report, err := s.Run(context.Background(), Options{})
	require.NoError(t, err, "unit failures must not fail the run")

	assert.Equal(t, 2, report.Result.Completed)
	assert.Equal(t, 1, report.Result.Failed)
	require.Len(t, report.Result.Errors, 1)
	assert.Contains(t, report.Result.Errors[0].Error(), birchURL)

	// The page recovers; resuming finishes only the failed designer.
	cat.failLooks = nil
	report, err = s.Run(context.Background(), Options{Resume: "latest"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Result.Completed)
	assert.Equal(t, 2, report.Result.Skipped)
	assert.Equal(t, 5, report.Progress.ExtractedLooks)
}

func TestRunReportsSeasonDiscoveryFailure(t *testing.T) {
	cat := &catalog{failDesigners: map[string]bool{fallURL: true}}
	s := newTestScraper(t, t.TempDir(), cat, nil)

	report, err := s.Run(context.Background(), Options{})
	require.NoError(t, err, "a broken season page must not fail the run")

	// Spring still extracts; the fall season shows up as a failed unit
	// instead of silently vanishing from the report.
	assert.Equal(t, 1, report.Result.Completed)
	assert.Equal(t, 1, report.Result.Failed)
	assert.Equal(t, 2, report.Result.Processed)
	require.Len(t, report.Result.Errors, 1)
	assert.Contains(t, report.Result.Errors[0].Error(), "Fall")
	assert.Contains(t, report.Result.Errors[0].Error(), "season page did not load")
}

func TestRunReportsLookDiscoveryFailure(t *testing.T) {
	cat := &catalog{failLooks: map[string]bool{corvidURL: true}}
	s := newTestScraper(t, t.TempDir(), cat, func(cfg *config.Config) {
		cfg.Scraper.Mode = config.ModeMultiLook
	})

	report, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	// Four fall looks extract; corvid's gallery never enumerated, so the
	// designer itself is the failed unit.
	assert.Equal(t, 4, report.Result.Completed)
	assert.Equal(t, 1, report.Result.Failed)
	require.Len(t, report.Result.Errors, 1)
	assert.Contains(t, report.Result.Errors[0].Error(), corvidURL)
}

func TestRunReextract(t *testing.T) {
	dataDir := t.TempDir()
	cat := &catalog{}
	s := newTestScraper(t, dataDir, cat, nil)

	first, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)
	fetchesAfterFirst := cat.galleryFetches()

	report, err := s.Run(context.Background(), Options{
		Resume:    "latest",
		Reextract: []string{acmeURL},
	})
	require.NoError(t, err)

	assert.Equal(t, first.InstanceID, report.InstanceID)
	assert.Equal(t, 1, report.Result.Completed)
	assert.Equal(t, 2, report.Result.Skipped)
	assert.Equal(t, fetchesAfterFirst+1, cat.galleryFetches())
}

func TestSortSeasonRefs(t *testing.T) {
	refs := []pageclient.SeasonRef{
		{Name: "Fall", Year: "2023"},
		{Name: "Spring", Year: "2024"},
		{Name: "Fall", Year: "2024"},
	}

	sortSeasonRefs(refs, "desc")
	assert.Equal(t, "2024", refs[0].Year)
	assert.Equal(t, "Fall", refs[0].Name)
	assert.Equal(t, "2023", refs[2].Year)

	sortSeasonRefs(refs, "asc")
	assert.Equal(t, "2023", refs[0].Year)
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny(nil, "anything"))
	assert.True(t, matchesAny([]string{"acme"}, "Acme Studio", acmeURL))
	assert.True(t, matchesAny([]string{"ACME"}, "acme studio"))
	assert.False(t, matchesAny([]string{"missing"}, "Acme Studio"))
}
