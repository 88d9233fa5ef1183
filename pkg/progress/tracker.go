package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/models"
	"runwayscraper/pkg/storage"
)

// Tracker derives progress from storage snapshots. Counters are always
// recomputed from the full tree rather than incremented, so a crashed or
// resumed run can never drift from what storage actually holds.
type Tracker struct {
	engine  storage.Engine
	metrics *Metrics
	log     logger.Logger
	clock   func() time.Time
}

// New returns a tracker bound to the engine. metrics may be nil when no
// exporter is running.
func New(engine storage.Engine, metrics *Metrics, log logger.Logger) *Tracker {
	return &Tracker{
		engine:  engine,
		metrics: metrics,
		log:     log,
		clock:   time.Now,
	}
}

// Compute derives the aggregate counters from a snapshot. startTime anchors
// the extraction rate; it is carried through unchanged.
func Compute(snap *models.Snapshot, startTime time.Time, now time.Time) models.OverallProgress {
	p := models.OverallProgress{StartTime: startTime}

	for _, season := range snap.Seasons {
		p.TotalSeasons++
		if season.Completed {
			p.CompletedSeasons++
		}
		for _, designer := range season.Designers {
			p.TotalDesigners++
			if designer.Completed {
				p.CompletedDesigners++
			}
			p.TotalLooks += designer.TotalLooks
			p.ExtractedLooks += designer.ExtractedLooks
		}
	}

	if p.TotalLooks > 0 {
		p.CompletionPercentage = float64(p.ExtractedLooks) / float64(p.TotalLooks) * 100
	}

	// Rate is looks per second since the run started.
	elapsed := now.Sub(startTime).Seconds()
	if elapsed > 0 && p.ExtractedLooks > 0 {
		p.ExtractionRate = float64(p.ExtractedLooks) / elapsed
	}

	remaining := p.TotalLooks - p.ExtractedLooks
	if p.ExtractionRate > 0 && remaining > 0 {
		eta := now.Add(time.Duration(float64(remaining) / p.ExtractionRate * float64(time.Second)))
		p.EstimatedCompletion = &eta
	}

	return p
}

// Refresh recomputes progress from the engine's current snapshot, publishes
// it to the metrics registry, and writes it back into the metadata record.
func (t *Tracker) Refresh(ctx context.Context) (models.OverallProgress, error) {
	snap, err := t.engine.Snapshot(ctx)
	if err != nil {
		return models.OverallProgress{}, err
	}

	now := t.clock()
	progress := Compute(snap, snap.Metadata.OverallProgress.StartTime, now)

	md := snap.Metadata
	md.OverallProgress = progress
	md.LastUpdated = now
	if err := t.engine.SaveMetadata(ctx, md); err != nil {
		return models.OverallProgress{}, err
	}

	if t.metrics != nil {
		t.metrics.Observe(progress)
	}

	t.log.InfoWithFields("extraction progress", map[string]interface{}{
		"extracted_looks": progress.ExtractedLooks,
		"total_looks":     progress.TotalLooks,
		"percentage":      fmt.Sprintf("%.1f", progress.CompletionPercentage),
	})
	return progress, nil
}

// Summary renders a human-readable progress report for the status command.
func Summary(snap *models.Snapshot, now time.Time) string {
	p := Compute(snap, snap.Metadata.OverallProgress.StartTime, now)

	var b strings.Builder
	fmt.Fprintf(&b, "Instance:  %s\n", snap.Metadata.InstanceID)
	fmt.Fprintf(&b, "Started:   %s\n", p.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Updated:   %s\n", snap.Metadata.LastUpdated.Format(time.RFC3339))
	fmt.Fprintf(&b, "Seasons:   %d/%d completed\n", p.CompletedSeasons, p.TotalSeasons)
	fmt.Fprintf(&b, "Designers: %d/%d completed\n", p.CompletedDesigners, p.TotalDesigners)
	fmt.Fprintf(&b, "Looks:     %d/%d extracted (%.1f%%)\n", p.ExtractedLooks, p.TotalLooks, p.CompletionPercentage)
	if p.ExtractionRate > 0 {
		fmt.Fprintf(&b, "Rate:      %.2f looks/sec\n", p.ExtractionRate)
	}
	if p.EstimatedCompletion != nil {
		fmt.Fprintf(&b, "ETA:       %s\n", p.EstimatedCompletion.Format(time.RFC3339))
	}

	for _, season := range snap.Seasons {
		marker := " "
		if season.Completed {
			marker = "x"
		}
		fmt.Fprintf(&b, "\n[%s] %s %s (%d/%d designers)\n",
			marker, season.Name, season.Year, season.CompletedDesigners, season.TotalDesigners)
		for _, designer := range season.Designers {
			marker = " "
			if designer.Completed {
				marker = "x"
			}
			fmt.Fprintf(&b, "    [%s] %s (%d/%d looks)\n",
				marker, designer.Name, designer.ExtractedLooks, designer.TotalLooks)
		}
	}
	return b.String()
}
