package storage

import (
	"strings"
	"time"

	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/models"
)

// validateSeason checks the required identity fields of an incoming season.
func validateSeason(season models.Season) error {
	if strings.TrimSpace(season.Name) == "" {
		return errors.Validation("season name is required")
	}
	if strings.TrimSpace(season.Year) == "" {
		return errors.Validation("season year is required")
	}
	if !strings.HasPrefix(season.URL, "http") {
		return errors.Validation("season %q has invalid url %q", season.Name, season.URL)
	}
	return nil
}

// validateDesigner checks the required identity fields of an incoming designer.
func validateDesigner(designer models.Designer) error {
	if strings.TrimSpace(designer.Name) == "" {
		return errors.Validation("designer name is required")
	}
	if !strings.HasPrefix(designer.URL, "http") {
		return errors.Validation("designer %q has invalid url %q", designer.Name, designer.URL)
	}
	if designer.TotalLooks < 0 {
		return errors.Validation("designer %q has negative total_looks", designer.Name)
	}
	return nil
}

// mergeSeason merges incoming season fields into existing, preserving the
// existing designer list, counters and completion flag. Merge never weakens
// what is already stored.
func mergeSeason(existing *models.Season, incoming models.Season) {
	if incoming.URL != "" {
		existing.URL = incoming.URL
	}
}

// newSeason initializes a freshly discovered season.
func newSeason(incoming models.Season) models.Season {
	return models.Season{
		Name:      incoming.Name,
		Year:      incoming.Year,
		URL:       incoming.URL,
		Designers: []models.Designer{},
	}
}

// mergeDesigner merges incoming designer fields into existing, preserving
// looks, extracted counts and the completion flag.
func mergeDesigner(existing *models.Designer, incoming models.Designer) {
	if incoming.Name != "" {
		existing.Name = incoming.Name
	}
	if incoming.SlideshowURL != "" {
		existing.SlideshowURL = incoming.SlideshowURL
	}
	if incoming.TotalLooks > 0 {
		existing.TotalLooks = incoming.TotalLooks
	}
}

// newDesigner initializes a freshly discovered designer.
func newDesigner(incoming models.Designer) models.Designer {
	return models.Designer{
		Name:         incoming.Name,
		URL:          incoming.URL,
		SlideshowURL: incoming.SlideshowURL,
		TotalLooks:   incoming.TotalLooks,
		Looks:        []models.Look{},
	}
}

// mergeLook folds incoming images into the look. Duplicate URLs are skipped.
// A completed look only accepts strictly additive images: any attempt to
// resubmit an existing URL with different content is logged and dropped.
// Returns the number of images actually added.
func mergeLook(look *models.Look, lookNumber int, images []models.Image, log logger.Logger) int {
	now := time.Now()
	added := 0

	for _, img := range images {
		if img.Timestamp.IsZero() {
			img.Timestamp = now
		}
		if img.Type == "" {
			img.Type = models.DetermineImageType(img.AltText)
		}
		img.LookNumber = lookNumber

		if look.HasImage(img.URL) {
			// Re-adding the same URL is a no-op. For a completed look a
			// conflicting payload under a known URL is a warning, not a write.
			if look.Completed && differsFromStored(*look, img) {
				log.WarnWithFields("ignoring non-additive image for completed look", map[string]interface{}{
					"look_number": lookNumber,
					"url":         img.URL,
				})
			}
			continue
		}

		look.Images = append(look.Images, img)
		added++
	}

	if look.IsComplete() {
		look.Completed = true
	}

	return added
}

// differsFromStored reports whether the stored image under img.URL carries
// different content than img.
func differsFromStored(look models.Look, img models.Image) bool {
	for _, stored := range look.Images {
		if stored.URL == img.URL {
			return stored.AltText != img.AltText || stored.Type != img.Type
		}
	}
	return false
}

// recomputeDesigner re-derives the designer's extracted count and completion
// flag from its looks. Counters are never incremented blindly.
func recomputeDesigner(designer *models.Designer) {
	completed := 0
	for _, look := range designer.Looks {
		if look.Completed && len(look.Images) > 0 {
			completed++
		}
	}
	designer.ExtractedLooks = completed
	if designer.TotalLooks > 0 {
		designer.Completed = completed >= designer.TotalLooks
	} else {
		designer.Completed = false
	}
}

// recomputeSeason re-derives the season's designer counters and completion
// flag from its designers.
func recomputeSeason(season *models.Season) {
	completed := 0
	for _, designer := range season.Designers {
		if designer.Completed && designer.TotalLooks > 0 {
			completed++
		}
	}
	season.TotalDesigners = len(season.Designers)
	season.CompletedDesigners = completed
	if season.TotalDesigners > 0 {
		season.Completed = completed >= season.TotalDesigners
	} else {
		season.Completed = false
	}
}

// sortLooks keeps a designer's looks ordered by look number.
func sortLooks(designer *models.Designer) {
	looks := designer.Looks
	for i := 1; i < len(looks); i++ {
		for j := i; j > 0 && looks[j-1].LookNumber > looks[j].LookNumber; j-- {
			looks[j-1], looks[j] = looks[j], looks[j-1]
		}
	}
}

// validateDesignerCompletion checks the designer completion invariant before
// an explicit MarkDesignerCompleted transition.
func validateDesignerCompletion(designer models.Designer) error {
	if designer.TotalLooks <= 0 {
		return errors.Validation("designer %q has no known looks", designer.Name)
	}
	if designer.ExtractedLooks < designer.TotalLooks {
		return errors.Validation("designer %q has %d/%d looks extracted",
			designer.Name, designer.ExtractedLooks, designer.TotalLooks)
	}
	for _, look := range designer.Looks {
		if !look.IsComplete() {
			return errors.Validation("designer %q look %d is incomplete", designer.Name, look.LookNumber)
		}
	}
	return nil
}

// validateSeasonCompletion checks the season completion invariant before an
// explicit MarkSeasonCompleted transition.
func validateSeasonCompletion(season models.Season) error {
	if season.TotalDesigners <= 0 {
		return errors.Validation("season %q %s has no designers", season.Name, season.Year)
	}
	if season.CompletedDesigners < season.TotalDesigners {
		return errors.Validation("season %q %s has %d/%d designers completed",
			season.Name, season.Year, season.CompletedDesigners, season.TotalDesigners)
	}
	return nil
}
