package models

import (
	"fmt"
	"strings"
	"time"
)

// ImageType classifies a runway image by the view it captures.
type ImageType string

const (
	ImageTypeFront  ImageType = "front"
	ImageTypeBack   ImageType = "back"
	ImageTypeDetail ImageType = "detail"
)

// DetermineImageType infers the image type from its alt text.
// Anything that is not explicitly a back or detail shot is a front view.
func DetermineImageType(altText string) ImageType {
	lower := strings.ToLower(altText)
	switch {
	case strings.Contains(lower, "back"):
		return ImageTypeBack
	case strings.Contains(lower, "detail"):
		return ImageTypeDetail
	default:
		return ImageTypeFront
	}
}

// Image is a single extracted runway image. Images are immutable once
// written except through an explicit forced re-extraction.
type Image struct {
	URL        string    `json:"url"`
	LookNumber int       `json:"look_number"`
	Type       ImageType `json:"type"`
	AltText    string    `json:"alt_text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Valid reports whether the image carries every required field.
func (i Image) Valid() bool {
	return i.URL != "" && i.Type != "" && !i.Timestamp.IsZero()
}

// Look groups the images for a single numbered look in a collection.
type Look struct {
	LookNumber int     `json:"look_number"`
	Completed  bool    `json:"completed"`
	Images     []Image `json:"images"`
}

// IsComplete reports whether the look satisfies its completion invariant:
// a non-empty image list where every image has its required fields.
func (l Look) IsComplete() bool {
	if len(l.Images) == 0 {
		return false
	}
	for _, img := range l.Images {
		if !img.Valid() {
			return false
		}
	}
	return true
}

// HasImage reports whether the look already contains an image with this URL.
func (l Look) HasImage(url string) bool {
	for _, img := range l.Images {
		if img.URL == url {
			return true
		}
	}
	return false
}

// Designer is one designer's show within a season. Identity key is URL.
type Designer struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	SlideshowURL   string `json:"slideshow_url,omitempty"`
	TotalLooks     int    `json:"total_looks"`
	ExtractedLooks int    `json:"extracted_looks"`
	Completed      bool   `json:"completed"`
	Looks          []Look `json:"looks"`
}

// IsComplete reports whether every look is extracted: extracted_looks must
// equal a positive total_looks and each stored look must itself be complete.
func (d Designer) IsComplete() bool {
	if d.TotalLooks <= 0 || d.ExtractedLooks != d.TotalLooks {
		return false
	}
	for _, look := range d.Looks {
		if !look.IsComplete() {
			return false
		}
	}
	return true
}

// Look returns the look with the given number, or nil if absent.
func (d *Designer) Look(number int) *Look {
	for i := range d.Looks {
		if d.Looks[i].LookNumber == number {
			return &d.Looks[i]
		}
	}
	return nil
}

// Season is one runway season. Identity key is (Name, Year).
type Season struct {
	Name               string     `json:"season"`
	Year               string     `json:"year"`
	URL                string     `json:"url"`
	TotalDesigners     int        `json:"total_designers"`
	CompletedDesigners int        `json:"completed_designers"`
	Completed          bool       `json:"completed"`
	Designers          []Designer `json:"designers"`
}

// Key returns the season's identity key.
func (s Season) Key() SeasonKey {
	return SeasonKey{Name: s.Name, Year: s.Year}
}

// Designer returns the designer with the given URL, or nil if absent.
func (s *Season) Designer(url string) *Designer {
	for i := range s.Designers {
		if s.Designers[i].URL == url {
			return &s.Designers[i]
		}
	}
	return nil
}

// SeasonKey identifies a season by name and year.
type SeasonKey struct {
	Name string
	Year string
}

func (k SeasonKey) String() string {
	return fmt.Sprintf("%s:%s", k.Name, k.Year)
}

// ParseSeasonKey parses the "name:year" form produced by String. The year is
// the segment after the last colon, so season names may themselves contain
// colons.
func ParseSeasonKey(s string) (SeasonKey, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return SeasonKey{}, fmt.Errorf("malformed season key %q", s)
	}
	return SeasonKey{Name: s[:idx], Year: s[idx+1:]}, nil
}

// LookKey identifies a look by its designer URL and look number.
type LookKey struct {
	DesignerURL string
	LookNumber  int
}

func (k LookKey) String() string {
	return fmt.Sprintf("%s:%d", k.DesignerURL, k.LookNumber)
}

// OverallProgress holds the aggregate counters derived from a snapshot.
// These are always recomputed from the tree, never incremented in place.
type OverallProgress struct {
	TotalSeasons         int        `json:"total_seasons"`
	CompletedSeasons     int        `json:"completed_seasons"`
	TotalDesigners       int        `json:"total_designers"`
	CompletedDesigners   int        `json:"completed_designers"`
	TotalLooks           int        `json:"total_looks"`
	ExtractedLooks       int        `json:"extracted_looks"`
	CompletionPercentage float64    `json:"completion_percentage"`
	ExtractionRate       float64    `json:"extraction_rate"`
	EstimatedCompletion  *time.Time `json:"estimated_completion,omitempty"`
	StartTime            time.Time  `json:"start_time"`
}

// Metadata is the process-wide state record kept alongside the season tree.
type Metadata struct {
	CreatedAt       time.Time       `json:"created_at"`
	LastUpdated     time.Time       `json:"last_updated"`
	InstanceID      string          `json:"instance_id"`
	OverallProgress OverallProgress `json:"overall_progress"`
}

// Snapshot is a consistent point-in-time view of the whole data tree.
type Snapshot struct {
	Metadata Metadata `json:"metadata"`
	Seasons  []Season `json:"seasons"`
}
