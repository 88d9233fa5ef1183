package pageclient

import (
	"context"

	"runwayscraper/pkg/models"
)

// SeasonRef is a season discovered on the seasons index page.
type SeasonRef struct {
	Name string
	Year string
	URL  string
}

// DesignerRef is a designer show discovered on a season page.
type DesignerRef struct {
	Name string
	URL  string
}

// Gallery is the parsed slideshow for one designer show.
type Gallery struct {
	SlideshowURL string
	TotalLooks   int
	Looks        []LookImages
}

// LookImages groups the images belonging to a single look.
type LookImages struct {
	LookNumber int
	Images     []models.Image
}

// FetchObserver receives one event per page fetch, labeled with the client
// that served it ("http", "browser", "cache") and the outcome ("ok", "error",
// "hit", "miss"). A nil observer records nothing.
type FetchObserver func(client, result string)

func (o FetchObserver) observe(client, result string) {
	if o != nil {
		o(client, result)
	}
}

// PageClient fetches and parses catalog pages. Implementations are not safe
// for concurrent use; the scheduler gives each worker its own client.
type PageClient interface {
	// FetchSeasons lists every season on the seasons index page.
	FetchSeasons(ctx context.Context) ([]SeasonRef, error)

	// FetchDesigners lists the designer shows on a season page.
	FetchDesigners(ctx context.Context, seasonURL string) ([]DesignerRef, error)

	// FetchLooks resolves the designer page's slideshow and parses its
	// gallery into per-look image groups.
	FetchLooks(ctx context.Context, designerURL string) (*Gallery, error)

	Close() error
}
