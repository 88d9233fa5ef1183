package pageclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwayscraper/pkg/config"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/ratelimit"
)

func newMockedHTTPClient(t *testing.T, cfg config.SourceConfig) (*HTTPClient, *httpmock.MockTransport) {
	t.Helper()
	if cfg.BaseURL == "" {
		cfg.BaseURL = testBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "runwayscraper-test"
	}

	client, err := NewHTTPClient(cfg, ratelimit.NewTokenBucket(100, time.Minute), logger.NewNopLogger())
	require.NoError(t, err)

	transport := httpmock.NewMockTransport()
	client.collector.WithTransport(transport)
	return client, transport
}

func TestNewHTTPClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewHTTPClient(config.SourceConfig{BaseURL: "::bogus::"},
		ratelimit.NewTokenBucket(1, time.Minute), logger.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestFetchSeasons(t *testing.T) {
	client, transport := newMockedHTTPClient(t, config.SourceConfig{})
	transport.RegisterResponder("GET", testBaseURL+"/fashion-shows/seasons",
		httpmock.NewStringResponder(200, seasonsPageHTML))

	seasons, err := client.FetchSeasons(context.Background())
	require.NoError(t, err)
	require.Len(t, seasons, 3)
	assert.Equal(t, "Fall 2024 Ready-to-Wear", seasons[0].Name)
}

func TestFetchSeasonsServerError(t *testing.T) {
	client, transport := newMockedHTTPClient(t, config.SourceConfig{})
	transport.RegisterResponder("GET", testBaseURL+"/fashion-shows/seasons",
		httpmock.NewStringResponder(503, "service unavailable"))

	_, err := client.FetchSeasons(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNavigation(err))
}

func TestFetchDesigners(t *testing.T) {
	seasonURL := testBaseURL + "/fashion-shows/fall-2024-ready-to-wear"
	client, transport := newMockedHTTPClient(t, config.SourceConfig{})
	transport.RegisterResponder("GET", seasonURL,
		httpmock.NewStringResponder(200, seasonPageHTML))

	designers, err := client.FetchDesigners(context.Background(), seasonURL)
	require.NoError(t, err)
	require.Len(t, designers, 2)
	assert.Equal(t, "Acme Studio", designers[0].Name)
}

func TestFetchLooksFollowsSlideshowLink(t *testing.T) {
	designerURL := testBaseURL + "/fashion-shows/fall-2024-ready-to-wear/acme-studio"
	slideshowURL := designerURL + "/slideshow/collection"

	client, transport := newMockedHTTPClient(t, config.SourceConfig{})
	transport.RegisterResponder("GET", designerURL,
		httpmock.NewStringResponder(200, designerPageHTML))
	transport.RegisterResponder("GET", slideshowURL,
		httpmock.NewStringResponder(200, slideshowPageHTML))

	gallery, err := client.FetchLooks(context.Background(), designerURL)
	require.NoError(t, err)
	assert.Equal(t, slideshowURL, gallery.SlideshowURL)
	assert.Equal(t, 3, gallery.TotalLooks)
	assert.Len(t, gallery.Looks, 2)
}

func TestFetchLooksWithoutSlideshow(t *testing.T) {
	designerURL := testBaseURL + "/fashion-shows/fall-2024-ready-to-wear/no-gallery"
	client, transport := newMockedHTTPClient(t, config.SourceConfig{})
	transport.RegisterResponder("GET", designerURL,
		httpmock.NewStringResponder(200, "<html><body><h1>Show review</h1></body></html>"))

	_, err := client.FetchLooks(context.Background(), designerURL)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSessionCookieHeader(t *testing.T) {
	var gotCookie string
	client, transport := newMockedHTTPClient(t, config.SourceConfig{
		SessionCookie: "runway_session=abc123",
	})
	transport.RegisterResponder("GET", testBaseURL+"/fashion-shows/seasons",
		func(req *http.Request) (*http.Response, error) {
			gotCookie = req.Header.Get("Cookie")
			return httpmock.NewStringResponse(200, seasonsPageHTML), nil
		})

	_, err := client.FetchSeasons(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "runway_session=abc123", gotCookie)
}

func TestFetchReportsOutcomes(t *testing.T) {
	client, transport := newMockedHTTPClient(t, config.SourceConfig{})
	transport.RegisterResponder("GET", testBaseURL+"/fashion-shows/seasons",
		httpmock.NewStringResponder(200, seasonsPageHTML))
	transport.RegisterResponder("GET", testBaseURL+"/fashion-shows/broken",
		httpmock.NewStringResponder(503, "service unavailable"))

	outcomes := map[string]int{}
	client.observer = func(clientName, result string) {
		outcomes[clientName+"/"+result]++
	}

	_, err := client.FetchSeasons(context.Background())
	require.NoError(t, err)
	_, err = client.FetchDesigners(context.Background(), testBaseURL+"/fashion-shows/broken")
	require.Error(t, err)

	assert.Equal(t, 1, outcomes["http/ok"])
	assert.Equal(t, 1, outcomes["http/error"])
}

func TestFetchRespectsContextCancellation(t *testing.T) {
	// Exhaust the bucket so fetch has to wait, then cancel.
	limiter := ratelimit.NewTokenBucket(1, time.Hour)
	require.True(t, limiter.Allow())

	client, err := NewHTTPClient(config.SourceConfig{
		BaseURL:   testBaseURL,
		UserAgent: "runwayscraper-test",
	}, limiter, logger.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.FetchSeasons(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
