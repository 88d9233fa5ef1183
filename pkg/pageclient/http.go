package pageclient

import (
	"bytes"
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"runwayscraper/pkg/config"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/ratelimit"
)

// HTTPClient fetches catalog pages over plain HTTP. Fine for listing pages;
// galleries behind script-rendered markup need the browser client instead.
type HTTPClient struct {
	collector *colly.Collector
	limiter   ratelimit.Limiter
	baseURL   string
	observer  FetchObserver
	log       logger.Logger
}

// NewHTTPClient builds a client for the configured site.
func NewHTTPClient(cfg config.SourceConfig, limiter ratelimit.Limiter, log logger.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Host == "" {
		return nil, errors.Validation("invalid base URL %q", cfg.BaseURL)
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowedDomains(parsed.Host),
		colly.AllowURLRevisit(),
	)

	if cfg.SessionCookie != "" {
		cookie := cfg.SessionCookie
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Cookie", cookie)
		})
	}

	return &HTTPClient{
		collector: c,
		limiter:   limiter,
		baseURL:   cfg.BaseURL,
		log:       log,
	}, nil
}

// fetch retrieves pageURL and parses the response body, recording the
// outcome with the observer.
func (c *HTTPClient) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	doc, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		c.observer.observe("http", "error")
		return nil, err
	}
	c.observer.observe("http", "ok")
	return doc, nil
}

// fetchPage does the transfer. Each call clones the collector so response
// callbacks never leak between fetches.
func (c *HTTPClient) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.log.DebugWithFields("fetching page", map[string]interface{}{
		"url": pageURL,
	})

	var doc *goquery.Document
	var fetchErr error

	collector := c.collector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		d, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			fetchErr = errors.Wrap(errors.ErrorTypeNavigation, err, "failed to parse %s", pageURL)
			return
		}
		doc = d
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = errors.Wrap(errors.ErrorTypeNavigation, err, "failed to fetch %s (status %d)", pageURL, r.StatusCode)
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to visit %s", pageURL)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if doc == nil {
		return nil, errors.Navigation("no response received for %s", pageURL)
	}
	return doc, nil
}

// FetchSeasons lists every season on the seasons index page.
func (c *HTTPClient) FetchSeasons(ctx context.Context) ([]SeasonRef, error) {
	doc, err := c.fetch(ctx, c.baseURL+"/fashion-shows/seasons")
	if err != nil {
		return nil, err
	}
	return parseSeasons(doc, c.baseURL)
}

// FetchDesigners lists the designer shows on a season page.
func (c *HTTPClient) FetchDesigners(ctx context.Context, seasonURL string) ([]DesignerRef, error) {
	doc, err := c.fetch(ctx, seasonURL)
	if err != nil {
		return nil, err
	}
	return parseDesigners(doc, c.baseURL)
}

// FetchLooks resolves the slideshow behind a designer page and parses it.
func (c *HTTPClient) FetchLooks(ctx context.Context, designerURL string) (*Gallery, error) {
	doc, err := c.fetch(ctx, designerURL)
	if err != nil {
		return nil, err
	}
	slideshowURL, err := findSlideshowURL(doc, c.baseURL)
	if err != nil {
		return nil, err
	}

	doc, err = c.fetch(ctx, slideshowURL)
	if err != nil {
		return nil, err
	}
	return parseGallery(doc, slideshowURL)
}

// Close releases nothing for the HTTP client but satisfies PageClient.
func (c *HTTPClient) Close() error {
	return nil
}
