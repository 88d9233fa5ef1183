package pageclient

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"runwayscraper/pkg/config"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/ratelimit"
)

const navigateTimeout = 30 * time.Second

// BrowserClient fetches pages through headless Chrome so script-rendered
// galleries come back fully populated. Each client owns its own browser
// process; the scheduler recycles the whole client when a unit times out.
type BrowserClient struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	limiter  ratelimit.Limiter
	baseURL  string
	cookie   string
	observer FetchObserver
	log      logger.Logger
}

// NewBrowserClient launches a headless browser and connects to it.
func NewBrowserClient(cfg config.SourceConfig, limiter ratelimit.Limiter, log logger.Logger) (*BrowserClient, error) {
	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to launch browser")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to connect to browser")
	}

	return &BrowserClient{
		browser:  browser,
		launcher: l,
		limiter:  limiter,
		baseURL:  cfg.BaseURL,
		cookie:   cfg.SessionCookie,
		log:      log,
	}, nil
}

// fetch navigates a stealth page to pageURL and parses the rendered DOM,
// recording the outcome with the observer.
func (c *BrowserClient) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	doc, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		c.observer.observe("browser", "error")
		return nil, err
	}
	c.observer.observe("browser", "ok")
	return doc, nil
}

func (c *BrowserClient) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.log.DebugWithFields("rendering page", map[string]interface{}{
		"url": pageURL,
	})

	page, err := stealth.Page(c.browser)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to open tab")
	}
	defer page.Close()

	if c.cookie != "" {
		if err := c.setSessionCookie(page); err != nil {
			c.log.WithError(err).Warn("failed to set session cookie")
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to navigate to %s", pageURL)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		c.log.WithError(err).WithField("url", pageURL).Warn("page load wait timed out")
	}

	html, err := page.Context(navCtx).HTML()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to read DOM for %s", pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNavigation, err, "failed to parse %s", pageURL)
	}
	return doc, nil
}

func (c *BrowserClient) setSessionCookie(page *rod.Page) error {
	name, value, ok := strings.Cut(c.cookie, "=")
	if !ok {
		return errors.Validation("session cookie must be in name=value form")
	}
	domain := strings.TrimPrefix(c.baseURL, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return page.SetCookies([]*proto.NetworkCookieParam{{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   "/",
	}})
}

// FetchSeasons lists every season on the seasons index page.
func (c *BrowserClient) FetchSeasons(ctx context.Context) ([]SeasonRef, error) {
	doc, err := c.fetch(ctx, c.baseURL+"/fashion-shows/seasons")
	if err != nil {
		return nil, err
	}
	return parseSeasons(doc, c.baseURL)
}

// FetchDesigners lists the designer shows on a season page.
func (c *BrowserClient) FetchDesigners(ctx context.Context, seasonURL string) ([]DesignerRef, error) {
	doc, err := c.fetch(ctx, seasonURL)
	if err != nil {
		return nil, err
	}
	return parseDesigners(doc, c.baseURL)
}

// FetchLooks resolves the slideshow behind a designer page and parses it.
func (c *BrowserClient) FetchLooks(ctx context.Context, designerURL string) (*Gallery, error) {
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

// Close shuts down the browser and its launcher.
func (c *BrowserClient) Close() error {
	err := c.browser.Close()
	c.launcher.Cleanup()
	return err
}
