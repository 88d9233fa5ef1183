package pageclient

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/models"
)

// Selectors for the catalog markup. The site ships hashed class suffixes, so
// everything matches on the stable prefix.
const (
	selNavGroup      = `div[class*="NavigationWrapper"]`
	selNavHeading    = `[class*="NavigationHeadingWrapper"]`
	selNavLink       = `a[class*="NavigationInternalLink"]`
	selDesignerItem  = `[class*="SummaryItemWrapper"]`
	selDesignerLink  = `a[class*="SummaryItemHedLink"]`
	selSlideshowLink = `a[href*="/slideshow/collection"]`
	selGallery       = `[class*="RunwayGalleryImageCollection"]`
	selGalleryItem   = `[class*="ImageCollectionListItem"]`
	selLookNumber    = `[class*="RunwayGalleryLookNumberText"]`
	selLookImage     = `img[class*="ResponsiveImageContainer"]`
)

var lookNumberRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

// parseSeasons extracts seasons from the seasons index page. Navigation
// groups whose heading is not a plain year are site chrome and are skipped.
func parseSeasons(doc *goquery.Document, baseURL string) ([]SeasonRef, error) {
	var seasons []SeasonRef

	doc.Find(selNavGroup).Each(func(_ int, group *goquery.Selection) {
		year := strings.TrimSpace(group.Find(selNavHeading).First().Text())
		if !isYear(year) {
			return
		}

		group.Find(selNavLink).Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			if !ok {
				return
			}
			abs := resolveURL(baseURL, href)
			if !strings.HasPrefix(abs, baseURL+"/fashion-shows/") {
				return
			}
			name := strings.TrimSpace(link.Text())
			if name == "" {
				return
			}
			seasons = append(seasons, SeasonRef{Name: name, Year: year, URL: abs})
		})
	})

	if len(seasons) == 0 {
		return nil, errors.NotFound("no seasons found on index page")
	}
	return seasons, nil
}

// parseDesigners extracts designer shows from a season page.
func parseDesigners(doc *goquery.Document, baseURL string) ([]DesignerRef, error) {
	var designers []DesignerRef

	doc.Find(selDesignerItem).Each(func(_ int, item *goquery.Selection) {
		link := item.Find(selDesignerLink).First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		name := strings.TrimSpace(link.Text())
		if name == "" {
			return
		}
		designers = append(designers, DesignerRef{
			Name: name,
			URL:  resolveURL(baseURL, href),
		})
	})

	if len(designers) == 0 {
		return nil, errors.NotFound("no designers found on season page")
	}
	return designers, nil
}

// findSlideshowURL locates the gallery entry link on a designer show page.
func findSlideshowURL(doc *goquery.Document, baseURL string) (string, error) {
	href, ok := doc.Find(selSlideshowLink).First().Attr("href")
	if !ok {
		return "", errors.NotFound("no slideshow link on designer page")
	}
	abs := resolveURL(baseURL, href)
	// The entry link carries a look fragment; strip it so the gallery
	// URL is stable for caching.
	if idx := strings.Index(abs, "#"); idx >= 0 {
		abs = abs[:idx]
	}
	return abs, nil
}

// parseGallery extracts per-look image groups from a slideshow page. The
// total look count comes from the "N/M" counter on the gallery items.
func parseGallery(doc *goquery.Document, slideshowURL string) (*Gallery, error) {
	gallery := doc.Find(selGallery).First()
	if gallery.Length() == 0 {
		return nil, errors.NotFound("no image collection on slideshow page")
	}

	result := &Gallery{SlideshowURL: slideshowURL}
	index := make(map[int]int)

	gallery.Find(selGalleryItem).Each(func(_ int, item *goquery.Selection) {
		lookText := strings.TrimSpace(item.Find(selLookNumber).First().Text())
		number, total := parseLookCounter(lookText)
		if number == 0 {
			return
		}
		if total > result.TotalLooks {
			result.TotalLooks = total
		}

		img := item.Find(selLookImage).First()
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		alt := img.AttrOr("alt", "")

		i, ok := index[number]
		if !ok {
			i = len(result.Looks)
			result.Looks = append(result.Looks, LookImages{LookNumber: number})
			index[number] = i
		}
		result.Looks[i].Images = append(result.Looks[i].Images, models.Image{
			URL:        src,
			LookNumber: number,
			Type:       models.DetermineImageType(alt),
			AltText:    alt,
			Timestamp:  time.Now(),
		})
	})

	if len(result.Looks) == 0 {
		return nil, errors.NotFound("no looks parsed from slideshow page")
	}
	return result, nil
}

// parseLookCounter parses "Look 5/45" style counters into (number, total).
func parseLookCounter(text string) (int, int) {
	m := lookNumberRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0
	}
	total, err := strconv.Atoi(m[2])
	if err != nil {
		return number, 0
	}
	return number, total
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func resolveURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
