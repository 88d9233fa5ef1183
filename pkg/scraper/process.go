package scraper

import (
	"context"

	"runwayscraper/internal/scheduler"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/models"
	"runwayscraper/pkg/pageclient"
	"runwayscraper/pkg/retry"
	"runwayscraper/pkg/storage"
)

// unitProcessor does the per-unit work inside the pool's workers. It only
// touches the engine and the worker's own client, so any number of copies of
// its methods can run concurrently.
type unitProcessor struct {
	engine   storage.Engine
	retryCfg *retry.Config
	log      logger.Logger
}

func (p *unitProcessor) retry(ctx context.Context) *retry.Config {
	cfg := *p.retryCfg
	cfg.Context = ctx
	return &cfg
}

// skip reports whether the unit's target is already complete in storage.
func (p *unitProcessor) skip(ctx context.Context, unit scheduler.Unit) (bool, error) {
	switch unit.Type {
	case scheduler.UnitTypeSeason:
		season, err := p.engine.Season(ctx, unit.SeasonKey)
		if errors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return season.Completed, nil

	case scheduler.UnitTypeDesigner:
		designer, err := p.engine.Designer(ctx, unit.DesignerURL)
		if errors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return designer.Completed, nil

	case scheduler.UnitTypeLook:
		designer, err := p.engine.Designer(ctx, unit.DesignerURL)
		if errors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if designer.Completed {
			return true, nil
		}
		look := designer.Look(unit.LookNumber)
		return look != nil && look.Completed, nil

	default:
		return false, errors.Validation("unknown unit type %q", unit.Type)
	}
}

// process dispatches the unit to its handler.
func (p *unitProcessor) process(ctx context.Context, client pageclient.PageClient, unit scheduler.Unit) error {
	switch unit.Type {
	case scheduler.UnitTypeSeason:
		return p.processSeason(ctx, client, unit)
	case scheduler.UnitTypeDesigner:
		return p.processDesigner(ctx, client, unit.SeasonKey, unit.DesignerURL, "")
	case scheduler.UnitTypeLook:
		return p.processLook(ctx, client, unit)
	default:
		return errors.Validation("unknown unit type %q", unit.Type)
	}
}

// processSeason extracts every designer in the season. Designers fail
// independently; the unit fails only if at least one of them did.
func (p *unitProcessor) processSeason(ctx context.Context, client pageclient.PageClient, unit scheduler.Unit) error {
	refs, err := retry.DoWithResult(func() ([]pageclient.DesignerRef, error) {
		return client.FetchDesigners(ctx, unit.SeasonURL)
	}, p.retry(ctx))
	if err != nil {
		return err
	}

	var failed int
	var firstErr error
	for _, ref := range refs {
		designer := models.Designer{Name: ref.Name, URL: ref.URL}
		if _, err := p.engine.UpsertDesigner(ctx, unit.SeasonKey, designer); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := p.processDesigner(ctx, client, unit.SeasonKey, ref.URL, ref.Name); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if failed > 0 {
		return errors.Wrap(errors.TypeOf(firstErr), firstErr,
			"%d of %d designers failed in %s", failed, len(refs), unit.SeasonKey)
	}
	return nil
}

// processDesigner fetches the designer's gallery and stores every look.
func (p *unitProcessor) processDesigner(
	ctx context.Context,
	client pageclient.PageClient,
	key models.SeasonKey,
	designerURL, name string,
) error {
	if name == "" {
		stored, err := p.engine.Designer(ctx, designerURL)
		if err != nil {
			return err
		}
		name = stored.Name
	}

	gallery, err := retry.DoWithResult(func() (*pageclient.Gallery, error) {
		return client.FetchLooks(ctx, designerURL)
	}, p.retry(ctx))
	if err != nil {
		return err
	}

	designer := models.Designer{
		Name:         name,
		URL:          designerURL,
		SlideshowURL: gallery.SlideshowURL,
		TotalLooks:   gallery.TotalLooks,
	}
	if _, err := p.engine.UpsertDesigner(ctx, key, designer); err != nil {
		return err
	}

	for _, look := range gallery.Looks {
		look := look
		err := retry.Do(func() error {
			_, err := p.engine.UpsertLook(ctx, designerURL, look.LookNumber, look.Images)
			return err
		}, p.retry(ctx))
		if err != nil {
			return err
		}
	}

	p.markDesignerIfDone(ctx, designerURL)

	logger.LogExtraction(designerURL, "designer", true, nil)
	return nil
}

// processLook stores one look's images, refetching the gallery through the
// worker's own client.
func (p *unitProcessor) processLook(ctx context.Context, client pageclient.PageClient, unit scheduler.Unit) error {
	gallery, err := retry.DoWithResult(func() (*pageclient.Gallery, error) {
		return client.FetchLooks(ctx, unit.DesignerURL)
	}, p.retry(ctx))
	if err != nil {
		return err
	}

	var images []models.Image
	for _, look := range gallery.Looks {
		if look.LookNumber == unit.LookNumber {
			images = look.Images
			break
		}
	}
	if len(images) == 0 {
		return errors.NotFound("look %d not present in gallery for %s", unit.LookNumber, unit.DesignerURL)
	}

	err = retry.Do(func() error {
		_, err := p.engine.UpsertLook(ctx, unit.DesignerURL, unit.LookNumber, images)
		return err
	}, p.retry(ctx))
	if err != nil {
		return err
	}

	p.markDesignerIfDone(ctx, unit.DesignerURL)
	return nil
}

// markDesignerIfDone flips the completion flag once all looks are stored. A
// validation error just means the designer has looks outstanding.
func (p *unitProcessor) markDesignerIfDone(ctx context.Context, designerURL string) {
	designer, err := p.engine.Designer(ctx, designerURL)
	if err != nil || designer.Completed || !designer.IsComplete() {
		return
	}
	if err := p.engine.MarkDesignerCompleted(ctx, designerURL); err != nil && !errors.IsValidation(err) {
		p.log.WithError(err).WithField("designer", designerURL).
			Warn("failed to mark designer completed")
	}
}
