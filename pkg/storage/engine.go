package storage

import (
	"context"

	"runwayscraper/pkg/models"
)

// Engine is the durable, queryable store of the season → designer → look →
// image tree. Implementations guarantee that every write validates against
// current state before mutating it, that a failed write leaves state
// unchanged, and that completed entities are never downgraded except through
// ForceReextract.
type Engine interface {
	// InstanceID identifies the data set this engine reads and writes.
	InstanceID() string

	// UpsertSeason creates the season if absent or merges non-destructively.
	// Returns true when a new season record was created.
	UpsertSeason(ctx context.Context, season models.Season) (bool, error)

	// UpsertDesigner adds or merges a designer under an existing season.
	// Fails with a NotFoundError if the season does not exist.
	UpsertDesigner(ctx context.Context, seasonKey models.SeasonKey, designer models.Designer) (bool, error)

	// UpsertLook adds images to a look, creating it if needed. Idempotent:
	// re-adding the same image URLs is a no-op. Non-additive changes to a
	// completed look are logged and ignored.
	UpsertLook(ctx context.Context, designerURL string, lookNumber int, images []models.Image) (bool, error)

	// MarkSeasonCompleted flips the season's completed flag after validating
	// that every designer under it is completed.
	MarkSeasonCompleted(ctx context.Context, key models.SeasonKey) error

	// MarkDesignerCompleted flips the designer's completed flag after
	// validating the designer completion invariant.
	MarkDesignerCompleted(ctx context.Context, designerURL string) error

	// ForceReextract clears the completion flags of a designer and its looks
	// so they become eligible for re-extraction. The only sanctioned
	// completed → pending transition; always logged.
	ForceReextract(ctx context.Context, designerURL string) error

	// Season returns the stored season, or a NotFoundError.
	Season(ctx context.Context, key models.SeasonKey) (*models.Season, error)

	// Designer returns the stored designer, or a NotFoundError.
	Designer(ctx context.Context, designerURL string) (*models.Designer, error)

	// Snapshot returns a consistent point-in-time copy of the whole tree.
	Snapshot(ctx context.Context) (*models.Snapshot, error)

	// Metadata returns the process-wide metadata record.
	Metadata(ctx context.Context) (*models.Metadata, error)

	// SaveMetadata atomically replaces the metadata record.
	SaveMetadata(ctx context.Context, md models.Metadata) error

	// Close releases backend resources.
	Close() error
}
