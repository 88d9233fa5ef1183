package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/models"
)

const (
	filePrefix      = "runway"
	timestampFormat = "20060102_150405"
)

// JSONEngine stores the whole tree as a single JSON instance file, written
// atomically on every mutation. One file per scraping instance; resuming an
// instance means reopening its file.
type JSONEngine struct {
	dataDir    string
	instanceID string
	path       string
	log        logger.Logger

	mu   sync.RWMutex
	tree models.Snapshot
}

// NewJSONEngine opens the instance's data file, or creates a fresh instance
// when instanceID is empty.
func NewJSONEngine(dataDir, instanceID string, log logger.Logger) (*JSONEngine, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to create data directory %s", dataDir)
	}

	e := &JSONEngine{dataDir: dataDir, log: log}

	if instanceID == "" {
		now := time.Now()
		e.instanceID = newInstanceID(now)
		e.path = filepath.Join(dataDir, e.instanceID+".json")
		// Never clobber an existing instance file.
		for {
			if _, err := os.Stat(e.path); os.IsNotExist(err) {
				break
			}
			e.instanceID = newInstanceID(now)
			e.path = filepath.Join(dataDir, e.instanceID+".json")
		}
		e.tree = models.Snapshot{
			Metadata: models.Metadata{
				CreatedAt:   now,
				LastUpdated: now,
				InstanceID:  e.instanceID,
				OverallProgress: models.OverallProgress{
					StartTime: now,
				},
			},
			Seasons: []models.Season{},
		}
		if err := e.flushLocked(); err != nil {
			return nil, err
		}
		log.InfoWithFields("created storage instance", map[string]interface{}{
			"instance_id": e.instanceID,
			"path":        e.path,
		})
		return e, nil
	}

	e.instanceID = instanceID
	e.path = filepath.Join(dataDir, instanceID+".json")

	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("storage instance %s not found", instanceID)
		}
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to read instance file")
	}
	if err := json.Unmarshal(data, &e.tree); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to decode instance file %s", e.path)
	}

	log.InfoWithFields("opened storage instance", map[string]interface{}{
		"instance_id": e.instanceID,
		"seasons":     len(e.tree.Seasons),
	})
	return e, nil
}

// LatestJSONInstance returns the instance id of the most recently modified
// data file in dataDir, or a NotFoundError when none exist.
func LatestJSONInstance(dataDir string) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound("data directory %s does not exist", dataDir)
		}
		return "", errors.Wrap(errors.ErrorTypeStorage, err, "failed to read data directory")
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = strings.TrimSuffix(name, ".json")
			latestMod = info.ModTime()
		}
	}

	if latest == "" {
		return "", errors.NotFound("no storage instances in %s", dataDir)
	}
	return latest, nil
}

// InstanceID returns the engine's instance id.
func (e *JSONEngine) InstanceID() string {
	return e.instanceID
}

// UpsertSeason creates or non-destructively merges a season.
func (e *JSONEngine) UpsertSeason(ctx context.Context, season models.Season) (bool, error) {
	if err := validateSeason(season); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	created := false
	existing := findSeason(&e.tree, season.Key())
	if existing == nil {
		e.tree.Seasons = append(e.tree.Seasons, newSeason(season))
		created = true
	} else {
		mergeSeason(existing, season)
	}

	if err := e.flushLocked(); err != nil {
		if created {
			e.tree.Seasons = e.tree.Seasons[:len(e.tree.Seasons)-1]
		}
		return false, err
	}
	return created, nil
}

// UpsertDesigner adds or merges a designer under an existing season.
func (e *JSONEngine) UpsertDesigner(ctx context.Context, seasonKey models.SeasonKey, designer models.Designer) (bool, error) {
	if err := validateDesigner(designer); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	season := findSeason(&e.tree, seasonKey)
	if season == nil {
		return false, errors.NotFound("season %s not found", seasonKey)
	}

	created := false
	existing := season.Designer(designer.URL)
	if existing == nil {
		season.Designers = append(season.Designers, newDesigner(designer))
		created = true
	} else {
		mergeDesigner(existing, designer)
	}
	recomputeSeason(season)

	if err := e.flushLocked(); err != nil {
		if created {
			season.Designers = season.Designers[:len(season.Designers)-1]
			recomputeSeason(season)
		}
		return false, err
	}
	return created, nil
}

// UpsertLook folds images into a look under the designer, creating the look
// if needed, then recomputes designer and season completion.
func (e *JSONEngine) UpsertLook(ctx context.Context, designerURL string, lookNumber int, images []models.Image) (bool, error) {
	if lookNumber < 1 {
		return false, errors.Validation("look number must be >= 1, got %d", lookNumber)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	season, designer := findDesigner(&e.tree, designerURL)
	if designer == nil {
		return false, errors.NotFound("designer %s not found", designerURL)
	}

	backup := designer.Clone()

	look := designer.Look(lookNumber)
	if look == nil {
		designer.Looks = append(designer.Looks, models.Look{LookNumber: lookNumber, Images: []models.Image{}})
		look = &designer.Looks[len(designer.Looks)-1]
	}

	wasCompleted := look.Completed
	added := mergeLook(look, lookNumber, images, e.log)
	if added == 0 && look.Completed == wasCompleted {
		// Nothing new and no completion transition, e.g. after a forced
		// re-extraction returned identical content.
		return false, nil
	}

	sortLooks(designer)
	recomputeDesigner(designer)
	recomputeSeason(season)

	if err := e.flushLocked(); err != nil {
		*designer = backup
		recomputeSeason(season)
		return false, err
	}

	e.log.DebugWithFields("look updated", map[string]interface{}{
		"designer":    designer.Name,
		"look_number": lookNumber,
		"new_images":  added,
	})
	return true, nil
}

// MarkSeasonCompleted validates and flips the season completion flag.
func (e *JSONEngine) MarkSeasonCompleted(ctx context.Context, key models.SeasonKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	season := findSeason(&e.tree, key)
	if season == nil {
		return errors.NotFound("season %s not found", key)
	}
	if err := validateSeasonCompletion(*season); err != nil {
		return err
	}

	season.Completed = true
	return e.flushLocked()
}

// MarkDesignerCompleted validates and flips the designer completion flag.
func (e *JSONEngine) MarkDesignerCompleted(ctx context.Context, designerURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	season, designer := findDesigner(&e.tree, designerURL)
	if designer == nil {
		return errors.NotFound("designer %s not found", designerURL)
	}
	if err := validateDesignerCompletion(*designer); err != nil {
		return err
	}

	designer.Completed = true
	recomputeSeason(season)
	return e.flushLocked()
}

// ForceReextract clears completion flags for a designer and its looks.
func (e *JSONEngine) ForceReextract(ctx context.Context, designerURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	season, designer := findDesigner(&e.tree, designerURL)
	if designer == nil {
		return errors.NotFound("designer %s not found", designerURL)
	}

	e.log.WarnWithFields("forced re-extraction requested", map[string]interface{}{
		"designer": designer.Name,
		"url":      designerURL,
	})

	designer.Completed = false
	designer.ExtractedLooks = 0
	for i := range designer.Looks {
		designer.Looks[i].Completed = false
	}
	recomputeSeason(season)
	return e.flushLocked()
}

// Season returns a copy of the stored season.
func (e *JSONEngine) Season(ctx context.Context, key models.SeasonKey) (*models.Season, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	season := findSeason(&e.tree, key)
	if season == nil {
		return nil, errors.NotFound("season %s not found", key)
	}
	out := season.Clone()
	return &out, nil
}

// Designer returns a copy of the stored designer.
func (e *JSONEngine) Designer(ctx context.Context, designerURL string) (*models.Designer, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, designer := findDesigner(&e.tree, designerURL)
	if designer == nil {
		return nil, errors.NotFound("designer %s not found", designerURL)
	}
	out := designer.Clone()
	return &out, nil
}

// Snapshot returns a deep copy of the whole tree.
func (e *JSONEngine) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := e.tree.Clone()
	return &out, nil
}

// Metadata returns the metadata record.
func (e *JSONEngine) Metadata(ctx context.Context) (*models.Metadata, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	md := e.tree.Metadata
	return &md, nil
}

// SaveMetadata atomically replaces the metadata record.
func (e *JSONEngine) SaveMetadata(ctx context.Context, md models.Metadata) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	backup := e.tree.Metadata
	e.tree.Metadata = md
	if err := e.flushLocked(); err != nil {
		e.tree.Metadata = backup
		return err
	}
	return nil
}

// Close is a no-op for the file backend.
func (e *JSONEngine) Close() error {
	return nil
}

// Path returns the instance file path.
func (e *JSONEngine) Path() string {
	return e.path
}

// flushLocked writes the tree to disk atomically: encode to a temp file,
// fsync, then rename over the instance file. Caller holds e.mu.
func (e *JSONEngine) flushLocked() error {
	e.tree.Metadata.LastUpdated = time.Now()

	tempPath := e.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to create temporary file")
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(e.tree); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to encode data")
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to sync data file")
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to close data file")
	}

	if err := os.Rename(tempPath, e.path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to replace data file")
	}

	return nil
}

// findSeason returns a pointer into the tree for the given season key.
func findSeason(tree *models.Snapshot, key models.SeasonKey) *models.Season {
	for i := range tree.Seasons {
		if tree.Seasons[i].Name == key.Name && tree.Seasons[i].Year == key.Year {
			return &tree.Seasons[i]
		}
	}
	return nil
}

// findDesigner returns pointers into the tree for the designer and its season.
func findDesigner(tree *models.Snapshot, designerURL string) (*models.Season, *models.Designer) {
	for i := range tree.Seasons {
		if d := tree.Seasons[i].Designer(designerURL); d != nil {
			return &tree.Seasons[i], d
		}
	}
	return nil, nil
}
