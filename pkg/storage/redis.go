package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"runwayscraper/pkg/config"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/models"
)

// Redis key layout. Entity records are JSON blobs; list keys preserve
// insertion order for iteration.
//
//	runway:metadata                      metadata record
//	runway:seasons                       list of season keys (name:year)
//	runway:season:{name}:{year}          season record, designers stored apart
//	runway:season:{name}:{year}:designers list of designer URLs
//	runway:designer:{url}                designer record, looks stored apart
//	runway:designer:{url}:looks          list of look numbers
//	runway:look:{url}:{n}                look record with images inline
const (
	redisKeyMetadata = "runway:metadata"
	redisKeySeasons  = "runway:seasons"
)

func redisSeasonKey(key models.SeasonKey) string {
	return fmt.Sprintf("runway:season:%s:%s", key.Name, key.Year)
}

func redisDesignersKey(key models.SeasonKey) string {
	return redisSeasonKey(key) + ":designers"
}

func redisDesignerKey(designerURL string) string {
	return "runway:designer:" + designerURL
}

func redisLooksKey(designerURL string) string {
	return redisDesignerKey(designerURL) + ":looks"
}

func redisLookKey(designerURL string, lookNumber int) string {
	return fmt.Sprintf("runway:look:%s:%d", designerURL, lookNumber)
}

// redisDesigner is the stored designer record. Season membership is kept on
// the record so look updates can find the parent season without scanning.
type redisDesigner struct {
	models.Designer
	SeasonName string `json:"season_name"`
	SeasonYear string `json:"season_year"`
}

// RedisEngine stores the tree in Redis. Writes are read-modify-write under a
// process-local keyed lock; the engine assumes a single scraper process per
// database, which the checkpoint instance id enforces.
type RedisEngine struct {
	client     *redis.Client
	instanceID string
	log        logger.Logger
	locks      *keyLock
}

// NewRedisEngine connects to Redis and adopts or creates the stored instance.
func NewRedisEngine(cfg config.RedisConfig, instanceID string, log logger.Logger) (*RedisEngine, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to connect to redis at %s", cfg.Addr())
	}

	e := &RedisEngine{client: client, log: log, locks: newKeyLock()}

	data, err := client.Get(ctx, redisKeyMetadata).Result()
	switch {
	case err == redis.Nil:
		if instanceID != "" {
			client.Close()
			return nil, errors.NotFound("storage instance %s not found in redis", instanceID)
		}
		now := time.Now()
		e.instanceID = newInstanceID(now)
		md := models.Metadata{
			CreatedAt:   now,
			LastUpdated: now,
			InstanceID:  e.instanceID,
			OverallProgress: models.OverallProgress{
				StartTime: now,
			},
		}
		if err := e.setJSON(ctx, redisKeyMetadata, md); err != nil {
			client.Close()
			return nil, err
		}
		log.InfoWithFields("created storage instance", map[string]interface{}{
			"instance_id": e.instanceID,
			"addr":        cfg.Addr(),
		})
	case err != nil:
		client.Close()
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to read metadata")
	default:
		var md models.Metadata
		if err := json.Unmarshal([]byte(data), &md); err != nil {
			client.Close()
			return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to decode metadata")
		}
		if instanceID != "" && instanceID != md.InstanceID {
			client.Close()
			return nil, errors.NotFound("storage instance %s not found (redis holds %s)", instanceID, md.InstanceID)
		}
		e.instanceID = md.InstanceID
		log.InfoWithFields("opened storage instance", map[string]interface{}{
			"instance_id": e.instanceID,
			"addr":        cfg.Addr(),
		})
	}

	return e, nil
}

// InstanceID returns the engine's instance id.
func (e *RedisEngine) InstanceID() string {
	return e.instanceID
}

// Close closes the Redis connection.
func (e *RedisEngine) Close() error {
	return e.client.Close()
}

func (e *RedisEngine) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to encode %s", key)
	}
	if err := e.client.Set(ctx, key, data, 0).Err(); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to write %s", key)
	}
	return nil
}

// getJSON loads key into v. Returns false without error when the key is absent.
func (e *RedisEngine) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := e.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.ErrorTypeStorage, err, "failed to read %s", key)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, errors.Wrap(errors.ErrorTypeStorage, err, "failed to decode %s", key)
	}
	return true, nil
}

// UpsertSeason creates or non-destructively merges a season record.
func (e *RedisEngine) UpsertSeason(ctx context.Context, season models.Season) (bool, error) {
	if err := validateSeason(season); err != nil {
		return false, err
	}

	key := season.Key()
	release := e.locks.acquire("season:" + key.String())
	defer release()

	var existing models.Season
	found, err := e.getJSON(ctx, redisSeasonKey(key), &existing)
	if err != nil {
		return false, err
	}
	if !found {
		record := newSeason(season)
		record.Designers = nil
		if err := e.setJSON(ctx, redisSeasonKey(key), record); err != nil {
			return false, err
		}
		if err := e.client.RPush(ctx, redisKeySeasons, key.String()).Err(); err != nil {
			return false, errors.Wrap(errors.ErrorTypeStorage, err, "failed to index season")
		}
		return true, nil
	}

	mergeSeason(&existing, season)
	existing.Designers = nil
	return false, e.setJSON(ctx, redisSeasonKey(key), existing)
}

// UpsertDesigner adds or merges a designer record under an existing season.
func (e *RedisEngine) UpsertDesigner(ctx context.Context, seasonKey models.SeasonKey, designer models.Designer) (bool, error) {
	if err := validateDesigner(designer); err != nil {
		return false, err
	}

	release := e.locks.acquire("designer:" + designer.URL)
	defer release()

	var season models.Season
	found, err := e.getJSON(ctx, redisSeasonKey(seasonKey), &season)
	if err != nil {
		return false, err
	}
	if !found {
		return false, errors.NotFound("season %s not found", seasonKey)
	}

	var existing redisDesigner
	found, err = e.getJSON(ctx, redisDesignerKey(designer.URL), &existing)
	if err != nil {
		return false, err
	}

	created := false
	if !found {
		existing = redisDesigner{
			Designer:   newDesigner(designer),
			SeasonName: seasonKey.Name,
			SeasonYear: seasonKey.Year,
		}
		if err := e.client.RPush(ctx, redisDesignersKey(seasonKey), designer.URL).Err(); err != nil {
			return false, errors.Wrap(errors.ErrorTypeStorage, err, "failed to index designer")
		}
		created = true
	} else {
		mergeDesigner(&existing.Designer, designer)
	}
	existing.Looks = nil

	if err := e.setJSON(ctx, redisDesignerKey(designer.URL), existing); err != nil {
		return false, err
	}
	if err := e.recomputeSeasonRecord(ctx, seasonKey); err != nil {
		return false, err
	}
	return created, nil
}

// UpsertLook folds images into a look record and recomputes the parents.
func (e *RedisEngine) UpsertLook(ctx context.Context, designerURL string, lookNumber int, images []models.Image) (bool, error) {
	if lookNumber < 1 {
		return false, errors.Validation("look number must be >= 1, got %d", lookNumber)
	}

	release := e.locks.acquire(models.LookKey{DesignerURL: designerURL, LookNumber: lookNumber}.String())
	defer release()

	var designer redisDesigner
	found, err := e.getJSON(ctx, redisDesignerKey(designerURL), &designer)
	if err != nil {
		return false, err
	}
	if !found {
		return false, errors.NotFound("designer %s not found", designerURL)
	}

	var look models.Look
	found, err = e.getJSON(ctx, redisLookKey(designerURL, lookNumber), &look)
	if err != nil {
		return false, err
	}
	if !found {
		look = models.Look{LookNumber: lookNumber}
		if err := e.client.RPush(ctx, redisLooksKey(designerURL), lookNumber).Err(); err != nil {
			return false, errors.Wrap(errors.ErrorTypeStorage, err, "failed to index look")
		}
	}

	wasCompleted := look.Completed
	added := mergeLook(&look, lookNumber, images, e.log)
	if added == 0 && found && look.Completed == wasCompleted {
		// Nothing new and no completion transition, e.g. after a forced
		// re-extraction returned identical content.
		return false, nil
	}

	if err := e.setJSON(ctx, redisLookKey(designerURL, lookNumber), look); err != nil {
		return false, err
	}
	if err := e.recomputeDesignerRecord(ctx, designerURL); err != nil {
		return false, err
	}
	seasonKey := models.SeasonKey{Name: designer.SeasonName, Year: designer.SeasonYear}
	if err := e.recomputeSeasonRecord(ctx, seasonKey); err != nil {
		return false, err
	}
	return added > 0 || look.Completed != wasCompleted, nil
}

// MarkSeasonCompleted validates and flips the season completion flag.
func (e *RedisEngine) MarkSeasonCompleted(ctx context.Context, key models.SeasonKey) error {
	release := e.locks.acquire("season:" + key.String())
	defer release()

	season, err := e.loadSeason(ctx, key)
	if err != nil {
		return err
	}
	if err := validateSeasonCompletion(*season); err != nil {
		return err
	}
	season.Completed = true
	season.Designers = nil
	return e.setJSON(ctx, redisSeasonKey(key), season)
}

// MarkDesignerCompleted validates and flips the designer completion flag.
func (e *RedisEngine) MarkDesignerCompleted(ctx context.Context, designerURL string) error {
	release := e.locks.acquire("designer:" + designerURL)
	defer release()

	designer, err := e.loadDesigner(ctx, designerURL)
	if err != nil {
		return err
	}
	if err := validateDesignerCompletion(designer.Designer); err != nil {
		return err
	}
	designer.Completed = true
	designer.Looks = nil
	if err := e.setJSON(ctx, redisDesignerKey(designerURL), designer); err != nil {
		return err
	}
	return e.recomputeSeasonRecord(ctx, models.SeasonKey{Name: designer.SeasonName, Year: designer.SeasonYear})
}

// ForceReextract clears completion flags on a designer and its looks.
//
// Lock order matches UpsertLook (look before designer before season): each
// look is rewritten under its own lock with the designer lock not yet held,
// so a concurrent look writer can never lose the flag reset or deadlock.
func (e *RedisEngine) ForceReextract(ctx context.Context, designerURL string) error {
	if _, err := e.loadDesigner(ctx, designerURL); err != nil {
		return err
	}

	e.log.WarnWithFields("forced re-extraction requested", map[string]interface{}{
		"url": designerURL,
	})

	numbers, err := e.lookNumbers(ctx, designerURL)
	if err != nil {
		return err
	}
	for _, n := range numbers {
		if err := e.clearLookCompletion(ctx, designerURL, n); err != nil {
			return err
		}
	}

	release := e.locks.acquire("designer:" + designerURL)
	designer, err := e.loadDesigner(ctx, designerURL)
	if err != nil {
		release()
		return err
	}
	designer.Completed = false
	designer.ExtractedLooks = 0
	designer.Looks = nil
	if err := e.setJSON(ctx, redisDesignerKey(designerURL), designer); err != nil {
		release()
		return err
	}
	release()

	return e.recomputeSeasonRecord(ctx, models.SeasonKey{Name: designer.SeasonName, Year: designer.SeasonYear})
}

// clearLookCompletion resets one look's flag under the same per-look lock
// UpsertLook writers hold.
func (e *RedisEngine) clearLookCompletion(ctx context.Context, designerURL string, lookNumber int) error {
	release := e.locks.acquire(models.LookKey{DesignerURL: designerURL, LookNumber: lookNumber}.String())
	defer release()

	var look models.Look
	found, err := e.getJSON(ctx, redisLookKey(designerURL, lookNumber), &look)
	if err != nil || !found || !look.Completed {
		return err
	}
	look.Completed = false
	return e.setJSON(ctx, redisLookKey(designerURL, lookNumber), look)
}

// Season loads a season with its full designer subtree.
func (e *RedisEngine) Season(ctx context.Context, key models.SeasonKey) (*models.Season, error) {
	season, err := e.loadSeason(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := e.loadSeasonDesigners(ctx, season); err != nil {
		return nil, err
	}
	return season, nil
}

// Designer loads a designer with its looks and images.
func (e *RedisEngine) Designer(ctx context.Context, designerURL string) (*models.Designer, error) {
	record, err := e.loadDesigner(ctx, designerURL)
	if err != nil {
		return nil, err
	}
	if err := e.loadDesignerLooks(ctx, &record.Designer); err != nil {
		return nil, err
	}
	return &record.Designer, nil
}

// Snapshot assembles the whole tree. Redis has no cross-key transactions for
// this layout, so the view is eventually consistent while writers run.
func (e *RedisEngine) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	md, err := e.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	snap := models.Snapshot{Metadata: *md}

	keys, err := e.client.LRange(ctx, redisKeySeasons, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to list seasons")
	}
	for _, raw := range keys {
		key, err := models.ParseSeasonKey(raw)
		if err != nil {
			return nil, err
		}
		season, err := e.Season(ctx, key)
		if err != nil {
			return nil, err
		}
		snap.Seasons = append(snap.Seasons, *season)
	}
	return &snap, nil
}

// Metadata returns the metadata record.
func (e *RedisEngine) Metadata(ctx context.Context) (*models.Metadata, error) {
	var md models.Metadata
	found, err := e.getJSON(ctx, redisKeyMetadata, &md)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound("metadata not found")
	}
	return &md, nil
}

// SaveMetadata atomically replaces the metadata record.
func (e *RedisEngine) SaveMetadata(ctx context.Context, md models.Metadata) error {
	release := e.locks.acquire("metadata")
	defer release()
	return e.setJSON(ctx, redisKeyMetadata, md)
}

func (e *RedisEngine) loadSeason(ctx context.Context, key models.SeasonKey) (*models.Season, error) {
	var season models.Season
	found, err := e.getJSON(ctx, redisSeasonKey(key), &season)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound("season %s not found", key)
	}
	return &season, nil
}

func (e *RedisEngine) loadDesigner(ctx context.Context, designerURL string) (*redisDesigner, error) {
	var designer redisDesigner
	found, err := e.getJSON(ctx, redisDesignerKey(designerURL), &designer)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound("designer %s not found", designerURL)
	}
	return &designer, nil
}

func (e *RedisEngine) lookNumbers(ctx context.Context, designerURL string) ([]int, error) {
	raw, err := e.client.LRange(ctx, redisLooksKey(designerURL), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to list looks")
	}
	numbers := make([]int, 0, len(raw))
	for _, s := range raw {
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return nil, errors.Storage("malformed look index entry %q for %s", s, designerURL)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func (e *RedisEngine) loadDesignerLooks(ctx context.Context, d *models.Designer) error {
	numbers, err := e.lookNumbers(ctx, d.URL)
	if err != nil {
		return err
	}
	for _, n := range numbers {
		var look models.Look
		found, err := e.getJSON(ctx, redisLookKey(d.URL, n), &look)
		if err != nil {
			return err
		}
		if found {
			d.Looks = append(d.Looks, look)
		}
	}
	sortLooks(d)
	return nil
}

func (e *RedisEngine) loadSeasonDesigners(ctx context.Context, s *models.Season) error {
	urls, err := e.client.LRange(ctx, redisDesignersKey(s.Key()), 0, -1).Result()
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to list designers")
	}
	for _, url := range urls {
		record, err := e.loadDesigner(ctx, url)
		if err != nil {
			return err
		}
		if err := e.loadDesignerLooks(ctx, &record.Designer); err != nil {
			return err
		}
		s.Designers = append(s.Designers, record.Designer)
	}
	return nil
}

// recomputeDesignerRecord re-derives extracted_looks and completion from the
// stored looks, mirroring the in-memory recompute rules.
func (e *RedisEngine) recomputeDesignerRecord(ctx context.Context, designerURL string) error {
	release := e.locks.acquire("designer:" + designerURL)
	defer release()

	designer, err := e.loadDesigner(ctx, designerURL)
	if err != nil {
		return err
	}
	if err := e.loadDesignerLooks(ctx, &designer.Designer); err != nil {
		return err
	}
	recomputeDesigner(&designer.Designer)
	designer.Looks = nil
	return e.setJSON(ctx, redisDesignerKey(designerURL), designer)
}

// recomputeSeasonRecord re-derives the season's designer counters.
func (e *RedisEngine) recomputeSeasonRecord(ctx context.Context, key models.SeasonKey) error {
	release := e.locks.acquire("season:" + key.String())
	defer release()

	season, err := e.loadSeason(ctx, key)
	if err != nil {
		return err
	}

	urls, err := e.client.LRange(ctx, redisDesignersKey(key), 0, -1).Result()
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to list designers")
	}
	season.Designers = season.Designers[:0]
	for _, url := range urls {
		record, err := e.loadDesigner(ctx, url)
		if err != nil {
			return err
		}
		season.Designers = append(season.Designers, record.Designer)
	}
	recomputeSeason(season)
	season.Designers = nil
	return e.setJSON(ctx, redisSeasonKey(key), season)
}
