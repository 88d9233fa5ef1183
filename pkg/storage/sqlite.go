package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	instance_id TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS seasons (
	name TEXT NOT NULL,
	year TEXT NOT NULL,
	url TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	total_designers INTEGER NOT NULL DEFAULT 0,
	completed_designers INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL,
	PRIMARY KEY (name, year)
);
CREATE TABLE IF NOT EXISTS designers (
	url TEXT PRIMARY KEY,
	season_name TEXT NOT NULL,
	season_year TEXT NOT NULL,
	name TEXT NOT NULL,
	slideshow_url TEXT NOT NULL DEFAULT '',
	total_looks INTEGER NOT NULL DEFAULT 0,
	extracted_looks INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS looks (
	designer_url TEXT NOT NULL,
	look_number INTEGER NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (designer_url, look_number)
);
CREATE TABLE IF NOT EXISTS images (
	designer_url TEXT NOT NULL,
	look_number INTEGER NOT NULL,
	url TEXT NOT NULL,
	type TEXT NOT NULL,
	alt_text TEXT NOT NULL DEFAULT '',
	taken_at TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (designer_url, look_number, url)
);
CREATE INDEX IF NOT EXISTS idx_designers_season ON designers(season_name, season_year, position);
CREATE INDEX IF NOT EXISTS idx_images_look ON images(designer_url, look_number, position);
`

// SQLiteEngine stores the tree in a SQLite database. Per-entity writes run in
// their own transaction under a keyed lock, so unrelated entities commit in
// parallel while one (season, designer, look) target never has two writers.
type SQLiteEngine struct {
	db         *sql.DB
	instanceID string
	log        logger.Logger
	locks      *keyLock
}

// NewSQLiteEngine opens (or creates) the database at path. An empty
// instanceID adopts the stored instance, or creates a fresh one when the
// database is new; a non-empty instanceID must match the stored instance.
func NewSQLiteEngine(path, instanceID string, log logger.Logger) (*SQLiteEngine, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to open database")
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to set pragma")
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to create schema")
	}

	e := &SQLiteEngine{db: db, log: log, locks: newKeyLock()}

	var stored string
	var metaJSON string
	err = db.QueryRow("SELECT instance_id, data FROM meta WHERE id = 1").Scan(&stored, &metaJSON)
	switch {
	case err == sql.ErrNoRows:
		if instanceID != "" {
			db.Close()
			return nil, errors.NotFound("storage instance %s not found in %s", instanceID, path)
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
		encoded, err := json.Marshal(md)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to encode metadata")
		}
		if _, err := db.Exec("INSERT INTO meta (id, instance_id, data) VALUES (1, ?, ?)", e.instanceID, string(encoded)); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to initialize metadata")
		}
		log.InfoWithFields("created storage instance", map[string]interface{}{
			"instance_id": e.instanceID,
			"path":        path,
		})
	case err != nil:
		db.Close()
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to read metadata")
	default:
		if instanceID != "" && instanceID != stored {
			db.Close()
			return nil, errors.NotFound("storage instance %s not found (database holds %s)", instanceID, stored)
		}
		e.instanceID = stored
		log.InfoWithFields("opened storage instance", map[string]interface{}{
			"instance_id": e.instanceID,
			"path":        path,
		})
	}

	return e, nil
}

// InstanceID returns the engine's instance id.
func (e *SQLiteEngine) InstanceID() string {
	return e.instanceID
}

// Close closes the database.
func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

// runTx executes fn inside a transaction, rolling back on error.
func (e *SQLiteEngine) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to commit transaction")
	}
	return nil
}

// UpsertSeason creates or non-destructively merges a season row.
func (e *SQLiteEngine) UpsertSeason(ctx context.Context, season models.Season) (bool, error) {
	if err := validateSeason(season); err != nil {
		return false, err
	}

	release := e.locks.acquire("season:" + season.Key().String())
	defer release()

	created := false
	err := e.runTx(ctx, func(tx *sql.Tx) error {
		var url string
		err := tx.QueryRow("SELECT url FROM seasons WHERE name = ? AND year = ?", season.Name, season.Year).Scan(&url)
		switch {
		case err == sql.ErrNoRows:
			var position int
			if err := tx.QueryRow("SELECT COALESCE(MAX(position), -1) + 1 FROM seasons").Scan(&position); err != nil {
				return errors.Wrap(errors.ErrorTypeStorage, err, "failed to allocate season position")
			}
			if _, err := tx.Exec(
				"INSERT INTO seasons (name, year, url, position) VALUES (?, ?, ?, ?)",
				season.Name, season.Year, season.URL, position,
			); err != nil {
				return errors.Wrap(errors.ErrorTypeStorage, err, "failed to insert season")
			}
			created = true
			return nil
		case err != nil:
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to load season")
		default:
			if season.URL != "" && season.URL != url {
				if _, err := tx.Exec(
					"UPDATE seasons SET url = ? WHERE name = ? AND year = ?",
					season.URL, season.Name, season.Year,
				); err != nil {
					return errors.Wrap(errors.ErrorTypeStorage, err, "failed to update season")
				}
			}
			return nil
		}
	})
	return created, err
}

// UpsertDesigner adds or merges a designer row under an existing season.
func (e *SQLiteEngine) UpsertDesigner(ctx context.Context, seasonKey models.SeasonKey, designer models.Designer) (bool, error) {
	if err := validateDesigner(designer); err != nil {
		return false, err
	}

	release := e.locks.acquire("designer:" + designer.URL)
	defer release()

	created := false
	err := e.runTx(ctx, func(tx *sql.Tx) error {
		var seasonURL string
		err := tx.QueryRow("SELECT url FROM seasons WHERE name = ? AND year = ?", seasonKey.Name, seasonKey.Year).Scan(&seasonURL)
		if err == sql.ErrNoRows {
			return errors.NotFound("season %s not found", seasonKey)
		}
		if err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to load season")
		}

		var existing models.Designer
		err = tx.QueryRow(
			"SELECT name, slideshow_url, total_looks FROM designers WHERE url = ?", designer.URL,
		).Scan(&existing.Name, &existing.SlideshowURL, &existing.TotalLooks)
		switch {
		case err == sql.ErrNoRows:
			var position int
			if err := tx.QueryRow(
				"SELECT COALESCE(MAX(position), -1) + 1 FROM designers WHERE season_name = ? AND season_year = ?",
				seasonKey.Name, seasonKey.Year,
			).Scan(&position); err != nil {
				return errors.Wrap(errors.ErrorTypeStorage, err, "failed to allocate designer position")
			}
			if _, err := tx.Exec(
				`INSERT INTO designers (url, season_name, season_year, name, slideshow_url, total_looks, position)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				designer.URL, seasonKey.Name, seasonKey.Year, designer.Name,
				designer.SlideshowURL, designer.TotalLooks, position,
			); err != nil {
				return errors.Wrap(errors.ErrorTypeStorage, err, "failed to insert designer")
			}
			created = true
		case err != nil:
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to load designer")
		default:
			merged := existing
			mergeDesigner(&merged, designer)
			if _, err := tx.Exec(
				"UPDATE designers SET name = ?, slideshow_url = ?, total_looks = ? WHERE url = ?",
				merged.Name, merged.SlideshowURL, merged.TotalLooks, designer.URL,
			); err != nil {
				return errors.Wrap(errors.ErrorTypeStorage, err, "failed to update designer")
			}
		}

		return e.recomputeSeasonTx(tx, seasonKey)
	})
	return created, err
}

// UpsertLook folds images into a look row, then recomputes the designer and
// season counters inside the same transaction.
func (e *SQLiteEngine) UpsertLook(ctx context.Context, designerURL string, lookNumber int, images []models.Image) (bool, error) {
	if lookNumber < 1 {
		return false, errors.Validation("look number must be >= 1, got %d", lookNumber)
	}

	release := e.locks.acquire(models.LookKey{DesignerURL: designerURL, LookNumber: lookNumber}.String())
	defer release()

	changed := false
	err := e.runTx(ctx, func(tx *sql.Tx) error {
		var seasonName, seasonYear string
		err := tx.QueryRow(
			"SELECT season_name, season_year FROM designers WHERE url = ?", designerURL,
		).Scan(&seasonName, &seasonYear)
		if err == sql.ErrNoRows {
			return errors.NotFound("designer %s not found", designerURL)
		}
		if err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to load designer")
		}

		look, err := e.loadLookTx(tx, designerURL, lookNumber)
		if err != nil {
			return err
		}
		if look == nil {
			if _, err := tx.Exec(
				"INSERT INTO looks (designer_url, look_number) VALUES (?, ?)",
				designerURL, lookNumber,
			); err != nil {
				return errors.Wrap(errors.ErrorTypeStorage, err, "failed to insert look")
			}
			look = &models.Look{LookNumber: lookNumber}
		}

		before := len(look.Images)
		wasCompleted := look.Completed
		added := mergeLook(look, lookNumber, images, e.log)
		if added == 0 && look.Completed == wasCompleted {
			// Nothing new and no completion transition, e.g. after a
			// forced re-extraction returned identical content.
			return nil
		}
		changed = true

		for i, img := range look.Images[before:] {
			if _, err := tx.Exec(
				`INSERT INTO images (designer_url, look_number, url, type, alt_text, taken_at, position)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				designerURL, lookNumber, img.URL, string(img.Type), img.AltText,
				img.Timestamp.Format(time.RFC3339Nano), before+i,
			); err != nil {
				return errors.Wrap(errors.ErrorTypeStorage, err, "failed to insert image")
			}
		}

		completed := 0
		if look.Completed {
			completed = 1
		}
		if _, err := tx.Exec(
			"UPDATE looks SET completed = ? WHERE designer_url = ? AND look_number = ?",
			completed, designerURL, lookNumber,
		); err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to update look")
		}

		if err := e.recomputeDesignerTx(tx, designerURL); err != nil {
			return err
		}
		return e.recomputeSeasonTx(tx, models.SeasonKey{Name: seasonName, Year: seasonYear})
	})
	return changed, err
}

// MarkSeasonCompleted validates and flips the season completion flag.
func (e *SQLiteEngine) MarkSeasonCompleted(ctx context.Context, key models.SeasonKey) error {
	release := e.locks.acquire("season:" + key.String())
	defer release()

	return e.runTx(ctx, func(tx *sql.Tx) error {
		season, err := e.loadSeasonRowTx(tx, key)
		if err != nil {
			return err
		}
		if err := validateSeasonCompletion(*season); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE seasons SET completed = 1 WHERE name = ? AND year = ?", key.Name, key.Year,
		); err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to mark season completed")
		}
		return nil
	})
}

// MarkDesignerCompleted validates and flips the designer completion flag.
func (e *SQLiteEngine) MarkDesignerCompleted(ctx context.Context, designerURL string) error {
	release := e.locks.acquire("designer:" + designerURL)
	defer release()

	return e.runTx(ctx, func(tx *sql.Tx) error {
		designer, seasonKey, err := e.loadDesignerTx(tx, designerURL)
		if err != nil {
			return err
		}
		if err := validateDesignerCompletion(*designer); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE designers SET completed = 1 WHERE url = ?", designerURL); err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to mark designer completed")
		}
		return e.recomputeSeasonTx(tx, seasonKey)
	})
}

// ForceReextract clears completion flags for a designer and its looks.
func (e *SQLiteEngine) ForceReextract(ctx context.Context, designerURL string) error {
	release := e.locks.acquire("designer:" + designerURL)
	defer release()

	return e.runTx(ctx, func(tx *sql.Tx) error {
		_, seasonKey, err := e.loadDesignerTx(tx, designerURL)
		if err != nil {
			return err
		}

		e.log.WarnWithFields("forced re-extraction requested", map[string]interface{}{
			"url": designerURL,
		})

		if _, err := tx.Exec(
			"UPDATE designers SET completed = 0, extracted_looks = 0 WHERE url = ?", designerURL,
		); err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to reset designer")
		}
		if _, err := tx.Exec(
			"UPDATE looks SET completed = 0 WHERE designer_url = ?", designerURL,
		); err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to reset looks")
		}
		return e.recomputeSeasonTx(tx, seasonKey)
	})
}

// Season loads a season with its full designer subtree.
func (e *SQLiteEngine) Season(ctx context.Context, key models.SeasonKey) (*models.Season, error) {
	var season *models.Season
	err := e.runTx(ctx, func(tx *sql.Tx) error {
		s, err := e.loadSeasonRowTx(tx, key)
		if err != nil {
			return err
		}
		if err := e.loadSeasonDesignersTx(tx, s); err != nil {
			return err
		}
		season = s
		return nil
	})
	return season, err
}

// Designer loads a designer with its looks and images.
func (e *SQLiteEngine) Designer(ctx context.Context, designerURL string) (*models.Designer, error) {
	var designer *models.Designer
	err := e.runTx(ctx, func(tx *sql.Tx) error {
		d, _, err := e.loadDesignerTx(tx, designerURL)
		if err != nil {
			return err
		}
		if err := e.loadDesignerLooksTx(tx, d); err != nil {
			return err
		}
		designer = d
		return nil
	})
	return designer, err
}

// Snapshot loads the whole tree in one transaction for a consistent view.
func (e *SQLiteEngine) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := e.runTx(ctx, func(tx *sql.Tx) error {
		md, err := e.loadMetadataTx(tx)
		if err != nil {
			return err
		}
		snap.Metadata = *md

		rows, err := tx.Query(
			`SELECT name, year, url, completed, total_designers, completed_designers
			 FROM seasons ORDER BY position`,
		)
		if err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to query seasons")
		}
		defer rows.Close()

		for rows.Next() {
			var s models.Season
			var completed int
			if err := rows.Scan(&s.Name, &s.Year, &s.URL, &completed, &s.TotalDesigners, &s.CompletedDesigners); err != nil {
				return errors.Wrap(errors.ErrorTypeStorage, err, "failed to scan season")
			}
			s.Completed = completed != 0
			snap.Seasons = append(snap.Seasons, s)
		}
		if err := rows.Err(); err != nil {
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to iterate seasons")
		}

		for i := range snap.Seasons {
			if err := e.loadSeasonDesignersTx(tx, &snap.Seasons[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Metadata returns the metadata record.
func (e *SQLiteEngine) Metadata(ctx context.Context) (*models.Metadata, error) {
	var md *models.Metadata
	err := e.runTx(ctx, func(tx *sql.Tx) error {
		m, err := e.loadMetadataTx(tx)
		if err != nil {
			return err
		}
		md = m
		return nil
	})
	return md, err
}

// SaveMetadata atomically replaces the metadata record.
func (e *SQLiteEngine) SaveMetadata(ctx context.Context, md models.Metadata) error {
	release := e.locks.acquire("metadata")
	defer release()

	encoded, err := json.Marshal(md)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to encode metadata")
	}
	_, err = e.db.ExecContext(ctx, "UPDATE meta SET data = ? WHERE id = 1", string(encoded))
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to save metadata")
	}
	return nil
}

func (e *SQLiteEngine) loadMetadataTx(tx *sql.Tx) (*models.Metadata, error) {
	var data string
	if err := tx.QueryRow("SELECT data FROM meta WHERE id = 1").Scan(&data); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to load metadata")
	}
	var md models.Metadata
	if err := json.Unmarshal([]byte(data), &md); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to decode metadata")
	}
	return &md, nil
}

func (e *SQLiteEngine) loadSeasonRowTx(tx *sql.Tx, key models.SeasonKey) (*models.Season, error) {
	var s models.Season
	var completed int
	err := tx.QueryRow(
		`SELECT name, year, url, completed, total_designers, completed_designers
		 FROM seasons WHERE name = ? AND year = ?`, key.Name, key.Year,
	).Scan(&s.Name, &s.Year, &s.URL, &completed, &s.TotalDesigners, &s.CompletedDesigners)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("season %s not found", key)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to load season")
	}
	s.Completed = completed != 0
	return &s, nil
}

func (e *SQLiteEngine) loadDesignerTx(tx *sql.Tx, designerURL string) (*models.Designer, models.SeasonKey, error) {
	var d models.Designer
	var key models.SeasonKey
	var completed int
	err := tx.QueryRow(
		`SELECT url, season_name, season_year, name, slideshow_url, total_looks, extracted_looks, completed
		 FROM designers WHERE url = ?`, designerURL,
	).Scan(&d.URL, &key.Name, &key.Year, &d.Name, &d.SlideshowURL, &d.TotalLooks, &d.ExtractedLooks, &completed)
	if err == sql.ErrNoRows {
		return nil, key, errors.NotFound("designer %s not found", designerURL)
	}
	if err != nil {
		return nil, key, errors.Wrap(errors.ErrorTypeStorage, err, "failed to load designer")
	}
	d.Completed = completed != 0
	return &d, key, nil
}

func (e *SQLiteEngine) loadLookTx(tx *sql.Tx, designerURL string, lookNumber int) (*models.Look, error) {
	var look models.Look
	var completed int
	err := tx.QueryRow(
		"SELECT look_number, completed FROM looks WHERE designer_url = ? AND look_number = ?",
		designerURL, lookNumber,
	).Scan(&look.LookNumber, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to load look")
	}
	look.Completed = completed != 0

	rows, err := tx.Query(
		`SELECT url, type, alt_text, taken_at FROM images
		 WHERE designer_url = ? AND look_number = ? ORDER BY position`,
		designerURL, lookNumber,
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to query images")
	}
	defer rows.Close()

	for rows.Next() {
		var img models.Image
		var imgType, takenAt string
		if err := rows.Scan(&img.URL, &imgType, &img.AltText, &takenAt); err != nil {
			return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to scan image")
		}
		img.Type = models.ImageType(imgType)
		img.LookNumber = lookNumber
		if ts, err := time.Parse(time.RFC3339Nano, takenAt); err == nil {
			img.Timestamp = ts
		}
		look.Images = append(look.Images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to iterate images")
	}
	return &look, nil
}

func (e *SQLiteEngine) loadDesignerLooksTx(tx *sql.Tx, d *models.Designer) error {
	rows, err := tx.Query(
		"SELECT look_number FROM looks WHERE designer_url = ? ORDER BY look_number", d.URL,
	)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to query looks")
	}
	var numbers []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to scan look")
		}
		numbers = append(numbers, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to iterate looks")
	}

	for _, n := range numbers {
		look, err := e.loadLookTx(tx, d.URL, n)
		if err != nil {
			return err
		}
		if look != nil {
			d.Looks = append(d.Looks, *look)
		}
	}
	return nil
}

func (e *SQLiteEngine) loadSeasonDesignersTx(tx *sql.Tx, s *models.Season) error {
	rows, err := tx.Query(
		`SELECT url, name, slideshow_url, total_looks, extracted_looks, completed
		 FROM designers WHERE season_name = ? AND season_year = ? ORDER BY position`,
		s.Name, s.Year,
	)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to query designers")
	}
	for rows.Next() {
		var d models.Designer
		var completed int
		if err := rows.Scan(&d.URL, &d.Name, &d.SlideshowURL, &d.TotalLooks, &d.ExtractedLooks, &completed); err != nil {
			rows.Close()
			return errors.Wrap(errors.ErrorTypeStorage, err, "failed to scan designer")
		}
		d.Completed = completed != 0
		s.Designers = append(s.Designers, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to iterate designers")
	}

	for i := range s.Designers {
		if err := e.loadDesignerLooksTx(tx, &s.Designers[i]); err != nil {
			return err
		}
	}
	return nil
}

// recomputeDesignerTx re-derives extracted_looks and completion from stored
// looks, mirroring the in-memory recompute rules.
func (e *SQLiteEngine) recomputeDesignerTx(tx *sql.Tx, designerURL string) error {
	var extracted int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM looks l
		 WHERE l.designer_url = ? AND l.completed = 1
		 AND EXISTS (SELECT 1 FROM images i WHERE i.designer_url = l.designer_url AND i.look_number = l.look_number)`,
		designerURL,
	).Scan(&extracted); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to count extracted looks")
	}

	if _, err := tx.Exec(
		`UPDATE designers SET extracted_looks = ?,
		 completed = CASE WHEN total_looks > 0 AND ? >= total_looks THEN 1 ELSE 0 END
		 WHERE url = ?`,
		extracted, extracted, designerURL,
	); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to recompute designer")
	}
	return nil
}

// recomputeSeasonTx re-derives the season's designer counters.
func (e *SQLiteEngine) recomputeSeasonTx(tx *sql.Tx, key models.SeasonKey) error {
	var total, completed int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM designers WHERE season_name = ? AND season_year = ?",
		key.Name, key.Year,
	).Scan(&total); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to count designers")
	}
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM designers
		 WHERE season_name = ? AND season_year = ? AND completed = 1 AND total_looks > 0`,
		key.Name, key.Year,
	).Scan(&completed); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to count completed designers")
	}

	if _, err := tx.Exec(
		`UPDATE seasons SET total_designers = ?, completed_designers = ?,
		 completed = CASE WHEN ? > 0 AND ? >= ? THEN 1 ELSE 0 END
		 WHERE name = ? AND year = ?`,
		total, completed, total, completed, total, key.Name, key.Year,
	); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to recompute season")
	}
	return nil
}
