package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"runwayscraper/pkg/config"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/storage"
)

const pointerFile = "checkpoint.json"

// Checkpoint records which storage instance a run was writing to, so an
// interrupted run can be resumed against the same data.
type Checkpoint struct {
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Instance describes a resumable storage instance found on disk.
type Instance struct {
	ID       string
	Path     string
	Modified time.Time
	Latest   bool
}

// Manager reads and writes the checkpoint pointer in the data directory.
type Manager struct {
	dataDir string
	log     logger.Logger
}

// NewManager returns a manager rooted at dataDir.
func NewManager(dataDir string, log logger.Logger) *Manager {
	return &Manager{dataDir: dataDir, log: log}
}

func (m *Manager) pointerPath() string {
	return filepath.Join(m.dataDir, pointerFile)
}

// Save atomically writes the pointer for instanceID.
func (m *Manager) Save(instanceID string) error {
	if instanceID == "" {
		return errors.Validation("checkpoint instance id must not be empty")
	}
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to create data directory")
	}

	cp := Checkpoint{InstanceID: instanceID, Timestamp: time.Now()}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to encode checkpoint")
	}

	tmp, err := os.CreateTemp(m.dataDir, pointerFile+".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to create checkpoint temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to write checkpoint")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to sync checkpoint")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to close checkpoint")
	}
	if err := os.Rename(tmpName, m.pointerPath()); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(errors.ErrorTypeStorage, err, "failed to replace checkpoint")
	}

	m.log.DebugWithFields("checkpoint saved", map[string]interface{}{
		"instance_id": instanceID,
	})
	return nil
}

// Load reads the pointer. Returns a NotFoundError when none has been saved.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.pointerPath())
	if os.IsNotExist(err) {
		return nil, errors.NotFound("no checkpoint found in %s", m.dataDir)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to read checkpoint")
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to decode checkpoint")
	}
	if cp.InstanceID == "" {
		return nil, errors.NotFound("checkpoint in %s holds no instance id", m.dataDir)
	}
	return &cp, nil
}

// Resolve turns a requested instance into a concrete id for the engine.
// An empty request starts fresh; "latest" follows the pointer, falling back
// to the newest instance file for the JSON backend. SQLite and Redis hold a
// single instance, so "latest" resolves to the stored one.
func (m *Manager) Resolve(requested, backend string) (string, error) {
	switch {
	case requested == "":
		return "", nil
	case strings.EqualFold(requested, "latest"):
		cp, err := m.Load()
		if err == nil {
			return cp.InstanceID, nil
		}
		if !errors.IsNotFound(err) {
			return "", err
		}
		if backend == config.BackendJSON {
			id, err := storage.LatestJSONInstance(m.dataDir)
			if err != nil {
				return "", err
			}
			return id, nil
		}
		// Single-instance backends adopt whatever the store holds.
		return "", nil
	default:
		return requested, nil
	}
}

// List enumerates the resumable instances in the data directory, newest
// first, marking the one the pointer currently names.
func (m *Manager) List() ([]Instance, error) {
	entries, err := os.ReadDir(m.dataDir)
	if os.IsNotExist(err) {
		return nil, errors.NotFound("data directory %s does not exist", m.dataDir)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeStorage, err, "failed to read data directory")
	}

	var latest string
	if cp, err := m.Load(); err == nil {
		latest = cp.InstanceID
	}

	var instances []Instance
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "runway_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		instances = append(instances, Instance{
			ID:       id,
			Path:     filepath.Join(m.dataDir, name),
			Modified: info.ModTime(),
			Latest:   id == latest,
		})
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Modified.After(instances[j].Modified)
	})
	return instances, nil
}
