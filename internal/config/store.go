package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	serr "shaperd/internal/errors"
)

const backupStampLayout = "20060102-150405"

// Store persists the configuration snapshot as a JSON file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore constructs a Store for the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the on-disk location of the config file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot from disk. A missing, corrupt or unreadable file
// falls back to the built-in defaults; this is logged, never fatal.
func (s *Store) Load() Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) && s.logger != nil {
			s.logger.Warn("config unreadable, using defaults",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
		return DefaultSnapshot()
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		if s.logger != nil {
			s.logger.Warn("config corrupt, using defaults",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
		return DefaultSnapshot()
	}

	snap.ApplyDefaults()
	return snap
}

// Save atomically writes the snapshot to disk (tmp file then rename).
func (s *Store) Save(snap Snapshot) error {
	snap.Version = Version

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return serr.Wrap(serr.KindConfigLoad, err, "save_config", serr.ErrorContext{Path: s.path})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return serr.Wrap(serr.KindConfigLoad, err, "save_config", serr.ErrorContext{Path: s.path})
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return serr.Wrap(serr.KindConfigLoad, err, "save_config", serr.ErrorContext{Path: tmp})
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return serr.Wrap(serr.KindConfigLoad, err, "save_config", serr.ErrorContext{Path: s.path})
	}
	return nil
}

// Export writes the snapshot to an arbitrary path in the same JSON schema.
func (s *Store) Export(path string, snap Snapshot) error {
	snap.Version = Version
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return serr.Wrap(serr.KindConfigLoad, err, "export_config", serr.ErrorContext{Path: path})
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return serr.Wrap(serr.KindConfigLoad, err, "export_config", serr.ErrorContext{Path: path})
	}
	return nil
}

// Import reads a snapshot from path, validates it as a whole, and only then
// backs up the current file and replaces it. Validation failure leaves both
// the on-disk config and the returned state untouched and takes no backup.
// The backup path is returned for the user notification.
func (s *Store) Import(path string) (Snapshot, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, "", serr.Wrap(serr.KindImportValidation, err, "import_config",
			serr.ErrorContext{Path: path})
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, "", serr.Wrap(serr.KindImportValidation, err, "import_config",
			serr.ErrorContext{Path: path})
	}

	// Validate the raw snapshot before any repair: a dangling selection or
	// mapping must reject the import, not get silently fixed up.
	if err := snap.Validate(); err != nil {
		return Snapshot{}, "", err
	}
	snap.ApplyDefaults()

	backupPath, err := s.backup()
	if err != nil {
		return Snapshot{}, "", serr.Wrap(serr.KindConfigLoad, err, "import_config",
			serr.ErrorContext{Path: s.path})
	}

	if err := s.Save(snap); err != nil {
		return Snapshot{}, "", err
	}

	if s.logger != nil {
		s.logger.Info("config imported",
			slog.String("from", path),
			slog.String("backup", backupPath))
	}
	return snap, backupPath, nil
}

// backup copies the current config file aside with a timestamp suffix.
// Nothing is written when no config file exists yet.
func (s *Store) backup() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	stamp := time.Now().Format(backupStampLayout)
	backupPath := fmt.Sprintf("%s.bak-%s", s.path, stamp)
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}
	return backupPath, nil
}
