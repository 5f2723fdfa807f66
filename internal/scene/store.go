package scene

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store owns the canonical document's file mirror. Load self-heals a
// missing or unusable file by writing the default document; Save is a
// whole-document replacement and records the wall-clock write time so the
// file watcher can recognize the store's own effect.
//
// Concurrent Save calls are not sequenced against each other beyond file
// integrity: the last caller to complete wins and silently discards the
// earlier write. That is the system's documented conflict policy, not a gap.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	lastSave time.Time
}

// NewStore creates a store for the given backing file path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("scene: backing file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger.With("component", "store"),
	}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// LastSave returns the wall-clock time of the most recent Save, or the zero
// time when the store has not written yet.
func (s *Store) LastSave() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave
}

// Load reads the backing file. An absent, unparseable, or schema-mismatched
// file is replaced with the default empty document, which is also returned.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("scene file missing, initializing", "path", s.path)
		} else {
			s.logger.Warn("scene file unreadable, resetting", "path", s.path, "error", err)
		}
		// Self-heal rather than fail: only an unwritable file surfaces an
		// error, via the save inside heal.
		return s.heal()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("scene file unparseable, resetting", "path", s.path, "error", err)
		return s.heal()
	}
	if !doc.Valid() {
		s.logger.Warn("scene file schema mismatch, resetting",
			"path", s.path, "kind", doc.Kind, "schema_version", doc.SchemaVersion)
		return s.heal()
	}
	doc.Normalize()
	return &doc, nil
}

// Save serializes the document, pretty-printed for human diffability, and
// replaces the backing file via a temp-file rename so a watcher never
// observes a half-written document.
func (s *Store) Save(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("scene: document is required")
	}
	doc.Normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("scene: encode document: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.replaceFile(data); err != nil {
		return fmt.Errorf("scene: write %s: %w", s.path, err)
	}
	s.lastSave = time.Now()
	return nil
}

func (s *Store) replaceFile(data []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".scene-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *Store) heal() (*Document, error) {
	doc := DefaultDocument()
	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
