package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitegen/internal/source"
)

// Sentinel errors surfaced by Load. Both degrade to a full rebuild; neither
// ever fails the build.
var (
	// ErrCorrupt indicates the cache file exists but could not be decoded
	// or failed its checksum.
	ErrCorrupt = errors.New("cache file is corrupt")
	// ErrVersionMismatch indicates the cache was written by an
	// incompatible encoding version.
	ErrVersionMismatch = errors.New("cache version mismatch")
)

const cacheFileName = "cache.json"

// envelope wraps the serialized state with a checksum so truncated or garbled
// files are detected before any edge data is interpreted.
type envelope struct {
	Checksum string          `json:"checksum"`
	State    json.RawMessage `json:"state"`
}

// Store reads and writes the single on-disk cache file. The file has exactly
// one writer (the orchestrator's persist phase) and is replaced via
// write-to-temp-then-rename, so a reader never observes a half-written file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store rooted at the build-internal cache directory.
func NewStore(cacheDir string) *Store {
	return &Store{
		path:   filepath.Join(cacheDir, cacheFileName),
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	s.logger = logger
	return s
}

// Path returns the cache file location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted state. A missing file returns an empty state and
// no error (first build). Corruption and version mismatch return the sentinel
// errors along with an empty state so callers can fall back to a full
// rebuild.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 - path is build-internal
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return NewState(), fmt.Errorf("%w: read %s: %v", ErrCorrupt, s.path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return NewState(), fmt.Errorf("%w: decode envelope: %v", ErrCorrupt, err)
	}
	if env.Checksum != source.HashBytes(env.State) {
		return NewState(), fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var st State
	if err := json.Unmarshal(env.State, &st); err != nil {
		return NewState(), fmt.Errorf("%w: decode state: %v", ErrCorrupt, err)
	}
	if st.CacheVersion != Version {
		return NewState(), fmt.Errorf("%w: have %d, want %d", ErrVersionMismatch, st.CacheVersion, Version)
	}
	if st.Fingerprints == nil {
		st.Fingerprints = make(map[source.Identity]source.Fingerprint)
	}
	if st.Edges == nil {
		st.Edges = make(map[string][]source.Identity)
	}
	return &st, nil
}

// LoadOrEmpty loads the state, logging a warning and returning an empty state
// when the file is corrupt or version-mismatched. The bool result reports
// whether a previous valid state was found.
func (s *Store) LoadOrEmpty() (*State, bool) {
	st, err := s.Load()
	switch {
	case err == nil:
		return st, len(st.Fingerprints) > 0 || len(st.Edges) > 0
	case errors.Is(err, ErrVersionMismatch):
		s.logger.Warn("Cache version mismatch, forcing full rebuild", "path", s.path, "error", err)
	default:
		s.logger.Warn("Cache unreadable, forcing full rebuild", "path", s.path, "error", err)
	}
	return NewState(), false
}

// Save atomically replaces the cache file with the given state. A build that
// fails before this point leaves the previous valid cache untouched.
func (s *Store) Save(st *State) error {
	stateData, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal cache state: %w", err)
	}
	env := envelope{
		Checksum: source.HashBytes(stateData),
		State:    stateData,
	}
	// Plain Marshal keeps the embedded RawMessage byte-for-byte; indenting
	// would reformat it and break the checksum on load.
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal cache envelope: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary cache file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replace cache file: %w", err)
	}

	s.logger.Debug("Cache persisted",
		"path", s.path,
		"fingerprints", len(st.Fingerprints),
		"artifacts", len(st.Edges))
	return nil
}

// Remove deletes the cache file (clean command). Missing files are fine.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}
