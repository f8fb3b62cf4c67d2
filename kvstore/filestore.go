package kvstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const probeKey = "__storage_probe__"

// FileStore persists keys as a single JSON file in a data directory.
// The snapshot is loaded lazily on first access and rewritten in full
// after every mutation, via a temp file and rename so a crashed write
// cannot truncate an existing snapshot.
type FileStore struct {
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	data   map[string]string
	loaded bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by <dir>/<name>.json. The
// directory is created on demand; failure to create it does not error
// here, it surfaces later as contained write failures.
func NewFileStore(dir, name string) *FileStore {
	return &FileStore{
		path:   filepath.Join(dir, name+".json"),
		logger: log.With().Str("component", "kvstore").Str("file", name).Logger(),
	}
}

func (fs *FileStore) Get(key, fallback string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.load()
	value, ok := fs.data[key]
	if !ok {
		return fallback
	}
	return value
}

func (fs *FileStore) GetJSON(key string, target any) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.load()
	value, ok := fs.data[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(value), target); err != nil {
		fs.logger.Warn().Err(err).Str("key", key).Msg("stored value does not parse")
		return false
	}
	return true
}

func (fs *FileStore) Set(key, value string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.load()
	previous, existed := fs.data[key]
	fs.data[key] = value
	if !fs.persist() {
		// Roll back the in-memory map so memory and disk stay in step.
		if existed {
			fs.data[key] = previous
		} else {
			delete(fs.data, key)
		}
		return false
	}
	return true
}

func (fs *FileStore) SetJSON(key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		fs.logger.Warn().Err(err).Str("key", key).Msg("value not serializable")
		return false
	}
	return fs.Set(key, string(raw))
}

func (fs *FileStore) Remove(key string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.load()
	previous, existed := fs.data[key]
	if !existed {
		return true
	}
	delete(fs.data, key)
	if !fs.persist() {
		fs.data[key] = previous
		return false
	}
	return true
}

func (fs *FileStore) Clear() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.load()
	previous := fs.data
	fs.data = make(map[string]string)
	if !fs.persist() {
		fs.data = previous
		return false
	}
	return true
}

func (fs *FileStore) IsAvailable() bool {
	return fs.Set(probeKey, "1") && fs.Remove(probeKey)
}

// load reads the snapshot from disk once. A missing file starts an
// empty store; a corrupt file is logged and discarded rather than
// blocking the caller.
func (fs *FileStore) load() {
	if fs.loaded {
		return
	}
	fs.loaded = true
	fs.data = make(map[string]string)

	raw, err := os.ReadFile(fs.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fs.logger.Warn().Err(err).Msg("snapshot unreadable, starting empty")
		}
		return
	}
	if err := json.Unmarshal(raw, &fs.data); err != nil {
		fs.logger.Warn().Err(err).Msg("snapshot corrupt, starting empty")
		fs.data = make(map[string]string)
	}
}

func (fs *FileStore) persist() bool {
	raw, err := json.Marshal(fs.data)
	if err != nil {
		fs.logger.Error().Err(err).Msg("snapshot not serializable")
		return false
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		fs.logger.Warn().Err(err).Msg("data directory unavailable")
		return false
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		fs.logger.Warn().Err(err).Msg("snapshot write failed")
		return false
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		fs.logger.Warn().Err(err).Msg("snapshot rename failed")
		return false
	}
	return true
}
