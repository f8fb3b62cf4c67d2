// Package docstore implements a client-side document store: named
// tables of JSON-like records persisted as a whole-store snapshot
// through the key-value adapter. It stands in for the remote backend in
// offline and mock code paths.
//
// Known limitation: each mutation is a read-modify-write of the full
// snapshot with no cross-call locking, so overlapping asynchronous
// callers mutating the same table race with last-write-wins semantics.
// The store is a non-authoritative fallback, so this is accepted rather
// than solved with heavier coordination. In-process map access is still
// mutex-guarded so concurrent goroutines cannot corrupt memory.
package docstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/voluntree/client-go/kvstore"
)

// Record is a single JSON-like document. Every stored record carries an
// "id", a "created_at" stamp set at insert and an "updated_at" stamp
// refreshed on every mutation. Stamps are RFC 3339 strings so records
// survive an export/import round trip unchanged.
type Record map[string]any

// Reserved record fields managed by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Store holds named tables backed by a single snapshot key in the
// key-value adapter. Tables are created lazily on first access and the
// full snapshot is written through after every mutating call.
type Store struct {
	kv     kvstore.Store
	key    string
	logger zerolog.Logger

	nowTime func() time.Time
	newID   func() string

	mu     sync.Mutex
	tables map[string][]Record
	loaded bool
}

// Option modifies a Store instance.
type Option func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithIDGenerator sets the record id generator (primarily for testing)
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// New creates a document store persisted under the snapshot key
// "docstore:<name>" in kv.
func New(kv kvstore.Store, name string, options ...Option) *Store {
	s := &Store{
		kv:      kv,
		key:     "docstore:" + name,
		logger:  log.With().Str("component", "docstore").Str("store", name).Logger(),
		nowTime: time.Now,
		newID:   func() string { return uuid.New().String() },
		tables:  make(map[string][]Record),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Table returns a snapshot copy of the named table, creating an empty
// table if it does not exist yet. Creation is idempotent.
func (s *Store) Table(name string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	s.ensureTable(name)
	return cloneRecords(s.tables[name])
}

// Insert stores a record, assigning an id when the caller did not
// supply one and stamping creation and update times. The stored record
// is returned post-stamping.
func (s *Store) Insert(table string, record Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	s.ensureTable(table)

	stored := cloneRecord(record)
	if _, ok := stored[FieldID]; !ok {
		stored[FieldID] = s.newID()
	}
	now := s.nowTime().Format(time.RFC3339Nano)
	stored[FieldCreatedAt] = now
	stored[FieldUpdatedAt] = now

	s.tables[table] = append(s.tables[table], stored)
	s.persist()
	return cloneRecord(stored)
}

// Find returns copies of every record in the table matching predicate,
// or every record when predicate is nil.
func (s *Store) Find(table string, predicate func(Record) bool) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	matches := make([]Record, 0)
	for _, record := range s.tables[table] {
		if predicate == nil || predicate(record) {
			matches = append(matches, cloneRecord(record))
		}
	}
	return matches
}

// FindOne returns a copy of the first record matching predicate. The
// second return value is false when nothing matches; absence is not an
// error.
func (s *Store) FindOne(table string, predicate func(Record) bool) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	for _, record := range s.tables[table] {
		if predicate == nil || predicate(record) {
			return cloneRecord(record), true
		}
	}
	return nil, false
}

// Get returns the record with the given id.
func (s *Store) Get(table, id string) (Record, bool) {
	return s.FindOne(table, func(r Record) bool { return r[FieldID] == id })
}

// Update shallow-merges partial into the record with the given id,
// refreshes the update stamp, persists and returns the merged record.
// The id and creation stamp cannot be overwritten. A missing id returns
// false with no side effects.
func (s *Store) Update(table, id string, partial Record) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	for i, record := range s.tables[table] {
		if record[FieldID] != id {
			continue
		}
		for field, value := range partial {
			if field == FieldID || field == FieldCreatedAt {
				continue
			}
			record[field] = value
		}
		record[FieldUpdatedAt] = s.nowTime().Format(time.RFC3339Nano)
		s.tables[table][i] = record
		s.persist()
		return cloneRecord(record), true
	}
	return nil, false
}

// Delete removes the record with the given id and reports whether a
// removal occurred.
func (s *Store) Delete(table, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	for i, record := range s.tables[table] {
		if record[FieldID] == id {
			s.tables[table] = append(s.tables[table][:i], s.tables[table][i+1:]...)
			s.persist()
			return true
		}
	}
	return false
}

// ClearTable replaces the table's contents with an empty sequence.
func (s *Store) ClearTable(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	s.tables[table] = make([]Record, 0)
	s.persist()
}

// Export serializes the whole store as JSON.
func (s *Store) Export() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	raw, err := json.Marshal(s.tables)
	if err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		return "{}"
	}
	return string(raw)
}

// Import replaces the store contents with a previously exported
// snapshot. The input must parse to a mapping of table name to record
// sequence; on parse failure the existing state is left untouched and
// Import returns false.
func (s *Store) Import(serialized string) bool {
	var incoming map[string][]Record
	if err := json.Unmarshal([]byte(serialized), &incoming); err != nil {
		s.logger.Warn().Err(err).Msg("import rejected, input does not parse")
		return false
	}
	// "null" unmarshals cleanly but is not a table mapping.
	if incoming == nil {
		s.logger.Warn().Msg("import rejected, input is not a table mapping")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	s.tables = incoming
	s.persist()
	return true
}

func (s *Store) ensureTable(name string) {
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = make([]Record, 0)
	}
}

func (s *Store) load() {
	if s.loaded {
		return
	}
	s.loaded = true

	var stored map[string][]Record
	if s.kv.GetJSON(s.key, &stored) && stored != nil {
		s.tables = stored
	}
}

// persist writes the full multi-table snapshot through the key-value
// adapter. Write-through on every mutation trades write amplification
// for simplicity; a read immediately after a write always sees it.
func (s *Store) persist() {
	if !s.kv.SetJSON(s.key, s.tables) {
		s.logger.Warn().Msg("snapshot persist failed, data held in memory only")
	}
}

func cloneRecord(record Record) Record {
	clone := make(Record, len(record))
	for field, value := range record {
		clone[field] = value
	}
	return clone
}

func cloneRecords(records []Record) []Record {
	clones := make([]Record, len(records))
	for i, record := range records {
		clones[i] = cloneRecord(record)
	}
	return clones
}
