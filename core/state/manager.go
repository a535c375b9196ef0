// Package state persists ledger records. Writes are buffered in a journaled
// dirty set so every market operation can be reverted as a unit, and Commit
// flushes them to the backing storage.Database.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"termlend/core/events"
	"termlend/storage"
)

// Manager is the key-value state of the ledger. It is safe for concurrent
// use; market operations are expected to be serialised by the caller.
type Manager struct {
	mu      sync.RWMutex
	db      storage.Database
	dirty   map[string][]byte
	pending []events.Event
	journal *journal
	emitter events.Emitter
	logger  *slog.Logger
}

// NewManager creates a state manager flushing into db.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		dirty:   make(map[string][]byte),
		journal: newJournal(),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

// SetEmitter configures where committed events are delivered.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitter = emitter
}

// SetLogger overrides the structured logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.logger = logger.With(slog.String("component", "state"))
}

// Snapshot returns an identifier that RevertToSnapshot rolls back to.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.journal.snapshot()
}

// RevertToSnapshot undoes every write and event recorded after the snapshot.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.journal.revertToSnapshot(id, m); err != nil {
		m.logger.Error("revert snapshot", slog.Int("id", id), slog.Any("error", err))
	}
}

// AppendEvent queues an event for delivery on the next Commit.
func (m *Manager) AppendEvent(evt events.Event) {
	if evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, evt)
	m.journal.append(eventChange{})
}

// PendingEvents returns the events appended since the last Commit.
func (m *Manager) PendingEvents() []events.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]events.Event(nil), m.pending...)
}

// Dirty reports how many keys are waiting to be flushed.
func (m *Manager) Dirty() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dirty)
}

// Commit writes the dirty set to the database, delivers pending events and
// discards all snapshots. It returns the number of keys written.
func (m *Manager) Commit() (int, error) {
	m.mu.Lock()
	written := 0
	for key, value := range m.dirty {
		if err := m.db.Put([]byte(key), value); err != nil {
			m.mu.Unlock()
			return written, fmt.Errorf("state: commit %s: %w", key, err)
		}
		written++
	}
	m.dirty = make(map[string][]byte)
	m.journal.reset()
	pending := m.pending
	m.pending = nil
	emitter := m.emitter
	m.mu.Unlock()

	for _, evt := range pending {
		emitter.Emit(evt)
	}
	m.logger.Debug("state committed", slog.Int("keys", written), slog.Int("events", len(pending)))
	return written, nil
}

func (m *Manager) read(key string) ([]byte, error) {
	if value, ok := m.dirty[key]; ok {
		return value, nil
	}
	value, err := m.db.Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) write(key string, value []byte) {
	prev, existed := m.dirty[key]
	m.journal.append(kvChange{key: key, prev: prev, existed: existed})
	m.dirty[key] = value
}

// KVPut RLP-encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(string(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, err := m.read(string(key))
	m.mu.RUnlock()
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.read(string(key))
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.write(string(key), encoded)
	return nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, err := m.read(string(key))
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
