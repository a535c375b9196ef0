// Package audit persists committed ledger events in a SQL database so
// operators can query the history of a market or account.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"termlend/core/events"
)

// ErrDSNRequired is returned when the store is opened without a DSN.
var ErrDSNRequired = errors.New("audit: dsn must be configured")

// Store records ledger events. It implements events.Emitter so it can be
// plugged into the state manager's commit fan-out.
type Store struct {
	db     *gorm.DB
	mu     sync.Mutex
	seq    uint64
	now    func() time.Time
	logger *slog.Logger
}

// Open connects to a sqlite DSN and applies the schema.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	var last EventRecord
	var seq uint64
	if err := db.Order("sequence desc").Limit(1).Find(&last).Error; err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	seq = last.Sequence
	return &Store{db: db, seq: seq, now: time.Now, logger: slog.Default()}, nil
}

// SetLogger overrides the structured logger.
func (s *Store) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	s.logger = l.With(slog.String("component", "audit"))
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record persists evt and returns the stored row.
func (s *Store) Record(evt events.Event) (*EventRecord, error) {
	flat := events.Flatten(evt)
	if flat == nil {
		return nil, fmt.Errorf("audit: nil event")
	}
	attrs, err := json.Marshal(flat.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &EventRecord{
		ID:         uuid.New(),
		Sequence:   s.seq + 1,
		Type:       flat.Type,
		Market:     strings.ToUpper(firstAttr(flat.Attributes, "market", "repayMarket", "scope")),
		Account:    strings.ToLower(firstAttr(flat.Attributes, "account", "borrower", "caller")),
		Attributes: string(attrs),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	s.seq = rec.Sequence
	return rec, nil
}

// Emit implements events.Emitter. Failures are logged, never propagated,
// because events are delivered after state has already been committed.
func (s *Store) Emit(evt events.Event) {
	if s == nil {
		return
	}
	if _, err := s.Record(evt); err != nil {
		s.logger.Error("audit record failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Filter narrows a Query. Empty fields match everything.
type Filter struct {
	Type    string
	Market  string
	Account string
	Limit   int
}

// Query returns matching records in commit order.
func (s *Store) Query(filter Filter) ([]EventRecord, error) {
	q := s.db.Model(&EventRecord{}).Order("sequence asc")
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Market != "" {
		q = q.Where("market = ?", strings.ToUpper(strings.TrimSpace(filter.Market)))
	}
	if filter.Account != "" {
		q = q.Where("account = ?", strings.ToLower(strings.TrimSpace(filter.Account)))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []EventRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return out, nil
}

// Decode returns the attribute map of a stored record.
func (r EventRecord) Decode() (map[string]string, error) {
	out := map[string]string{}
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func firstAttr(attrs map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(attrs[key]); v != "" {
			return v
		}
	}
	return ""
}
