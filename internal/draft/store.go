package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"receiving-backend/internal/receiving"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	DefaultDebounce = 2 * time.Second
	DefaultMaxAge   = 24 * time.Hour

	draftPrefix  = "draft/"
	backupPrefix = "backup/"
)

// Store keeps session drafts and commit backups in Badger, one of each per
// operator. It implements receiving.DraftStore and receiving.BackupStore.
type Store struct {
	db       *badger.DB
	log      *zap.Logger
	debounce time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

type Option func(*Store)

func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open opens the Badger directory. An empty dir keeps everything in memory.
func Open(dir string, opts ...Option) (*Store, error) {
	s := newStore(opts...)

	bopts := badger.DefaultOptions(dir).WithLogger(badgerLogger{s.log.Sugar()})
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("abrir almacén de borradores: %w", err)
	}
	s.db = db
	return s, nil
}

func newStore(opts ...Option) *Store {
	s := &Store{
		log:      zap.NewNop(),
		debounce: DefaultDebounce,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScheduleSave writes the session after the debounce delay. Calls within the
// delay restart the timer.
func (s *Store) ScheduleSave(snap receiving.Snapshotter) {
	owner := snap.Owner()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[owner]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.debounce, func() {
		d := snap.Snapshot()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.timers[owner] != t || s.closed {
			return
		}
		delete(s.timers, owner)
		if err := s.save(owner, d); err != nil {
			s.log.Warn("draft autosave failed", zap.String("operator", owner), zap.Error(err))
		}
	})
	s.timers[owner] = t
}

// SaveNow writes d immediately. A draft without scanned units deletes the
// stored one instead, so a restore never brings back removed units.
func (s *Store) SaveNow(d *receiving.Draft) error {
	if d == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(d.Operator, d)
}

// save must be called with s.mu held.
func (s *Store) save(owner string, d *receiving.Draft) error {
	if d == nil || !d.HasProgress() {
		return s.delete(draftPrefix + owner)
	}
	return s.put(draftPrefix+owner, d)
}

// Cancel drops the pending autosave of owner, if any.
func (s *Store) Cancel(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[owner]; ok {
		t.Stop()
		delete(s.timers, owner)
	}
}

// Load returns the draft of owner when it belongs to tenant and is recent
// enough. Anything else is deleted and reported as nothing to restore.
func (s *Store) Load(tenant, owner string) (*receiving.Draft, error) {
	var d receiving.Draft
	found, err := s.get(draftPrefix+owner, &d)
	if err != nil || !found {
		return nil, err
	}

	age := s.now().Sub(d.Timestamp)
	if d.Tenant != tenant || age > s.maxAge {
		s.log.Info("draft discarded",
			zap.String("operator", owner),
			zap.String("draft_tenant", d.Tenant),
			zap.String("tenant", tenant),
			zap.Duration("age", age),
			zap.Error(receiving.ErrStaleDraft),
		)
		if err := s.Clear(owner); err != nil {
			s.log.Warn("stale draft not deleted", zap.String("operator", owner), zap.Error(err))
		}
		return nil, nil
	}
	return &d, nil
}

func (s *Store) Clear(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(draftPrefix + owner)
}

func (s *Store) SaveBackup(owner string, b *receiving.CommitBackup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(backupPrefix+owner, b)
}

func (s *Store) LoadBackup(owner string) (*receiving.CommitBackup, error) {
	var b receiving.CommitBackup
	found, err := s.get(backupPrefix+owner, &b)
	if err != nil || !found {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ClearBackup(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(backupPrefix + owner)
}

// Close stops pending autosaves without writing them and closes Badger.
// Sessions flush themselves before this is called.
func (s *Store) Close() error {
	s.mu.Lock()
	for owner, t := range s.timers {
		t.Stop()
		delete(s.timers, owner)
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// put must be called with s.mu held.
func (s *Store) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializar %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

func (s *Store) get(key string, v any) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("leer %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decodificar %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// badgerLogger routes Badger's own logging through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
