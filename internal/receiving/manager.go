package receiving

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Manager owns one session per operator of a tenant.
type Manager struct {
	deps      Deps
	committer *Committer

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	deps.defaults()
	return &Manager{
		deps:      deps,
		committer: NewCommitter(deps.Gateway, deps.Backups, deps.Log, deps.Audit),
		sessions:  make(map[string]*Session),
	}
}

func sessionKey(p PickerContext) string { return p.Tenant + "/" + p.Picker }

// Get returns the operator's live session. Ended sessions are dropped.
func (m *Manager) Get(p PickerContext) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionKey(p)]
	if !ok {
		return nil, ErrNoSession
	}
	if s.Ended() {
		delete(m.sessions, sessionKey(p))
		return nil, ErrNoSession
	}
	return s, nil
}

func (m *Manager) active(p PickerContext) bool {
	_, err := m.Get(p)
	return err == nil
}

// Start searches a folio. When it names a single order a fresh session
// starts and any saved draft of the operator is dropped; otherwise the
// candidate orders come back and no session is created.
func (m *Manager) Start(ctx context.Context, p PickerContext, folio string) (*Session, *SearchResult, error) {
	ctx = WithPicker(ctx, p)
	if m.active(p) {
		return nil, nil, ErrSessionActive
	}
	if folio == "" {
		return nil, nil, validationf("folio", "el folio es obligatorio")
	}

	res, err := m.deps.Gateway.SearchOrders(ctx, folio)
	if err != nil {
		return nil, nil, &TransientError{Op: "searchOrders", Err: err}
	}
	if res.Header == nil {
		if len(res.Orders) == 0 {
			return nil, nil, &NotFoundError{What: "orden", Key: folio}
		}
		return nil, res, nil
	}

	if m.deps.Drafts != nil {
		m.deps.Drafts.Cancel(p.Picker)
		if err := m.deps.Drafts.Clear(p.Picker); err != nil {
			m.deps.Log.Warn("old draft not cleared", zap.String("operator", p.Picker), zap.Error(err))
		}
	}

	s := newSession(m.deps, p, *res.Header, res.Lines, res.InnerPacks)
	if !m.register(p, s) {
		return nil, nil, ErrSessionActive
	}
	if err := s.Prefetch(ctx); err != nil {
		s.log.Warn("reservation prefetch failed", zap.Error(err))
	}
	s.log.Info("receiving session started",
		zap.String("order", res.Header.ID),
		zap.String("folio", res.Header.Folio),
		zap.Int("lines", len(res.Lines)),
	)
	return s, res, nil
}

// Restore resumes the operator's draft. It only runs while no session is
// live; a missing or stale draft reads as not found.
func (m *Manager) Restore(ctx context.Context, p PickerContext) (*Session, error) {
	ctx = WithPicker(ctx, p)
	if m.active(p) {
		return nil, ErrSessionActive
	}
	if m.deps.Drafts == nil {
		return nil, &NotFoundError{What: "borrador", Key: p.Picker}
	}

	d, err := m.deps.Drafts.Load(p.Tenant, p.Picker)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{What: "borrador", Key: p.Picker}
	}
	if d.Warehouse == "" {
		d.Warehouse = p.Warehouse
	}

	s := restoreSession(m.deps, d)
	if !m.register(p, s) {
		return nil, ErrSessionActive
	}
	if err := s.Prefetch(ctx); err != nil {
		s.log.Warn("reservation prefetch failed", zap.Error(err))
	}
	s.log.Info("receiving session restored", zap.Int("lines", len(d.Lines)))
	return s, nil
}

func (m *Manager) register(p PickerContext, s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sessions[sessionKey(p)]; ok && !cur.Ended() {
		return false
	}
	s.commitPending = func() bool {
		b, err := m.committer.loadBackup(s.Owner())
		return err == nil && b != nil && b.SessionID == s.ID()
	}
	m.sessions[sessionKey(p)] = s
	return true
}

func (m *Manager) Commit(ctx context.Context, p PickerContext, mode CommitMode) (CommitResult, error) {
	s, err := m.Get(p)
	if err != nil {
		return CommitResult{}, err
	}
	return m.committer.Commit(ctx, s, mode)
}

func (m *Manager) Retry(ctx context.Context, p PickerContext) (CommitResult, error) {
	s, err := m.Get(p)
	if err != nil {
		return CommitResult{}, err
	}
	return m.committer.Retry(ctx, s)
}

// Close flushes the draft and drops the live session. The draft stays
// available for Restore.
func (m *Manager) Close(p PickerContext) error {
	s, err := m.Get(p)
	if err != nil {
		return err
	}
	ferr := s.FlushOnClose()

	m.mu.Lock()
	delete(m.sessions, sessionKey(p))
	m.mu.Unlock()
	return ferr
}

// Shutdown flushes every live session.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.FlushOnClose(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) HasPendingCommit(p PickerContext) bool {
	return m.committer.HasPending(p.Picker)
}
