package receiving

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"receiving-backend/internal/provider"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultDedupeWindow = 300 * time.Millisecond

// Deps are the collaborators shared by every session of a Manager.
type Deps struct {
	Gateway    Gateway
	Strategies *provider.Registry
	Drafts     DraftStore
	Backups    BackupStore
	// Negative builds the negative cache for a tenant. Nil means in-memory.
	Negative     func(tenant string) NegativeCache
	Log          *zap.Logger
	Audit        AuditFunc
	DedupeWindow time.Duration
	Now          func() time.Time
}

func (d *Deps) defaults() {
	if d.Strategies == nil {
		d.Strategies = provider.NewRegistry(nil)
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.DedupeWindow == 0 {
		d.DedupeWindow = DefaultDedupeWindow
	}
	if d.Negative == nil {
		d.Negative = func(string) NegativeCache { return NewMemoryNegativeCache(DefaultNegativeTTL) }
	}
}

// Session is one operator receiving one or more combined purchase orders.
type Session struct {
	id       string
	picker   PickerContext
	started  time.Time
	deps     Deps
	log      *zap.Logger
	strategy provider.Strategy

	combiner *OrderCombiner
	tracker  *AllocationTracker
	ledger   *BoxLedger
	resolver *ReservationResolver
	dedupe   *scanDedupe
	locks    *keyedMutex

	mu        sync.RWMutex
	index     *ScanIndex
	packs     []InnerPackCode
	aliases   map[string]string
	incidents []Incident
	failures  []provider.Failure
	ended     bool

	// commitPending reports a failed commit of this session awaiting Retry.
	commitPending func() bool
}

func newSession(deps Deps, picker PickerContext, header PurchaseOrder, lines []OrderLine, packs []InnerPackCode) *Session {
	deps.defaults()
	s := &Session{
		id:       uuid.NewString(),
		picker:   picker,
		started:  deps.Now(),
		deps:     deps,
		strategy: deps.Strategies.For(header.SupplierID),
		tracker:  NewAllocationTracker(),
		dedupe:   newScanDedupe(deps.DedupeWindow, deps.Now),
		locks:    newKeyedMutex(),
		packs:    append([]InnerPackCode(nil), packs...),
		aliases:  make(map[string]string),
	}
	s.log = deps.Log.With(
		zap.String("session", s.id),
		zap.String("tenant", picker.Tenant),
		zap.String("operator", picker.Picker),
	)
	s.ledger = NewBoxLedger(deps.Gateway, s.log)
	s.ledger.now = deps.Now
	s.ledger.audit = s.auditRelease
	s.resolver = NewReservationResolver(deps.Gateway, s.ledger, deps.Negative(picker.Tenant), picker, s.log)
	s.resolver.now = deps.Now

	n := s.tracker.AddLines(lines)
	s.combiner = NewOrderCombiner(header, n)
	s.rebuildIndex()
	return s
}

// restoreSession rebuilds a session from a draft the store accepted.
func restoreSession(deps Deps, d *Draft) *Session {
	picker := PickerContext{Tenant: d.Tenant, Warehouse: d.Warehouse, Picker: d.Operator}

	byOrder := make(map[string][]OrderLine)
	for _, l := range d.Lines {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], l)
	}

	orders := d.CombinedOrders
	if len(orders) == 0 {
		orders = []PurchaseOrder{d.PrimaryOrder}
	}
	s := newSession(deps, picker, orders[0], byOrder[orders[0].ID], d.InnerPacks)
	if d.SessionID != "" {
		s.id = d.SessionID
	}
	for _, o := range orders[1:] {
		if err := s.combiner.Add(o, 0); err != nil {
			continue
		}
		s.combiner.setCount(o.ID, s.tracker.AddLines(byOrder[o.ID]))
	}

	s.mu.Lock()
	for k, v := range d.Aliases {
		s.aliases[k] = v
	}
	s.incidents = append([]Incident(nil), d.Incidents...)
	s.mu.Unlock()

	s.ledger.Restore(d.ReservationLedger)
	s.resolver.RestoreSelections(d.PendingSelections)
	s.rebuildIndex()
	return s
}

func (s *Session) ID() string { return s.id }

// Owner keys the session's draft and backup.
func (s *Session) Owner() string { return s.picker.Picker }

func (s *Session) Tenant() string { return s.picker.Tenant }

func (s *Session) Strategy() provider.Strategy { return s.strategy }

func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// editable guards changes to scanned lines and combined orders. While a
// failed commit waits for Retry the submitted backup is the source of truth.
func (s *Session) editable() error {
	if s.Ended() {
		return ErrSessionEnded
	}
	if s.commitPending != nil && s.commitPending() {
		return ErrCommitPending
	}
	return nil
}

func (s *Session) currentIndex() *ScanIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// rebuildIndex swaps in a fresh index built from the current lines. s.packs
// keeps every inner pack seen; only those of articles still in the session
// are indexed.
func (s *Session) rebuildIndex() {
	lines := s.tracker.Lines()

	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]bool, len(lines))
	for _, l := range lines {
		present[l.ArticleID] = true
	}
	// s.packs keeps every pack seen; only those of live articles are indexed.
	var packs []InnerPackCode
	for _, p := range s.packs {
		if present[p.ArticleID] {
			packs = append(packs, p)
		}
	}
	s.index = BuildScanIndex(s.strategy.Normalize, lines, packs, s.aliases)
}

func (s *Session) schedule() {
	if s.deps.Drafts != nil {
		s.deps.Drafts.ScheduleSave(s)
	}
}

// Prefetch fills the reservation bulk cache for every indexed code. A failure
// only costs per-scan resolves, so callers log it.
func (s *Session) Prefetch(ctx context.Context) error {
	ctx = WithPicker(ctx, s.picker)
	return s.resolver.Prefetch(ctx, s.currentIndex().Codes())
}

// ScanResult describes what one scan did.
type ScanResult struct {
	Code        string         `json:"code"`
	Duplicate   bool           `json:"duplicate"`
	Stale       bool           `json:"stale"`
	ArticleID   string         `json:"article_id,omitempty"`
	Units       int            `json:"units"`
	Reservation ResolveOutcome `json:"reservation"`
	Allocation  ApplyResult    `json:"allocation"`
}

// Scan processes one raw code: match, resolve reservations, then receive the
// surplus. hint, when set, names the order whose line should absorb it. A
// scan whose surplus would not fit the lines is rejected before any box is
// assigned.
func (s *Session) Scan(ctx context.Context, raw, hint string) (ScanResult, error) {
	ctx = WithPicker(ctx, s.picker)
	if err := s.editable(); err != nil {
		return ScanResult{}, err
	}
	code := s.strategy.Normalize(raw)
	if code == "" {
		return ScanResult{}, validationf("code", "el código está vacío")
	}
	if s.dedupe.Seen(code) {
		return ScanResult{Code: code, Duplicate: true}, nil
	}

	idx := s.currentIndex()
	m := s.strategy.MatchScan(raw, provider.MatchContext{Known: idx.Has})
	if !m.Found {
		return ScanResult{Code: code}, &NotFoundError{What: "código", Key: code}
	}
	target, ok := idx.Lookup(m.SearchKey)
	if !ok {
		return ScanResult{Code: code}, &NotFoundError{What: "código", Key: code}
	}

	unlock := s.locks.Lock("article:" + target.ArticleID)
	defer unlock()

	res := ScanResult{Code: code, ArticleID: target.ArticleID, Units: target.UnitsPerScan}
	capacity, err := s.tracker.Receivable(target.ArticleID, hint)
	if err != nil {
		return res, err
	}
	out, err := s.resolver.ResolveWithin(ctx, target.Code, target.ArticleID, target.UnitsPerScan, capacity)
	var cerr *CapacityError
	if errors.As(err, &cerr) {
		if cerr.Capacity == 0 {
			// Every line is full: ApplyScan only reports the limit.
			res.Allocation, err = s.tracker.ApplyScan(target.ArticleID, target.UnitsPerScan, hint)
			return res, err
		}
		return res, &ValidationError{Field: "units", Message: cerr.Error()}
	}
	if err != nil {
		return res, err
	}
	res.Reservation = out

	// The order may have been removed while the resolve was in flight.
	if !s.currentIndex().Has(m.SearchKey) || !s.tracker.HasArticle(target.ArticleID) {
		s.log.Warn("discarding scan for a line no longer in session",
			zap.String("code", code),
			zap.String("article", target.ArticleID),
		)
		res.Stale = true
		return res, nil
	}

	if out.Surplus > 0 {
		alloc, err := s.tracker.ApplyScan(target.ArticleID, out.Surplus, hint)
		res.Allocation = alloc
		if err != nil {
			return res, err
		}
	}
	s.schedule()
	return res, nil
}

// ChooseBox completes a scan that was waiting for a box.
func (s *Session) ChooseBox(ctx context.Context, selectionID, box string) (ResolveOutcome, error) {
	ctx = WithPicker(ctx, s.picker)
	if s.Ended() {
		return ResolveOutcome{}, ErrSessionEnded
	}
	out, err := s.resolver.ChooseBox(ctx, selectionID, box)
	if err != nil {
		return out, err
	}
	s.schedule()
	return out, nil
}

// DeclineSelection receives the held units instead of reserving them.
func (s *Session) DeclineSelection(selectionID string) (ApplyResult, error) {
	if err := s.editable(); err != nil {
		return ApplyResult{}, err
	}
	sel, err := s.resolver.Decline(selectionID)
	if err != nil {
		return ApplyResult{}, err
	}

	unlock := s.locks.Lock("article:" + sel.ArticleID)
	defer unlock()

	res, err := s.tracker.ApplyScan(sel.ArticleID, sel.Units, "")
	if err != nil {
		s.resolver.RestoreSelections([]PendingSelection{sel})
		return res, err
	}
	s.schedule()
	return res, nil
}

func (s *Session) SetQuantity(articleID string, qty int, hint string) (ApplyResult, error) {
	return s.mutate(articleID, func() (ApplyResult, error) {
		return s.tracker.SetQuantity(articleID, qty, hint)
	})
}

func (s *Session) Adjust(articleID string, delta int, hint string) (ApplyResult, error) {
	return s.mutate(articleID, func() (ApplyResult, error) {
		return s.tracker.Adjust(articleID, delta, hint)
	})
}

func (s *Session) Fill(articleID string, hint string) (ApplyResult, error) {
	return s.mutate(articleID, func() (ApplyResult, error) {
		return s.tracker.Fill(articleID, hint)
	})
}

func (s *Session) SetDevolution(key LineKey, qty int) error {
	_, err := s.mutate(key.ArticleID, func() (ApplyResult, error) {
		return ApplyResult{Line: key}, s.tracker.SetDevolution(key, qty)
	})
	return err
}

func (s *Session) SetBackorder(key LineKey, backorder bool) error {
	_, err := s.mutate(key.ArticleID, func() (ApplyResult, error) {
		return ApplyResult{Line: key}, s.tracker.SetBackorder(key, backorder)
	})
	return err
}

func (s *Session) mutate(articleID string, fn func() (ApplyResult, error)) (ApplyResult, error) {
	if err := s.editable(); err != nil {
		return ApplyResult{}, err
	}
	unlock := s.locks.Lock("article:" + articleID)
	defer unlock()

	res, err := fn()
	if err != nil {
		return res, err
	}
	s.schedule()
	return res, nil
}

// AddIncident attaches an operator note to a line.
func (s *Session) AddIncident(key LineKey, kind IncidentKind, note string) (Incident, error) {
	if s.Ended() {
		return Incident{}, ErrSessionEnded
	}
	switch kind {
	case IncidentDamaged, IncidentWrongArticle, IncidentUnknownCode, IncidentOther:
	default:
		return Incident{}, validationf("kind", "tipo de incidencia desconocido: %q", kind)
	}
	if _, ok := s.tracker.Line(key); !ok {
		return Incident{}, &NotFoundError{What: "línea", Key: key.String()}
	}

	inc := Incident{OrderID: key.OrderID, ArticleID: key.ArticleID, Kind: kind, Note: note, CreatedAt: s.deps.Now()}
	s.mu.Lock()
	s.incidents = append(s.incidents, inc)
	s.mu.Unlock()
	s.schedule()
	return inc, nil
}

// AttachInvoice runs the supplier strategy over invoice items. Products with
// a resolved article become scannable aliases; failures are kept for the
// operator.
func (s *Session) AttachInvoice(ctx context.Context, items []provider.LineItem) (provider.GroupResult, error) {
	ctx = WithPicker(ctx, s.picker)
	if s.Ended() {
		return provider.GroupResult{}, ErrSessionEnded
	}
	res, err := s.strategy.GroupLineItems(ctx, items)
	if err != nil {
		return provider.GroupResult{}, &TransientError{Op: "groupLineItems", Err: err}
	}

	s.mu.Lock()
	for _, p := range res.Products {
		if p.ArticleID == "" {
			continue
		}
		s.aliases[p.Key] = p.ArticleID
	}
	s.failures = res.Failures
	s.mu.Unlock()

	s.rebuildIndex()
	s.schedule()
	return res, nil
}

// AddOrder combines another order into the session.
func (s *Session) AddOrder(ctx context.Context, header PurchaseOrder, lines []OrderLine, packs []InnerPackCode) error {
	ctx = WithPicker(ctx, s.picker)
	if err := s.editable(); err != nil {
		return err
	}
	if err := s.combiner.Add(header, 0); err != nil {
		return err
	}
	for i := range lines {
		lines[i].OrderID = header.ID
	}
	s.combiner.setCount(header.ID, s.tracker.AddLines(lines))

	s.mu.Lock()
	for _, p := range packs {
		if !slices.Contains(s.packs, p) {
			s.packs = append(s.packs, p)
		}
	}
	s.mu.Unlock()
	s.rebuildIndex()

	if err := s.Prefetch(ctx); err != nil {
		s.log.Warn("reservation prefetch failed", zap.String("order", header.ID), zap.Error(err))
	}
	s.log.Info("order combined",
		zap.String("order", header.ID),
		zap.String("folio", header.Folio),
		zap.Int("lines", s.combiner.ProductCount(header.ID)),
	)
	s.schedule()
	return nil
}

// Combine searches a folio and adds it when it names a single order. A
// result listing several candidate orders is returned untouched.
func (s *Session) Combine(ctx context.Context, folio string) (*SearchResult, error) {
	ctx = WithPicker(ctx, s.picker)
	res, err := s.deps.Gateway.SearchOrders(ctx, folio)
	if err != nil {
		return nil, &TransientError{Op: "searchOrders", Err: err}
	}
	if res.Header == nil {
		if len(res.Orders) == 0 {
			return nil, &NotFoundError{What: "orden", Key: folio}
		}
		return res, nil
	}
	if err := s.AddOrder(ctx, *res.Header, res.Lines, res.InnerPacks); err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveOrder drops an order and its lines. Removing the last order ends the
// session and clears its draft.
func (s *Session) RemoveOrder(orderID string) (bool, error) {
	if s.Ended() {
		return true, ErrSessionEnded
	}
	if err := s.editable(); err != nil {
		return false, err
	}
	ended, err := s.combiner.Remove(orderID)
	if err != nil {
		return false, err
	}
	s.tracker.RemoveOrder(orderID)
	s.rebuildIndex()

	if ended {
		s.end()
		return true, nil
	}
	s.schedule()
	return false, nil
}

// end stops the session and drops its draft.
func (s *Session) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	if s.deps.Drafts != nil {
		s.deps.Drafts.Cancel(s.Owner())
		if err := s.deps.Drafts.Clear(s.Owner()); err != nil {
			s.log.Warn("draft clear failed", zap.Error(err))
		}
	}
}

// FlushOnClose cancels the pending autosave and writes the draft right away.
func (s *Session) FlushOnClose() error {
	if s.deps.Drafts == nil || s.Ended() {
		return nil
	}
	s.deps.Drafts.Cancel(s.Owner())
	return s.deps.Drafts.SaveNow(s.Snapshot())
}

// Snapshot captures the session as a draft.
func (s *Session) Snapshot() *Draft {
	orders := s.combiner.Orders()
	lines := s.tracker.Lines()

	s.mu.RLock()
	defer s.mu.RUnlock()

	d := &Draft{
		SessionID:         s.id,
		Tenant:            s.picker.Tenant,
		Operator:          s.picker.Picker,
		Warehouse:         s.picker.Warehouse,
		CombinedOrders:    orders,
		Lines:             lines,
		InnerPacks:        append([]InnerPackCode(nil), s.packs...),
		Devolutions:       s.tracker.Devolutions(),
		Incidents:         append([]Incident(nil), s.incidents...),
		ReservationLedger: s.ledger.Entries(),
		PendingSelections: s.resolver.Selections(),
		Timestamp:         s.deps.Now(),
	}
	if len(orders) > 0 {
		d.PrimaryOrder = orders[0]
	}
	if len(s.aliases) > 0 {
		d.Aliases = make(map[string]string, len(s.aliases))
		for k, v := range s.aliases {
			d.Aliases[k] = v
		}
	}
	return d
}

func (s *Session) auditRelease(e ReservationEntry) {
	if s.deps.Audit == nil {
		return
	}
	s.deps.Audit(AuditEvent{
		Tenant:      s.picker.Tenant,
		Operator:    s.picker.Picker,
		Action:      "box_release",
		EntityType:  "box",
		EntityID:    e.Box,
		Description: "Caja " + e.Box + " liberada, folio " + e.Folio + " completo",
		Data:        e,
	})
}

// OrderView: an order with the number of lines it contributes.
type OrderView struct {
	PurchaseOrder
	Primary      bool `json:"primary"`
	ProductCount int  `json:"product_count"`
}

// SessionView is the read model served to the operator's device.
type SessionView struct {
	ID            string             `json:"id"`
	Tenant        string             `json:"tenant_id"`
	Operator      string             `json:"operator"`
	StartedAt     time.Time          `json:"started_at"`
	Orders        []OrderView        `json:"orders"`
	Lines         []OrderLine        `json:"lines"`
	Boxes         []Box              `json:"boxes"`
	Selections    []PendingSelection `json:"pending_selections"`
	Incidents     []Incident         `json:"incidents"`
	Failures      []provider.Failure `json:"code_failures"`
	Complete      bool               `json:"complete"`
	ExpectedUnits int                `json:"expected_units"`
	ScannedUnits  int                `json:"scanned_units"`
	ReceivedValue decimal.Decimal    `json:"received_value"`
}

func (s *Session) View() SessionView {
	orders := s.combiner.Orders()
	lines := s.tracker.Lines()

	v := SessionView{
		ID:            s.id,
		Tenant:        s.picker.Tenant,
		Operator:      s.picker.Picker,
		StartedAt:     s.started,
		Lines:         lines,
		Boxes:         s.ledger.Boxes(),
		Selections:    s.resolver.Selections(),
		Complete:      s.tracker.AllComplete(),
		ReceivedValue: decimal.Zero,
	}
	for i, o := range orders {
		v.Orders = append(v.Orders, OrderView{PurchaseOrder: o, Primary: i == 0, ProductCount: s.combiner.ProductCount(o.ID)})
	}
	for _, l := range lines {
		v.ExpectedUnits += l.Ceiling()
		v.ScannedUnits += l.Scanned
		v.ReceivedValue = v.ReceivedValue.Add(l.ReceivedValue())
	}

	s.mu.RLock()
	v.Incidents = append([]Incident(nil), s.incidents...)
	v.Failures = append([]provider.Failure(nil), s.failures...)
	s.mu.RUnlock()

	sort.SliceStable(v.Incidents, func(i, j int) bool { return v.Incidents[i].CreatedAt.Before(v.Incidents[j].CreatedAt) })
	return v
}
