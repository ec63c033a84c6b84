package receiving

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"receiving-backend/internal/provider"

	"github.com/shopspring/decimal"
)

var errNetwork = errors.New("connection reset by peer")

// fakeGateway is an in-memory backend. Destinations are consumed as units
// are assigned so completion can be observed.
type fakeGateway struct {
	mu sync.Mutex

	orders map[string]*SearchResult
	dests  map[string]Destination
	bulk   map[string]Destination

	resolveErr error
	bulkErr    error
	assignErr  error
	// completed, when set, is returned as the assignment completion flag.
	completed *bool
	pending   map[string]PendingSummary

	receiptErrs map[string]error
	returnErr   error

	resolveCalls  map[string]int
	bulkCalls     int
	assignCalls   []AssignRequest
	summaryCalls  int
	releaseCalls  map[string]int
	receipts      []ReceiptRequest
	returns       []ReturnRequest
	receiptSerial int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		orders:       make(map[string]*SearchResult),
		dests:        make(map[string]Destination),
		bulk:         make(map[string]Destination),
		pending:      make(map[string]PendingSummary),
		receiptErrs:  make(map[string]error),
		resolveCalls: make(map[string]int),
		releaseCalls: make(map[string]int),
	}
}

func (f *fakeGateway) addOrder(id, folio string, lines ...OrderLine) {
	for i := range lines {
		lines[i].OrderID = id
	}
	f.orders[folio] = &SearchResult{
		Header: &PurchaseOrder{ID: id, Folio: folio, SupplierID: "SUP-1", Supplier: "Proveedor Uno"},
		Lines:  lines,
	}
}

// reserve makes code resolve to d in bulk and per scan.
func (f *fakeGateway) reserve(code string, d Destination) {
	f.dests[code] = d
	f.bulk[code] = d
}

func (f *fakeGateway) SearchOrders(_ context.Context, folio string) (*SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res, ok := f.orders[folio]
	if !ok {
		return &SearchResult{}, nil
	}
	cp := *res
	cp.Lines = append([]OrderLine(nil), res.Lines...)
	return &cp, nil
}

func (f *fakeGateway) BulkResolveDestinations(_ context.Context, codes []string) (map[string]Destination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.bulkCalls++
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	out := make(map[string]Destination)
	for _, c := range codes {
		if d, ok := f.bulk[c]; ok {
			out[c] = d
		}
	}
	return out, nil
}

func (f *fakeGateway) ResolveDestination(_ context.Context, code string, _ int, _ PickerContext, _ bool) (Destination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resolveCalls[code]++
	if f.resolveErr != nil {
		return Destination{}, f.resolveErr
	}
	d, ok := f.dests[code]
	if !ok {
		return NoDestination(), nil
	}
	return d, nil
}

func (f *fakeGateway) AssignToBox(_ context.Context, req AssignRequest) (AssignResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.assignCalls = append(f.assignCalls, req)
	if f.assignErr != nil {
		return AssignResult{}, f.assignErr
	}
	if d, ok := f.dests[req.Code]; ok {
		d.PendingUnits -= req.Units
		if d.PendingUnits <= 0 {
			delete(f.dests, req.Code)
		} else {
			f.dests[req.Code] = d
		}
	}
	return AssignResult{OK: true, Completed: f.completed}, nil
}

func (f *fakeGateway) QueryPendingSummary(_ context.Context, folio string) (PendingSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.summaryCalls++
	return f.pending[folio], nil
}

func (f *fakeGateway) ReleaseBox(_ context.Context, box string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.releaseCalls[box]++
	return nil
}

func (f *fakeGateway) SubmitReceipt(_ context.Context, req ReceiptRequest) (ReceiptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.receiptErrs[req.OrderID]; err != nil {
		return ReceiptResult{}, err
	}
	f.receiptSerial++
	f.receipts = append(f.receipts, req)
	return ReceiptResult{OK: true, ReceiptFolio: fmt.Sprintf("R-%06d", f.receiptSerial), InsertedLines: len(req.Lines)}, nil
}

func (f *fakeGateway) SubmitReturn(_ context.Context, req ReturnRequest) (ReturnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.returnErr != nil {
		return ReturnResult{}, f.returnErr
	}
	f.returns = append(f.returns, req)
	return ReturnResult{OK: true, ReturnFolio: fmt.Sprintf("D-%06d", len(f.returns))}, nil
}

func (f *fakeGateway) ValidateAlternateCode(_ context.Context, code string) (provider.CodeCheck, error) {
	return provider.CodeCheck{}, nil
}

func (f *fakeGateway) ValidateCodes(_ context.Context, codes []string) (map[string]provider.CodeCheck, error) {
	return map[string]provider.CodeCheck{}, nil
}

func (f *fakeGateway) assigned() []AssignRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AssignRequest(nil), f.assignCalls...)
}

// memDrafts is a synchronous DraftStore and BackupStore.
type memDrafts struct {
	mu        sync.Mutex
	drafts    map[string]*Draft
	backups   map[string]*CommitBackup
	scheduled int
	saveErr   error
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[string]*Draft), backups: make(map[string]*CommitBackup)}
}

func (m *memDrafts) ScheduleSave(s Snapshotter) {
	m.mu.Lock()
	m.scheduled++
	m.mu.Unlock()
	_ = m.SaveNow(s.Snapshot())
}

func (m *memDrafts) SaveNow(d *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !d.HasProgress() {
		delete(m.drafts, d.Operator)
		return nil
	}
	m.drafts[d.Operator] = d
	return nil
}

func (m *memDrafts) Cancel(string) {}

func (m *memDrafts) Load(tenant, owner string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[owner]
	if !ok || d.Tenant != tenant {
		return nil, nil
	}
	return d, nil
}

func (m *memDrafts) Clear(owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, owner)
	return nil
}

func (m *memDrafts) SaveBackup(owner string, b *CommitBackup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *b
	cp.Groups = append([]CommitGroup(nil), b.Groups...)
	m.backups[owner] = &cp
	return nil
}

func (m *memDrafts) LoadBackup(owner string) (*CommitBackup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backups[owner], nil
}

func (m *memDrafts) ClearBackup(owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backups, owner)
	return nil
}

func (m *memDrafts) draft(owner string) *Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drafts[owner]
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func line(article, code string, expected int) OrderLine {
	return OrderLine{
		ArticleID:   article,
		Code:        code,
		Barcode:     "75" + code,
		Description: "Artículo " + article,
		Unit:        "PZA",
		Expected:    expected,
		UnitCost:    decimal.RequireFromString("12.50"),
	}
}

var testPicker = PickerContext{Tenant: "BASE1", Warehouse: "ALM-01", Picker: "7"}

func testDeps(gw *fakeGateway, store *memDrafts, clk *clock) Deps {
	return Deps{
		Gateway:      gw,
		Drafts:       store,
		Backups:      store,
		DedupeWindow: DefaultDedupeWindow,
		Now:          clk.Now,
	}
}

func boolPtr(b bool) *bool { return &b }
