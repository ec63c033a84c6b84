package receiving

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AssignOutcome: Completed means the reservation behind the folio is fully
// satisfied; Released means this call freed the box.
type AssignOutcome struct {
	Result    AssignResult `json:"result"`
	Completed bool         `json:"completed"`
	Released  bool         `json:"released"`
}

// BoxLedger is the single entry point for box assignments. It mirrors box
// state locally and releases a box once its reservation completes.
type BoxLedger struct {
	gw    Gateway
	log   *zap.Logger
	now   func() time.Time
	locks *keyedMutex

	// audit is called after a box is released.
	audit func(entry ReservationEntry)

	mu      sync.Mutex
	boxes   map[string]*Box
	codes   map[string]map[string]bool
	entries []ReservationEntry
}

func NewBoxLedger(gw Gateway, log *zap.Logger) *BoxLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &BoxLedger{
		gw:    gw,
		log:   log,
		now:   time.Now,
		locks: newKeyedMutex(),
		boxes: make(map[string]*Box),
		codes: make(map[string]map[string]bool),
	}
}

// Assign records units in the box server side, then checks completion and
// releases the box if the reservation is done.
func (b *BoxLedger) Assign(ctx context.Context, req AssignRequest) (AssignOutcome, error) {
	if err := validateAssign(req); err != nil {
		return AssignOutcome{}, err
	}

	unlock := b.locks.Lock("box:" + req.Box)
	defer unlock()

	if err := b.checkFree(req); err != nil {
		return AssignOutcome{}, err
	}

	res, err := b.gw.AssignToBox(ctx, req)
	if err != nil {
		return AssignOutcome{}, &TransientError{Op: "assignToBox", Err: err}
	}
	if !res.OK {
		return AssignOutcome{Result: res}, ErrAssignRejected
	}
	return b.afterAssign(ctx, req, res), nil
}

// Record registers an assignment the backend already made while resolving.
func (b *BoxLedger) Record(ctx context.Context, req AssignRequest, res AssignResult) (AssignOutcome, error) {
	if err := validateAssign(req); err != nil {
		return AssignOutcome{}, err
	}

	unlock := b.locks.Lock("box:" + req.Box)
	defer unlock()

	if !res.OK {
		return AssignOutcome{Result: res}, ErrAssignRejected
	}
	return b.afterAssign(ctx, req, res), nil
}

func validateAssign(req AssignRequest) error {
	if req.Box == "" {
		return validationf("box", "la caja es obligatoria")
	}
	if req.Units <= 0 {
		return validationf("units", "la cantidad a asignar debe ser mayor a cero")
	}
	return nil
}

func (b *BoxLedger) checkFree(req AssignRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if box, ok := b.boxes[req.Box]; ok && box.State == BoxOccupied && box.Folio != req.Folio {
		return ErrBoxOccupied
	}
	return nil
}

// afterAssign runs with the box key held.
func (b *BoxLedger) afterAssign(ctx context.Context, req AssignRequest, res AssignResult) AssignOutcome {
	b.mu.Lock()
	box, ok := b.boxes[req.Box]
	if !ok {
		box = &Box{ID: req.Box, Name: req.Box}
		b.boxes[req.Box] = box
	}
	if box.State == BoxFree {
		box.State = BoxOccupied
		box.Folio = req.Folio
		box.Articles = 0
		box.Units = 0
		b.codes[req.Box] = make(map[string]bool)
	}
	if !b.codes[req.Box][req.Code] {
		b.codes[req.Box][req.Code] = true
		box.Articles++
	}
	box.Units += req.Units
	b.entries = append(b.entries, ReservationEntry{
		Code:       req.Code,
		Folio:      req.Folio,
		Box:        req.Box,
		Kind:       req.Kind,
		TransferID: req.TransferID,
		Units:      req.Units,
		At:         b.now(),
	})
	b.mu.Unlock()

	out := AssignOutcome{Result: res}
	out.Completed = b.completed(ctx, req, res)
	if !out.Completed {
		return out
	}

	released, err := b.release(ctx, req.Box)
	if err != nil {
		b.log.Warn("box release failed after completion",
			zap.String("box", req.Box),
			zap.String("folio", req.Folio),
			zap.Error(err),
		)
	}
	out.Released = released
	return out
}

// completed trusts the flag from the assignment; only order reservations fall
// back to one pending-summary query when the flag is absent.
func (b *BoxLedger) completed(ctx context.Context, req AssignRequest, res AssignResult) bool {
	if res.Completed != nil {
		return *res.Completed
	}
	if req.Kind == ReservationTransfer {
		return false
	}

	sum, err := b.gw.QueryPendingSummary(ctx, req.Folio)
	if err != nil {
		b.log.Warn("pending summary unavailable",
			zap.String("folio", req.Folio),
			zap.Error(err),
		)
		return false
	}
	return sum.PendingUnits == 0 && sum.PendingArticles == 0
}

// Release frees the box. Releasing a box that is already free is a no-op.
func (b *BoxLedger) Release(ctx context.Context, box string) (bool, error) {
	unlock := b.locks.Lock("box:" + box)
	defer unlock()
	return b.release(ctx, box)
}

func (b *BoxLedger) release(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	box, known := b.boxes[id]
	if known && box.State == BoxFree {
		b.mu.Unlock()
		return false, nil
	}
	b.mu.Unlock()

	if err := b.gw.ReleaseBox(ctx, id); err != nil {
		return false, &TransientError{Op: "releaseBox", Err: err}
	}

	b.mu.Lock()
	if !known {
		box = &Box{ID: id, Name: id}
		b.boxes[id] = box
	}
	folio := box.Folio
	box.State = BoxFree
	box.Folio = ""
	box.Articles = 0
	box.Units = 0
	delete(b.codes, id)

	var last ReservationEntry
	for i := range b.entries {
		if b.entries[i].Box == id && !b.entries[i].Released {
			b.entries[i].Released = true
			last = b.entries[i]
		}
	}
	b.mu.Unlock()

	b.log.Info("box released", zap.String("box", id), zap.String("folio", folio))
	if b.audit != nil && last.Box != "" {
		b.audit(last)
	}
	return true, nil
}

func (b *BoxLedger) Box(id string) (Box, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	box, ok := b.boxes[id]
	if !ok {
		return Box{}, false
	}
	return *box, true
}

func (b *BoxLedger) Boxes() []Box {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Box, 0, len(b.boxes))
	for _, box := range b.boxes {
		out = append(out, *box)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Entries returns the reservation ledger in assignment order.
func (b *BoxLedger) Entries() []ReservationEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ReservationEntry(nil), b.entries...)
}

// Restore rebuilds the mirror from a saved ledger.
func (b *BoxLedger) Restore(entries []ReservationEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append([]ReservationEntry(nil), entries...)
	b.boxes = make(map[string]*Box)
	b.codes = make(map[string]map[string]bool)
	for _, e := range entries {
		box, ok := b.boxes[e.Box]
		if !ok {
			box = &Box{ID: e.Box, Name: e.Box}
			b.boxes[e.Box] = box
		}
		if e.Released {
			continue
		}
		if box.State == BoxFree {
			box.State = BoxOccupied
			box.Folio = e.Folio
			b.codes[e.Box] = make(map[string]bool)
		}
		if !b.codes[e.Box][e.Code] {
			b.codes[e.Box][e.Code] = true
			box.Articles++
		}
		box.Units += e.Units
	}
}
