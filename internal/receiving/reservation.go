package receiving

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type OutcomeKind string

const (
	OutcomeNoReservation  OutcomeKind = "no_reservation"
	OutcomeAssigned       OutcomeKind = "assigned"
	OutcomeOrderComplete  OutcomeKind = "order_complete"
	OutcomeNeedsSelection OutcomeKind = "needs_selection"
	OutcomeTransient      OutcomeKind = "transient"
)

// ResolveOutcome splits scanned units: Reserved + Held + Surplus is always
// the scanned quantity. Reserved went into a box and Surplus goes to the
// receiving line. Held units are still owed, not dropped: ChooseBox reserves
// them and Decline moves them to the line.
type ResolveOutcome struct {
	Kind        OutcomeKind       `json:"kind"`
	Reserved    int               `json:"reserved_units"`
	Held        int               `json:"held_units"`
	Surplus     int               `json:"surplus_units"`
	Destination Destination       `json:"destination"`
	Selection   *PendingSelection `json:"selection,omitempty"`
	Released    bool              `json:"box_released"`
}

func surplusOnly(kind OutcomeKind, units int) ResolveOutcome {
	return ResolveOutcome{Kind: kind, Surplus: units, Destination: NoDestination()}
}

// ReservationResolver decides how many scanned units are already promised to
// a pending customer order or transfer.
type ReservationResolver struct {
	gw       Gateway
	ledger   *BoxLedger
	negative NegativeCache
	picker   PickerContext
	log      *zap.Logger
	now      func() time.Time
	flight   singleflight.Group

	mu         sync.Mutex
	bulk       map[string]Destination
	fetched    map[string]bool
	selections map[string]*PendingSelection
}

func NewReservationResolver(gw Gateway, ledger *BoxLedger, negative NegativeCache, picker PickerContext, log *zap.Logger) *ReservationResolver {
	if negative == nil {
		negative = NewMemoryNegativeCache(DefaultNegativeTTL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationResolver{
		gw:         gw,
		ledger:     ledger,
		negative:   negative,
		picker:     picker,
		log:        log,
		now:        time.Now,
		bulk:       make(map[string]Destination),
		fetched:    make(map[string]bool),
		selections: make(map[string]*PendingSelection),
	}
}

// Prefetch loads destinations for codes not fetched yet in one call. Codes
// the backend leaves out are cached as negative. Concurrent calls for the
// same code set share one request.
func (r *ReservationResolver) Prefetch(ctx context.Context, codes []string) error {
	r.mu.Lock()
	var todo []string
	for _, c := range codes {
		if c != "" && !r.fetched[c] {
			todo = append(todo, c)
		}
	}
	r.mu.Unlock()
	if len(todo) == 0 {
		return nil
	}
	sort.Strings(todo)

	_, err, _ := r.flight.Do(strings.Join(todo, ","), func() (any, error) {
		found, err := r.gw.BulkResolveDestinations(ctx, todo)
		if err != nil {
			return nil, &TransientError{Op: "bulkResolveDestinations", Err: err}
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		for _, c := range todo {
			r.fetched[c] = true
			dest, ok := found[c]
			if !ok || dest.Kind == DestinationNone {
				r.negative.Put(ctx, c)
				continue
			}
			r.bulk[c] = dest
		}
		return nil, nil
	})
	return err
}

// take removes the bulk entry: it is good for one claim only.
func (r *ReservationResolver) take(code string) (Destination, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dest, ok := r.bulk[code]
	if ok {
		delete(r.bulk, code)
	}
	return dest, ok
}

// Resolve splits units of code between reservation and surplus and performs
// the box assignment for auto-assigned destinations. Transport failures give
// a surplus-only outcome and leave the negative cache untouched.
//
// A NeedsSelection outcome splits as Reserved + Held + Surplus = units. Held
// units are not lost: they wait for ChooseBox, or reach the receiving line
// through Decline.
func (r *ReservationResolver) Resolve(ctx context.Context, code, articleID string, units int) (ResolveOutcome, error) {
	return r.ResolveWithin(ctx, code, articleID, units, units)
}

// ResolveWithin resolves a scan whose surplus can take at most maxSurplus
// units. A split that would leave more returns a *CapacityError before any
// box is assigned; a prefetched destination stays cached.
func (r *ReservationResolver) ResolveWithin(ctx context.Context, code, articleID string, units, maxSurplus int) (ResolveOutcome, error) {
	if units <= 0 {
		return ResolveOutcome{}, validationf("units", "la cantidad debe ser mayor a cero")
	}
	fits := func(surplus int) error {
		if surplus > maxSurplus {
			return &CapacityError{ArticleID: articleID, Surplus: surplus, Capacity: max(maxSurplus, 0)}
		}
		return nil
	}

	dest, cached := r.take(code)
	if !cached {
		if r.negative.Has(ctx, code) {
			if err := fits(units); err != nil {
				return ResolveOutcome{}, err
			}
			return surplusOnly(OutcomeNoReservation, units), nil
		}

		// The backend assigns in the same call only when any split fits.
		var err error
		dest, err = r.gw.ResolveDestination(ctx, code, units, r.picker, units <= maxSurplus)
		if err != nil {
			if ferr := fits(units); ferr != nil {
				return ResolveOutcome{}, ferr
			}
			r.log.Warn("reservation resolve failed, receiving units as surplus",
				zap.String("code", code),
				zap.Int("units", units),
				zap.Error(err),
			)
			return surplusOnly(OutcomeTransient, units), nil
		}
	}

	if dest.Kind == DestinationNone {
		r.negative.Put(ctx, code)
		if err := fits(units); err != nil {
			return ResolveOutcome{}, err
		}
		return surplusOnly(OutcomeNoReservation, units), nil
	}

	claimable := min(units, max(dest.PendingUnits, 0))
	surplus := units - claimable
	if err := fits(surplus); err != nil {
		if cached {
			r.restore(code, dest)
		}
		return ResolveOutcome{}, err
	}
	if claimable == 0 {
		return surplusOnly(OutcomeNoReservation, units), nil
	}

	if dest.Kind == DestinationNeedsBoxSelection {
		sel := r.hold(code, articleID, dest, claimable)
		return ResolveOutcome{Kind: OutcomeNeedsSelection, Held: claimable, Surplus: surplus, Destination: dest, Selection: sel}, nil
	}

	req := AssignRequest{
		Code:       code,
		Folio:      dest.Folio,
		Box:        dest.Box,
		Units:      claimable,
		Kind:       dest.Reservation,
		TransferID: dest.TransferID,
	}
	var (
		res AssignOutcome
		err error
	)
	if dest.Assignment != nil {
		res, err = r.ledger.Record(ctx, req, *dest.Assignment)
	} else {
		res, err = r.ledger.Assign(ctx, req)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrBoxOccupied), errors.Is(err, ErrAssignRejected):
		// The suggested box cannot take the units; the operator picks another.
		r.log.Info("auto-assigned box unavailable, asking for a box",
			zap.String("code", code),
			zap.String("box", dest.Box),
			zap.Error(err),
		)
		alt := NeedsBoxSelection(dest.Folio, dest.Reservation, dest.PendingUnits)
		alt.TransferID = dest.TransferID
		sel := r.hold(code, articleID, alt, claimable)
		return ResolveOutcome{Kind: OutcomeNeedsSelection, Held: claimable, Surplus: surplus, Destination: alt, Selection: sel}, nil
	default:
		if ferr := fits(units); ferr != nil {
			return ResolveOutcome{}, ferr
		}
		r.log.Warn("box assignment failed, receiving units as surplus",
			zap.String("code", code),
			zap.String("box", dest.Box),
			zap.Error(err),
		)
		return surplusOnly(OutcomeTransient, units), nil
	}

	kind := OutcomeAssigned
	if res.Completed {
		kind = OutcomeOrderComplete
	}
	return ResolveOutcome{Kind: kind, Reserved: claimable, Surplus: surplus, Destination: dest, Released: res.Released}, nil
}

// restore puts back a bulk entry that was taken but not claimed.
func (r *ReservationResolver) restore(code string, dest Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulk[code] = dest
}

func (r *ReservationResolver) hold(code, articleID string, dest Destination, units int) *PendingSelection {
	sel := &PendingSelection{
		ID:           uuid.NewString(),
		Code:         code,
		ArticleID:    articleID,
		Folio:        dest.Folio,
		Kind:         dest.Reservation,
		TransferID:   dest.TransferID,
		PendingUnits: dest.PendingUnits,
		Units:        units,
		CreatedAt:    r.now(),
	}
	r.mu.Lock()
	r.selections[sel.ID] = sel
	r.mu.Unlock()

	cp := *sel
	return &cp
}

// ChooseBox assigns the held units of a selection to the chosen box. On
// failure the selection stays pending.
func (r *ReservationResolver) ChooseBox(ctx context.Context, selectionID, box string) (ResolveOutcome, error) {
	r.mu.Lock()
	sel, ok := r.selections[selectionID]
	if ok {
		delete(r.selections, selectionID)
	}
	r.mu.Unlock()
	if !ok {
		return ResolveOutcome{}, ErrUnknownSelection
	}

	res, err := r.ledger.Assign(ctx, AssignRequest{
		Code:       sel.Code,
		Folio:      sel.Folio,
		Box:        box,
		Units:      sel.Units,
		Kind:       sel.Kind,
		TransferID: sel.TransferID,
	})
	if err != nil {
		r.mu.Lock()
		r.selections[sel.ID] = sel
		r.mu.Unlock()
		return ResolveOutcome{}, err
	}

	kind := OutcomeAssigned
	if res.Completed {
		kind = OutcomeOrderComplete
	}
	dest := AutoAssigned(box, sel.Folio, sel.Kind, sel.PendingUnits)
	dest.TransferID = sel.TransferID
	return ResolveOutcome{Kind: kind, Reserved: sel.Units, Destination: dest, Released: res.Released}, nil
}

// Decline drops a pending selection; its units belong to the receiving line.
func (r *ReservationResolver) Decline(selectionID string) (PendingSelection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel, ok := r.selections[selectionID]
	if !ok {
		return PendingSelection{}, ErrUnknownSelection
	}
	delete(r.selections, selectionID)
	return *sel, nil
}

func (r *ReservationResolver) Selections() []PendingSelection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PendingSelection, 0, len(r.selections))
	for _, s := range r.selections {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *ReservationResolver) RestoreSelections(sels []PendingSelection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range sels {
		cp := s
		r.selections[s.ID] = &cp
	}
}
