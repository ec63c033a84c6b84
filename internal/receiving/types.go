package receiving

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder: header of a supplier order. Immutable once loaded.
type PurchaseOrder struct {
	ID         string    `json:"id"`
	Folio      string    `json:"folio"`
	SupplierID string    `json:"supplier_id"`
	Supplier   string    `json:"supplier"`
	Warehouse  string    `json:"warehouse"`
	Branch     string    `json:"branch"`
	CreatedAt  time.Time `json:"created_at"`
}

// LineKey identifies a line inside a combined session.
type LineKey struct {
	OrderID   string `json:"order_id"`
	ArticleID string `json:"article_id"`
}

func (k LineKey) String() string { return k.OrderID + "|" + k.ArticleID }

// OrderLine: one article of one purchase order.
//
// Scanned is session-local progress. Packed is the quantity confirmed for
// commit; it follows Scanned except after a manual decrement.
type OrderLine struct {
	OrderID         string          `json:"order_id"`
	ArticleID       string          `json:"article_id"`
	Code            string          `json:"code"`
	Barcode         string          `json:"barcode"`
	Description     string          `json:"description"`
	Unit            string          `json:"unit"`
	Expected        int             `json:"expected"`
	AlreadyReceived int             `json:"already_received"`
	Scanned         int             `json:"scanned"`
	Packed          int             `json:"packed"`
	Devolution      int             `json:"devolution"`
	Backorder       bool            `json:"backorder"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

func (l OrderLine) Key() LineKey { return LineKey{OrderID: l.OrderID, ArticleID: l.ArticleID} }

// Ceiling: most units this line can still absorb in total.
func (l OrderLine) Ceiling() int {
	c := l.Expected - l.Devolution - l.AlreadyReceived
	if c < 0 {
		return 0
	}
	return c
}

func (l OrderLine) Remaining() int { return l.Ceiling() - l.Scanned }

func (l OrderLine) Complete() bool { return l.Scanned >= l.Ceiling() }

// ReceivedValue: scanned units at unit cost.
func (l OrderLine) ReceivedValue() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(int64(l.Scanned)))
}

// InnerPackCode: secondary barcode worth Multiplier units of an article.
type InnerPackCode struct {
	Code       string `json:"code"`
	ArticleID  string `json:"article_id"`
	Multiplier int    `json:"multiplier"`
}

// Devolution: quantity of a line going back to the supplier.
type Devolution struct {
	OrderID   string `json:"order_id"`
	ArticleID string `json:"article_id"`
	Quantity  int    `json:"quantity"`
}

type IncidentKind string

const (
	IncidentDamaged      IncidentKind = "damaged"
	IncidentWrongArticle IncidentKind = "wrong_article"
	IncidentUnknownCode  IncidentKind = "unknown_code"
	IncidentOther        IncidentKind = "other"
)

// Incident: operator note about a line, kept with the draft.
type Incident struct {
	OrderID   string       `json:"order_id"`
	ArticleID string       `json:"article_id"`
	Kind      IncidentKind `json:"kind"`
	Note      string       `json:"note"`
	CreatedAt time.Time    `json:"created_at"`
}

// ReservationKind: what kind of demand holds the units.
type ReservationKind string

const (
	ReservationOrder    ReservationKind = "order"
	ReservationTransfer ReservationKind = "transfer"
)

type DestinationKind int

const (
	DestinationNone DestinationKind = iota
	DestinationAutoAssigned
	DestinationNeedsBoxSelection
)

func (k DestinationKind) String() string {
	switch k {
	case DestinationNone:
		return "none"
	case DestinationAutoAssigned:
		return "auto_assigned"
	case DestinationNeedsBoxSelection:
		return "needs_box_selection"
	default:
		return "unknown"
	}
}

// Destination is the result of resolving a code against outstanding demand.
// Only the fields of its Kind are meaningful.
type Destination struct {
	Kind         DestinationKind `json:"kind"`
	Box          string          `json:"box,omitempty"`
	Folio        string          `json:"folio,omitempty"`
	Reservation  ReservationKind `json:"reservation,omitempty"`
	TransferID   string          `json:"transfer_id,omitempty"`
	PendingUnits int             `json:"pending_units"`

	// Assignment is set when the backend already assigned the units in the
	// same round trip.
	Assignment *AssignResult `json:"assignment,omitempty"`
}

func NoDestination() Destination { return Destination{Kind: DestinationNone} }

func AutoAssigned(box, folio string, kind ReservationKind, pending int) Destination {
	return Destination{Kind: DestinationAutoAssigned, Box: box, Folio: folio, Reservation: kind, PendingUnits: pending}
}

func NeedsBoxSelection(folio string, kind ReservationKind, pending int) Destination {
	return Destination{Kind: DestinationNeedsBoxSelection, Folio: folio, Reservation: kind, PendingUnits: pending}
}

type BoxState int

const (
	BoxFree BoxState = iota
	BoxOccupied
)

func (s BoxState) String() string {
	if s == BoxOccupied {
		return "occupied"
	}
	return "free"
}

// Box: local mirror of a picking box. The backend owns the real state.
type Box struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	State    BoxState `json:"state"`
	Folio    string   `json:"folio,omitempty"`
	Articles int      `json:"assigned_articles"`
	Units    int      `json:"assigned_units"`
}

// ReservationEntry: one box assignment made during the session.
type ReservationEntry struct {
	Code       string          `json:"code"`
	Folio      string          `json:"folio"`
	Box        string          `json:"box"`
	Kind       ReservationKind `json:"kind"`
	TransferID string          `json:"transfer_id,omitempty"`
	Units      int             `json:"units"`
	Released   bool            `json:"released"`
	At         time.Time       `json:"at"`
}

// PendingSelection holds reserved units until the operator picks a box.
type PendingSelection struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	ArticleID    string          `json:"article_id"`
	Folio        string          `json:"folio"`
	Kind         ReservationKind `json:"kind"`
	TransferID   string          `json:"transfer_id,omitempty"`
	PendingUnits int             `json:"pending_units"`
	Units        int             `json:"units"`
	CreatedAt    time.Time       `json:"created_at"`
}
