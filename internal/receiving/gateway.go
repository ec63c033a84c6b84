package receiving

import (
	"context"

	"receiving-backend/internal/provider"
)

// SearchResult: either several candidate orders, or one order ready to load.
type SearchResult struct {
	Orders     []PurchaseOrder `json:"orders,omitempty"`
	Header     *PurchaseOrder  `json:"header,omitempty"`
	Lines      []OrderLine     `json:"lines,omitempty"`
	InnerPacks []InnerPackCode `json:"inner_packs,omitempty"`
}

// PickerContext: who is receiving and where.
type PickerContext struct {
	Tenant    string `json:"tenant"`
	Warehouse string `json:"warehouse"`
	Picker    string `json:"picker"`
}

type pickerKey struct{}

// WithPicker tags ctx with the operator a backend call is made for.
func WithPicker(ctx context.Context, p PickerContext) context.Context {
	return context.WithValue(ctx, pickerKey{}, p)
}

func PickerFromContext(ctx context.Context) (PickerContext, bool) {
	p, ok := ctx.Value(pickerKey{}).(PickerContext)
	return p, ok
}

type AssignRequest struct {
	Code       string          `json:"code"`
	Folio      string          `json:"folio"`
	Box        string          `json:"box"`
	Units      int             `json:"units"`
	Kind       ReservationKind `json:"kind"`
	TransferID string          `json:"transfer_id,omitempty"`
}

// AssignResult: Completed is nil when the backend did not report completion.
type AssignResult struct {
	OK        bool  `json:"ok"`
	Completed *bool `json:"completed,omitempty"`
}

type PendingSummary struct {
	PendingArticles int            `json:"pending_articles"`
	PendingUnits    int            `json:"pending_units"`
	PerBox          map[string]int `json:"per_box"`
}

type ReceiptLine struct {
	Code  string `json:"code"`
	Units int    `json:"units"`
}

type ReceiptRequest struct {
	Folio          string        `json:"folio"`
	OrderID        string        `json:"order_id"`
	Lines          []ReceiptLine `json:"lines"`
	Backorder      bool          `json:"backorder"`
	IdempotencyKey string        `json:"idempotency_key"`
}

type ReceiptResult struct {
	OK            bool   `json:"ok"`
	ReceiptFolio  string `json:"receipt_folio"`
	InsertedLines int    `json:"inserted_lines"`
}

type ReturnRequest struct {
	ReceiptFolio   string        `json:"receipt_folio"`
	Lines          []ReceiptLine `json:"lines"`
	IdempotencyKey string        `json:"idempotency_key"`
}

type ReturnResult struct {
	OK          bool   `json:"ok"`
	ReturnFolio string `json:"return_folio"`
}

// Gateway is the transactional backend the engine commits through.
type Gateway interface {
	SearchOrders(ctx context.Context, folio string) (*SearchResult, error)
	BulkResolveDestinations(ctx context.Context, codes []string) (map[string]Destination, error)
	ResolveDestination(ctx context.Context, code string, units int, picker PickerContext, autoAssign bool) (Destination, error)
	AssignToBox(ctx context.Context, req AssignRequest) (AssignResult, error)
	QueryPendingSummary(ctx context.Context, folio string) (PendingSummary, error)
	ReleaseBox(ctx context.Context, box string) error
	SubmitReceipt(ctx context.Context, req ReceiptRequest) (ReceiptResult, error)
	SubmitReturn(ctx context.Context, req ReturnRequest) (ReturnResult, error)

	provider.Validator
	provider.BatchValidator
}
