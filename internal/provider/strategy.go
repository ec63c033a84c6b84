package provider

import (
	"context"
	"strings"
)

// LineItem: one row of a supplier invoice, as delivered by the invoice parser.
type LineItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

// Product: scannable unit produced by a strategy. ArticleID is empty when the
// strategy does not validate codes; the key then has to match a line code.
type Product struct {
	Key       string     `json:"key"`
	ArticleID string     `json:"article_id,omitempty"`
	Quantity  int        `json:"quantity"`
	SubKeys   []string   `json:"sub_keys,omitempty"`
	Items     []LineItem `json:"items"`
}

type FailureReason string

const (
	NeedsManualCode FailureReason = "needs_manual_code"
	UnknownArticle  FailureReason = "unknown_article"
)

// Failure: a key the operator has to fix before it becomes scannable.
type Failure struct {
	Key    string        `json:"key"`
	Reason FailureReason `json:"reason"`
	Items  []LineItem    `json:"items"`
}

type GroupResult struct {
	Products []Product `json:"products"`
	Failures []Failure `json:"failures"`
}

// MatchContext: what the caller already knows is scannable.
type MatchContext struct {
	Known func(key string) bool
}

func (m MatchContext) known(key string) bool {
	return key != "" && m.Known != nil && m.Known(key)
}

type MatchResult struct {
	Found          bool
	SearchKey      string
	ResolvedSubKey string
}

// Strategy canonicalizes one supplier's codes.
type Strategy interface {
	Name() string
	Normalize(raw string) string
	GroupLineItems(ctx context.Context, items []LineItem) (GroupResult, error)
	MatchScan(raw string, mctx MatchContext) MatchResult
}

// CodeCheck: backend answer for an alternate code.
type CodeCheck struct {
	ExistsAsArticle   bool   `json:"exists_as_article"`
	ArticleID         string `json:"article_id,omitempty"`
	AssignedElsewhere bool   `json:"assigned_elsewhere"`
}

type Validator interface {
	ValidateAlternateCode(ctx context.Context, code string) (CodeCheck, error)
}

type BatchValidator interface {
	ValidateCodes(ctx context.Context, codes []string) (map[string]CodeCheck, error)
}

// Registry maps supplier IDs to strategies. Unknown suppliers get the fallback.
type Registry struct {
	bySupplier map[string]Strategy
	fallback   Strategy
}

func NewRegistry(fallback Strategy) *Registry {
	if fallback == nil {
		fallback = Passthrough{}
	}
	return &Registry{
		bySupplier: make(map[string]Strategy),
		fallback:   fallback,
	}
}

func (r *Registry) Register(supplierID string, s Strategy) {
	r.bySupplier[strings.TrimSpace(supplierID)] = s
}

func (r *Registry) For(supplierID string) Strategy {
	if s, ok := r.bySupplier[strings.TrimSpace(supplierID)]; ok {
		return s
	}
	return r.fallback
}
