package provider

import (
	"context"
	"fmt"
)

// ModelGrouping groups invoice items by a fixed-length model prefix. A model
// is scannable only after its key resolves through the alternate-code table.
type ModelGrouping struct {
	PrefixLen int
	Validator Validator
}

func (ModelGrouping) Name() string { return "model" }

func (ModelGrouping) Normalize(raw string) string { return NormalizeCode(raw) }

func (s ModelGrouping) GroupLineItems(ctx context.Context, items []LineItem) (GroupResult, error) {
	var order []string
	groups := make(map[string][]LineItem)
	for _, it := range items {
		code := NormalizeCode(it.Code)
		if code == "" {
			continue
		}
		key := modelKey(code, s.PrefixLen)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], it)
	}

	var res GroupResult
	for _, key := range order {
		members := groups[key]
		if s.Validator == nil {
			res.Failures = append(res.Failures, Failure{Key: key, Reason: NeedsManualCode, Items: members})
			continue
		}
		check, err := s.Validator.ValidateAlternateCode(ctx, key)
		if err != nil {
			return GroupResult{}, fmt.Errorf("validate model %s: %w", key, err)
		}
		if !check.ExistsAsArticle || check.AssignedElsewhere || check.ArticleID == "" {
			res.Failures = append(res.Failures, Failure{Key: key, Reason: NeedsManualCode, Items: members})
			continue
		}

		p := Product{Key: key, ArticleID: check.ArticleID, Items: members}
		seen := make(map[string]bool)
		for _, m := range members {
			p.Quantity += m.Quantity
			sub := NormalizeCode(m.Code)
			if sub != key && !seen[sub] {
				seen[sub] = true
				p.SubKeys = append(p.SubKeys, sub)
			}
		}
		res.Products = append(res.Products, p)
	}
	return res, nil
}

// MatchScan prefers the full code and falls back to its model prefix, so a
// line's own barcode keeps working next to the grouped model.
func (s ModelGrouping) MatchScan(raw string, mctx MatchContext) MatchResult {
	code := NormalizeCode(raw)
	if mctx.known(code) {
		return MatchResult{Found: true, SearchKey: code}
	}
	key := modelKey(code, s.PrefixLen)
	if key != code && mctx.known(key) {
		return MatchResult{Found: true, SearchKey: key, ResolvedSubKey: code}
	}
	return MatchResult{SearchKey: code}
}

// BatchValidated keeps every invoice item independent and resolves all
// codes in one backend call.
type BatchValidated struct {
	Validator BatchValidator
}

func (BatchValidated) Name() string { return "batch" }

func (BatchValidated) Normalize(raw string) string { return NormalizeCode(raw) }

func (s BatchValidated) GroupLineItems(ctx context.Context, items []LineItem) (GroupResult, error) {
	var codes []string
	seen := make(map[string]bool)
	for _, it := range items {
		code := NormalizeCode(it.Code)
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}

	checks := map[string]CodeCheck{}
	if s.Validator != nil && len(codes) > 0 {
		var err error
		checks, err = s.Validator.ValidateCodes(ctx, codes)
		if err != nil {
			return GroupResult{}, fmt.Errorf("validate %d codes: %w", len(codes), err)
		}
	}

	var res GroupResult
	for _, it := range items {
		code := NormalizeCode(it.Code)
		if code == "" {
			continue
		}
		check, ok := checks[code]
		if !ok || !check.ExistsAsArticle || check.ArticleID == "" {
			res.Failures = append(res.Failures, Failure{Key: code, Reason: UnknownArticle, Items: []LineItem{it}})
			continue
		}
		res.Products = append(res.Products, Product{
			Key:       code,
			ArticleID: check.ArticleID,
			Quantity:  it.Quantity,
			Items:     []LineItem{it},
		})
	}
	return res, nil
}

func (BatchValidated) MatchScan(raw string, mctx MatchContext) MatchResult {
	code := NormalizeCode(raw)
	return MatchResult{Found: mctx.known(code), SearchKey: code}
}

// Passthrough trusts supplier codes as printed.
type Passthrough struct{}

func (Passthrough) Name() string { return "passthrough" }

func (Passthrough) Normalize(raw string) string { return NormalizeCode(raw) }

func (Passthrough) GroupLineItems(_ context.Context, items []LineItem) (GroupResult, error) {
	var res GroupResult
	for _, it := range items {
		code := NormalizeCode(it.Code)
		if code == "" {
			continue
		}
		res.Products = append(res.Products, Product{Key: code, Quantity: it.Quantity, Items: []LineItem{it}})
	}
	return res, nil
}

func (Passthrough) MatchScan(raw string, mctx MatchContext) MatchResult {
	code := NormalizeCode(raw)
	return MatchResult{Found: mctx.known(code), SearchKey: code}
}
