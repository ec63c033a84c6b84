package erp

import (
	"context"
	"fmt"

	"receiving-backend/internal/models"
	"receiving-backend/internal/provider"
)

// ValidateAlternateCode reports which article a supplier code stands for.
// A code that is an article code and also an alias of a different article is
// flagged as assigned elsewhere.
func (g *Gateway) ValidateAlternateCode(ctx context.Context, code string) (provider.CodeCheck, error) {
	checks, err := g.ValidateCodes(ctx, []string{code})
	if err != nil {
		return provider.CodeCheck{}, err
	}
	return checks[code], nil
}

func (g *Gateway) ValidateCodes(ctx context.Context, codes []string) (map[string]provider.CodeCheck, error) {
	_, tid, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]provider.CodeCheck, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	db := g.db.WithContext(ctx)

	var articles []models.Article
	err = db.Where("tenant_id = ? AND (code IN ? OR barcode IN ?)", tid, codes, codes).Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("validar %d códigos: %w", len(codes), err)
	}
	var aliases []models.AlternateCode
	if err := db.Where("tenant_id = ? AND code IN ?", tid, codes).Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("validar %d códigos alternos: %w", len(codes), err)
	}

	for _, a := range articles {
		for _, key := range []string{a.Code, a.Barcode} {
			if key != "" {
				out[key] = provider.CodeCheck{ExistsAsArticle: true, ArticleID: a.ArticleID}
			}
		}
	}
	for _, alt := range aliases {
		check, ok := out[alt.Code]
		switch {
		case !ok:
			out[alt.Code] = provider.CodeCheck{ExistsAsArticle: true, ArticleID: alt.ArticleID}
		case check.ArticleID != alt.ArticleID:
			check.AssignedElsewhere = true
			out[alt.Code] = check
		}
	}

	// Only answer what was asked.
	res := make(map[string]provider.CodeCheck, len(codes))
	for _, c := range codes {
		if check, ok := out[c]; ok {
			res[c] = check
		}
	}
	return res, nil
}
