package erp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"receiving-backend/internal/database"
	"receiving-backend/internal/models"
	"receiving-backend/internal/receiving"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmitReceipt records one receipt and adds its units to the order lines.
// A key seen before returns the receipt it created.
func (g *Gateway) SubmitReceipt(ctx context.Context, req receiving.ReceiptRequest) (receiving.ReceiptResult, error) {
	p, tid, err := g.scope(ctx)
	if err != nil {
		return receiving.ReceiptResult{}, err
	}
	if prev, ok, err := g.existingReceipt(ctx, req.IdempotencyKey); err != nil || ok {
		return prev, err
	}
	orderID, err := strconv.ParseUint(req.OrderID, 10, 64)
	if err != nil {
		return receiving.ReceiptResult{}, &receiving.ValidationError{Field: "order_id", Message: "identificador de orden inválido: " + req.OrderID}
	}

	var rec models.Receipt
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var po models.PurchaseOrder
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Lines").
			Where("tenant_id = ?", tid).
			First(&po, orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &receiving.NotFoundError{What: "orden", Key: req.Folio}
		}
		if err != nil {
			return err
		}

		byCode := make(map[string]*models.PurchaseOrderLine, len(po.Lines))
		for i := range po.Lines {
			byCode[po.Lines[i].Code] = &po.Lines[i]
		}

		rec = models.Receipt{
			TenantID:        tid,
			Folio:           uuid.NewString(),
			PurchaseOrderID: po.ID,
			Operator:        p.Picker,
			Backorder:       req.Backorder,
			IdempotencyKey:  req.IdempotencyKey,
		}
		if rec.IdempotencyKey == "" {
			rec.IdempotencyKey = rec.Folio
		}
		for _, l := range req.Lines {
			pol, ok := byCode[l.Code]
			if !ok {
				return &receiving.ValidationError{Field: "lines", Message: fmt.Sprintf("el código %s no pertenece a la orden %s", l.Code, po.Folio)}
			}
			if l.Units <= 0 {
				continue
			}
			pol.Received += l.Units
			rec.Lines = append(rec.Lines, models.ReceiptLine{Code: l.Code, ArticleID: pol.ArticleID, Units: l.Units})
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		rec.Folio = fmt.Sprintf("R-%06d", rec.ID)
		if err := tx.Model(&rec).Update("folio", rec.Folio).Error; err != nil {
			return err
		}

		status := models.PurchaseOrderReceived
		for _, pol := range po.Lines {
			if err := tx.Model(&pol).Update("received", pol.Received).Error; err != nil {
				return err
			}
			if pol.Received < pol.Expected {
				status = models.PurchaseOrderPartial
			}
		}
		return tx.Model(&po).Update("status", status).Error
	})
	if database.IsUniqueViolation(err) {
		// A concurrent retry with the same key won.
		if prev, ok, lerr := g.existingReceipt(ctx, req.IdempotencyKey); lerr == nil && ok {
			return prev, nil
		}
	}
	if err != nil {
		return receiving.ReceiptResult{}, fmt.Errorf("registrar recibo de %s: %w", req.Folio, err)
	}

	g.log.Info("receipt stored",
		zap.String("receipt", rec.Folio),
		zap.String("order", req.Folio),
		zap.Int("lines", len(rec.Lines)),
		zap.Bool("backorder", req.Backorder),
	)
	return receiving.ReceiptResult{OK: true, ReceiptFolio: rec.Folio, InsertedLines: len(rec.Lines)}, nil
}

func (g *Gateway) existingReceipt(ctx context.Context, key string) (receiving.ReceiptResult, bool, error) {
	if key == "" {
		return receiving.ReceiptResult{}, false, nil
	}
	var rec models.Receipt
	err := g.db.WithContext(ctx).Preload("Lines").Where("idempotency_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return receiving.ReceiptResult{}, false, nil
	}
	if err != nil {
		return receiving.ReceiptResult{}, false, err
	}
	return receiving.ReceiptResult{OK: true, ReceiptFolio: rec.Folio, InsertedLines: len(rec.Lines)}, true, nil
}

// SubmitReturn records units sent back to the supplier against a receipt.
func (g *Gateway) SubmitReturn(ctx context.Context, req receiving.ReturnRequest) (receiving.ReturnResult, error) {
	_, tid, err := g.scope(ctx)
	if err != nil {
		return receiving.ReturnResult{}, err
	}
	if req.IdempotencyKey != "" {
		var prev models.SupplierReturn
		err := g.db.WithContext(ctx).Where("idempotency_key = ?", req.IdempotencyKey).First(&prev).Error
		if err == nil {
			return receiving.ReturnResult{OK: true, ReturnFolio: prev.Folio}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return receiving.ReturnResult{}, err
		}
	}

	var ret models.SupplierReturn
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.Receipt
		err := tx.Where("tenant_id = ? AND folio = ?", tid, req.ReceiptFolio).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &receiving.NotFoundError{What: "recibo", Key: req.ReceiptFolio}
		}
		if err != nil {
			return err
		}

		ret = models.SupplierReturn{
			TenantID:       tid,
			Folio:          uuid.NewString(),
			ReceiptID:      rec.ID,
			IdempotencyKey: req.IdempotencyKey,
		}
		if ret.IdempotencyKey == "" {
			ret.IdempotencyKey = ret.Folio
		}
		for _, l := range req.Lines {
			if l.Units > 0 {
				ret.Lines = append(ret.Lines, models.SupplierReturnLine{Code: l.Code, Units: l.Units})
			}
		}
		if len(ret.Lines) == 0 {
			return &receiving.ValidationError{Field: "lines", Message: "la devolución no tiene unidades"}
		}
		if err := tx.Create(&ret).Error; err != nil {
			return err
		}
		ret.Folio = fmt.Sprintf("D-%06d", ret.ID)
		return tx.Model(&ret).Update("folio", ret.Folio).Error
	})
	if err != nil {
		return receiving.ReturnResult{}, fmt.Errorf("registrar devolución sobre %s: %w", req.ReceiptFolio, err)
	}

	g.log.Info("supplier return stored",
		zap.String("return", ret.Folio),
		zap.String("receipt", req.ReceiptFolio),
		zap.Int("lines", len(ret.Lines)),
	)
	return receiving.ReturnResult{OK: true, ReturnFolio: ret.Folio}, nil
}
