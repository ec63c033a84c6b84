package erp

import (
	"context"
	"errors"
	"fmt"

	"receiving-backend/internal/models"
	"receiving-backend/internal/receiving"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BulkResolveDestinations answers every code with open demand in the
// operator's warehouse. Codes without demand are left out.
func (g *Gateway) BulkResolveDestinations(ctx context.Context, codes []string) (map[string]receiving.Destination, error) {
	p, tid, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]receiving.Destination)
	if len(codes) == 0 {
		return out, nil
	}

	var lines []models.ReservationLine
	err = g.db.WithContext(ctx).
		Where("tenant_id = ? AND warehouse = ? AND code IN ? AND assigned < pending", tid, p.Warehouse, codes).
		Order("created_at, id").
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("resolver %d códigos: %w", len(codes), err)
	}

	// Oldest demand wins; pending adds up across lines of the same folio.
	first := make(map[string]models.ReservationLine)
	pending := make(map[[2]string]int)
	folios := make(map[string]bool)
	for _, l := range lines {
		if _, ok := first[l.Code]; !ok {
			first[l.Code] = l
			folios[l.Folio] = true
		}
		pending[[2]string{l.Code, l.Folio}] += l.Open()
	}

	boxes, err := g.boxesByFolio(g.db.WithContext(ctx), tid, p.Warehouse, keys(folios))
	if err != nil {
		return nil, err
	}
	for code, l := range first {
		out[code] = destination(l, pending[[2]string{code, l.Folio}], boxes[l.Folio])
	}
	return out, nil
}

// ResolveDestination finds the oldest open demand for code. With autoAssign
// and a known box, the units are assigned in the same transaction.
func (g *Gateway) ResolveDestination(ctx context.Context, code string, units int, picker receiving.PickerContext, autoAssign bool) (receiving.Destination, error) {
	tid, err := g.tenantID(ctx, picker.Tenant)
	if err != nil {
		return receiving.Destination{}, err
	}

	var dest receiving.Destination
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l models.ReservationLine
		err := tx.Where("tenant_id = ? AND warehouse = ? AND code = ? AND assigned < pending", tid, picker.Warehouse, code).
			Order("created_at, id").
			First(&l).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dest = receiving.NoDestination()
			return nil
		}
		if err != nil {
			return err
		}

		var pending int64
		err = tx.Model(&models.ReservationLine{}).
			Where("tenant_id = ? AND code = ? AND folio = ? AND assigned < pending", tid, code, l.Folio).
			Select("COALESCE(SUM(pending - assigned), 0)").
			Scan(&pending).Error
		if err != nil {
			return err
		}

		boxes, err := g.boxesByFolio(tx, tid, picker.Warehouse, []string{l.Folio})
		if err != nil {
			return err
		}
		dest = destination(l, int(pending), boxes[l.Folio])

		if !autoAssign || dest.Kind != receiving.DestinationAutoAssigned || units <= 0 {
			return nil
		}
		res, err := g.assign(tx, tid, picker.Picker, receiving.AssignRequest{
			Code:       code,
			Folio:      dest.Folio,
			Box:        dest.Box,
			Units:      min(units, dest.PendingUnits),
			Kind:       dest.Reservation,
			TransferID: dest.TransferID,
		})
		if err != nil {
			return err
		}
		if res.OK {
			dest.Assignment = &res
		}
		return nil
	})
	if err != nil {
		return receiving.Destination{}, fmt.Errorf("resolver destino de %s: %w", code, err)
	}
	return dest, nil
}

func destination(l models.ReservationLine, pending int, box string) receiving.Destination {
	kind := receiving.ReservationOrder
	if l.Kind == models.ReservationTransfer {
		kind = receiving.ReservationTransfer
	}
	if box == "" {
		box = l.BoxCode
	}

	var d receiving.Destination
	if box != "" {
		d = receiving.AutoAssigned(box, l.Folio, kind, pending)
	} else {
		d = receiving.NeedsBoxSelection(l.Folio, kind, pending)
	}
	d.TransferID = l.TransferID
	return d
}

// boxesByFolio maps each folio to the box already holding it.
func (g *Gateway) boxesByFolio(db *gorm.DB, tid uint, warehouse string, folios []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(folios) == 0 {
		return out, nil
	}
	var boxes []models.Box
	err := db.Where("tenant_id = ? AND warehouse = ? AND folio IN ?", tid, warehouse, folios).
		Order("code").Find(&boxes).Error
	if err != nil {
		return nil, fmt.Errorf("buscar cajas: %w", err)
	}
	for _, b := range boxes {
		if _, ok := out[b.Folio]; !ok {
			out[b.Folio] = b.Code
		}
	}
	return out, nil
}

func (g *Gateway) AssignToBox(ctx context.Context, req receiving.AssignRequest) (receiving.AssignResult, error) {
	p, tid, err := g.scope(ctx)
	if err != nil {
		return receiving.AssignResult{}, err
	}

	var res receiving.AssignResult
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = g.assign(tx, tid, p.Picker, req)
		return err
	})
	if err != nil {
		return receiving.AssignResult{}, fmt.Errorf("asignar %s a la caja %s: %w", req.Code, req.Box, err)
	}
	return res, nil
}

// assign places up to req.Units on the open demand of req.Folio. The box row
// is locked so two operators never fill one box with different folios. A
// box held by another folio, or no open demand, answers OK=false.
func (g *Gateway) assign(tx *gorm.DB, tid uint, operator string, req receiving.AssignRequest) (receiving.AssignResult, error) {
	var box models.Box
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND code = ?", tid, req.Box).
		First(&box).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		g.log.Info("assignment to unknown box rejected")
		return receiving.AssignResult{OK: false}, nil
	}
	if err != nil {
		return receiving.AssignResult{}, err
	}
	if box.Folio != "" && box.Folio != req.Folio {
		return receiving.AssignResult{OK: false}, nil
	}

	var lines []models.ReservationLine
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND code = ? AND folio = ? AND assigned < pending", tid, req.Code, req.Folio).
		Order("created_at, id").
		Find(&lines).Error
	if err != nil {
		return receiving.AssignResult{}, err
	}

	left := req.Units
	for _, l := range lines {
		if left == 0 {
			break
		}
		take := min(l.Open(), left)
		if err := tx.Model(&l).Update("assigned", gorm.Expr("assigned + ?", take)).Error; err != nil {
			return receiving.AssignResult{}, err
		}
		a := models.BoxAssignment{
			TenantID:          tid,
			BoxID:             box.ID,
			ReservationLineID: l.ID,
			Code:              req.Code,
			Folio:             req.Folio,
			Units:             take,
			Operator:          operator,
		}
		if err := tx.Create(&a).Error; err != nil {
			return receiving.AssignResult{}, err
		}
		left -= take
	}
	placed := req.Units - left
	if placed == 0 {
		return receiving.AssignResult{OK: false}, nil
	}

	var articles int64
	err = tx.Model(&models.BoxAssignment{}).
		Where("box_id = ? AND folio = ?", box.ID, req.Folio).
		Distinct("code").
		Count(&articles).Error
	if err != nil {
		return receiving.AssignResult{}, err
	}
	err = tx.Model(&box).Updates(map[string]interface{}{
		"folio":    req.Folio,
		"articles": articles,
		"units":    gorm.Expr("units + ?", placed),
	}).Error
	if err != nil {
		return receiving.AssignResult{}, err
	}

	var open int64
	err = tx.Model(&models.ReservationLine{}).
		Where("tenant_id = ? AND folio = ? AND assigned < pending", tid, req.Folio).
		Count(&open).Error
	if err != nil {
		return receiving.AssignResult{}, err
	}
	completed := open == 0
	return receiving.AssignResult{OK: true, Completed: &completed}, nil
}

func (g *Gateway) QueryPendingSummary(ctx context.Context, folio string) (receiving.PendingSummary, error) {
	_, tid, err := g.scope(ctx)
	if err != nil {
		return receiving.PendingSummary{}, err
	}
	db := g.db.WithContext(ctx)

	var totals struct {
		Articles int
		Units    int
	}
	err = db.Model(&models.ReservationLine{}).
		Where("tenant_id = ? AND folio = ? AND assigned < pending", tid, folio).
		Select("COUNT(DISTINCT code) AS articles, COALESCE(SUM(pending - assigned), 0) AS units").
		Scan(&totals).Error
	if err != nil {
		return receiving.PendingSummary{}, fmt.Errorf("resumen pendiente de %s: %w", folio, err)
	}

	var rows []struct {
		Code  string
		Units int
	}
	err = db.Table("box_assignments").
		Select("boxes.code AS code, SUM(box_assignments.units) AS units").
		Joins("JOIN boxes ON boxes.id = box_assignments.box_id").
		Where("box_assignments.tenant_id = ? AND box_assignments.folio = ?", tid, folio).
		Group("boxes.code").
		Scan(&rows).Error
	if err != nil {
		return receiving.PendingSummary{}, fmt.Errorf("desglose por caja de %s: %w", folio, err)
	}

	sum := receiving.PendingSummary{
		PendingArticles: totals.Articles,
		PendingUnits:    totals.Units,
		PerBox:          make(map[string]int, len(rows)),
	}
	for _, r := range rows {
		sum.PerBox[r.Code] = r.Units
	}
	return sum, nil
}

// ReleaseBox frees the box for the next folio. Assignment rows stay as
// history.
func (g *Gateway) ReleaseBox(ctx context.Context, box string) error {
	_, tid, err := g.scope(ctx)
	if err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Model(&models.Box{}).
		Where("tenant_id = ? AND code = ?", tid, box).
		Updates(map[string]interface{}{"folio": "", "articles": 0, "units": 0})
	if res.Error != nil {
		return fmt.Errorf("liberar caja %s: %w", box, res.Error)
	}
	if res.RowsAffected == 0 {
		return &receiving.NotFoundError{What: "caja", Key: box}
	}
	return nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
