package erp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"receiving-backend/internal/models"
	"receiving-backend/internal/receiving"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoTenant = errors.New("la llamada no indica la base del operador")

// searchLimit caps the candidate list of a partial folio.
const searchLimit = 20

// Gateway is the Postgres backend of the receiving engine. The tenant and
// warehouse of each call come from the picker carried by the context.
type Gateway struct {
	db  *gorm.DB
	log *zap.Logger

	mu      sync.Mutex
	tenants map[string]uint
}

var _ receiving.Gateway = (*Gateway)(nil)

func NewGateway(db *gorm.DB, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{db: db, log: log, tenants: make(map[string]uint)}
}

func (g *Gateway) scope(ctx context.Context) (receiving.PickerContext, uint, error) {
	p, ok := receiving.PickerFromContext(ctx)
	if !ok || p.Tenant == "" {
		return receiving.PickerContext{}, 0, ErrNoTenant
	}
	id, err := g.tenantID(ctx, p.Tenant)
	return p, id, err
}

func (g *Gateway) tenantID(ctx context.Context, code string) (uint, error) {
	g.mu.Lock()
	id, ok := g.tenants[code]
	g.mu.Unlock()
	if ok {
		return id, nil
	}

	var t models.Tenant
	err := g.db.WithContext(ctx).Where("code = ?", code).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, &receiving.NotFoundError{What: "base", Key: code}
	}
	if err != nil {
		return 0, fmt.Errorf("buscar base %s: %w", code, err)
	}

	g.mu.Lock()
	g.tenants[code] = t.ID
	g.mu.Unlock()
	return t.ID, nil
}

// SearchOrders looks up open orders by exact folio, then by prefix. One hit
// is loaded with its lines; several come back as candidates.
func (g *Gateway) SearchOrders(ctx context.Context, folio string) (*receiving.SearchResult, error) {
	p, tid, err := g.scope(ctx)
	if err != nil {
		return nil, err
	}
	folio = strings.TrimSpace(folio)

	open := func() *gorm.DB {
		q := g.db.WithContext(ctx).
			Where("tenant_id = ? AND status IN ?", tid, []models.PurchaseOrderStatus{models.PurchaseOrderOpen, models.PurchaseOrderPartial})
		if p.Warehouse != "" {
			q = q.Where("warehouse = ?", p.Warehouse)
		}
		return q
	}

	var orders []models.PurchaseOrder
	if err := open().Where("LOWER(folio) = LOWER(?)", folio).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("buscar orden %s: %w", folio, err)
	}
	if len(orders) == 0 {
		err := open().Where("LOWER(folio) LIKE LOWER(?)", escapeLike(folio)+"%").
			Order("folio").Limit(searchLimit).Find(&orders).Error
		if err != nil {
			return nil, fmt.Errorf("buscar órdenes %s: %w", folio, err)
		}
	}

	switch len(orders) {
	case 0:
		return &receiving.SearchResult{}, nil
	case 1:
		return g.loadOrder(ctx, tid, orders[0].ID)
	}

	res := &receiving.SearchResult{Orders: make([]receiving.PurchaseOrder, 0, len(orders))}
	for _, o := range orders {
		res.Orders = append(res.Orders, header(o))
	}
	return res, nil
}

func (g *Gateway) loadOrder(ctx context.Context, tid, id uint) (*receiving.SearchResult, error) {
	var o models.PurchaseOrder
	err := g.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("tenant_id = ?", tid).
		First(&o, id).Error
	if err != nil {
		return nil, fmt.Errorf("cargar orden %d: %w", id, err)
	}

	h := header(o)
	res := &receiving.SearchResult{Header: &h, Lines: make([]receiving.OrderLine, 0, len(o.Lines))}
	articles := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		res.Lines = append(res.Lines, receiving.OrderLine{
			OrderID:         h.ID,
			ArticleID:       l.ArticleID,
			Code:            l.Code,
			Barcode:         l.Barcode,
			Description:     l.Description,
			Unit:            l.Unit,
			Expected:        l.Expected,
			AlreadyReceived: l.Received,
			UnitCost:        l.UnitCost,
		})
		articles = append(articles, l.ArticleID)
	}

	if len(articles) > 0 {
		var packs []models.InnerPackCode
		err := g.db.WithContext(ctx).
			Where("tenant_id = ? AND article_id IN ?", tid, articles).
			Order("code").Find(&packs).Error
		if err != nil {
			return nil, fmt.Errorf("cargar empaques de la orden %d: %w", id, err)
		}
		for _, pk := range packs {
			res.InnerPacks = append(res.InnerPacks, receiving.InnerPackCode{
				Code:       pk.Code,
				ArticleID:  pk.ArticleID,
				Multiplier: pk.Multiplier,
			})
		}
	}
	return res, nil
}

func header(o models.PurchaseOrder) receiving.PurchaseOrder {
	return receiving.PurchaseOrder{
		ID:         strconv.FormatUint(uint64(o.ID), 10),
		Folio:      o.Folio,
		SupplierID: o.SupplierID,
		Supplier:   o.SupplierName,
		Warehouse:  o.Warehouse,
		Branch:     o.Branch,
		CreatedAt:  o.CreatedAt,
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
