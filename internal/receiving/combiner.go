package receiving

import (
	"strings"
	"sync"
)

// OrderCombiner holds the orders of one receiving session. The primary is
// always the first entry; a session with a single order keeps it alone.
type OrderCombiner struct {
	mu     sync.Mutex
	orders []PurchaseOrder
	counts map[string]int
}

func NewOrderCombiner(primary PurchaseOrder, productCount int) *OrderCombiner {
	return &OrderCombiner{
		orders: []PurchaseOrder{primary},
		counts: map[string]int{primary.ID: productCount},
	}
}

func sameOrder(a, b PurchaseOrder) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	return a.Folio != "" && strings.EqualFold(a.Folio, b.Folio)
}

// Add appends an order after the ones already combined. A duplicate of the
// primary or of any combined order returns ErrDuplicateOrder.
func (c *OrderCombiner) Add(order PurchaseOrder, productCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.orders) == 0 {
		return ErrSessionEnded
	}
	for _, o := range c.orders {
		if sameOrder(o, order) {
			return ErrDuplicateOrder
		}
	}
	c.orders = append(c.orders, order)
	c.counts[order.ID] = productCount
	return nil
}

// Remove drops the order. Removing the primary promotes the next one by
// insertion order; ended is true when no order remains.
func (c *OrderCombiner) Remove(orderID string) (ended bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, o := range c.orders {
		if o.ID != orderID {
			continue
		}
		c.orders = append(c.orders[:i:i], c.orders[i+1:]...)
		delete(c.counts, orderID)
		return len(c.orders) == 0, nil
	}
	return false, &NotFoundError{What: "orden", Key: orderID}
}

func (c *OrderCombiner) Primary() (PurchaseOrder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.orders) == 0 {
		return PurchaseOrder{}, false
	}
	return c.orders[0], true
}

// Orders returns every order in combined-order sequence, primary first.
func (c *OrderCombiner) Orders() []PurchaseOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PurchaseOrder(nil), c.orders...)
}

// Combined reports whether more than one order is loaded.
func (c *OrderCombiner) Combined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orders) > 1
}

func (c *OrderCombiner) Has(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.counts[orderID]
	return ok
}

func (c *OrderCombiner) ProductCount(orderID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[orderID]
}

func (c *OrderCombiner) setCount(orderID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.counts[orderID]; ok {
		c.counts[orderID] = n
	}
}
