package receiving

import (
	"context"
	"errors"
	"testing"
)

func productCountSum(s *Session) int {
	n := 0
	for _, o := range s.combiner.Orders() {
		n += s.combiner.ProductCount(o.ID)
	}
	return n
}

func TestCombinerRejectsDuplicates(t *testing.T) {
	c := NewOrderCombiner(PurchaseOrder{ID: "1", Folio: "OC-100"}, 2)

	tests := []struct {
		name  string
		order PurchaseOrder
	}{
		{"same id as primary", PurchaseOrder{ID: "1", Folio: "OC-999"}},
		{"same folio as primary", PurchaseOrder{ID: "9", Folio: "oc-100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Add(tt.order, 1); !errors.Is(err, ErrDuplicateOrder) {
				t.Fatalf("err = %v, want ErrDuplicateOrder", err)
			}
		})
	}

	if err := c.Add(PurchaseOrder{ID: "2", Folio: "OC-200"}, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.Add(PurchaseOrder{ID: "2", Folio: "OC-200"}, 1); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("re-adding combined order: err = %v", err)
	}
}

func TestCombinerPrimaryPromotion(t *testing.T) {
	c := NewOrderCombiner(PurchaseOrder{ID: "1"}, 1)
	if c.Combined() {
		t.Fatal("single order should not be combined")
	}
	for _, id := range []string{"2", "3"} {
		if err := c.Add(PurchaseOrder{ID: id}, 1); err != nil {
			t.Fatal(err)
		}
	}
	if p, _ := c.Primary(); p.ID != "1" {
		t.Fatalf("primary = %s, want existing primary first", p.ID)
	}

	ended, err := c.Remove("1")
	if err != nil || ended {
		t.Fatalf("remove primary: ended=%v err=%v", ended, err)
	}
	if p, _ := c.Primary(); p.ID != "2" {
		t.Fatalf("primary after removal = %s, want 2", p.ID)
	}

	if _, err := c.Remove("2"); err != nil {
		t.Fatal(err)
	}
	ended, err = c.Remove("3")
	if err != nil || !ended {
		t.Fatalf("removing last order: ended=%v err=%v", ended, err)
	}
	if _, ok := c.Primary(); ok {
		t.Fatal("no primary expected after last removal")
	}
}

func TestSessionCombineKeepsProductCounts(t *testing.T) {
	gw := newFakeGateway()
	gw.addOrder("PO-A", "OC-100", line("ART-1", "A1", 5), line("ART-2", "A2", 4))
	gw.addOrder("PO-B", "OC-200", line("ART-1", "A1", 3), line("ART-3", "A3", 1), line("ART-3", "A3", 1))
	store := newMemDrafts()
	m := NewManager(testDeps(gw, store, newClock()))
	ctx := context.Background()

	s, _, err := m.Start(ctx, testPicker, "OC-100")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Combine(ctx, "OC-200"); err != nil {
		t.Fatal(err)
	}
	if got, want := productCountSum(s), s.tracker.Len(); got != want {
		t.Fatalf("product count sum = %d, distinct lines = %d", got, want)
	}
	if s.combiner.ProductCount("PO-B") != 2 {
		t.Errorf("PO-B product count = %d, want 2 (repeated article merged)", s.combiner.ProductCount("PO-B"))
	}

	if _, err := s.Combine(ctx, "OC-100"); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("combining primary again: err = %v", err)
	}

	ended, err := s.RemoveOrder("PO-A")
	if err != nil || ended {
		t.Fatalf("remove PO-A: ended=%v err=%v", ended, err)
	}
	if got, want := productCountSum(s), s.tracker.Len(); got != want {
		t.Fatalf("after removal: product count sum = %d, distinct lines = %d", got, want)
	}
	if s.currentIndex().Has("A2") {
		t.Error("codes of removed order must leave the index")
	}
	if !s.currentIndex().Has("A1") {
		t.Error("A1 still belongs to PO-B")
	}

	ended, err = s.RemoveOrder("PO-B")
	if err != nil || !ended {
		t.Fatalf("remove last order: ended=%v err=%v", ended, err)
	}
	if _, err := m.Get(testPicker); !errors.Is(err, ErrNoSession) {
		t.Fatalf("ended session still served: %v", err)
	}
}
