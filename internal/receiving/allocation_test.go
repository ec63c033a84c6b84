package receiving

import (
	"testing"
)

func checkBounds(t *testing.T, tr *AllocationTracker) {
	t.Helper()
	for _, l := range tr.Lines() {
		if l.Scanned < 0 || l.Scanned > l.Ceiling() {
			t.Fatalf("line %s: scanned %d outside [0, %d]", l.Key(), l.Scanned, l.Ceiling())
		}
	}
}

func TestApplyScanFillsFirstIncompleteLine(t *testing.T) {
	tr := NewAllocationTracker()
	a := line("ART-1", "A1", 5)
	a.OrderID = "PO-A"
	b := line("ART-1", "A1", 3)
	b.OrderID = "PO-B"
	tr.AddLines([]OrderLine{a})
	tr.AddLines([]OrderLine{b})

	for i := 0; i < 5; i++ {
		res, err := tr.ApplyScan("ART-1", 1, "")
		if err != nil {
			t.Fatalf("scan %d: %v", i+1, err)
		}
		if res.Line.OrderID != "PO-A" {
			t.Fatalf("scan %d went to %s, want PO-A", i+1, res.Line.OrderID)
		}
	}

	res, err := tr.ApplyScan("ART-1", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Line.OrderID != "PO-B" {
		t.Fatalf("6th scan went to %s, want PO-B", res.Line.OrderID)
	}

	got, _ := tr.Line(LineKey{OrderID: "PO-B", ArticleID: "ART-1"})
	if got.Scanned != 1 {
		t.Errorf("PO-B scanned = %d, want 1", got.Scanned)
	}
	checkBounds(t, tr)
}

func TestApplyScanLimitReached(t *testing.T) {
	tr := NewAllocationTracker()
	l := line("ART-1", "A1", 2)
	l.OrderID = "PO-A"
	tr.AddLines([]OrderLine{l})

	if _, err := tr.ApplyScan("ART-1", 2, ""); err != nil {
		t.Fatal(err)
	}
	res, err := tr.ApplyScan("ART-1", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.LimitReached || res.Applied != 0 {
		t.Fatalf("got %+v, want limit reached with nothing applied", res)
	}
	got, _ := tr.Line(l.Key())
	if got.Scanned != 2 {
		t.Errorf("scanned = %d, want 2", got.Scanned)
	}
}

func TestApplyScanRejectsOverflow(t *testing.T) {
	tr := NewAllocationTracker()
	l := line("ART-1", "A1", 4)
	l.OrderID = "PO-A"
	tr.AddLines([]OrderLine{l})
	if _, err := tr.ApplyScan("ART-1", 3, ""); err != nil {
		t.Fatal(err)
	}

	_, err := tr.ApplyScan("ART-1", 6, "")
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	got, _ := tr.Line(l.Key())
	if got.Scanned != 3 {
		t.Errorf("scanned = %d, want 3 after rejected scan", got.Scanned)
	}
}

func TestApplyScanSpillsAcrossOrders(t *testing.T) {
	tr := NewAllocationTracker()
	a := line("ART-1", "A1", 2)
	a.OrderID = "PO-A"
	b := line("ART-1", "A1", 10)
	b.OrderID = "PO-B"
	tr.AddLines([]OrderLine{a, b})

	res, err := tr.ApplyScan("ART-1", 6, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Allocations) != 2 || res.Allocations[0].Units != 2 || res.Allocations[1].Units != 4 {
		t.Fatalf("allocations = %+v, want 2 then 4", res.Allocations)
	}
	checkBounds(t, tr)
}

func TestApplyScanHint(t *testing.T) {
	tr := NewAllocationTracker()
	a := line("ART-1", "A1", 5)
	a.OrderID = "PO-A"
	b := line("ART-1", "A1", 3)
	b.OrderID = "PO-B"
	tr.AddLines([]OrderLine{a, b})

	res, err := tr.ApplyScan("ART-1", 2, "PO-B")
	if err != nil {
		t.Fatal(err)
	}
	if res.Line.OrderID != "PO-B" {
		t.Fatalf("hinted scan went to %s", res.Line.OrderID)
	}
	if _, err := tr.ApplyScan("ART-1", 2, "PO-B"); !IsValidation(err) {
		t.Fatalf("err = %v, want validation error past PO-B ceiling", err)
	}
}

func TestApplyScanUnknownArticle(t *testing.T) {
	tr := NewAllocationTracker()
	if _, err := tr.ApplyScan("NOPE", 1, ""); !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDevolutionCompletesLine(t *testing.T) {
	tr := NewAllocationTracker()
	l := line("ART-1", "A1", 10)
	l.OrderID = "PO-A"
	tr.AddLines([]OrderLine{l})
	if _, err := tr.ApplyScan("ART-1", 6, ""); err != nil {
		t.Fatal(err)
	}

	if err := tr.SetDevolution(l.Key(), 4); err != nil {
		t.Fatal(err)
	}
	got, _ := tr.Line(l.Key())
	if !got.Complete() {
		t.Errorf("line with scanned 6, expected 10, devolution 4 should be complete")
	}

	if err := tr.SetDevolution(l.Key(), 11); !IsValidation(err) {
		t.Fatalf("devolution 11 err = %v, want validation error", err)
	}
	if err := tr.SetDevolution(l.Key(), 5); !IsValidation(err) {
		t.Fatalf("devolution 5 err = %v, want validation error (ceiling below scanned)", err)
	}
	got, _ = tr.Line(l.Key())
	if got.Devolution != 4 {
		t.Errorf("devolution = %d, want 4 after rejected edits", got.Devolution)
	}
}

func TestCeilingIncludesAlreadyReceived(t *testing.T) {
	tr := NewAllocationTracker()
	l := line("ART-1", "A1", 10)
	l.OrderID = "PO-A"
	l.AlreadyReceived = 7
	tr.AddLines([]OrderLine{l})

	if _, err := tr.ApplyScan("ART-1", 4, ""); !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	res, err := tr.Fill("ART-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied != 3 {
		t.Errorf("fill applied %d, want 3", res.Applied)
	}
}

func TestManualEdits(t *testing.T) {
	tests := []struct {
		name    string
		run     func(tr *AllocationTracker) error
		scanned int
		packed  int
		wantErr bool
	}{
		{
			name: "set quantity",
			run: func(tr *AllocationTracker) error {
				_, err := tr.SetQuantity("ART-1", 7, "")
				return err
			},
			scanned: 7, packed: 7,
		},
		{
			name: "set quantity above ceiling",
			run: func(tr *AllocationTracker) error {
				_, err := tr.SetQuantity("ART-1", 11, "")
				return err
			},
			scanned: 4, packed: 4, wantErr: true,
		},
		{
			name: "set negative quantity",
			run: func(tr *AllocationTracker) error {
				_, err := tr.SetQuantity("ART-1", -1, "")
				return err
			},
			scanned: 4, packed: 4, wantErr: true,
		},
		{
			name: "decrement",
			run: func(tr *AllocationTracker) error {
				_, err := tr.Adjust("ART-1", -3, "")
				return err
			},
			scanned: 1, packed: 1,
		},
		{
			name: "decrement below zero",
			run: func(tr *AllocationTracker) error {
				_, err := tr.Adjust("ART-1", -5, "")
				return err
			},
			scanned: 4, packed: 4, wantErr: true,
		},
		{
			name: "increment",
			run: func(tr *AllocationTracker) error {
				_, err := tr.Adjust("ART-1", 2, "")
				return err
			},
			scanned: 6, packed: 6,
		},
		{
			name: "fill",
			run: func(tr *AllocationTracker) error {
				_, err := tr.Fill("ART-1", "")
				return err
			},
			scanned: 10, packed: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewAllocationTracker()
			l := line("ART-1", "A1", 10)
			l.OrderID = "PO-A"
			tr.AddLines([]OrderLine{l})
			if _, err := tr.ApplyScan("ART-1", 4, ""); err != nil {
				t.Fatal(err)
			}

			err := tt.run(tr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			got, _ := tr.Line(l.Key())
			if got.Scanned != tt.scanned || got.Packed != tt.packed {
				t.Errorf("scanned/packed = %d/%d, want %d/%d", got.Scanned, got.Packed, tt.scanned, tt.packed)
			}
			checkBounds(t, tr)
		})
	}
}

func TestDecrementTakesFromLastLineWithProgress(t *testing.T) {
	tr := NewAllocationTracker()
	a := line("ART-1", "A1", 2)
	a.OrderID = "PO-A"
	b := line("ART-1", "A1", 5)
	b.OrderID = "PO-B"
	tr.AddLines([]OrderLine{a, b})
	if _, err := tr.ApplyScan("ART-1", 4, ""); err != nil {
		t.Fatal(err)
	}

	res, err := tr.Adjust("ART-1", -1, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Line.OrderID != "PO-B" {
		t.Fatalf("decrement hit %s, want PO-B", res.Line.OrderID)
	}
	got, _ := tr.Line(b.Key())
	if got.Scanned != 1 {
		t.Errorf("PO-B scanned = %d, want 1", got.Scanned)
	}
}

func TestAcknowledged(t *testing.T) {
	tr := NewAllocationTracker()
	l := line("ART-1", "A1", 3)
	l.OrderID = "PO-A"
	tr.AddLines([]OrderLine{l})
	if _, err := tr.ApplyScan("ART-1", 1, ""); err != nil {
		t.Fatal(err)
	}
	if tr.Acknowledged() {
		t.Fatal("incomplete line without backorder flag must not be acknowledged")
	}
	if err := tr.SetBackorder(l.Key(), true); err != nil {
		t.Fatal(err)
	}
	if !tr.Acknowledged() {
		t.Fatal("backorder flag should acknowledge the short line")
	}
	if tr.AllComplete() {
		t.Fatal("line is still short")
	}
}
