package receiving

import (
	"context"
	"errors"
	"testing"
)

func TestBoxLedgerCompletion(t *testing.T) {
	tests := []struct {
		name         string
		kind         ReservationKind
		completed    *bool
		pending      PendingSummary
		wantComplete bool
		wantSummary  int
	}{
		{"flag true", ReservationOrder, boolPtr(true), PendingSummary{PendingUnits: 5}, true, 0},
		{"flag false", ReservationOrder, boolPtr(false), PendingSummary{}, false, 0},
		{"fallback complete", ReservationOrder, nil, PendingSummary{}, true, 1},
		{"fallback units left", ReservationOrder, nil, PendingSummary{PendingUnits: 2, PendingArticles: 1}, false, 1},
		{"fallback articles left", ReservationOrder, nil, PendingSummary{PendingArticles: 1}, false, 1},
		{"transfer without flag", ReservationTransfer, nil, PendingSummary{}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.completed = tt.completed
			gw.pending["PED-1"] = tt.pending
			b := NewBoxLedger(gw, nil)

			out, err := b.Assign(context.Background(), AssignRequest{Code: "A1", Folio: "PED-1", Box: "C-01", Units: 3, Kind: tt.kind})
			if err != nil {
				t.Fatal(err)
			}
			if out.Completed != tt.wantComplete {
				t.Errorf("completed = %v, want %v", out.Completed, tt.wantComplete)
			}
			if gw.summaryCalls != tt.wantSummary {
				t.Errorf("pending summary calls = %d, want %d", gw.summaryCalls, tt.wantSummary)
			}
			wantRelease := 0
			if tt.wantComplete {
				wantRelease = 1
			}
			if gw.releaseCalls["C-01"] != wantRelease {
				t.Errorf("release calls = %d, want %d", gw.releaseCalls["C-01"], wantRelease)
			}
		})
	}
}

func TestBoxLedgerReleaseIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.completed = boolPtr(true)
	b := NewBoxLedger(gw, nil)
	ctx := context.Background()

	out, err := b.Assign(ctx, AssignRequest{Code: "A1", Folio: "PED-1", Box: "C-01", Units: 1, Kind: ReservationOrder})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Released {
		t.Fatal("box should be released on completion")
	}

	released, err := b.Release(ctx, "C-01")
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if released {
		t.Error("second release must be a no-op")
	}
	if gw.releaseCalls["C-01"] != 1 {
		t.Errorf("backend release calls = %d, want 1", gw.releaseCalls["C-01"])
	}
	box, _ := b.Box("C-01")
	if box.State != BoxFree {
		t.Errorf("box state = %s, want free", box.State)
	}
}

func TestBoxLedgerRejectsOtherFolio(t *testing.T) {
	gw := newFakeGateway()
	gw.completed = boolPtr(false)
	b := NewBoxLedger(gw, nil)
	ctx := context.Background()

	if _, err := b.Assign(ctx, AssignRequest{Code: "A1", Folio: "PED-1", Box: "C-01", Units: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Assign(ctx, AssignRequest{Code: "A2", Folio: "PED-1", Box: "C-01", Units: 1}); err != nil {
		t.Fatalf("same folio into same box: %v", err)
	}
	_, err := b.Assign(ctx, AssignRequest{Code: "A3", Folio: "PED-2", Box: "C-01", Units: 1})
	if !errors.Is(err, ErrBoxOccupied) {
		t.Fatalf("err = %v, want ErrBoxOccupied", err)
	}
	if len(gw.assigned()) != 2 {
		t.Errorf("rejected assignment must not reach the backend")
	}

	box, _ := b.Box("C-01")
	if box.Articles != 2 || box.Units != 3 || box.Folio != "PED-1" {
		t.Errorf("box = %+v, want 2 articles / 3 units for PED-1", box)
	}
}

func TestBoxLedgerRestore(t *testing.T) {
	b := NewBoxLedger(newFakeGateway(), nil)
	b.Restore([]ReservationEntry{
		{Code: "A1", Folio: "PED-1", Box: "C-01", Units: 2, Released: true},
		{Code: "A2", Folio: "PED-2", Box: "C-02", Units: 4},
	})

	if box, _ := b.Box("C-01"); box.State != BoxFree {
		t.Errorf("C-01 = %+v, want free", box)
	}
	box, _ := b.Box("C-02")
	if box.State != BoxOccupied || box.Folio != "PED-2" || box.Units != 4 {
		t.Errorf("C-02 = %+v, want occupied by PED-2 with 4 units", box)
	}
	if len(b.Entries()) != 2 {
		t.Errorf("entries = %d, want 2", len(b.Entries()))
	}
}
