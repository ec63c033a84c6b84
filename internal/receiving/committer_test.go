package receiving

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCommitRequiresCompletion(t *testing.T) {
	gw := newFakeGateway()
	gw.addOrder("PO-1", "OC-100", line("ART-1", "A1", 3))
	clk := newClock()
	m, s := startSession(t, gw, newMemDrafts(), clk, "OC-100")
	ctx := context.Background()

	if _, err := m.Commit(ctx, testPicker, CommitRequireComplete); !IsValidation(err) {
		t.Fatalf("commit without progress: err = %v", err)
	}
	scan(t, s, clk, "A1")
	if _, err := m.Commit(ctx, testPicker, CommitRequireComplete); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("short line commit: err = %v, want ErrNotComplete", err)
	}
	if len(gw.receipts) != 0 {
		t.Fatal("rejected commit must not reach the backend")
	}

	res, err := m.Commit(ctx, testPicker, CommitAcknowledgePartial)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ReceiptFolios) != 1 || !gw.receipts[0].Backorder {
		t.Fatalf("partial commit = %+v, receipts %+v; want backorder flag", res, gw.receipts)
	}
}

func TestCommitGroupsBySourceOrderWithReturn(t *testing.T) {
	gw := newFakeGateway()
	gw.addOrder("PO-A", "OC-A", line("ART-1", "A1", 5), line("ART-2", "A2", 10))
	gw.addOrder("PO-B", "OC-B", line("ART-1", "A1", 3), line("ART-3", "A3", 2))
	clk := newClock()
	m, s := startSession(t, gw, newMemDrafts(), clk, "OC-A")
	ctx := context.Background()
	if _, err := s.Combine(ctx, "OC-B"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 8; i++ {
		scan(t, s, clk, "A1")
	}
	if _, err := s.SetQuantity("ART-2", 6, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDevolution(LineKey{OrderID: "PO-A", ArticleID: "ART-2"}, 4); err != nil {
		t.Fatal(err)
	}

	res, err := m.Commit(ctx, testPicker, CommitAcknowledgePartial)
	if err != nil {
		t.Fatal(err)
	}
	if len(gw.receipts) != 2 {
		t.Fatalf("receipts = %d, want one per source order", len(gw.receipts))
	}
	if gw.receipts[0].OrderID != "PO-A" || gw.receipts[0].Backorder {
		t.Errorf("first receipt = %+v, want PO-A without backorder", gw.receipts[0])
	}
	if gw.receipts[1].OrderID != "PO-B" || !gw.receipts[1].Backorder {
		t.Errorf("second receipt = %+v, want PO-B flagged backorder (ART-3 short)", gw.receipts[1])
	}
	if len(gw.receipts[1].Lines) != 1 {
		t.Errorf("PO-B lines = %+v, want only the scanned article", gw.receipts[1].Lines)
	}
	if gw.receipts[0].IdempotencyKey == gw.receipts[1].IdempotencyKey {
		t.Error("idempotency keys must differ per group")
	}

	if len(gw.returns) != 1 {
		t.Fatalf("returns = %d, want 1", len(gw.returns))
	}
	ret := gw.returns[0]
	if ret.ReceiptFolio != res.PrimaryFolio || len(ret.Lines) != 1 || ret.Lines[0].Units != 4 {
		t.Errorf("return = %+v, want 4 units against %s", ret, res.PrimaryFolio)
	}
	if res.ReturnFolio == "" {
		t.Error("return folio missing from result")
	}
}

func TestCommitPartialFailureThenRetry(t *testing.T) {
	gw := newFakeGateway()
	gw.addOrder("PO-A", "OC-A", line("ART-1", "A1", 2))
	gw.addOrder("PO-B", "OC-B", line("ART-2", "A2", 2))
	gw.receiptErrs["PO-B"] = errNetwork
	store := newMemDrafts()
	clk := newClock()
	m, s := startSession(t, gw, store, clk, "OC-A")
	ctx := context.Background()
	if _, err := s.Combine(ctx, "OC-B"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		scan(t, s, clk, "A1")
		scan(t, s, clk, "A2")
	}

	_, err := m.Commit(ctx, testPicker, CommitRequireComplete)
	var cerr *CommitError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CommitError", err)
	}
	if cerr.OrderID != "PO-B" || len(cerr.ReceiptFolios) != 1 {
		t.Fatalf("commit error = %+v, want PO-B failing after one receipt", cerr)
	}
	if store.draft(testPicker.Picker) == nil {
		t.Fatal("draft must survive a failed commit")
	}
	if !m.HasPendingCommit(testPicker) {
		t.Fatal("backup must be kept for retry")
	}

	// Edits wait for the retry; the stored payload is what gets submitted.
	if _, err := s.Adjust("ART-1", -1, ""); !errors.Is(err, ErrCommitPending) {
		t.Fatalf("adjust err = %v, want ErrCommitPending", err)
	}
	clk.Advance(time.Second)
	if _, err := s.Scan(ctx, "A2", ""); !errors.Is(err, ErrCommitPending) {
		t.Fatalf("scan err = %v, want ErrCommitPending", err)
	}
	if _, err := s.RemoveOrder("PO-B"); !errors.Is(err, ErrCommitPending) {
		t.Fatalf("remove err = %v, want ErrCommitPending", err)
	}
	got, _ := s.tracker.Line(LineKey{OrderID: "PO-A", ArticleID: "ART-1"})
	if got.Scanned != 2 {
		t.Fatalf("scanned = %d after rejected edits, want 2", got.Scanned)
	}

	delete(gw.receiptErrs, "PO-B")
	res, err := m.Retry(ctx, testPicker)
	if err != nil {
		t.Fatal(err)
	}
	if len(gw.receipts) != 2 {
		t.Fatalf("receipts = %d, want PO-A once and PO-B once", len(gw.receipts))
	}
	if len(res.ReceiptFolios) != 2 || res.ReceiptFolios[0] != cerr.ReceiptFolios[0] {
		t.Fatalf("retry result = %+v, want the first folio kept", res)
	}
	if gw.receipts[1].Lines[0].Units != 2 {
		t.Errorf("retry resubmitted %d units, want the backed up 2", gw.receipts[1].Lines[0].Units)
	}
	if m.HasPendingCommit(testPicker) {
		t.Error("backup must be cleared after success")
	}
	if store.draft(testPicker.Picker) != nil {
		t.Error("draft must be cleared after success")
	}
}

func TestRetryWithoutBackup(t *testing.T) {
	gw := newFakeGateway()
	gw.addOrder("PO-1", "OC-100", line("ART-1", "A1", 3))
	m, _ := startSession(t, gw, newMemDrafts(), newClock(), "OC-100")

	if _, err := m.Retry(context.Background(), testPicker); !errors.Is(err, ErrNoPendingCommit) {
		t.Fatalf("err = %v, want ErrNoPendingCommit", err)
	}
}

func TestCommitErrorMessageStatesProgressKept(t *testing.T) {
	err := &CommitError{OrderID: "PO-B", ReceiptFolios: []string{"R-000001"}, Err: errNetwork}
	msg := err.Error()
	for _, want := range []string{"PO-B", "R-000001", "se conserva"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q lacks %q", msg, want)
		}
	}
	if !errors.Is(err, errNetwork) {
		t.Error("CommitError should unwrap to the cause")
	}
}
