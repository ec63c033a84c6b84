package receiving

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CommitMode string

const (
	// CommitRequireComplete accepts lines that are complete or flagged as
	// backorder.
	CommitRequireComplete CommitMode = "require_complete"
	// CommitAcknowledgePartial: the operator accepted an incomplete receipt.
	CommitAcknowledgePartial CommitMode = "acknowledge_partial"
)

// CommitGroup: the receipt of one source order. ReceiptFolio is filled once
// the backend accepted it.
type CommitGroup struct {
	OrderID      string        `json:"order_id"`
	Folio        string        `json:"folio"`
	Lines        []ReceiptLine `json:"lines"`
	Backorder    bool          `json:"backorder"`
	ReceiptFolio string        `json:"receipt_folio,omitempty"`
}

type ReturnPlan struct {
	Lines       []ReceiptLine `json:"lines"`
	ReturnFolio string        `json:"return_folio,omitempty"`
}

// CommitBackup is the full computed payload, written before the first
// network call so a retry never re-derives allocations.
type CommitBackup struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Tenant    string        `json:"tenant_id"`
	Operator  string        `json:"operator"`
	CreatedAt time.Time     `json:"created_at"`
	Groups    []CommitGroup `json:"groups"`
	Return    *ReturnPlan   `json:"return,omitempty"`
}

type CommitResult struct {
	BackupID      string   `json:"backup_id"`
	ReceiptFolios []string `json:"receipt_folios"`
	PrimaryFolio  string   `json:"primary_folio"`
	ReturnFolio   string   `json:"return_folio,omitempty"`
}

// Committer turns a session into receipts and an optional supplier return.
type Committer struct {
	gw      Gateway
	backups BackupStore
	log     *zap.Logger
	audit   AuditFunc
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*CommitBackup
}

func NewCommitter(gw Gateway, backups BackupStore, log *zap.Logger, audit AuditFunc) *Committer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Committer{
		gw:      gw,
		backups: backups,
		log:     log,
		audit:   audit,
		now:     time.Now,
		pending: make(map[string]*CommitBackup),
	}
}

// Commit checks the mode, stores the backup and submits every group. A
// backup left by a failed attempt of the same session is resumed instead of
// recomputed.
func (c *Committer) Commit(ctx context.Context, s *Session, mode CommitMode) (CommitResult, error) {
	if s.Ended() {
		return CommitResult{}, ErrSessionEnded
	}
	if b, err := c.loadBackup(s.Owner()); err == nil && b != nil && b.SessionID == s.ID() {
		return c.run(ctx, s, b)
	}

	if !s.tracker.HasProgress() {
		return CommitResult{}, validationf("lines", "no hay unidades escaneadas para confirmar")
	}
	switch mode {
	case CommitRequireComplete:
		if !s.tracker.Acknowledged() {
			return CommitResult{}, ErrNotComplete
		}
	case CommitAcknowledgePartial:
	default:
		return CommitResult{}, validationf("mode", "modo de confirmación desconocido: %q", mode)
	}

	b := c.plan(s)
	if err := c.saveBackup(s.Owner(), b); err != nil {
		return CommitResult{}, fmt.Errorf("guardar respaldo de confirmación: %w", err)
	}
	return c.run(ctx, s, b)
}

// Retry resubmits the stored backup. Groups already accepted are skipped.
func (c *Committer) Retry(ctx context.Context, s *Session) (CommitResult, error) {
	if s.Ended() {
		return CommitResult{}, ErrSessionEnded
	}
	b, err := c.loadBackup(s.Owner())
	if err != nil {
		return CommitResult{}, fmt.Errorf("leer respaldo de confirmación: %w", err)
	}
	if b == nil {
		return CommitResult{}, ErrNoPendingCommit
	}
	return c.run(ctx, s, b)
}

// plan groups scanned lines by source order in combined-order sequence.
func (c *Committer) plan(s *Session) *CommitBackup {
	lines := s.tracker.Lines()
	b := &CommitBackup{
		ID:        uuid.NewString(),
		SessionID: s.ID(),
		Tenant:    s.Tenant(),
		Operator:  s.Owner(),
		CreatedAt: c.now(),
	}

	for _, o := range s.combiner.Orders() {
		g := CommitGroup{OrderID: o.ID, Folio: o.Folio}
		for _, l := range lines {
			if l.OrderID != o.ID {
				continue
			}
			if l.Scanned < l.Ceiling() {
				g.Backorder = true
			}
			if l.Scanned > 0 {
				g.Lines = append(g.Lines, ReceiptLine{Code: l.Code, Units: l.Scanned})
			}
		}
		if len(g.Lines) > 0 {
			b.Groups = append(b.Groups, g)
		}
	}

	if len(b.Groups) == 0 {
		return b
	}
	primary := b.Groups[0].OrderID
	var ret []ReceiptLine
	for _, l := range lines {
		if l.OrderID == primary && l.Devolution > 0 {
			ret = append(ret, ReceiptLine{Code: l.Code, Units: l.Devolution})
		}
	}
	if len(ret) > 0 {
		b.Return = &ReturnPlan{Lines: ret}
	}
	return b
}

func (c *Committer) run(ctx context.Context, s *Session, b *CommitBackup) (CommitResult, error) {
	ctx = WithPicker(ctx, s.picker)
	res := CommitResult{BackupID: b.ID}

	for i := range b.Groups {
		g := &b.Groups[i]
		if g.ReceiptFolio != "" {
			res.ReceiptFolios = append(res.ReceiptFolios, g.ReceiptFolio)
			continue
		}

		out, err := c.gw.SubmitReceipt(ctx, ReceiptRequest{
			Folio:          g.Folio,
			OrderID:        g.OrderID,
			Lines:          g.Lines,
			Backorder:      g.Backorder,
			IdempotencyKey: b.ID + ":" + g.OrderID,
		})
		if err == nil && !out.OK {
			err = errors.New("el servidor rechazó el recibo")
		}
		if err != nil {
			c.log.Error("receipt submission failed",
				zap.String("backup", b.ID),
				zap.String("order", g.OrderID),
				zap.Strings("receipts", res.ReceiptFolios),
				zap.Error(err),
			)
			return res, &CommitError{OrderID: g.OrderID, ReceiptFolios: res.ReceiptFolios, Err: err}
		}

		g.ReceiptFolio = out.ReceiptFolio
		res.ReceiptFolios = append(res.ReceiptFolios, out.ReceiptFolio)
		if err := c.saveBackup(s.Owner(), b); err != nil {
			c.log.Warn("backup progress not saved", zap.String("backup", b.ID), zap.Error(err))
		}
		c.record(s, "receipt", "receipt", out.ReceiptFolio,
			fmt.Sprintf("Recibo %s de la orden %s (%d líneas)", out.ReceiptFolio, g.Folio, out.InsertedLines), g)
	}
	if len(res.ReceiptFolios) > 0 {
		res.PrimaryFolio = res.ReceiptFolios[0]
	}

	if b.Return != nil && len(b.Return.Lines) > 0 {
		if b.Return.ReturnFolio == "" {
			out, err := c.gw.SubmitReturn(ctx, ReturnRequest{
				ReceiptFolio:   res.PrimaryFolio,
				Lines:          b.Return.Lines,
				IdempotencyKey: b.ID + ":return",
			})
			if err == nil && !out.OK {
				err = errors.New("el servidor rechazó la devolución")
			}
			if err != nil {
				c.log.Error("return submission failed",
					zap.String("backup", b.ID),
					zap.String("receipt", res.PrimaryFolio),
					zap.Error(err),
				)
				return res, &CommitError{OrderID: b.Groups[0].OrderID, ReceiptFolios: res.ReceiptFolios, Err: err}
			}
			b.Return.ReturnFolio = out.ReturnFolio
			c.record(s, "supplier_return", "return", out.ReturnFolio,
				fmt.Sprintf("Devolución %s sobre el recibo %s", out.ReturnFolio, res.PrimaryFolio), b.Return)
		}
		res.ReturnFolio = b.Return.ReturnFolio
	}

	if err := c.clearBackup(s.Owner()); err != nil {
		c.log.Warn("backup clear failed", zap.String("backup", b.ID), zap.Error(err))
	}
	s.end()

	c.log.Info("receiving committed",
		zap.String("backup", b.ID),
		zap.Strings("receipts", res.ReceiptFolios),
		zap.String("return", res.ReturnFolio),
	)
	return res, nil
}

func (c *Committer) record(s *Session, action, entity, id, desc string, data any) {
	if c.audit == nil {
		return
	}
	c.audit(AuditEvent{
		Tenant:      s.Tenant(),
		Operator:    s.Owner(),
		Action:      action,
		EntityType:  entity,
		EntityID:    id,
		Description: desc,
		Data:        data,
	})
}

// HasPending reports whether a failed commit waits for Retry.
func (c *Committer) HasPending(owner string) bool {
	b, err := c.loadBackup(owner)
	return err == nil && b != nil
}

func (c *Committer) saveBackup(owner string, b *CommitBackup) error {
	c.mu.Lock()
	c.pending[owner] = b
	c.mu.Unlock()
	if c.backups == nil {
		return nil
	}
	return c.backups.SaveBackup(owner, b)
}

func (c *Committer) loadBackup(owner string) (*CommitBackup, error) {
	c.mu.Lock()
	b := c.pending[owner]
	c.mu.Unlock()
	if b != nil || c.backups == nil {
		return b, nil
	}
	b, err := c.backups.LoadBackup(owner)
	if err != nil || b == nil {
		return nil, err
	}
	c.mu.Lock()
	c.pending[owner] = b
	c.mu.Unlock()
	return b, nil
}

func (c *Committer) clearBackup(owner string) error {
	c.mu.Lock()
	delete(c.pending, owner)
	c.mu.Unlock()
	if c.backups == nil {
		return nil
	}
	return c.backups.ClearBackup(owner)
}

// Discard drops a backup that will never be retried.
func (c *Committer) Discard(owner string) error {
	return c.clearBackup(owner)
}
