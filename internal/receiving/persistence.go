package receiving

import (
	"time"
)

// Draft is the persisted state of a session in progress.
type Draft struct {
	SessionID         string             `json:"session_id"`
	Tenant            string             `json:"tenant_id"`
	Operator          string             `json:"operator"`
	Warehouse         string             `json:"warehouse"`
	PrimaryOrder      PurchaseOrder      `json:"primary_order"`
	CombinedOrders    []PurchaseOrder    `json:"combined_orders"`
	Lines             []OrderLine        `json:"lines"`
	InnerPacks        []InnerPackCode    `json:"inner_packs"`
	Devolutions       []Devolution       `json:"devolutions"`
	Incidents         []Incident         `json:"incidents"`
	ReservationLedger []ReservationEntry `json:"reservation_ledger"`
	PendingSelections []PendingSelection `json:"pending_selections"`
	Aliases           map[string]string  `json:"aliases,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

// HasProgress reports whether any line has scanned units.
func (d *Draft) HasProgress() bool {
	if d == nil {
		return false
	}
	for _, l := range d.Lines {
		if l.Scanned > 0 {
			return true
		}
	}
	return false
}

// Snapshotter is what a draft store needs from a live session.
type Snapshotter interface {
	Owner() string
	Snapshot() *Draft
}

// DraftStore persists drafts per operator. Load returns nil, nil when there
// is nothing to restore, including drafts discarded as stale. Saving a draft
// without progress removes the stored one.
type DraftStore interface {
	ScheduleSave(s Snapshotter)
	SaveNow(d *Draft) error
	Cancel(owner string)
	Load(tenant, owner string) (*Draft, error)
	Clear(owner string) error
}

// BackupStore keeps the computed commit payload until the commit succeeds.
type BackupStore interface {
	SaveBackup(owner string, b *CommitBackup) error
	LoadBackup(owner string) (*CommitBackup, error)
	ClearBackup(owner string) error
}

// AuditEvent describes a completed side effect worth recording.
type AuditEvent struct {
	Tenant      string
	Operator    string
	Action      string
	EntityType  string
	EntityID    string
	Description string
	Data        any
}

type AuditFunc func(AuditEvent)
