package audit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"receiving-backend/internal/models"
	"receiving-backend/internal/receiving"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LogOptions struct {
	TenantID    uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Data        any
}

func newEntry(opts LogOptions) models.AuditLog {
	// jsonb rejects an empty string; store JSON null instead.
	data := "null"
	if opts.Data != nil {
		if b, err := json.Marshal(opts.Data); err == nil {
			data = string(b)
		}
	}

	return models.AuditLog{
		TenantID:    opts.TenantID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		Data:        data,
	}
}

func WriteLog(db *gorm.DB, opts LogOptions) error {
	entry := newEntry(opts)
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("no se pudo guardar el registro de auditoría: %w", err)
	}
	return nil
}

// Recorder writes receiving events to the audit table. Tenant codes and
// operator names are looked up once and cached.
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger

	mu      sync.Mutex
	tenants map[string]uint
	names   map[uint]string
}

func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		db:      db,
		log:     log,
		tenants: make(map[string]uint),
		names:   make(map[uint]string),
	}
}

// Record is a receiving.AuditFunc. Failures are logged; an audit row never
// blocks a receipt.
func (r *Recorder) Record(e receiving.AuditEvent) {
	opts := LogOptions{
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      models.AuditAction(e.Action),
		Description: e.Description,
		Data:        e.Data,
	}
	if id, err := strconv.ParseUint(e.Operator, 10, 64); err == nil {
		opts.UserID = uint(id)
		opts.UserName = r.userName(opts.UserID)
	}
	opts.TenantID = r.tenantID(e.Tenant)

	if err := WriteLog(r.db, opts); err != nil {
		r.log.Error("audit write failed",
			zap.String("action", e.Action),
			zap.String("entity", e.EntityType),
			zap.String("entity_id", e.EntityID),
			zap.Error(err),
		)
	}
}

func (r *Recorder) tenantID(code string) uint {
	r.mu.Lock()
	id, ok := r.tenants[code]
	r.mu.Unlock()
	if ok {
		return id
	}

	var t models.Tenant
	if err := r.db.Where("code = ?", code).First(&t).Error; err != nil {
		return 0
	}
	r.mu.Lock()
	r.tenants[code] = t.ID
	r.mu.Unlock()
	return t.ID
}

func (r *Recorder) userName(id uint) string {
	r.mu.Lock()
	name, ok := r.names[id]
	r.mu.Unlock()
	if ok {
		return name
	}

	var u models.User
	if err := r.db.Select("id", "name").First(&u, id).Error; err != nil {
		return ""
	}
	r.mu.Lock()
	r.names[id] = u.Name
	r.mu.Unlock()
	return u.Name
}
