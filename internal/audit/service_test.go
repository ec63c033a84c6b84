package audit

import (
	"testing"

	"receiving-backend/internal/models"
)

func TestNewEntry(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"nil data is json null", nil, "null"},
		{"payload marshalled", map[string]int{"units": 4}, `{"units":4}`},
		{"unmarshalable falls back to null", make(chan int), "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEntry(LogOptions{
				TenantID:   2,
				UserID:     7,
				EntityType: "receipt",
				EntityID:   "R-000001",
				Action:     models.AuditActionReceipt,
				Data:       tt.data,
			})
			if e.Data != tt.want {
				t.Errorf("data = %q, want %q", e.Data, tt.want)
			}
			if e.EntityID != "R-000001" || e.TenantID != 2 || e.Action != models.AuditActionReceipt {
				t.Errorf("entry = %+v", e)
			}
		})
	}
}
