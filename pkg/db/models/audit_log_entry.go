package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is append-only. Every state-changing operation in the
// payments engine writes exactly one entry.
type AuditLogEntry struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	Action     string          `gorm:"column:action;not null;index"`
	EntityType string          `gorm:"column:entity_type;not null"`
	EntityID   string          `gorm:"column:entity_id;not null;index"`
	OldValue   json.RawMessage `gorm:"column:old_value;type:jsonb"`
	NewValue   json.RawMessage `gorm:"column:new_value;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides GORM's pluralization.
func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}
