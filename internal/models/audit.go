package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditEvent is an append-only record of an engine or user action
type AuditEvent struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	BoardID    *string   `gorm:"size:36;index" json:"board_id,omitempty"`
	TaskID     *string   `gorm:"size:36;index" json:"task_id,omitempty"`
	ActorID    *string   `gorm:"size:36" json:"actor_id,omitempty"`
	EventType  string    `gorm:"size:100;not null;index" json:"event_type"`
	EntityType string    `gorm:"size:50;not null" json:"entity_type"`
	EntityID   *string   `gorm:"size:36" json:"entity_id,omitempty"`
	Payload    JSONMap   `gorm:"type:text" json:"payload"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for AuditEvent
func (AuditEvent) TableName() string {
	return "audit_events"
}

// BeforeCreate hook to generate ID if not set
func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = NewID()
	}
	return nil
}
