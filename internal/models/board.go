package models

import (
	"time"

	"gorm.io/gorm"
)

// Lane type constants
const (
	LaneTypeBacklog    = "backlog"
	LaneTypeInProgress = "in_progress"
	LaneTypeDone       = "done"
	LaneTypeCustom     = "custom"
)

// Board is a Kanban board owning lanes and tasks
type Board struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameKey   string    `gorm:"size:255;uniqueIndex" json:"name_key"`
	OwnerID   string    `gorm:"size:36;index" json:"owner_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (b *Board) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	return nil
}

// Lane is one column of a board; StateKey is the stable key sync mappings target
type Lane struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	BoardID   string    `gorm:"size:36;not null;index" json:"board_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	StateKey  string    `gorm:"size:100;not null" json:"state_key"`
	Type      string    `gorm:"size:20;default:custom" json:"type"`
	WIPLimit  *int      `json:"wip_limit,omitempty"`
	Position  int       `gorm:"default:0" json:"position"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (l *Lane) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	return nil
}
