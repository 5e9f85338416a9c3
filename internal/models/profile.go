package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Conflict policy constants. Only PolicyJiraWins has implemented apply
// semantics; the other two are accepted, stored and reported, but the
// engine still applies the remote snapshot (see DESIGN.md).
const (
	PolicyJiraWins  = "jiraWins"
	PolicyLocalWins = "localWins"
	PolicyManual    = "manual"
)

// ValidatePolicy rejects unknown conflict policy values at profile creation
func ValidatePolicy(policy string) error {
	switch policy {
	case PolicyJiraWins, PolicyLocalWins, PolicyManual:
		return nil
	}
	return fmt.Errorf("unknown conflict policy %q (expected %s, %s or %s)",
		policy, PolicyJiraWins, PolicyLocalWins, PolicyManual)
}

// SyncProfile is a saved recurring JQL import bound to one board and one
// connection. Profiles are created by the import operation and never
// mutated afterwards; "sync now" re-runs them.
type SyncProfile struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	BoardID        string    `gorm:"size:36;not null;index" json:"board_id"`
	ConnectionID   string    `gorm:"size:36;not null" json:"connection_id"`
	JQL            string    `gorm:"column:jql;type:text;not null" json:"jql"`
	StatusToState  StringMap `gorm:"column:status_to_state_key;type:text" json:"status_to_state_key"`
	PriorityMap    StringMap `gorm:"type:text" json:"priority_map"`
	TypeMap        StringMap `gorm:"type:text" json:"type_map"`
	ConflictPolicy string    `gorm:"size:20;default:jiraWins" json:"conflict_policy"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for SyncProfile
func (SyncProfile) TableName() string {
	return "jira_sync_profiles"
}

// BeforeCreate hook to generate ID if not set
func (p *SyncProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	return nil
}
