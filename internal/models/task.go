package models

import (
	"time"

	"gorm.io/gorm"
)

// Priority constants (board priorities, highest first)
const (
	PriorityP0 = "P0"
	PriorityP1 = "P1"
	PriorityP2 = "P2"
	PriorityP3 = "P3"
)

// Task type constants
const (
	TypeFeature = "Feature"
	TypeBug     = "Bug"
	TypeChore   = "Chore"
	TypeSpike   = "Spike"
)

// Date format constants
const (
	DateTimeFormat      = "2006-01-02 15:04:05"
	DateTimeShortFormat = "2006-01-02 15:04"
)

// Task represents a card on a board. The jira_* fields are owned by the
// sync engine; Version is the optimistic-concurrency counter bumped on
// every engine-driven mutation.
type Task struct {
	ID             string      `gorm:"primaryKey;size:36" json:"id"`
	BoardID        string      `gorm:"size:36;not null;index;index:idx_board_jira_key" json:"board_id"`
	LaneID         string      `gorm:"size:36;not null;index" json:"lane_id"`
	StateKey       string      `gorm:"size:100;not null" json:"state_key"`
	Title          string      `gorm:"size:500;not null" json:"title"`
	Description    string      `gorm:"type:text" json:"description,omitempty"`
	OwnerID        *string     `gorm:"size:36;index" json:"owner_id,omitempty"`
	Priority       string      `gorm:"size:10;default:P2" json:"priority"`
	Type           string      `gorm:"size:50;default:Feature" json:"type"`
	Tags           StringSlice `gorm:"type:text" json:"tags,omitempty"`
	DueDate        *time.Time  `json:"due_date,omitempty"`
	Blocked        bool        `gorm:"default:false" json:"blocked"`
	BlockedReason  *string     `gorm:"type:text" json:"blocked_reason,omitempty"`
	JiraKey        *string     `gorm:"size:100;index:idx_board_jira_key" json:"jira_key,omitempty"`
	JiraURL        *string     `gorm:"size:500" json:"jira_url,omitempty"`
	JiraConnID     *string     `gorm:"column:jira_connection_id;size:36" json:"jira_connection_id,omitempty"`
	JiraSyncOn     bool        `gorm:"column:jira_sync_enabled;default:false" json:"jira_sync_enabled"`
	JiraProjectKey *string     `gorm:"size:50" json:"jira_project_key,omitempty"`
	JiraIssueType  *string     `gorm:"size:50" json:"jira_issue_type,omitempty"`
	JiraUpdatedAt  *time.Time  `json:"jira_updated_at,omitempty"`
	JiraLastSyncAt *time.Time  `json:"jira_last_sync_at,omitempty"`
	OrderIndex     int         `gorm:"default:0" json:"order_index"`
	Version        int         `gorm:"default:0" json:"version"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	return nil
}

// IsJiraLinked reports whether the task is bound to an external Jira issue
func (t *Task) IsJiraLinked() bool {
	return t.JiraConnID != nil && t.JiraKey != nil && *t.JiraKey != ""
}

// JiraKeyString returns the linked Jira key or ""
func (t *Task) JiraKeyString() string {
	if t.JiraKey == nil {
		return ""
	}
	return *t.JiraKey
}

// AddTag adds a tag if it doesn't already exist
func (t *Task) AddTag(tag string) {
	for _, existing := range t.Tags {
		if existing == tag {
			return
		}
	}
	t.Tags = append(t.Tags, tag)
}
