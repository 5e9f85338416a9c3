package models

import (
	"time"

	"gorm.io/gorm"
)

// Sync direction constants
const (
	SyncDirectionPush = "push"
	SyncDirectionPull = "pull"
	SyncDirectionBoth = "both"
)

// GitHubIssueLink tracks the mapping between board tasks and GitHub issues
type GitHubIssueLink struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	TaskID          string     `gorm:"size:36;uniqueIndex;not null" json:"task_id"`
	IssueNumber     int        `gorm:"not null;index" json:"issue_number"`
	IssueURL        string     `gorm:"size:500" json:"issue_url"`
	Repository      string     `gorm:"size:200;not null;index" json:"repository"` // owner/repo format
	LastSyncedAt    time.Time  `json:"last_synced_at"`
	RemoteUpdatedAt *time.Time `json:"remote_updated_at,omitempty"` // GitHub issue updated_at
	SyncDirection   string     `gorm:"size:10;default:push" json:"sync_direction"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GitHubIssueLink
func (GitHubIssueLink) TableName() string {
	return "github_issue_links"
}

// BeforeCreate hook to generate ID if not set
func (l *GitHubIssueLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	return nil
}
