package models

import (
	"time"

	"gorm.io/gorm"
)

// Comment source constants
const (
	CommentSourceApp  = "app"
	CommentSourceJira = "jira"
)

// Comment is a discussion entry on a task. The (task_id, source, source_id)
// tuple is the dedupe key for imported comments; JiraCommentID marks a
// local comment as already exported.
type Comment struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	TaskID         string     `gorm:"size:36;not null;index;uniqueIndex:ux_comment_task_source_id" json:"task_id"`
	AuthorID       string     `gorm:"size:36;not null" json:"author_id"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	Source         string     `gorm:"size:20;default:app;uniqueIndex:ux_comment_task_source_id" json:"source"`
	SourceID       *string    `gorm:"size:100;uniqueIndex:ux_comment_task_source_id" json:"source_id,omitempty"`
	SourceAuthor   *string    `gorm:"size:255" json:"source_author,omitempty"`
	SourceURL      *string    `gorm:"size:500" json:"source_url,omitempty"`
	JiraCommentID  *string    `gorm:"size:100" json:"jira_comment_id,omitempty"`
	JiraExportedAt *time.Time `json:"jira_exported_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate hook to generate ID if not set
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	return nil
}
