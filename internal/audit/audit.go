// Package audit persists append-only audit events for engine actions.
package audit

import (
	"gorm.io/gorm"

	"neonlanes/internal/models"
)

// Event types emitted by the sync engine
const (
	EventTaskImported     = "task.imported"
	EventTaskLinked       = "task.jira.linked"
	EventTaskRelinked     = "task.jira.relinked"
	EventTaskIssueCreated = "task.jira.created"
	EventTaskPulled       = "task.jira.pulled"
	EventCommentsPulled   = "task.jira.comments.pulled"
	EventCommentsPushed   = "task.jira.comments.pushed"
	EventAssignFailed     = "task.jira.assign_failed"
	EventImportStarted    = "jira.import.started"
	EventSyncStarted      = "jira.sync.started"
	EventSyncCompleted    = "jira.sync.completed"
	EventSyncError        = "jira.sync.error"
	EventGitHubTaskPushed = "task.github.pushed"
	EventGitHubTaskPulled = "task.github.pulled"
	EventGitHubTaskLinked = "task.github.linked"
)

// Event is the input for one audit record
type Event struct {
	EventType  string
	EntityType string
	EntityID   string
	BoardID    string
	TaskID     string
	ActorID    string
	Payload    map[string]interface{}
}

// Write persists an audit event. Optional references are stored as NULL
// when empty.
func Write(db *gorm.DB, ev Event) error {
	record := models.AuditEvent{
		EventType:  ev.EventType,
		EntityType: ev.EntityType,
		EntityID:   optional(ev.EntityID),
		BoardID:    optional(ev.BoardID),
		TaskID:     optional(ev.TaskID),
		ActorID:    optional(ev.ActorID),
		Payload:    models.JSONMap(ev.Payload),
	}
	return db.Create(&record).Error
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
