package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"neonlanes/internal/audit"
	"neonlanes/internal/jira"
	"neonlanes/internal/models"
)

// PullResult reports what a single-task pull changed.
type PullResult struct {
	Task             *models.Task
	CommentsImported int
	CommentError     error
}

// SyncResult reports what a single-task two-way sync did.
type SyncResult struct {
	Task             *models.Task
	CommentsImported int
	CommentsExported int
}

// PullTask refreshes a linked task from its Jira issue: title,
// description, tags, due date and the remote timestamps. Lane and status
// are untouched; the board owns placement. Comment import runs after the
// field pull and its failure does not fail the pull.
func (e *Engine) PullTask(ctx context.Context, taskID, actorID string) (*PullResult, error) {
	task, client, err := e.loadLinked(taskID)
	if err != nil {
		return nil, err
	}

	issue, err := client.GetIssue(ctx, *task.JiraKey)
	if err != nil {
		return nil, err
	}

	applyIssueFields(task, issue)
	task.Version++
	if err := e.db.Save(task).Error; err != nil {
		return nil, err
	}

	result := &PullResult{Task: task}
	result.CommentsImported, result.CommentError = e.importComments(ctx, client, task, actorID)

	_ = audit.Write(e.db, audit.Event{
		EventType:  audit.EventTaskPulled,
		EntityType: "task",
		EntityID:   task.ID,
		BoardID:    task.BoardID,
		TaskID:     task.ID,
		ActorID:    actorID,
		Payload: map[string]interface{}{
			"jiraKey":          *task.JiraKey,
			"commentsImported": result.CommentsImported,
		},
	})
	return result, nil
}

// SyncTask runs a two-way pass for one task: pull fields and comments
// from Jira, then export the local comments that never left.
func (e *Engine) SyncTask(ctx context.Context, taskID, actorID string) (*SyncResult, error) {
	pull, err := e.PullTask(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}

	task := pull.Task
	_, client, err := e.loadLinked(task.ID)
	if err != nil {
		return nil, err
	}

	exported, err := e.exportComments(ctx, client, task, actorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task.JiraLastSyncAt = &now
	if err := e.db.Save(task).Error; err != nil {
		return nil, err
	}

	return &SyncResult{
		Task:             task,
		CommentsImported: pull.CommentsImported,
		CommentsExported: exported,
	}, nil
}

// TestConnection dials a connection and verifies the credential against
// the authenticated-user endpoint.
func (e *Engine) TestConnection(ctx context.Context, connectionID string) (*jira.UserField, error) {
	_, client, err := e.Connect(connectionID)
	if err != nil {
		return nil, err
	}
	return client.Myself(ctx)
}

// loadLinked loads a task and dials its bound connection.
func (e *Engine) loadLinked(taskID string) (*models.Task, *jira.Client, error) {
	var task models.Task
	if err := e.db.First(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("task %s not found", taskID)
		}
		return nil, nil, err
	}
	if !task.IsJiraLinked() {
		return nil, nil, ErrNotLinked
	}

	_, client, err := e.Connect(*task.JiraConnID)
	if err != nil {
		return nil, nil, err
	}
	return &task, client, nil
}

// applyIssueFields copies the remote snapshot onto the task. Placement
// (lane, state) is left alone; only profile-driven runs move cards.
func applyIssueFields(task *models.Task, issue *jira.Issue) {
	title := issue.Fields.Summary
	if title == "" {
		title = issue.Key
	}
	task.Title = jira.Truncate(title, 500)
	task.Description = jira.PlainTextFromADF(issue.Fields.Description)
	task.Tags = models.StringSlice(issue.Fields.Labels)

	if t, ok := jira.ParseTime(issue.Fields.DueDate); ok {
		task.DueDate = &t
	} else {
		task.DueDate = nil
	}
	if t, ok := jira.ParseTime(issue.Fields.Updated); ok {
		task.JiraUpdatedAt = &t
	}
	now := time.Now().UTC()
	task.JiraLastSyncAt = &now
}
