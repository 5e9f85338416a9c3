package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"neonlanes/internal/audit"
	"neonlanes/internal/jira"
	"neonlanes/internal/models"
)

// maxImportedCommentChars caps stored comment bodies; Jira comments can
// carry pasted logs far beyond what a board card should hold.
const maxImportedCommentChars = 20000

const commentTimeFormat = "2006-01-02 15:04:05Z"

// EnsureIntegrationBot returns the id of the synthetic user that authors
// imported comments, creating it on first use. Idempotent under the
// unique email index.
func EnsureIntegrationBot(db *gorm.DB) (string, error) {
	bot := models.User{
		Email: models.IntegrationBotEmail,
		Name:  "Jira Sync",
		Role:  models.RoleViewer,
	}
	err := db.Where("email = ?", models.IntegrationBotEmail).FirstOrCreate(&bot).Error
	if err != nil {
		return "", fmt.Errorf("ensure integration bot: %w", err)
	}
	return bot.ID, nil
}

// importComments pulls the issue's comments into the task, skipping ones
// already imported (matched on source id) and empty bodies. Returns the
// number inserted.
func (e *Engine) importComments(ctx context.Context, client *jira.Client, task *models.Task, actorID string) (int, error) {
	if !task.IsJiraLinked() {
		return 0, ErrNotLinked
	}

	remote, err := client.ListComments(ctx, *task.JiraKey)
	if err != nil {
		return 0, err
	}
	if len(remote) == 0 {
		return 0, nil
	}

	var existingIDs []string
	err = e.db.Model(&models.Comment{}).
		Where("task_id = ? AND source = ? AND source_id IS NOT NULL", task.ID, models.CommentSourceJira).
		Pluck("source_id", &existingIDs).Error
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existingIDs))
	for _, id := range existingIDs {
		seen[id] = true
	}

	botID, err := EnsureIntegrationBot(e.db)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, rc := range remote {
		if rc.ID == "" || seen[rc.ID] {
			continue
		}
		text := strings.TrimSpace(jira.PlainTextFromADF(rc.Body))
		if text == "" {
			continue
		}

		author := "Jira user"
		if rc.Author != nil && rc.Author.DisplayName != "" {
			author = rc.Author.DisplayName
		}
		created := time.Now().UTC()
		if t, ok := jira.ParseTime(rc.Created); ok {
			created = t
		}

		body := jira.Truncate(
			fmt.Sprintf("JIRA:>> [%s] %s: %s", created.Format(commentTimeFormat), author, text),
			maxImportedCommentChars)

		sourceID := rc.ID
		comment := models.Comment{
			TaskID:       task.ID,
			AuthorID:     botID,
			Body:         body,
			Source:       models.CommentSourceJira,
			SourceID:     &sourceID,
			SourceAuthor: &author,
		}
		if task.JiraURL != nil {
			focused := fmt.Sprintf("%s?focusedCommentId=%s", *task.JiraURL, rc.ID)
			comment.SourceURL = &focused
		}
		if err := e.db.Create(&comment).Error; err != nil {
			return inserted, err
		}
		seen[rc.ID] = true
		inserted++
	}

	if inserted > 0 {
		_ = audit.Write(e.db, audit.Event{
			EventType:  audit.EventCommentsPulled,
			EntityType: "task",
			EntityID:   task.ID,
			BoardID:    task.BoardID,
			TaskID:     task.ID,
			ActorID:    actorID,
			Payload:    map[string]interface{}{"jiraKey": *task.JiraKey, "imported": inserted},
		})
	}
	return inserted, nil
}

// exportComments pushes local comments that were never exported to the
// linked issue, oldest first. A comment Jira rejects is skipped, never
// fatal; it stays pending for the next pass. Returns the number exported.
func (e *Engine) exportComments(ctx context.Context, client *jira.Client, task *models.Task, actorID string) (int, error) {
	if !task.IsJiraLinked() {
		return 0, ErrNotLinked
	}

	var pending []models.Comment
	err := e.db.
		Where("task_id = ? AND source = ? AND jira_comment_id IS NULL", task.ID, models.CommentSourceApp).
		Order("created_at ASC").
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	names := make(map[string]string)
	authorName := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		name := "NeonLanes user"
		var u models.User
		if err := e.db.First(&u, "id = ?", id).Error; err == nil {
			name = u.Name
		}
		names[id] = name
		return name
	}

	exported := 0
	for i := range pending {
		comment := &pending[i]
		text := fmt.Sprintf("NEONLANES:>> [%s] %s:\nNeonLanes commentId=%s\n\n%s",
			comment.CreatedAt.UTC().Format(commentTimeFormat),
			authorName(comment.AuthorID),
			comment.ID,
			comment.Body)

		remote, err := client.AddComment(ctx, *task.JiraKey, text)
		if err != nil {
			continue
		}

		now := time.Now().UTC()
		comment.JiraCommentID = &remote.ID
		comment.JiraExportedAt = &now
		if err := e.db.Save(comment).Error; err != nil {
			return exported, err
		}
		exported++
	}

	if exported > 0 {
		_ = audit.Write(e.db, audit.Event{
			EventType:  audit.EventCommentsPushed,
			EntityType: "task",
			EntityID:   task.ID,
			BoardID:    task.BoardID,
			TaskID:     task.ID,
			ActorID:    actorID,
			Payload:    map[string]interface{}{"jiraKey": *task.JiraKey, "exported": exported},
		})
	}
	return exported, nil
}
