// Package github mirrors board tasks to GitHub issues. It is a one-way
// convenience bridge next to the Jira engine: push creates or updates an
// issue per task, pull materializes unlinked issues as new cards.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v63/github"
	"github.com/zalando/go-keyring"
	"gorm.io/gorm"

	"neonlanes/internal/audit"
	"neonlanes/internal/models"
)

const apiTimeout = 30 * time.Second

// ErrTokenMissing means no GitHub token is stored in the keyring.
var ErrTokenMissing = errors.New("github token not set (run 'neon github token')")

// Bridge holds the client and repository binding for one configured repo.
type Bridge struct {
	db     *gorm.DB
	client *github.Client
	owner  string
	repo   string
	prefix string
}

// SetToken stores the GitHub token in the OS keyring.
func SetToken(token string) error {
	return keyring.Set(models.KeyringServiceName, models.KeyringGitHubTokenKey, token)
}

// GetToken reads the GitHub token from the OS keyring.
func GetToken() (string, error) {
	token, err := keyring.Get(models.KeyringServiceName, models.KeyringGitHubTokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrTokenMissing
		}
		return "", fmt.Errorf("read github token: %w", err)
	}
	return token, nil
}

// NewBridge builds a bridge for an "owner/repo" binding.
func NewBridge(db *gorm.DB, token, repository, prefix string) (*Bridge, error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid repository %q: expected 'owner/repo'", repository)
	}
	if prefix == "" {
		prefix = models.DefaultGitHubIssuePrefix
	}

	httpClient := &http.Client{
		Timeout: apiTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return &Bridge{
		db:     db,
		client: github.NewClient(httpClient).WithAuthToken(token),
		owner:  parts[0],
		repo:   parts[1],
		prefix: prefix,
	}, nil
}

// Repository returns the bound repository as "owner/repo".
func (b *Bridge) Repository() string {
	return b.owner + "/" + b.repo
}

// PushResult is the outcome of pushing one task.
type PushResult struct {
	TaskID      string
	IssueNumber int
	IssueURL    string
	Action      string // created or updated
}

// PushTask creates or updates the GitHub issue for a task. A done-lane
// task closes the issue.
func (b *Bridge) PushTask(ctx context.Context, task *models.Task, actorID string) (*PushResult, error) {
	var lane models.Lane
	if err := b.db.First(&lane, "id = ?", task.LaneID).Error; err != nil {
		return nil, fmt.Errorf("lane %s not found", task.LaneID)
	}

	title := fmt.Sprintf("%s %s", b.prefix, task.Title)
	body := b.buildIssueBody(task, &lane)
	state := "open"
	if lane.Type == models.LaneTypeDone {
		state = "closed"
	}

	var link models.GitHubIssueLink
	hasLink := b.db.Where("task_id = ?", task.ID).First(&link).Error == nil

	if hasLink {
		req := &github.IssueRequest{Title: &title, Body: &body, State: &state}
		issue, _, err := b.client.Issues.Edit(ctx, b.owner, b.repo, link.IssueNumber, req)
		if err != nil {
			return nil, fmt.Errorf("update issue #%d: %w", link.IssueNumber, err)
		}
		link.IssueURL = issue.GetHTMLURL()
		link.LastSyncedAt = time.Now().UTC()
		if err := b.db.Save(&link).Error; err != nil {
			return nil, err
		}
		b.auditPush(task, issue.GetNumber(), "updated", actorID)
		return &PushResult{TaskID: task.ID, IssueNumber: issue.GetNumber(), IssueURL: issue.GetHTMLURL(), Action: "updated"}, nil
	}

	req := &github.IssueRequest{Title: &title, Body: &body}
	if labels := issueLabels(task); len(labels) > 0 {
		req.Labels = &labels
	}
	issue, _, err := b.client.Issues.Create(ctx, b.owner, b.repo, req)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	if state == "closed" {
		closeReq := &github.IssueRequest{State: &state}
		issue, _, err = b.client.Issues.Edit(ctx, b.owner, b.repo, issue.GetNumber(), closeReq)
		if err != nil {
			return nil, fmt.Errorf("close issue #%d: %w", issue.GetNumber(), err)
		}
	}

	remoteUpdated := issue.GetUpdatedAt().Time
	newLink := models.GitHubIssueLink{
		TaskID:          task.ID,
		IssueNumber:     issue.GetNumber(),
		IssueURL:        issue.GetHTMLURL(),
		Repository:      b.Repository(),
		LastSyncedAt:    time.Now().UTC(),
		RemoteUpdatedAt: &remoteUpdated,
		SyncDirection:   models.SyncDirectionPush,
	}
	if err := b.db.Create(&newLink).Error; err != nil {
		return nil, err
	}
	b.auditPush(task, issue.GetNumber(), "created", actorID)
	return &PushResult{TaskID: task.ID, IssueNumber: issue.GetNumber(), IssueURL: issue.GetHTMLURL(), Action: "created"}, nil
}

// PullSummary is the outcome of a repository pull.
type PullSummary struct {
	Pulled  int
	Skipped int
}

// PullIssues imports unlinked issues from the repository as new cards in
// the given lane. Closed issues land in the board's done lane when one
// exists. Pull requests are skipped; the issues API returns them too.
func (b *Bridge) PullIssues(ctx context.Context, boardID, laneID, state, label, actorID string) (*PullSummary, error) {
	var lane models.Lane
	if err := b.db.First(&lane, "id = ? AND board_id = ?", laneID, boardID).Error; err != nil {
		return nil, fmt.Errorf("lane %s not found on board %s", laneID, boardID)
	}
	var doneLane *models.Lane
	var dl models.Lane
	if err := b.db.First(&dl, "board_id = ? AND type = ?", boardID, models.LaneTypeDone).Error; err == nil {
		doneLane = &dl
	}

	if state == "" {
		state = "open"
	}
	opts := &github.IssueListByRepoOptions{
		State:       state,
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if label != "" {
		opts.Labels = []string{label}
	}

	summary := &PullSummary{}
	for {
		issues, resp, err := b.client.Issues.ListByRepo(ctx, b.owner, b.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}
		for _, issue := range issues {
			if issue.PullRequestLinks != nil {
				continue
			}
			pulled, err := b.pullOne(issue, boardID, &lane, doneLane, actorID)
			if err != nil {
				return nil, err
			}
			if pulled {
				summary.Pulled++
			} else {
				summary.Skipped++
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return summary, nil
}

func (b *Bridge) pullOne(issue *github.Issue, boardID string, lane, doneLane *models.Lane, actorID string) (bool, error) {
	var existing models.GitHubIssueLink
	err := b.db.Where("issue_number = ? AND repository = ?", issue.GetNumber(), b.Repository()).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	target := lane
	if issue.GetState() == "closed" && doneLane != nil {
		target = doneLane
	}

	task := taskFromIssue(issue, boardID, target)
	if err := b.db.Create(task).Error; err != nil {
		return false, err
	}

	remoteUpdated := issue.GetUpdatedAt().Time
	link := models.GitHubIssueLink{
		TaskID:          task.ID,
		IssueNumber:     issue.GetNumber(),
		IssueURL:        issue.GetHTMLURL(),
		Repository:      b.Repository(),
		LastSyncedAt:    time.Now().UTC(),
		RemoteUpdatedAt: &remoteUpdated,
		SyncDirection:   models.SyncDirectionPull,
	}
	if err := b.db.Create(&link).Error; err != nil {
		return false, err
	}

	_ = audit.Write(b.db, audit.Event{
		EventType:  audit.EventGitHubTaskPulled,
		EntityType: "task",
		EntityID:   task.ID,
		BoardID:    boardID,
		TaskID:     task.ID,
		ActorID:    actorID,
		Payload:    map[string]interface{}{"issueNumber": issue.GetNumber(), "repository": b.Repository()},
	})
	return true, nil
}

// taskFromIssue maps a GitHub issue to a new card, inferring priority
// and type from the issue labels the way common triage labels are used.
func taskFromIssue(issue *github.Issue, boardID string, lane *models.Lane) *models.Task {
	task := &models.Task{
		BoardID:     boardID,
		LaneID:      lane.ID,
		StateKey:    lane.StateKey,
		Title:       issue.GetTitle(),
		Description: issue.GetBody(),
		Priority:    models.PriorityP2,
		Type:        models.TypeChore,
	}
	if len(task.Title) > 500 {
		task.Title = task.Title[:500]
	}

	for _, label := range issue.Labels {
		name := strings.ToLower(label.GetName())
		task.AddTag(label.GetName())

		switch {
		case name == "bug":
			task.Type = models.TypeBug
		case name == "enhancement" || name == "feature":
			task.Type = models.TypeFeature
		}
		switch {
		case strings.Contains(name, "critical") || strings.Contains(name, "p0"):
			task.Priority = models.PriorityP0
		case strings.Contains(name, "high") || strings.Contains(name, "p1"):
			task.Priority = models.PriorityP1
		case strings.Contains(name, "low") || strings.Contains(name, "p3"):
			task.Priority = models.PriorityP3
		}
	}
	return task
}

func (b *Bridge) buildIssueBody(task *models.Task, lane *models.Lane) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("**Card:** `%s`\n\n", task.ID))
	if task.Description != "" {
		sb.WriteString("## Description\n\n")
		sb.WriteString(task.Description)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Details\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("| ----- | ----- |\n")
	sb.WriteString(fmt.Sprintf("| Lane | %s |\n", lane.Name))
	sb.WriteString(fmt.Sprintf("| Priority | %s |\n", task.Priority))
	sb.WriteString(fmt.Sprintf("| Type | %s |\n", task.Type))
	if len(task.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("| Tags | %s |\n", strings.Join(task.Tags, ", ")))
	}
	if task.DueDate != nil {
		sb.WriteString(fmt.Sprintf("| Due | %s |\n", task.DueDate.Format("2006-01-02")))
	}
	if task.JiraKeyString() != "" {
		sb.WriteString(fmt.Sprintf("| Jira | %s |\n", task.JiraKeyString()))
	}
	sb.WriteString(fmt.Sprintf("| Created | %s |\n", task.CreatedAt.Format(models.DateTimeShortFormat)))

	sb.WriteString("\n---\n")
	sb.WriteString("*Mirrored from a NeonLanes board*")
	return sb.String()
}

func issueLabels(task *models.Task) []string {
	var labels []string
	switch task.Type {
	case models.TypeBug:
		labels = append(labels, "bug")
	case models.TypeFeature:
		labels = append(labels, "enhancement")
	}
	switch task.Priority {
	case models.PriorityP0:
		labels = append(labels, "priority: critical")
	case models.PriorityP1:
		labels = append(labels, "priority: high")
	}
	labels = append(labels, "neonlanes")
	return labels
}

func (b *Bridge) auditPush(task *models.Task, issueNumber int, action, actorID string) {
	_ = audit.Write(b.db, audit.Event{
		EventType:  audit.EventGitHubTaskPushed,
		EntityType: "task",
		EntityID:   task.ID,
		BoardID:    task.BoardID,
		TaskID:     task.ID,
		ActorID:    actorID,
		Payload:    map[string]interface{}{"issueNumber": issueNumber, "action": action, "repository": b.Repository()},
	})
}
