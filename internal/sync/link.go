package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"neonlanes/internal/audit"
	"neonlanes/internal/jira"
	"neonlanes/internal/models"
)

// ProductLabel is attached to every issue the engine creates.
const ProductLabel = "neonlanes"

// Assignee resolution modes for issue creation.
const (
	AssignTaskOwner         = "taskOwner"
	AssignConnectionDefault = "connectionDefault"
	AssignUnassigned        = "unassigned"
	AssignProjectDefault    = "projectDefault"
)

const maxLabelChars = 50

// MarkerLabel is the idempotency marker label for a task. Searching for
// it finds an issue a previous crashed create left behind.
func MarkerLabel(taskID string) string {
	return "neonlanes-task-" + taskID
}

// LabelizeTag converts a board tag to a Jira-safe label: lowercased,
// spaces to hyphens, anything outside [a-z0-9._-] dropped, trimmed and
// capped. Returns "" for tags with no usable characters.
func LabelizeTag(tag string) string {
	lowered := strings.ToLower(strings.TrimSpace(tag))
	lowered = strings.ReplaceAll(lowered, " ", "-")

	var b strings.Builder
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	label := strings.Trim(b.String(), "-. _")
	if len(label) > maxLabelChars {
		label = strings.Trim(label[:maxLabelChars], "-. _")
	}
	return label
}

// jiraPriorityName maps a board priority to Jira's default scheme.
// Unknown values map to High rather than failing the create.
func jiraPriorityName(priority string) string {
	switch priority {
	case models.PriorityP0:
		return "Highest"
	case models.PriorityP1:
		return "High"
	case models.PriorityP2:
		return "Medium"
	case models.PriorityP3:
		return "Low"
	default:
		return "High"
	}
}

// LinkTask binds an existing task to an existing Jira issue by key.
// The connection's credential must resolve, but no remote call is made;
// the next pull or sync validates the key.
func (e *Engine) LinkTask(ctx context.Context, taskID, connectionID, jiraKey string, enableSync bool, actorID string) (*models.Task, error) {
	var task models.Task
	if err := e.db.First(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s not found", taskID)
		}
		return nil, err
	}

	conn, _, err := e.Connect(connectionID)
	if err != nil {
		return nil, err
	}

	key := strings.ToUpper(strings.TrimSpace(jiraKey))
	if key == "" {
		return nil, fmt.Errorf("jira issue key is required")
	}

	browse := conn.BrowseURL(key)
	now := time.Now().UTC()
	task.JiraKey = &key
	task.JiraURL = &browse
	task.JiraConnID = &conn.ID
	task.JiraSyncOn = enableSync
	task.JiraLastSyncAt = &now
	task.Version++
	if err := e.db.Save(&task).Error; err != nil {
		return nil, err
	}

	_ = audit.Write(e.db, audit.Event{
		EventType:  audit.EventTaskLinked,
		EntityType: "task",
		EntityID:   task.ID,
		BoardID:    task.BoardID,
		TaskID:     task.ID,
		ActorID:    actorID,
		Payload:    map[string]interface{}{"jiraKey": key, "connectionId": conn.ID},
	})
	return &task, nil
}

// CreateIssueArgs parameterizes issue creation for a task.
type CreateIssueArgs struct {
	TaskID       string
	ConnectionID string
	ProjectKey   string
	IssueType    string
	AssigneeMode string
	EnableSync   bool
	ActorID      string
}

// CreateIssueForTask creates a Jira issue for a task and links them.
// The operation is idempotent: an already-linked task is returned as-is,
// and a marker-label search adopts any issue a previous interrupted
// attempt created instead of making a duplicate.
func (e *Engine) CreateIssueForTask(ctx context.Context, args CreateIssueArgs) (*models.Task, error) {
	var task models.Task
	if err := e.db.First(&task, "id = ?", args.TaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s not found", args.TaskID)
		}
		return nil, err
	}
	if task.JiraKeyString() != "" {
		return &task, nil
	}

	conn, client, err := e.Connect(args.ConnectionID)
	if err != nil {
		return nil, err
	}

	projectKey := strings.ToUpper(strings.TrimSpace(args.ProjectKey))
	if projectKey == "" {
		return nil, fmt.Errorf("jira project key is required")
	}
	issueType := args.IssueType
	if issueType == "" {
		issueType = "Task"
	}

	marker := MarkerLabel(task.ID)
	labels := []string{ProductLabel, marker}
	seen := map[string]bool{ProductLabel: true, marker: true}
	for _, tag := range task.Tags {
		if label := LabelizeTag(tag); label != "" && !seen[label] {
			labels = append(labels, label)
			seen[label] = true
		}
	}

	// Self-heal: a crash after the remote create but before the local
	// stamp leaves an orphan issue carrying our marker. Adopt it.
	if adopted, err := e.relinkByMarker(ctx, client, conn, &task, marker, args); err == nil && adopted != nil {
		return adopted, nil
	}

	assigneeID, err := e.resolveAssignee(ctx, client, conn, &task, args.AssigneeMode)
	if err != nil {
		return nil, err
	}

	created, droppedPriority, droppedAssignee, err := createWithFallback(ctx, client, jira.CreateIssueInput{
		ProjectKey:        projectKey,
		Summary:           task.Title,
		Description:       task.Description,
		IssueType:         issueType,
		Labels:            labels,
		PriorityName:      jiraPriorityName(task.Priority),
		AssigneeAccountID: assigneeID,
	})
	if err != nil {
		return nil, err
	}

	browse := conn.BrowseURL(created.Key)
	now := time.Now().UTC()
	task.JiraKey = &created.Key
	task.JiraURL = &browse
	task.JiraConnID = &conn.ID
	task.JiraProjectKey = &projectKey
	task.JiraIssueType = &issueType
	task.JiraSyncOn = args.EnableSync
	task.JiraLastSyncAt = &now
	task.Version++
	if err := e.db.Save(&task).Error; err != nil {
		return nil, err
	}

	// Assignment is best-effort; a tenant that rejects it does not undo
	// the create.
	if args.AssigneeMode == AssignUnassigned {
		if err := client.SetAssignee(ctx, created.Key, nil); err != nil {
			e.auditAssignFailed(&task, created.Key, "", args.ActorID, err)
		}
	} else if assigneeID != "" && droppedAssignee {
		if err := client.SetAssignee(ctx, created.Key, &assigneeID); err != nil {
			e.auditAssignFailed(&task, created.Key, assigneeID, args.ActorID, err)
		}
	}

	_ = audit.Write(e.db, audit.Event{
		EventType:  audit.EventTaskIssueCreated,
		EntityType: "task",
		EntityID:   task.ID,
		BoardID:    task.BoardID,
		TaskID:     task.ID,
		ActorID:    args.ActorID,
		Payload: map[string]interface{}{
			"jiraKey":         created.Key,
			"connectionId":    conn.ID,
			"projectKey":      projectKey,
			"issueType":       issueType,
			"droppedPriority": droppedPriority,
			"droppedAssignee": droppedAssignee,
		},
	})
	return &task, nil
}

// relinkByMarker searches for an issue carrying the task's marker label
// and relinks to it. Returns (nil, nil) when there is nothing to adopt;
// search errors are swallowed so the create path still runs.
func (e *Engine) relinkByMarker(ctx context.Context, client *jira.Client, conn *models.JiraConnection, task *models.Task, marker string, args CreateIssueArgs) (*models.Task, error) {
	page, err := client.Search(ctx, fmt.Sprintf("labels = %q", marker), 2, "")
	if err != nil || len(page.Issues) == 0 {
		return nil, nil
	}

	issue := page.Issues[0]
	browse := conn.BrowseURL(issue.Key)
	now := time.Now().UTC()
	task.JiraKey = &issue.Key
	task.JiraURL = &browse
	task.JiraConnID = &conn.ID
	task.JiraSyncOn = args.EnableSync
	task.JiraLastSyncAt = &now
	task.Version++
	if err := e.db.Save(task).Error; err != nil {
		return nil, err
	}

	_ = audit.Write(e.db, audit.Event{
		EventType:  audit.EventTaskRelinked,
		EntityType: "task",
		EntityID:   task.ID,
		BoardID:    task.BoardID,
		TaskID:     task.ID,
		ActorID:    args.ActorID,
		Payload:    map[string]interface{}{"jiraKey": issue.Key, "marker": marker},
	})
	return task, nil
}

// createWithFallback runs the fixed degrade chain for tenants whose
// screens reject optional fields: full payload, then without priority,
// then without priority and assignee. Only 400s advance the chain.
func createWithFallback(ctx context.Context, client *jira.Client, in jira.CreateIssueInput) (created *jira.CreatedIssue, droppedPriority, droppedAssignee bool, err error) {
	attempts := []jira.CreateIssueInput{in}
	if in.PriorityName != "" {
		next := in
		next.PriorityName = ""
		attempts = append(attempts, next)
		if in.AssigneeAccountID != "" {
			last := next
			last.AssigneeAccountID = ""
			attempts = append(attempts, last)
		}
	} else if in.AssigneeAccountID != "" {
		next := in
		next.AssigneeAccountID = ""
		attempts = append(attempts, next)
	}

	for i, attempt := range attempts {
		created, err = client.CreateIssue(ctx, attempt)
		if err == nil {
			return created, attempt.PriorityName == "" && in.PriorityName != "",
				attempt.AssigneeAccountID == "" && in.AssigneeAccountID != "", nil
		}
		var apiErr *jira.ApiError
		if i < len(attempts)-1 && errors.As(err, &apiErr) && apiErr.StatusCode == 400 {
			continue
		}
		return nil, false, false, err
	}
	return nil, false, false, err
}

// resolveAssignee maps an assignee mode to a Jira account id. An empty
// result means the create payload carries no assignee field.
func (e *Engine) resolveAssignee(ctx context.Context, client *jira.Client, conn *models.JiraConnection, task *models.Task, mode string) (string, error) {
	switch mode {
	case AssignUnassigned, AssignProjectDefault, "":
		return "", nil

	case AssignConnectionDefault:
		if conn.DefaultAssigneeID != nil && *conn.DefaultAssigneeID != "" {
			return *conn.DefaultAssigneeID, nil
		}
		return e.settings.JiraDefaultAssignee, nil

	case AssignTaskOwner:
		if task.OwnerID == nil {
			return "", nil
		}
		var owner models.User
		if err := e.db.First(&owner, "id = ?", *task.OwnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", nil
			}
			return "", err
		}
		if owner.JiraAccountID != nil && *owner.JiraAccountID != "" {
			return *owner.JiraAccountID, nil
		}
		users, err := client.SearchUsers(ctx, owner.Email, 1)
		if err != nil || len(users) == 0 {
			return "", nil
		}
		// Cache the lookup so the next create skips the remote call.
		accountID := users[0].AccountID
		if accountID != "" {
			owner.JiraAccountID = &accountID
			_ = e.db.Save(&owner).Error
		}
		return accountID, nil

	default:
		return "", fmt.Errorf("unknown assignee mode %q", mode)
	}
}

func (e *Engine) auditAssignFailed(task *models.Task, key, accountID, actorID string, cause error) {
	_ = audit.Write(e.db, audit.Event{
		EventType:  audit.EventAssignFailed,
		EntityType: "task",
		EntityID:   task.ID,
		BoardID:    task.BoardID,
		TaskID:     task.ID,
		ActorID:    actorID,
		Payload: map[string]interface{}{
			"jiraKey":   key,
			"accountId": accountID,
			"error":     cause.Error(),
		},
	})
}
