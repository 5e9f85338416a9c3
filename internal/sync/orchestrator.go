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

// ImportArgs describes a one-shot JQL import that also becomes a saved
// profile for later "sync now" runs.
type ImportArgs struct {
	BoardID        string
	ConnectionID   string
	JQL            string
	StatusToState  map[string]string
	PriorityMap    map[string]string
	TypeMap        map[string]string
	ConflictPolicy string
	ActorID        string
}

type runCounters struct {
	imported  int
	updated   int
	conflicts int
}

// ImportIntoBoard creates a sync profile from the arguments and executes
// it immediately. The profile and the finished run are both returned;
// run failures are recorded on the run, not returned as an error.
func (e *Engine) ImportIntoBoard(ctx context.Context, args ImportArgs) (*models.SyncProfile, *models.SyncRun, error) {
	policy := args.ConflictPolicy
	if policy == "" {
		policy = models.PolicyJiraWins
	}
	if err := models.ValidatePolicy(policy); err != nil {
		return nil, nil, err
	}

	var board models.Board
	if err := e.db.First(&board, "id = ?", args.BoardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("board %s not found", args.BoardID)
		}
		return nil, nil, err
	}
	var conn models.JiraConnection
	if err := e.db.First(&conn, "id = ?", args.ConnectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("jira connection %s not found", args.ConnectionID)
		}
		return nil, nil, err
	}

	profile := models.SyncProfile{
		BoardID:        args.BoardID,
		ConnectionID:   args.ConnectionID,
		JQL:            args.JQL,
		StatusToState:  models.StringMap(args.StatusToState),
		PriorityMap:    models.StringMap(args.PriorityMap),
		TypeMap:        models.StringMap(args.TypeMap),
		ConflictPolicy: policy,
	}
	if err := e.db.Create(&profile).Error; err != nil {
		return nil, nil, err
	}

	run, err := e.startRun(ctx, &profile, &conn, args.ActorID, audit.EventImportStarted)
	if err != nil {
		return nil, nil, err
	}
	return &profile, run, nil
}

// RunProfileNow re-executes a saved profile. Overlapping runs of the
// same profile are rejected with ErrRunInProgress.
func (e *Engine) RunProfileNow(ctx context.Context, profileID, actorID string) (*models.SyncRun, error) {
	var profile models.SyncProfile
	if err := e.db.First(&profile, "id = ?", profileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("sync profile %s not found", profileID)
		}
		return nil, err
	}
	var conn models.JiraConnection
	if err := e.db.First(&conn, "id = ?", profile.ConnectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("jira connection %s not found", profile.ConnectionID)
		}
		return nil, err
	}

	return e.startRun(ctx, &profile, &conn, actorID, audit.EventSyncStarted)
}

// ListRuns returns the board's runs, newest first.
func (e *Engine) ListRuns(boardID string, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	q := e.db.Where("board_id = ?", boardID).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&runs).Error
	return runs, err
}

// startRun creates the run row and executes the shared sync loop under
// the profile's single-flight guard. Any failure inside the loop lands
// on the run record; only precondition failures return an error.
func (e *Engine) startRun(ctx context.Context, profile *models.SyncProfile, conn *models.JiraConnection, actorID, startEvent string) (*models.SyncRun, error) {
	if !e.tryAcquire(profile.ID) {
		return nil, ErrRunInProgress
	}
	defer e.release(profile.ID)

	run := models.SyncRun{
		BoardID:   profile.BoardID,
		ProfileID: profile.ID,
		Status:    models.RunStatusRunning,
	}
	if err := e.db.Create(&run).Error; err != nil {
		return nil, err
	}

	// The started event points at the run so the audit trail joins to it.
	_ = audit.Write(e.db, audit.Event{
		EventType:  startEvent,
		EntityType: "sync_run",
		EntityID:   run.ID,
		BoardID:    run.BoardID,
		ActorID:    actorID,
		Payload:    map[string]interface{}{"jql": profile.JQL, "profileId": profile.ID, "connectionId": conn.ID},
	})

	counters, err := e.executeRun(ctx, profile, conn, &run, actorID)
	now := time.Now().UTC()
	run.FinishedAt = &now
	if err != nil {
		run.Status = models.RunStatusError
		msg := fmt.Sprintf("%T: %s", err, err.Error())
		run.ErrorMessage = &msg
		run.AppendLog(models.LogError, err.Error())
		if saveErr := e.db.Save(&run).Error; saveErr != nil {
			return &run, saveErr
		}
		_ = audit.Write(e.db, audit.Event{
			EventType:  audit.EventSyncError,
			EntityType: "sync_run",
			EntityID:   run.ID,
			BoardID:    run.BoardID,
			ActorID:    actorID,
			Payload:    map[string]interface{}{"error": err.Error()},
		})
		return &run, nil
	}

	run.Status = models.RunStatusSuccess
	run.AppendLog(models.LogInfo, fmt.Sprintf("Done imported=%d updated=%d conflicts=%d",
		counters.imported, counters.updated, counters.conflicts))
	if saveErr := e.db.Save(&run).Error; saveErr != nil {
		return &run, saveErr
	}
	_ = audit.Write(e.db, audit.Event{
		EventType:  audit.EventSyncCompleted,
		EntityType: "sync_run",
		EntityID:   run.ID,
		BoardID:    run.BoardID,
		ActorID:    actorID,
		Payload: map[string]interface{}{
			"imported":  counters.imported,
			"updated":   counters.updated,
			"conflicts": counters.conflicts,
		},
	})
	return &run, nil
}

// executeRun pages through the profile's JQL results and upserts tasks.
func (e *Engine) executeRun(ctx context.Context, profile *models.SyncProfile, conn *models.JiraConnection, run *models.SyncRun, actorID string) (*runCounters, error) {
	client, err := e.dial(conn)
	if err != nil {
		return nil, err
	}

	var lanes []models.Lane
	if err := e.db.Where("board_id = ?", profile.BoardID).Order("position ASC").Find(&lanes).Error; err != nil {
		return nil, err
	}
	if len(lanes) == 0 {
		return nil, fmt.Errorf("board has no lanes")
	}
	laneByState := make(map[string]*models.Lane, len(lanes))
	for i := range lanes {
		laneByState[lanes[i].StateKey] = &lanes[i]
	}
	fallback := &lanes[0]
	for i := range lanes {
		if lanes[i].Type == models.LaneTypeBacklog {
			fallback = &lanes[i]
			break
		}
	}

	counters := &runCounters{}
	pageSize := e.settings.SyncPageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	maxPages := e.settings.SyncMaxPages
	if maxPages <= 0 {
		maxPages = 200
	}

	pageToken := ""
	for page := 1; ; page++ {
		if page > maxPages {
			return nil, fmt.Errorf("aborted after %d pages; JQL %q keeps paginating", maxPages, profile.JQL)
		}

		result, err := client.Search(ctx, profile.JQL, pageSize, pageToken)
		if err != nil {
			return nil, err
		}
		if len(result.Issues) == 0 {
			break
		}
		for i := range result.Issues {
			if err := e.processIssue(profile, conn, run, laneByState, fallback, &result.Issues[i], counters, actorID); err != nil {
				return nil, err
			}
		}
		if result.IsLast || result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}
	return counters, nil
}

// processIssue upserts one remote issue into the board.
func (e *Engine) processIssue(profile *models.SyncProfile, conn *models.JiraConnection, run *models.SyncRun, laneByState map[string]*models.Lane, fallback *models.Lane, issue *jira.Issue, counters *runCounters, actorID string) error {
	fields := issue.Fields
	title := fields.Summary
	if title == "" {
		title = issue.Key
	}
	title = jira.Truncate(title, 500)

	lane := fallback
	statusName := ""
	if fields.Status != nil {
		statusName = fields.Status.Name
	}
	if stateKey, ok := profile.StatusToState[statusName]; ok {
		if mapped, ok := laneByState[stateKey]; ok {
			lane = mapped
		}
	}

	priority := models.PriorityP2
	if fields.Priority != nil {
		if mapped, ok := profile.PriorityMap[fields.Priority.Name]; ok {
			priority = mapped
		}
	}
	taskType := models.TypeFeature
	if fields.IssueType != nil {
		if mapped, ok := profile.TypeMap[fields.IssueType.Name]; ok {
			taskType = mapped
		}
	}

	description := jira.PlainTextFromADF(fields.Description)
	var dueDate *time.Time
	if t, ok := jira.ParseTime(fields.DueDate); ok {
		dueDate = &t
	}
	var remoteUpdated *time.Time
	if t, ok := jira.ParseTime(fields.Updated); ok {
		remoteUpdated = &t
	}
	browse := conn.BrowseURL(issue.Key)
	now := time.Now().UTC()

	var matches []models.Task
	err := e.db.Where("board_id = ? AND jira_key = ?", profile.BoardID, issue.Key).
		Order("updated_at DESC, created_at DESC, id DESC").
		Find(&matches).Error
	if err != nil {
		return err
	}
	if len(matches) > 1 {
		counters.conflicts++
		run.AppendLog(models.LogWarn, fmt.Sprintf("Duplicate mapping: %d tasks carry %s; using most recent", len(matches), issue.Key))
	}

	if len(matches) == 0 {
		orderIndex := 0
		var maxIndex *int
		if err := e.db.Model(&models.Task{}).Where("lane_id = ?", lane.ID).
			Select("MAX(order_index)").Scan(&maxIndex).Error; err == nil && maxIndex != nil {
			orderIndex = *maxIndex + 1
		}

		key := issue.Key
		task := models.Task{
			BoardID:        profile.BoardID,
			LaneID:         lane.ID,
			StateKey:       lane.StateKey,
			Title:          title,
			Description:    description,
			Priority:       priority,
			Type:           taskType,
			Tags:           models.StringSlice(fields.Labels),
			DueDate:        dueDate,
			JiraKey:        &key,
			JiraURL:        &browse,
			JiraConnID:     &conn.ID,
			JiraSyncOn:     true,
			JiraUpdatedAt:  remoteUpdated,
			JiraLastSyncAt: &now,
			OrderIndex:     orderIndex,
		}
		if err := e.db.Create(&task).Error; err != nil {
			return err
		}
		counters.imported++
		run.AppendLog(models.LogInfo, fmt.Sprintf("Imported %s -> %s", issue.Key, task.ID))
		_ = audit.Write(e.db, audit.Event{
			EventType:  audit.EventTaskImported,
			EntityType: "task",
			EntityID:   task.ID,
			BoardID:    task.BoardID,
			TaskID:     task.ID,
			ActorID:    actorID,
			Payload:    map[string]interface{}{"jiraKey": issue.Key, "runId": run.ID},
		})
		return nil
	}

	task := matches[0]
	if Classify(task.UpdatedAt, remoteUpdated, task.JiraLastSyncAt) == Conflict {
		counters.conflicts++
		run.AppendLog(models.LogWarn, fmt.Sprintf("Conflict on %s (policy=%s)", issue.Key, profile.ConflictPolicy))
	}

	// Remote snapshot wins regardless of policy; the conflict above is
	// recorded so the run surfaces what was overwritten. Description stays
	// local: the run loop moves cards and refreshes headline fields, and
	// only an explicit per-task pull rewrites the description.
	task.Title = title
	task.LaneID = lane.ID
	task.StateKey = lane.StateKey
	task.Priority = priority
	task.Type = taskType
	task.Tags = models.StringSlice(fields.Labels)
	task.DueDate = dueDate
	task.JiraURL = &browse
	task.JiraConnID = &conn.ID
	task.JiraUpdatedAt = remoteUpdated
	task.JiraLastSyncAt = &now
	task.Version++
	if err := e.db.Save(&task).Error; err != nil {
		return err
	}
	counters.updated++
	run.AppendLog(models.LogInfo, fmt.Sprintf("Updated %s -> %s", issue.Key, task.ID))
	return nil
}
