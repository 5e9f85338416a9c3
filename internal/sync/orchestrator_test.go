package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"neonlanes/internal/audit"
	"neonlanes/internal/models"
)

func searchResult(issues ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"issues": issues, "isLast": true}
}

func remoteIssue(id, key, summary, status string, extra map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"summary": summary,
		"status":  map[string]string{"name": status},
		"updated": "2026-05-01T10:00:00.000+0000",
	}
	for k, v := range extra {
		fields[k] = v
	}
	return map[string]interface{}{"id": id, "key": key, "fields": fields}
}

func TestImportIntoBoardCreatesAndMapsTasks(t *testing.T) {
	database := testDB(t)
	board, lanes := seedBoard(t, database)
	conn := seedConnection(t, database)

	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResult(
			remoteIssue("1", "PROJ-1", "Fix crash", "Done", map[string]interface{}{
				"priority":  map[string]string{"name": "Highest"},
				"issuetype": map[string]string{"name": "Bug"},
				"labels":    []string{"backend"},
				"duedate":   "2026-07-01",
			}),
			remoteIssue("2", "PROJ-2", "New filter", "Weird Status", nil),
		))
	}))

	profile, run, err := engine.ImportIntoBoard(context.Background(), ImportArgs{
		BoardID:      board.ID,
		ConnectionID: conn.ID,
		JQL:          "project = PROJ",
		StatusToState: map[string]string{
			"Done": "done", "In Progress": "in_progress",
		},
		PriorityMap: map[string]string{"Highest": models.PriorityP0},
		TypeMap:     map[string]string{"Bug": models.TypeBug},
	})
	if err != nil {
		t.Fatalf("ImportIntoBoard: %v", err)
	}
	if profile.ConflictPolicy != models.PolicyJiraWins {
		t.Errorf("default policy = %s", profile.ConflictPolicy)
	}
	if run.Status != models.RunStatusSuccess {
		t.Fatalf("run status = %s, error = %v", run.Status, run.ErrorMessage)
	}

	last := run.Log[len(run.Log)-1]
	if last.Message != "Done imported=2 updated=0 conflicts=0" {
		t.Errorf("summary log = %q", last.Message)
	}

	var done models.Task
	if err := database.First(&done, "jira_key = ?", "PROJ-1").Error; err != nil {
		t.Fatal("PROJ-1 not imported")
	}
	if done.LaneID != lanes["done"].ID || done.StateKey != "done" {
		t.Errorf("PROJ-1 should land in done lane, got %s", done.StateKey)
	}
	if done.Priority != models.PriorityP0 || done.Type != models.TypeBug {
		t.Errorf("mapping: priority=%s type=%s", done.Priority, done.Type)
	}
	if done.DueDate == nil {
		t.Error("due date not imported")
	}
	if !done.JiraSyncOn || done.JiraLastSyncAt == nil {
		t.Error("sync fields not stamped")
	}

	var unmapped models.Task
	if err := database.First(&unmapped, "jira_key = ?", "PROJ-2").Error; err != nil {
		t.Fatal("PROJ-2 not imported")
	}
	if unmapped.LaneID != lanes["backlog"].ID {
		t.Error("unmapped status should fall back to the backlog lane")
	}
	if unmapped.Priority != models.PriorityP2 || unmapped.Type != models.TypeFeature {
		t.Errorf("defaults: priority=%s type=%s", unmapped.Priority, unmapped.Type)
	}
}

func TestRunProfileNowUpdatesExistingTasks(t *testing.T) {
	database := testDB(t)
	board, _ := seedBoard(t, database)
	conn := seedConnection(t, database)

	summary := "Original"
	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResult(
			remoteIssue("1", "PROJ-1", summary, "Done", nil),
		))
	}))

	profile, run, err := engine.ImportIntoBoard(context.Background(), ImportArgs{
		BoardID:       board.ID,
		ConnectionID:  conn.ID,
		JQL:           "project = PROJ",
		StatusToState: map[string]string{"Done": "done"},
	})
	if err != nil || run.Status != models.RunStatusSuccess {
		t.Fatalf("import failed: %v / %+v", err, run)
	}

	summary = "Renamed upstream"
	run2, err := engine.RunProfileNow(context.Background(), profile.ID, "")
	if err != nil {
		t.Fatalf("RunProfileNow: %v", err)
	}
	if run2.Status != models.RunStatusSuccess {
		t.Fatalf("rerun status = %s, error = %v", run2.Status, run2.ErrorMessage)
	}
	last := run2.Log[len(run2.Log)-1]
	if last.Message != "Done imported=0 updated=1 conflicts=0" {
		t.Errorf("summary log = %q", last.Message)
	}

	var count int64
	database.Model(&models.Task{}).Where("jira_key = ?", "PROJ-1").Count(&count)
	if count != 1 {
		t.Fatalf("rerun must not duplicate tasks, got %d", count)
	}
	var task models.Task
	database.First(&task, "jira_key = ?", "PROJ-1")
	if task.Title != "Renamed upstream" {
		t.Errorf("title = %q", task.Title)
	}
	if task.Version < 1 {
		t.Error("version not bumped on update")
	}
}

func TestRerunPreservesLocalDescription(t *testing.T) {
	database := testDB(t)
	board, _ := seedBoard(t, database)
	conn := seedConnection(t, database)

	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResult(
			remoteIssue("1", "PROJ-1", "Same title", "Done", map[string]interface{}{
				"description": map[string]interface{}{
					"type": "doc", "version": 1,
					"content": []map[string]interface{}{{
						"type":    "paragraph",
						"content": []map[string]string{{"type": "text", "text": "remote description"}},
					}},
				},
			}),
		))
	}))

	profile, run, err := engine.ImportIntoBoard(context.Background(), ImportArgs{
		BoardID:       board.ID,
		ConnectionID:  conn.ID,
		JQL:           "project = PROJ",
		StatusToState: map[string]string{"Done": "done"},
	})
	if err != nil || run.Status != models.RunStatusSuccess {
		t.Fatalf("import failed: %v / %+v", err, run)
	}

	var task models.Task
	database.First(&task, "jira_key = ?", "PROJ-1")
	if task.Description != "remote description" {
		t.Fatalf("initial import description = %q", task.Description)
	}

	// The run loop refreshes headline fields; the description belongs to
	// the board once imported and only a per-task pull rewrites it.
	task.Description = "local edit the run loop must not touch"
	if err := database.Save(&task).Error; err != nil {
		t.Fatal(err)
	}

	run2, err := engine.RunProfileNow(context.Background(), profile.ID, "")
	if err != nil || run2.Status != models.RunStatusSuccess {
		t.Fatalf("rerun failed: %v / %+v", err, run2)
	}

	database.First(&task, "jira_key = ?", "PROJ-1")
	if task.Description != "local edit the run loop must not touch" {
		t.Errorf("description clobbered by run loop: %q", task.Description)
	}
	if task.Title != "Same title" {
		t.Errorf("title should still refresh, got %q", task.Title)
	}
}

func TestStartedEventsAttachToTheRun(t *testing.T) {
	database := testDB(t)
	board, _ := seedBoard(t, database)
	conn := seedConnection(t, database)

	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResult())
	}))

	profile, run, err := engine.ImportIntoBoard(context.Background(), ImportArgs{
		BoardID:      board.ID,
		ConnectionID: conn.ID,
		JQL:          "project = PROJ",
	})
	if err != nil {
		t.Fatalf("ImportIntoBoard: %v", err)
	}

	var started models.AuditEvent
	if err := database.First(&started, "event_type = ?", audit.EventImportStarted).Error; err != nil {
		t.Fatal("import started event missing")
	}
	if started.EntityType != "sync_run" || started.EntityID == nil || *started.EntityID != run.ID {
		t.Errorf("started event points at %s %v, want sync_run %s", started.EntityType, started.EntityID, run.ID)
	}

	run2, err := engine.RunProfileNow(context.Background(), profile.ID, "")
	if err != nil {
		t.Fatalf("RunProfileNow: %v", err)
	}
	var synced models.AuditEvent
	if err := database.First(&synced, "event_type = ?", audit.EventSyncStarted).Error; err != nil {
		t.Fatal("sync started event missing")
	}
	if synced.EntityType != "sync_run" || synced.EntityID == nil || *synced.EntityID != run2.ID {
		t.Errorf("sync started event points at %s %v, want sync_run %s", synced.EntityType, synced.EntityID, run2.ID)
	}
}

func TestRunCountsConflictAndStillAppliesRemote(t *testing.T) {
	database := testDB(t)
	board, _ := seedBoard(t, database)
	conn := seedConnection(t, database)

	updated := "2026-05-01T10:00:00.000+0000"
	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issue := remoteIssue("1", "PROJ-1", "Remote truth", "Done", nil)
		issue["fields"].(map[string]interface{})["updated"] = updated
		json.NewEncoder(w).Encode(searchResult(issue))
	}))

	profile, run, err := engine.ImportIntoBoard(context.Background(), ImportArgs{
		BoardID:       board.ID,
		ConnectionID:  conn.ID,
		JQL:           "project = PROJ",
		StatusToState: map[string]string{"Done": "done"},
	})
	if err != nil || run.Status != models.RunStatusSuccess {
		t.Fatalf("import failed: %v", err)
	}

	// Local edit after the sync point, remote edit too: a conflict.
	var task models.Task
	database.First(&task, "jira_key = ?", "PROJ-1")
	task.Title = "Local edit"
	if err := database.Save(&task).Error; err != nil {
		t.Fatal(err)
	}
	updated = "2030-01-01T00:00:00.000+0000"

	run2, err := engine.RunProfileNow(context.Background(), profile.ID, "")
	if err != nil {
		t.Fatalf("RunProfileNow: %v", err)
	}
	if run2.Status != models.RunStatusSuccess {
		t.Fatalf("run status = %s", run2.Status)
	}
	last := run2.Log[len(run2.Log)-1]
	if last.Message != "Done imported=0 updated=1 conflicts=1" {
		t.Errorf("summary log = %q", last.Message)
	}

	foundWarn := false
	for _, entry := range run2.Log {
		if entry.Level == models.LogWarn && strings.Contains(entry.Message, "Conflict on PROJ-1") &&
			strings.Contains(entry.Message, "policy=jiraWins") {
			foundWarn = true
		}
	}
	if !foundWarn {
		t.Errorf("conflict warn missing from log: %+v", run2.Log)
	}

	database.First(&task, "jira_key = ?", "PROJ-1")
	if task.Title != "Remote truth" {
		t.Errorf("remote snapshot must win, title = %q", task.Title)
	}
}

func TestRunFailsWhenBoardHasNoLanes(t *testing.T) {
	database := testDB(t)
	board := &models.Board{Name: "Empty", NameKey: "empty"}
	database.Create(board)
	conn := seedConnection(t, database)

	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no remote call expected before the lane check")
	}))

	_, run, err := engine.ImportIntoBoard(context.Background(), ImportArgs{
		BoardID:      board.ID,
		ConnectionID: conn.ID,
		JQL:          "project = PROJ",
	})
	if err != nil {
		t.Fatalf("run errors land on the run record: %v", err)
	}
	if run.Status != models.RunStatusError {
		t.Fatalf("run status = %s", run.Status)
	}
	if run.ErrorMessage == nil || !strings.Contains(*run.ErrorMessage, "board has no lanes") {
		t.Errorf("error message = %v", run.ErrorMessage)
	}
	if run.FinishedAt == nil {
		t.Error("failed run must still be finished")
	}
}

func TestRunAbortsOnRunawayPagination(t *testing.T) {
	database := testDB(t)
	board, _ := seedBoard(t, database)
	conn := seedConnection(t, database)

	pages := 0
	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issues":        []map[string]interface{}{remoteIssue("1", "PROJ-1", "Loop", "Done", nil)},
			"nextPageToken": "again",
			"isLast":        false,
		})
	}))
	engine.settings.SyncMaxPages = 3

	_, run, err := engine.ImportIntoBoard(context.Background(), ImportArgs{
		BoardID:      board.ID,
		ConnectionID: conn.ID,
		JQL:          "project = PROJ",
	})
	if err != nil {
		t.Fatalf("ImportIntoBoard: %v", err)
	}
	if run.Status != models.RunStatusError {
		t.Fatalf("run status = %s", run.Status)
	}
	if run.ErrorMessage == nil || !strings.Contains(*run.ErrorMessage, "aborted after 3 pages") {
		t.Errorf("error message = %v", run.ErrorMessage)
	}
	if pages != 3 {
		t.Errorf("pages fetched = %d, want 3", pages)
	}
}

func TestImportRejectsUnknownPolicy(t *testing.T) {
	database := testDB(t)
	board, _ := seedBoard(t, database)
	conn := seedConnection(t, database)

	engine := NewEngineWithDial(database, nil, nil)
	_, _, err := engine.ImportIntoBoard(context.Background(), ImportArgs{
		BoardID:        board.ID,
		ConnectionID:   conn.ID,
		JQL:            "project = PROJ",
		ConflictPolicy: "coinFlip",
	})
	if err == nil || !strings.Contains(err.Error(), "unknown conflict policy") {
		t.Fatalf("expected policy validation error, got %v", err)
	}
}

func TestRunsOfSameProfileAreSerialized(t *testing.T) {
	engine := NewEngineWithDial(nil, nil, nil)

	if !engine.tryAcquire("profile-1") {
		t.Fatal("first acquire should succeed")
	}
	if engine.tryAcquire("profile-1") {
		t.Error("second acquire of the same profile should fail")
	}
	if !engine.tryAcquire("profile-2") {
		t.Error("other profiles are unaffected")
	}
	engine.release("profile-1")
	if !engine.tryAcquire("profile-1") {
		t.Error("acquire after release should succeed")
	}
}
