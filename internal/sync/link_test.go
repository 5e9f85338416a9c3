package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"neonlanes/internal/audit"
	"neonlanes/internal/jira"
	"neonlanes/internal/models"
)

func TestLabelizeTag(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Backend", "backend"},
		{"needs review", "needs-review"},
		{"v2.0_final", "v2.0_final"},
		{"  spaced  ", "spaced"},
		{"weird!@#chars", "weirdchars"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := LabelizeTag(tt.in); got != tt.want {
			t.Errorf("LabelizeTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := LabelizeTag("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if len(long) > 50 {
		t.Errorf("label not capped at 50 chars: %d", len(long))
	}
}

func TestJiraPriorityName(t *testing.T) {
	tests := []struct{ in, want string }{
		{models.PriorityP0, "Highest"},
		{models.PriorityP1, "High"},
		{models.PriorityP2, "Medium"},
		{models.PriorityP3, "Low"},
		{"P9", "High"},
	}
	for _, tt := range tests {
		if got := jiraPriorityName(tt.in); got != tt.want {
			t.Errorf("jiraPriorityName(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

// emptySearch answers the marker-label search with no results.
func emptySearch(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"issues": []interface{}{}, "isLast": true,
	})
}

func TestCreateIssueForTaskAlreadyLinkedIsNoop(t *testing.T) {
	database := testDB(t)
	board, lanes := seedBoard(t, database)
	conn := seedConnection(t, database)
	task := seedTask(t, database, board, lanes["backlog"], "Linked already")
	linkTask(t, database, task, conn, "PROJ-7")

	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no HTTP call expected, got %s %s", r.Method, r.URL.Path)
	}))

	got, err := engine.CreateIssueForTask(context.Background(), CreateIssueArgs{
		TaskID: task.ID, ConnectionID: conn.ID, ProjectKey: "PROJ",
	})
	if err != nil {
		t.Fatalf("CreateIssueForTask: %v", err)
	}
	if got.JiraKeyString() != "PROJ-7" {
		t.Errorf("key = %s, want PROJ-7", got.JiraKeyString())
	}
}

func TestCreateIssueForTaskAdoptsMarkedIssue(t *testing.T) {
	database := testDB(t)
	board, lanes := seedBoard(t, database)
	conn := seedConnection(t, database)
	task := seedTask(t, database, board, lanes["backlog"], "Orphaned create")

	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/api/3/search/jql":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"issues": []map[string]interface{}{{"id": "55", "key": "PROJ-55"}},
				"isLast": true,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/3/issue":
			t.Error("create should not run when a marked issue exists")
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))

	got, err := engine.CreateIssueForTask(context.Background(), CreateIssueArgs{
		TaskID: task.ID, ConnectionID: conn.ID, ProjectKey: "PROJ", EnableSync: true,
	})
	if err != nil {
		t.Fatalf("CreateIssueForTask: %v", err)
	}
	if got.JiraKeyString() != "PROJ-55" {
		t.Errorf("adopted key = %s, want PROJ-55", got.JiraKeyString())
	}

	var events []models.AuditEvent
	database.Where("event_type = ?", audit.EventTaskRelinked).Find(&events)
	if len(events) != 1 {
		t.Errorf("relink audit events = %d, want 1", len(events))
	}
}

func TestCreateIssueForTaskDegradeChain(t *testing.T) {
	database := testDB(t)
	board, lanes := seedBoard(t, database)
	conn := seedConnection(t, database)
	assignee := "acc-123"
	conn.DefaultAssigneeID = &assignee
	database.Save(conn)

	task := seedTask(t, database, board, lanes["backlog"], "Picky tenant")
	task.Priority = models.PriorityP0
	database.Save(task)

	var attempts []map[string]json.RawMessage
	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/api/3/search/jql":
			emptySearch(w)
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/3/issue":
			var payload struct {
				Fields map[string]json.RawMessage `json:"fields"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			attempts = append(attempts, payload.Fields)

			_, hasPriority := payload.Fields["priority"]
			_, hasAssignee := payload.Fields["assignee"]
			if hasPriority || hasAssignee {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"errors":{"priority":"Field 'priority' cannot be set"}}`)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "9", "key": "PROJ-9", "self": "u"})
		case r.Method == http.MethodPut && r.URL.Path == "/rest/api/3/issue/PROJ-9/assignee":
			// The dropped assignee is retried on the dedicated endpoint.
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))

	got, err := engine.CreateIssueForTask(context.Background(), CreateIssueArgs{
		TaskID:       task.ID,
		ConnectionID: conn.ID,
		ProjectKey:   "PROJ",
		AssigneeMode: AssignConnectionDefault,
	})
	if err != nil {
		t.Fatalf("CreateIssueForTask: %v", err)
	}
	if got.JiraKeyString() != "PROJ-9" {
		t.Errorf("key = %s, want PROJ-9", got.JiraKeyString())
	}
	if len(attempts) != 3 {
		t.Fatalf("create attempts = %d, want 3 (full, no priority, neither)", len(attempts))
	}
	if _, ok := attempts[1]["priority"]; ok {
		t.Error("second attempt should drop priority")
	}
	if _, ok := attempts[1]["assignee"]; !ok {
		t.Error("second attempt should keep assignee")
	}

	var events []models.AuditEvent
	database.Where("event_type = ?", audit.EventTaskIssueCreated).Find(&events)
	if len(events) != 1 {
		t.Fatalf("created audit events = %d, want 1", len(events))
	}
	if events[0].Payload["droppedPriority"] != true || events[0].Payload["droppedAssignee"] != true {
		t.Errorf("drop flags not recorded: %+v", events[0].Payload)
	}
}

func TestCreateIssueForTaskAssignFailureIsNonFatal(t *testing.T) {
	database := testDB(t)
	board, lanes := seedBoard(t, database)
	conn := seedConnection(t, database)
	task := seedTask(t, database, board, lanes["backlog"], "Unassign me")

	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/api/3/search/jql":
			emptySearch(w)
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/3/issue":
			json.NewEncoder(w).Encode(map[string]string{"id": "3", "key": "PROJ-3", "self": "u"})
		case r.Method == http.MethodPut && r.URL.Path == "/rest/api/3/issue/PROJ-3/assignee":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"errorMessages":["cannot unassign"]}`)
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))

	got, err := engine.CreateIssueForTask(context.Background(), CreateIssueArgs{
		TaskID:       task.ID,
		ConnectionID: conn.ID,
		ProjectKey:   "PROJ",
		AssigneeMode: AssignUnassigned,
	})
	if err != nil {
		t.Fatalf("assign failure must not fail the create: %v", err)
	}
	if got.JiraKeyString() != "PROJ-3" {
		t.Errorf("key = %s", got.JiraKeyString())
	}

	var events []models.AuditEvent
	database.Where("event_type = ?", audit.EventAssignFailed).Find(&events)
	if len(events) != 1 {
		t.Errorf("assign_failed audit events = %d, want 1", len(events))
	}
}

func TestCreateIssueForTaskSendsMarkerAndProductLabels(t *testing.T) {
	database := testDB(t)
	board, lanes := seedBoard(t, database)
	conn := seedConnection(t, database)
	task := seedTask(t, database, board, lanes["backlog"], "Labeled")
	task.Tags = models.StringSlice{"Needs Review", "backend"}
	database.Save(task)

	var gotLabels []string
	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/api/3/search/jql":
			emptySearch(w)
		case r.Method == http.MethodPost && r.URL.Path == "/rest/api/3/issue":
			var payload struct {
				Fields struct {
					Labels []string `json:"labels"`
				} `json:"fields"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			gotLabels = payload.Fields.Labels
			json.NewEncoder(w).Encode(map[string]string{"id": "4", "key": "PROJ-4", "self": "u"})
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))

	if _, err := engine.CreateIssueForTask(context.Background(), CreateIssueArgs{
		TaskID: task.ID, ConnectionID: conn.ID, ProjectKey: "PROJ",
	}); err != nil {
		t.Fatalf("CreateIssueForTask: %v", err)
	}

	want := map[string]bool{
		ProductLabel:         true,
		MarkerLabel(task.ID): true,
		"needs-review":       true,
		"backend":            true,
	}
	if len(gotLabels) != len(want) {
		t.Fatalf("labels = %v", gotLabels)
	}
	for _, l := range gotLabels {
		if !want[l] {
			t.Errorf("unexpected label %q", l)
		}
	}
}

func TestLinkTask(t *testing.T) {
	database := testDB(t)
	board, lanes := seedBoard(t, database)
	conn := seedConnection(t, database)
	task := seedTask(t, database, board, lanes["backlog"], "Manual link")

	engine := testEngine(t, database, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("linking makes no remote call, got %s %s", r.Method, r.URL.Path)
	}))
	got, err := engine.LinkTask(context.Background(), task.ID, conn.ID, "proj-12", true, "")
	if err != nil {
		t.Fatalf("LinkTask: %v", err)
	}
	if got.JiraKeyString() != "PROJ-12" {
		t.Errorf("key should be uppercased, got %s", got.JiraKeyString())
	}
	if got.JiraURL == nil || *got.JiraURL != "https://jira.example.com/browse/PROJ-12" {
		t.Errorf("browse URL = %v", got.JiraURL)
	}
	if got.Version != task.Version+1 {
		t.Errorf("version = %d, want %d", got.Version, task.Version+1)
	}
	if !got.JiraSyncOn {
		t.Error("sync should be enabled")
	}
	if got.JiraLastSyncAt == nil {
		t.Error("link must stamp the sync time")
	}
}

func TestLinkTaskFailsWhenCredentialMissing(t *testing.T) {
	database := testDB(t)
	board, lanes := seedBoard(t, database)
	conn := seedConnection(t, database)
	task := seedTask(t, database, board, lanes["backlog"], "No secret")

	dial := func(*models.JiraConnection) (*jira.Client, error) {
		return nil, ErrNeedsReconnect
	}
	engine := NewEngineWithDial(database, nil, dial)

	_, err := engine.LinkTask(context.Background(), task.ID, conn.ID, "PROJ-1", true, "")
	if !errors.Is(err, ErrNeedsReconnect) {
		t.Fatalf("expected ErrNeedsReconnect, got %v", err)
	}

	var fresh models.Task
	database.First(&fresh, "id = ?", task.ID)
	if fresh.JiraKey != nil {
		t.Error("failed link must not stamp the task")
	}
}
