package sync

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"neonlanes/internal/db"
	"neonlanes/internal/jira"
	"neonlanes/internal/models"
	"neonlanes/internal/settings"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.InitDB(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.CloseDB() })
	return database
}

// testEngine wires an engine whose dialer talks to the fake Jira server.
func testEngine(t *testing.T, database *gorm.DB, handler http.Handler) *Engine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dial := func(conn *models.JiraConnection) (*jira.Client, error) {
		return jira.NewClient(jira.Auth{BaseURL: srv.URL, Email: "bot@example.com", Token: "secret"}), nil
	}
	return NewEngineWithDial(database, settings.Default(), dial)
}

func seedBoard(t *testing.T, database *gorm.DB) (*models.Board, map[string]*models.Lane) {
	t.Helper()
	board := &models.Board{Name: "Test", NameKey: "test"}
	if err := database.Create(board).Error; err != nil {
		t.Fatalf("create board: %v", err)
	}

	lanes := map[string]*models.Lane{}
	for i, spec := range []struct{ name, key, typ string }{
		{"Backlog", "backlog", models.LaneTypeBacklog},
		{"In Progress", "in_progress", models.LaneTypeInProgress},
		{"Done", "done", models.LaneTypeDone},
	} {
		lane := &models.Lane{BoardID: board.ID, Name: spec.name, StateKey: spec.key, Type: spec.typ, Position: i}
		if err := database.Create(lane).Error; err != nil {
			t.Fatalf("create lane: %v", err)
		}
		lanes[spec.key] = lane
	}
	return board, lanes
}

func seedConnection(t *testing.T, database *gorm.DB) *models.JiraConnection {
	t.Helper()
	email := "bot@example.com"
	conn := &models.JiraConnection{BaseURL: "https://jira.example.com", Email: &email}
	if err := database.Create(conn).Error; err != nil {
		t.Fatalf("create connection: %v", err)
	}
	return conn
}

func seedTask(t *testing.T, database *gorm.DB, board *models.Board, lane *models.Lane, title string) *models.Task {
	t.Helper()
	task := &models.Task{
		BoardID:  board.ID,
		LaneID:   lane.ID,
		StateKey: lane.StateKey,
		Title:    title,
	}
	if err := database.Create(task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func linkTask(t *testing.T, database *gorm.DB, task *models.Task, conn *models.JiraConnection, key string) {
	t.Helper()
	url := conn.BrowseURL(key)
	task.JiraKey = &key
	task.JiraURL = &url
	task.JiraConnID = &conn.ID
	task.JiraSyncOn = true
	if err := database.Save(task).Error; err != nil {
		t.Fatalf("link task: %v", err)
	}
}
