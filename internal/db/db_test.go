package db

import (
	"os"
	"path/filepath"
	"testing"

	"neonlanes/internal/models"
)

func TestInitDBMigratesAndStoresConfig(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), DataDir, DBFileName)

	database, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer CloseDB()

	if GetDB() != database {
		t.Error("InitDB should set the shared handle")
	}

	if err := SetConfig(models.ConfigProjectName, "demo"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	got, err := GetConfig(models.ConfigProjectName)
	if err != nil || got != "demo" {
		t.Errorf("GetConfig = %q, %v", got, err)
	}

	// Save on the same key overwrites, not duplicates.
	if err := SetConfig(models.ConfigProjectName, "renamed"); err != nil {
		t.Fatalf("SetConfig overwrite: %v", err)
	}
	got, _ = GetConfig(models.ConfigProjectName)
	if got != "renamed" {
		t.Errorf("overwritten value = %q", got)
	}

	var count int64
	database.Model(&models.Config{}).Where("key = ?", models.ConfigProjectName).Count(&count)
	if count != 1 {
		t.Errorf("config rows for key = %d, want 1", count)
	}
}

func TestInitDBCreatesSchemaForAllModels(t *testing.T) {
	database, err := InitDB(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer CloseDB()

	board := models.Board{Name: "B", NameKey: "b"}
	if err := database.Create(&board).Error; err != nil {
		t.Fatalf("create board: %v", err)
	}
	lane := models.Lane{BoardID: board.ID, Name: "Backlog", StateKey: "backlog", Type: models.LaneTypeBacklog}
	if err := database.Create(&lane).Error; err != nil {
		t.Fatalf("create lane: %v", err)
	}
	task := models.Task{BoardID: board.ID, LaneID: lane.ID, StateKey: lane.StateKey, Title: "T"}
	if err := database.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID == "" {
		t.Error("BeforeCreate should assign an id")
	}
}

func TestCommentDedupeIndex(t *testing.T) {
	database, err := InitDB(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer CloseDB()

	sourceID := "jc-1"
	first := models.Comment{TaskID: "t1", AuthorID: "u1", Body: "a", Source: models.CommentSourceJira, SourceID: &sourceID}
	if err := database.Create(&first).Error; err != nil {
		t.Fatalf("create comment: %v", err)
	}
	dup := models.Comment{TaskID: "t1", AuthorID: "u1", Body: "b", Source: models.CommentSourceJira, SourceID: &sourceID}
	if err := database.Create(&dup).Error; err == nil {
		t.Error("duplicate (task, source, source_id) must be rejected")
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, DataDir), 0755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	if err := os.Chdir(nested); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("FindProjectRoot: %v", err)
	}
	// Resolve symlinks; macOS TempDir lives under /private.
	wantResolved, _ := filepath.EvalSymlinks(root)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != wantResolved {
		t.Errorf("root = %s, want %s", gotResolved, wantResolved)
	}
}
