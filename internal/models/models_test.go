package models

import (
	"testing"
	"time"
)

func TestStringSliceScanValue(t *testing.T) {
	var s StringSlice
	if err := s.Scan(`["a","b"]`); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(s) != 2 || s[0] != "a" {
		t.Errorf("scanned = %v", s)
	}

	if err := s.Scan(nil); err != nil {
		t.Fatalf("Scan nil: %v", err)
	}
	if len(s) != 0 {
		t.Errorf("nil should scan to empty, got %v", s)
	}

	v, err := StringSlice(nil).Value()
	if err != nil || v != "[]" {
		t.Errorf("empty Value = %v, %v", v, err)
	}
}

func TestStringMapScanValue(t *testing.T) {
	var m StringMap
	if err := m.Scan([]byte(`{"Done":"done"}`)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if m["Done"] != "done" {
		t.Errorf("scanned = %v", m)
	}

	if err := m.Scan("not json"); err == nil {
		t.Error("invalid JSON should error")
	}
}

func TestValidatePolicy(t *testing.T) {
	for _, p := range []string{PolicyJiraWins, PolicyLocalWins, PolicyManual} {
		if err := ValidatePolicy(p); err != nil {
			t.Errorf("ValidatePolicy(%s): %v", p, err)
		}
	}
	if err := ValidatePolicy("coinFlip"); err == nil {
		t.Error("unknown policy should be rejected")
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"acme.atlassian.net", "https://acme.atlassian.net"},
		{"https://acme.atlassian.net/", "https://acme.atlassian.net"},
		{"  http://jira.local  ", "http://jira.local"},
	}
	for _, tt := range tests {
		got, err := NormalizeBaseURL(tt.in)
		if err != nil {
			t.Errorf("NormalizeBaseURL(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := NormalizeBaseURL("   "); err == nil {
		t.Error("blank URL should error")
	}
}

func TestConnectionBrowseURL(t *testing.T) {
	c := JiraConnection{BaseURL: "https://acme.atlassian.net/"}
	if got := c.BrowseURL("PROJ-1"); got != "https://acme.atlassian.net/browse/PROJ-1" {
		t.Errorf("BrowseURL = %s", got)
	}
}

func TestTaskIsJiraLinked(t *testing.T) {
	var task Task
	if task.IsJiraLinked() {
		t.Error("fresh task is not linked")
	}

	key := "PROJ-1"
	connID := "c1"
	task.JiraKey = &key
	if task.IsJiraLinked() {
		t.Error("key without connection is not a full link")
	}
	task.JiraConnID = &connID
	if !task.IsJiraLinked() {
		t.Error("key + connection should count as linked")
	}
}

func TestTaskAddTagDedupes(t *testing.T) {
	var task Task
	task.AddTag("backend")
	task.AddTag("backend")
	task.AddTag("ui")
	if len(task.Tags) != 2 {
		t.Errorf("tags = %v", task.Tags)
	}
}

func TestSyncRunAppendLog(t *testing.T) {
	var run SyncRun
	run.AppendLog(LogInfo, "one")
	run.AppendLog(LogWarn, "two")

	if len(run.Log) != 2 {
		t.Fatalf("log entries = %d", len(run.Log))
	}
	if run.Log[0].Message != "one" || run.Log[1].Level != LogWarn {
		t.Errorf("log = %+v", run.Log)
	}
	if run.Log[0].At.IsZero() || run.Log[0].At.Location() != time.UTC {
		t.Errorf("timestamps must be UTC, got %v", run.Log[0].At)
	}
	if run.IsFinished() {
		t.Error("running run is not finished")
	}
	run.Status = RunStatusError
	if !run.IsFinished() {
		t.Error("error status is terminal")
	}
}

func TestRunLogRoundTrip(t *testing.T) {
	var run SyncRun
	run.AppendLog(LogInfo, "hello")

	v, err := run.Log.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var back RunLog
	if err := back.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(back) != 1 || back[0].Message != "hello" {
		t.Errorf("round trip = %+v", back)
	}
}
