package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sync run status constants
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Log level constants for run log entries
const (
	LogInfo  = "info"
	LogWarn  = "warn"
	LogError = "error"
)

// LogEntry is one line of a run's append-only log
type LogEntry struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// RunLog stores the ordered log entries as a JSON array
type RunLog []LogEntry

// Scan implements the sql.Scanner interface
func (l *RunLog) Scan(value interface{}) error {
	if value == nil {
		*l = RunLog{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("RunLog.Scan: unexpected type %T", value)
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		*l = RunLog{}
		return nil
	}
	if err := json.Unmarshal(bytes, l); err != nil {
		return fmt.Errorf("RunLog.Scan: invalid JSON: %w", err)
	}
	return nil
}

// Value implements the driver.Valuer interface
func (l RunLog) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	bytes, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// SyncRun is one execution of a profile: status, timestamps and the
// append-only log. Immutable once it reaches a terminal status.
type SyncRun struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	BoardID      string     `gorm:"size:36;not null;index" json:"board_id"`
	ProfileID    string     `gorm:"size:36;not null;index" json:"profile_id"`
	Status       string     `gorm:"size:20;default:running" json:"status"`
	StartedAt    time.Time  `gorm:"autoCreateTime" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Log          RunLog     `gorm:"type:text" json:"log"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "sync_runs"
}

// BeforeCreate hook to generate ID if not set
func (r *SyncRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	return nil
}

// AppendLog adds a timestamped entry to the run's log
func (r *SyncRun) AppendLog(level, message string) {
	r.Log = append(r.Log, LogEntry{At: time.Now().UTC(), Level: level, Message: message})
}

// IsFinished reports whether the run reached a terminal status
func (r *SyncRun) IsFinished() bool {
	return r.Status == RunStatusSuccess || r.Status == RunStatusError
}
