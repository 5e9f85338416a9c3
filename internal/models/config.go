package models

import (
	"time"
)

// Config stores key-value configuration for the project
type Config struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Config
func (Config) TableName() string {
	return "config"
}

// Common config keys
const (
	ConfigSchemaVersion = "schema_version"
	ConfigProjectName   = "project_name"
	ConfigInitializedAt = "initialized_at"
	ConfigDefaultBoard  = "default_board"
)

// GitHub integration config keys
const (
	ConfigGitHubRepo        = "github_repo"
	ConfigGitHubIssuePrefix = "github_issue_prefix"
	ConfigGitHubTokenSet    = "github_token_set"
)

// DefaultGitHubIssuePrefix is the title prefix for issues pushed to GitHub
const DefaultGitHubIssuePrefix = "[NeonLanes]"

// Keyring constants
const (
	KeyringServiceName    = "neonlanes"
	KeyringGitHubTokenKey = "github-token"
)
