package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// JiraConnection holds the address and credential reference for one Jira
// instance. The API token itself lives in the system keyring under
// TokenRef; the row only records that a credential was saved.
type JiraConnection struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	Name              *string   `gorm:"size:255" json:"name,omitempty"`
	BaseURL           string    `gorm:"size:500;not null" json:"base_url"`
	Email             *string   `gorm:"size:255" json:"email,omitempty"`
	TokenRef          string    `gorm:"size:100;not null" json:"token_ref"`
	DefaultAssigneeID *string   `gorm:"column:default_assignee_account_id;size:128" json:"default_assignee_account_id,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for JiraConnection
func (JiraConnection) TableName() string {
	return "jira_connections"
}

// BeforeCreate hook to generate ID and the keyring reference
func (c *JiraConnection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.TokenRef == "" {
		c.TokenRef = "jira-" + c.ID
	}
	return nil
}

// BrowseURL returns the human-facing URL for an issue key on this instance
func (c *JiraConnection) BrowseURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", strings.TrimRight(c.BaseURL, "/"), key)
}

// NormalizeBaseURL trims and defaults the scheme of a Jira base URL
func NormalizeBaseURL(raw string) (string, error) {
	b := strings.TrimRight(strings.TrimSpace(raw), "/")
	if b == "" {
		return "", fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(b, "http://") && !strings.HasPrefix(b, "https://") {
		b = "https://" + b
	}
	return b, nil
}
