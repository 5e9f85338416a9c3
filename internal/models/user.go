package models

import (
	"time"

	"gorm.io/gorm"
)

// User role constants
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// IntegrationBotEmail is the fixed synthetic account that authors comments
// imported from Jira (never impersonates the remote author).
const IntegrationBotEmail = "jira@neonlanes.local"

// User is a board member. JiraAccountID, when set, short-circuits the
// remote user search during assignee resolution.
type User struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Email         string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name          string    `gorm:"size:255;not null" json:"name"`
	Role          string    `gorm:"size:20;default:member" json:"role"`
	AvatarURL     *string   `gorm:"size:500" json:"avatar_url,omitempty"`
	JiraAccountID *string   `gorm:"size:128" json:"jira_account_id,omitempty"`
	Active        bool      `gorm:"default:true" json:"active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	return nil
}
