// Package sync implements the bidirectional bridge between boards and
// Jira: JQL imports into lanes, issue linking and creation, single-task
// pull, and the two-way comment bridge. All remote access goes through
// internal/jira; all local writes bump Task.Version.
package sync

import (
	"errors"
	"fmt"
	gosync "sync"

	"github.com/zalando/go-keyring"
	"gorm.io/gorm"

	"neonlanes/internal/jira"
	"neonlanes/internal/models"
	"neonlanes/internal/settings"
)

var (
	// ErrNeedsReconnect means the connection row exists but its credential
	// is gone from the keyring. The fix is re-entering the token.
	ErrNeedsReconnect = errors.New("jira connection needs reconnect: credential missing from keyring")

	// ErrNotLinked means a per-task operation was asked of a task with no
	// Jira binding.
	ErrNotLinked = errors.New("task is not linked to a Jira issue")

	// ErrRunInProgress rejects overlapping runs of the same profile.
	ErrRunInProgress = errors.New("a sync run for this profile is already in progress")
)

// DialFunc builds an API client for a connection. Tests swap this for a
// dialer pointed at a local fake server.
type DialFunc func(conn *models.JiraConnection) (*jira.Client, error)

// Engine is the sync engine: it owns the database handle, the settings
// and the dialer, and serializes runs per profile.
type Engine struct {
	db       *gorm.DB
	settings *settings.Settings
	dial     DialFunc

	mu     gosync.Mutex
	active map[string]bool
}

// NewEngine creates an engine that resolves credentials from the OS
// keyring.
func NewEngine(db *gorm.DB, s *settings.Settings) *Engine {
	e := &Engine{db: db, settings: s, active: make(map[string]bool)}
	e.dial = e.keyringDial
	return e
}

// NewEngineWithDial creates an engine with a custom dialer (tests).
func NewEngineWithDial(db *gorm.DB, s *settings.Settings, dial DialFunc) *Engine {
	return &Engine{db: db, settings: s, dial: dial, active: make(map[string]bool)}
}

func (e *Engine) keyringDial(conn *models.JiraConnection) (*jira.Client, error) {
	token, err := keyring.Get(models.KeyringServiceName, conn.TokenRef)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNeedsReconnect
		}
		return nil, fmt.Errorf("read jira credential: %w", err)
	}
	email := ""
	if conn.Email != nil {
		email = *conn.Email
	}
	return jira.NewClient(jira.Auth{
		BaseURL:   conn.BaseURL,
		Email:     email,
		Token:     token,
		UserAgent: e.settings.JiraUserAgent,
	}), nil
}

// SetConnectionToken stores a connection's API token in the keyring.
func SetConnectionToken(conn *models.JiraConnection, token string) error {
	return keyring.Set(models.KeyringServiceName, conn.TokenRef, token)
}

// DeleteConnectionToken removes a connection's token from the keyring.
// A token that is already gone is not an error.
func DeleteConnectionToken(conn *models.JiraConnection) error {
	err := keyring.Delete(models.KeyringServiceName, conn.TokenRef)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Connect loads a connection row and dials it.
func (e *Engine) Connect(connectionID string) (*models.JiraConnection, *jira.Client, error) {
	var conn models.JiraConnection
	if err := e.db.First(&conn, "id = ?", connectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("jira connection %s not found", connectionID)
		}
		return nil, nil, err
	}
	client, err := e.dial(&conn)
	if err != nil {
		return nil, nil, err
	}
	return &conn, client, nil
}

// tryAcquire marks a profile as running; reports false if it already is.
func (e *Engine) tryAcquire(profileID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[profileID] {
		return false
	}
	e.active[profileID] = true
	return true
}

func (e *Engine) release(profileID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, profileID)
}
