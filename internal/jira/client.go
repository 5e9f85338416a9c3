// Package jira is the HTTP client for the remote issue tracker: JQL
// search with legacy-endpoint fallback, issue and comment CRUD, user
// search, and ADF conversion. No board or sync logic lives here.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultFields is the field set requested on search and get calls.
const DefaultFields = "summary,description,assignee,priority,issuetype,labels,duedate,status,updated"

const apiTimeout = 30 * time.Second

// ApiError is a non-2xx response from Jira. Message is assembled from the
// structured error payload when present, else the truncated raw body.
type ApiError struct {
	StatusCode int
	Message    string
	Details    map[string]interface{}
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.StatusCode, e.Message)
}

// Auth carries the resolved credentials for one Jira instance.
// Basic auth when Email is set (Jira Cloud), else a bearer token.
type Auth struct {
	BaseURL   string
	Email     string
	Token     string
	UserAgent string
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	auth       Auth
	HTTPClient *http.Client
}

// NewClient creates a client with a pooled, timeout-bound transport.
func NewClient(auth Auth) *Client {
	auth.BaseURL = strings.TrimRight(auth.BaseURL, "/")
	return &Client{
		auth: auth,
		HTTPClient: &http.Client{
			Timeout: apiTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NamedField is a Jira reference field carrying an id and display name.
type NamedField struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// UserField represents a Jira user reference.
type UserField struct {
	AccountID    string `json:"accountId,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// IssueFields contains the requested fields of a Jira issue. Everything is
// optional: tenants disable fields freely, so all extraction/defaulting
// happens in the sync mapping layer, not scattered at call sites.
type IssueFields struct {
	Summary     string          `json:"summary,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	Assignee    *UserField      `json:"assignee,omitempty"`
	Priority    *NamedField     `json:"priority,omitempty"`
	IssueType   *NamedField     `json:"issuetype,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
	DueDate     string          `json:"duedate,omitempty"`
	Status      *NamedField     `json:"status,omitempty"`
	Updated     string          `json:"updated,omitempty"`
}

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self,omitempty"`
	Fields IssueFields `json:"fields"`
}

// SearchPage is one page of search results in token-based shape. Legacy
// offset pagination is translated into this shape inside Search; callers
// never see a numeric offset.
type SearchPage struct {
	Issues        []Issue
	NextPageToken string
	IsLast        bool
}

// CreatedIssue is the minimal create response (id, key, self).
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// Comment is a Jira issue comment. Body is ADF (or a plain string on old
// API variants).
type Comment struct {
	ID      string          `json:"id"`
	Author  *UserField      `json:"author,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
	Created string          `json:"created,omitempty"`
}

// Search runs a JQL query and returns one page of results. The preferred
// /search/jql endpoint is tried first; tenants that retired it answer 404
// or 410 and the legacy offset-paginated /search endpoint is used instead.
// The fallback order is a fixed attempt list so it stays testable.
func (c *Client) Search(ctx context.Context, jql string, maxResults int, pageToken string) (*SearchPage, error) {
	attempts := []struct {
		name string
		run  func() (*SearchPage, error)
	}{
		{"search/jql", func() (*SearchPage, error) { return c.searchJQL(ctx, jql, maxResults, pageToken) }},
		{"legacy search", func() (*SearchPage, error) { return c.searchLegacy(ctx, jql, maxResults, pageToken) }},
	}

	var lastErr error
	for i, attempt := range attempts {
		page, err := attempt.run()
		if err == nil {
			return page, nil
		}
		lastErr = err
		var apiErr *ApiError
		if i < len(attempts)-1 && errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusGone) {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (c *Client) searchJQL(ctx context.Context, jql string, maxResults int, pageToken string) (*SearchPage, error) {
	params := url.Values{
		"jql":        {jql},
		"maxResults": {strconv.Itoa(maxResults)},
		"fields":     {DefaultFields},
	}
	if pageToken != "" {
		params.Set("nextPageToken", pageToken)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/search/jql", params, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Issues        []Issue `json:"issues"`
		NextPageToken string  `json:"nextPageToken"`
		IsLast        *bool   `json:"isLast"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	page := &SearchPage{Issues: result.Issues, NextPageToken: result.NextPageToken}
	if result.IsLast != nil {
		page.IsLast = *result.IsLast
	} else {
		page.IsLast = result.NextPageToken == ""
	}
	return page, nil
}

func (c *Client) searchLegacy(ctx context.Context, jql string, maxResults int, pageToken string) (*SearchPage, error) {
	// Tokens handed out by this path are numeric offsets.
	startAt := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("legacy search: invalid page token %q", pageToken)
		}
		startAt = n
	}

	params := url.Values{
		"jql":        {jql},
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(maxResults)},
		"fields":     {DefaultFields},
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/search", params, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Issues  []Issue `json:"issues"`
		StartAt int     `json:"startAt"`
		Total   int     `json:"total"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse legacy search response: %w", err)
	}

	next := startAt + len(result.Issues)
	page := &SearchPage{Issues: result.Issues}
	if len(result.Issues) == 0 || next >= result.Total {
		page.IsLast = true
	} else {
		page.NextPageToken = strconv.Itoa(next)
	}
	return page, nil
}

// CreateIssueInput is the field set for issue creation. PriorityName and
// AssigneeAccountID are optional; the link manager drops them one by one
// when a tenant rejects them with 400.
type CreateIssueInput struct {
	ProjectKey        string
	Summary           string
	Description       string
	IssueType         string
	Labels            []string
	PriorityName      string
	AssigneeAccountID string
}

// CreateIssue creates a new issue and returns its id/key/self triple.
// No fallback logic here; callers own the retry policy.
func (c *Client) CreateIssue(ctx context.Context, in CreateIssueInput) (*CreatedIssue, error) {
	fields := map[string]interface{}{
		"project":     map[string]string{"key": in.ProjectKey},
		"summary":     in.Summary,
		"description": ADFFromPlainText(in.Description),
		"issuetype":   map[string]string{"name": in.IssueType},
		"labels":      nonNil(in.Labels),
	}
	if in.PriorityName != "" {
		fields["priority"] = map[string]string{"name": in.PriorityName}
	}
	if in.AssigneeAccountID != "" {
		fields["assignee"] = map[string]string{"accountId": in.AssigneeAccountID}
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/rest/api/3/issue", nil, map[string]interface{}{"fields": fields})
	if err != nil {
		return nil, err
	}

	var created CreatedIssue
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &created, nil
}

// GetIssue fetches a single issue by key (e.g. "PROJ-123").
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	params := url.Values{"fields": {DefaultFields}}
	body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(key), params, nil)
	if err != nil {
		return nil, err
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	return &issue, nil
}

// UpdateIssue patches summary and/or description. Nil pointers leave the
// remote field untouched; a no-field call is a no-op.
func (c *Client) UpdateIssue(ctx context.Context, key string, summary, description *string) error {
	fields := map[string]interface{}{}
	if summary != nil {
		fields["summary"] = *summary
	}
	if description != nil {
		fields["description"] = ADFFromPlainText(*description)
	}
	if len(fields) == 0 {
		return nil
	}

	_, err := c.doRequest(ctx, http.MethodPut, "/rest/api/3/issue/"+url.PathEscape(key), nil,
		map[string]interface{}{"fields": fields})
	return err
}

// SetAssignee assigns the issue to the account id, or unassigns on nil.
func (c *Client) SetAssignee(ctx context.Context, key string, accountID *string) error {
	payload := map[string]interface{}{"accountId": nil}
	if accountID != nil {
		payload["accountId"] = *accountID
	}
	_, err := c.doRequest(ctx, http.MethodPut, "/rest/api/3/issue/"+url.PathEscape(key)+"/assignee", nil, payload)
	return err
}

// ListComments fetches all comments on an issue, oldest first, paging to
// exhaustion internally.
func (c *Client) ListComments(ctx context.Context, key string) ([]Comment, error) {
	var out []Comment
	startAt := 0
	const pageSize = 50

	for {
		params := url.Values{
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(pageSize)},
			"orderBy":    {"created"},
		}
		body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/issue/"+url.PathEscape(key)+"/comment", params, nil)
		if err != nil {
			return nil, err
		}

		var result struct {
			Comments   []Comment `json:"comments"`
			StartAt    int       `json:"startAt"`
			MaxResults int       `json:"maxResults"`
			Total      int       `json:"total"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("parse comments response: %w", err)
		}
		if len(result.Comments) == 0 {
			return out, nil
		}
		out = append(out, result.Comments...)

		startAt = result.StartAt + max(result.MaxResults, pageSize)
		if result.Total > 0 && startAt >= result.Total {
			return out, nil
		}
	}
}

// AddComment posts a plain-text comment, converted to ADF.
func (c *Client) AddComment(ctx context.Context, key, text string) (*Comment, error) {
	payload := map[string]interface{}{"body": ADFFromPlainText(text)}
	body, err := c.doRequest(ctx, http.MethodPost, "/rest/api/3/issue/"+url.PathEscape(key)+"/comment", nil, payload)
	if err != nil {
		return nil, err
	}

	var created Comment
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("parse add comment response: %w", err)
	}
	return &created, nil
}

// Myself returns the authenticated user, which doubles as the cheapest
// credential check the API offers.
func (c *Client) Myself(ctx context.Context) (*UserField, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/myself", nil, nil)
	if err != nil {
		return nil, err
	}

	var me UserField
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, fmt.Errorf("parse myself response: %w", err)
	}
	return &me, nil
}

// SearchUsers finds Jira users matching a free-text query (name or email).
func (c *Client) SearchUsers(ctx context.Context, query string, maxResults int) ([]UserField, error) {
	params := url.Values{
		"query":      {query},
		"maxResults": {strconv.Itoa(maxResults)},
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/user/search", params, nil)
	if err != nil {
		return nil, err
	}

	var users []UserField
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("parse user search response: %w", err)
	}
	return users, nil
}

// doRequest executes an authenticated request and returns the response
// body. Transport-level failures on GETs are retried with exponential
// backoff; HTTP status errors are never retried here.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, payload interface{}) ([]byte, error) {
	if c.auth.BaseURL == "" {
		return nil, fmt.Errorf("jira base URL not configured")
	}
	if c.auth.Token == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	apiURL := c.auth.BaseURL + path
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	do := func() ([]byte, error) {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		c.setAuth(req)
		req.Header.Set("Accept", "application/json")
		if c.auth.UserAgent != "" {
			req.Header.Set("User-Agent", c.auth.UserAgent)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			// Retryable only for idempotent requests; a replayed POST
			// could duplicate an issue or comment.
			if method == http.MethodGet {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("read response: %w", err))
		}

		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(extractError(resp.StatusCode, respBody))
		}
		return respBody, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	var respBody []byte
	err := backoff.Retry(func() error {
		var err error
		respBody, err = do()
		return err
	}, policy)
	return respBody, err
}

// setAuth sets the appropriate authentication header on the request.
func (c *Client) setAuth(req *http.Request) {
	if c.auth.Email != "" {
		req.SetBasicAuth(c.auth.Email, c.auth.Token)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.auth.Token)
}

// extractError builds an ApiError from an error response body. Jira's
// structured shape is {"errorMessages": [...], "errors": {field: msg}};
// anything else falls back to the truncated raw body.
func extractError(status int, body []byte) *ApiError {
	var payload struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil &&
		(len(payload.ErrorMessages) > 0 || len(payload.Errors) > 0) {
		var parts []string
		for _, m := range payload.ErrorMessages {
			if m != "" {
				parts = append(parts, m)
			}
		}
		keys := make([]string, 0, len(payload.Errors))
		for k := range payload.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, payload.Errors[k]))
		}
		msg := strings.TrimSpace(strings.Join(parts, "; "))
		if msg == "" {
			msg = "Jira request failed"
		}
		return &ApiError{
			StatusCode: status,
			Message:    msg,
			Details: map[string]interface{}{
				"errorMessages": payload.ErrorMessages,
				"errors":        payload.Errors,
			},
		}
	}

	raw := strings.TrimSpace(string(body))
	if raw != "" {
		if len(raw) > 500 {
			raw = raw[:500]
		}
		return &ApiError{StatusCode: status, Message: raw}
	}
	return &ApiError{StatusCode: status, Message: "Jira request failed"}
}

// ParseTime parses the timestamp formats Jira emits (issue timestamps
// with millisecond offsets, date-only due dates).
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		"2006-01-02T15:04:05.000-0700",
		time.RFC3339,
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
