package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"neonlanes/internal/models"
)

// Formatter defines the interface for output formatting
type Formatter interface {
	Task(t *models.Task)
	TaskList(tasks []models.Task, title string)
	TaskBrief(t *models.Task)
	Run(r *models.SyncRun)
	RunList(runs []models.SyncRun)
	Connection(c *models.JiraConnection)
	Success(msg string)
	Error(err error)
	Info(msg string)
	KeyValue(key, value string)
	Section(title string)
	JSON(v interface{})
}

// TextFormatter outputs human-readable text
type TextFormatter struct{}

// JSONFormatter outputs JSON
type JSONFormatter struct{}

// New returns the appropriate formatter based on json flag
func New(jsonOutput bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &TextFormatter{}
}

// TextFormatter implementations

func (f *TextFormatter) Task(t *models.Task) {
	fmt.Printf("ID:       %s\n", t.ID)
	fmt.Printf("Title:    %s\n", t.Title)
	fmt.Printf("Lane:     %s\n", t.StateKey)
	fmt.Printf("Priority: %s\n", t.Priority)
	fmt.Printf("Type:     %s\n", t.Type)
	if t.Description != "" {
		fmt.Printf("Desc:     %s\n", t.Description)
	}
	if len(t.Tags) > 0 {
		fmt.Printf("Tags:     %v\n", []string(t.Tags))
	}
	if t.DueDate != nil {
		fmt.Printf("Due:      %s\n", t.DueDate.Format("2006-01-02"))
	}
	if t.JiraKeyString() != "" {
		fmt.Printf("Jira:     %s", t.JiraKeyString())
		if t.JiraURL != nil {
			fmt.Printf(" (%s)", *t.JiraURL)
		}
		fmt.Println()
	}
	fmt.Printf("Created:  %s\n", t.CreatedAt.Format(models.DateTimeShortFormat))
}

func (f *TextFormatter) TaskList(tasks []models.Task, title string) {
	if title != "" {
		fmt.Printf("%s (%d):\n", title, len(tasks))
	}
	for _, t := range tasks {
		f.TaskBrief(&t)
	}
}

func (f *TextFormatter) TaskBrief(t *models.Task) {
	jiraStr := ""
	if t.JiraKeyString() != "" {
		jiraStr = fmt.Sprintf(" [%s]", t.JiraKeyString())
	}
	fmt.Printf("[%s] %s %s - %s%s\n", t.ID, t.Priority, t.StateKey, t.Title, jiraStr)
}

func (f *TextFormatter) Run(r *models.SyncRun) {
	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Status:   %s\n", r.Status)
	fmt.Printf("Started:  %s\n", r.StartedAt.Format(models.DateTimeShortFormat))
	if r.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", r.FinishedAt.Format(models.DateTimeShortFormat))
	}
	if r.ErrorMessage != nil {
		fmt.Printf("Error:    %s\n", *r.ErrorMessage)
	}
	if len(r.Log) > 0 {
		fmt.Println("Log:")
		for _, entry := range r.Log {
			fmt.Printf("  %s [%s] %s\n", entry.At.Format(models.DateTimeShortFormat), strings.ToUpper(entry.Level), entry.Message)
		}
	}
}

func (f *TextFormatter) RunList(runs []models.SyncRun) {
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format(models.DateTimeShortFormat)
		}
		fmt.Printf("[%s] %s started=%s finished=%s\n",
			r.ID, r.Status, r.StartedAt.Format(models.DateTimeShortFormat), finished)
	}
}

func (f *TextFormatter) Connection(c *models.JiraConnection) {
	fmt.Printf("ID:       %s\n", c.ID)
	if c.Name != nil {
		fmt.Printf("Name:     %s\n", *c.Name)
	}
	fmt.Printf("URL:      %s\n", c.BaseURL)
	if c.Email != nil {
		fmt.Printf("Email:    %s\n", *c.Email)
	}
}

func (f *TextFormatter) Success(msg string) {
	fmt.Println(msg)
}

func (f *TextFormatter) Error(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func (f *TextFormatter) Info(msg string) {
	fmt.Println(msg)
}

func (f *TextFormatter) KeyValue(key, value string) {
	fmt.Printf("%s: %s\n", key, value)
}

func (f *TextFormatter) Section(title string) {
	fmt.Printf("\n%s:\n", title)
}

func (f *TextFormatter) JSON(v interface{}) {
	// TextFormatter doesn't output JSON, but provide fallback
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		f.Error(err)
		return
	}
	fmt.Println(string(data))
}

// JSONFormatter implementations

func (f *JSONFormatter) Task(t *models.Task) {
	f.JSON(t)
}

func (f *JSONFormatter) TaskList(tasks []models.Task, title string) {
	f.JSON(map[string]interface{}{
		"count": len(tasks),
		"tasks": tasks,
	})
}

func (f *JSONFormatter) TaskBrief(t *models.Task) {
	f.JSON(t)
}

func (f *JSONFormatter) Run(r *models.SyncRun) {
	f.JSON(r)
}

func (f *JSONFormatter) RunList(runs []models.SyncRun) {
	f.JSON(map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}

func (f *JSONFormatter) Connection(c *models.JiraConnection) {
	f.JSON(c)
}

func (f *JSONFormatter) Success(msg string) {
	f.JSON(map[string]interface{}{"success": true, "message": msg})
}

func (f *JSONFormatter) Error(err error) {
	f.JSON(map[string]interface{}{"error": true, "message": err.Error()})
}

func (f *JSONFormatter) Info(msg string) {
	f.JSON(map[string]interface{}{"message": msg})
}

func (f *JSONFormatter) KeyValue(key, value string) {
	f.JSON(map[string]string{key: value})
}

func (f *JSONFormatter) Section(title string) {
	// JSON doesn't need section headers
}

func (f *JSONFormatter) JSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"error": true, "message": "JSON marshal error: %s"}`+"\n", err.Error())
		return
	}
	fmt.Println(string(data))
}
