package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"neonlanes/internal/db"
	"neonlanes/internal/models"
	"neonlanes/internal/output"
	"neonlanes/internal/sync"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Per-task Jira operations",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a card in a board lane",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCreate,
}

var taskCommentCmd = &cobra.Command{
	Use:   "comment [task-id] [body]",
	Short: "Add a local comment to a task",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskComment,
}

var taskLinkCmd = &cobra.Command{
	Use:   "link [task-id]",
	Short: "Link a task to an existing Jira issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskLink,
}

var taskCreateIssueCmd = &cobra.Command{
	Use:   "create-issue [task-id]",
	Short: "Create a Jira issue for a task and link them",
	Long: `Create a Jira issue for a task and link them.

The operation is idempotent: an already-linked task is a no-op, and an
issue left behind by an interrupted earlier attempt is adopted instead
of duplicated. Tenants that reject the priority or assignee field get
the issue anyway; those fields are dropped one by one on 400.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCreateIssue,
}

var taskPullCmd = &cobra.Command{
	Use:   "pull [task-id]",
	Short: "Refresh a task from its Jira issue, including comments",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskPull,
}

var taskSyncCmd = &cobra.Command{
	Use:   "sync [task-id]",
	Short: "Two-way sync: pull from Jira, then export local comments",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskSync,
}

var (
	taskCreateBoardID      string
	taskCreateLaneID       string
	taskCreateDescription  string
	taskCreatePriority     string
	taskCreateType         string
	taskCreateTags         []string
	taskCommentAuthorEmail string
	taskLinkConnectionID   string
	taskLinkKey            string
	taskLinkEnableSync     bool
	taskCreateConnectionID string
	taskCreateProject      string
	taskCreateIssueType    string
	taskCreateAssigneeMode string
	taskCreateEnableSync   bool
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskCommentCmd)
	taskCmd.AddCommand(taskLinkCmd)
	taskCmd.AddCommand(taskCreateIssueCmd)
	taskCmd.AddCommand(taskPullCmd)
	taskCmd.AddCommand(taskSyncCmd)

	taskCreateCmd.Flags().StringVar(&taskCreateBoardID, "board", "", "Board id")
	taskCreateCmd.Flags().StringVar(&taskCreateLaneID, "lane", "", "Lane id (defaults to the board's first lane)")
	taskCreateCmd.Flags().StringVarP(&taskCreateDescription, "description", "d", "", "Description")
	taskCreateCmd.Flags().StringVarP(&taskCreatePriority, "priority", "p", models.PriorityP2, "Priority: P0, P1, P2 or P3")
	taskCreateCmd.Flags().StringVarP(&taskCreateType, "type", "t", models.TypeFeature, "Type: Feature, Bug, Chore or Spike")
	taskCreateCmd.Flags().StringSliceVar(&taskCreateTags, "tag", nil, "Tags (repeatable)")
	taskCreateCmd.MarkFlagRequired("board")

	taskCommentCmd.Flags().StringVar(&taskCommentAuthorEmail, "author", "", "Author email (must be a known user)")
	taskCommentCmd.MarkFlagRequired("author")

	taskLinkCmd.Flags().StringVar(&taskLinkConnectionID, "connection", "", "Jira connection id")
	taskLinkCmd.Flags().StringVar(&taskLinkKey, "key", "", "Jira issue key (e.g. PROJ-123)")
	taskLinkCmd.Flags().BoolVar(&taskLinkEnableSync, "enable-sync", true, "Enable ongoing sync for this task")
	taskLinkCmd.MarkFlagRequired("connection")
	taskLinkCmd.MarkFlagRequired("key")

	taskCreateIssueCmd.Flags().StringVar(&taskCreateConnectionID, "connection", "", "Jira connection id")
	taskCreateIssueCmd.Flags().StringVar(&taskCreateProject, "project", "", "Jira project key")
	taskCreateIssueCmd.Flags().StringVar(&taskCreateIssueType, "type", "Task", "Jira issue type name")
	taskCreateIssueCmd.Flags().StringVar(&taskCreateAssigneeMode, "assignee", sync.AssignTaskOwner,
		"Assignee mode: taskOwner, connectionDefault, unassigned or projectDefault")
	taskCreateIssueCmd.Flags().BoolVar(&taskCreateEnableSync, "enable-sync", true, "Enable ongoing sync for this task")
	taskCreateIssueCmd.MarkFlagRequired("connection")
	taskCreateIssueCmd.MarkFlagRequired("project")
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	database := db.GetDB()

	var lane models.Lane
	if taskCreateLaneID != "" {
		if err := database.First(&lane, "id = ? AND board_id = ?", taskCreateLaneID, taskCreateBoardID).Error; err != nil {
			return fmt.Errorf("lane '%s' not found on board '%s'", taskCreateLaneID, taskCreateBoardID)
		}
	} else {
		if err := database.Where("board_id = ?", taskCreateBoardID).Order("position ASC").First(&lane).Error; err != nil {
			return fmt.Errorf("board '%s' has no lanes", taskCreateBoardID)
		}
	}

	task := models.Task{
		BoardID:     taskCreateBoardID,
		LaneID:      lane.ID,
		StateKey:    lane.StateKey,
		Title:       args[0],
		Description: taskCreateDescription,
		Priority:    taskCreatePriority,
		Type:        taskCreateType,
		Tags:        models.StringSlice(taskCreateTags),
	}
	if err := database.Create(&task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if IsJSONOutput() {
		OutputJSON(&task)
		return nil
	}
	fmt.Printf("Created task %s in %s\n", task.ID, lane.Name)
	return nil
}

func runTaskComment(cmd *cobra.Command, args []string) error {
	database := db.GetDB()

	var task models.Task
	if err := database.First(&task, "id = ?", args[0]).Error; err != nil {
		return fmt.Errorf("task '%s' not found", args[0])
	}
	var author models.User
	if err := database.First(&author, "email = ?", taskCommentAuthorEmail).Error; err != nil {
		return fmt.Errorf("no user with email '%s'", taskCommentAuthorEmail)
	}

	comment := models.Comment{
		TaskID:   task.ID,
		AuthorID: author.ID,
		Body:     args[1],
		Source:   models.CommentSourceApp,
	}
	if err := database.Create(&comment).Error; err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	if IsJSONOutput() {
		OutputJSON(&comment)
		return nil
	}
	fmt.Printf("Comment %s added to %s\n", comment.ID, task.ID)
	return nil
}

func runTaskLink(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	task, err := engine.LinkTask(context.Background(), args[0], taskLinkConnectionID, taskLinkKey, taskLinkEnableSync, "")
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(task)
		return nil
	}
	fmt.Printf("Linked %s to %s\n", task.ID, task.JiraKeyString())
	return nil
}

func runTaskCreateIssue(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	task, err := engine.CreateIssueForTask(context.Background(), sync.CreateIssueArgs{
		TaskID:       args[0],
		ConnectionID: taskCreateConnectionID,
		ProjectKey:   taskCreateProject,
		IssueType:    taskCreateIssueType,
		AssigneeMode: taskCreateAssigneeMode,
		EnableSync:   taskCreateEnableSync,
	})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(task)
		return nil
	}
	fmt.Printf("Created %s for task %s", task.JiraKeyString(), task.ID)
	if task.JiraURL != nil {
		fmt.Printf(" (%s)", *task.JiraURL)
	}
	fmt.Println()
	return nil
}

func runTaskPull(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	result, err := engine.PullTask(context.Background(), args[0], "")
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"task":              result.Task,
			"comments_imported": result.CommentsImported,
		})
		return nil
	}
	output.New(false).Task(result.Task)
	fmt.Printf("Comments imported: %d\n", result.CommentsImported)
	if result.CommentError != nil {
		fmt.Printf("Warning: comment import incomplete: %v\n", result.CommentError)
	}
	return nil
}

func runTaskSync(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	result, err := engine.SyncTask(context.Background(), args[0], "")
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"task":              result.Task,
			"comments_imported": result.CommentsImported,
			"comments_exported": result.CommentsExported,
		})
		return nil
	}
	fmt.Printf("Synced %s: %d comment(s) in, %d out\n",
		result.Task.JiraKeyString(), result.CommentsImported, result.CommentsExported)
	return nil
}
