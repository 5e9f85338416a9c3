package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"neonlanes/internal/db"
	gh "neonlanes/internal/github"
	"neonlanes/internal/models"
)

var githubCmd = &cobra.Command{
	Use:   "github",
	Short: "Mirror tasks to GitHub issues",
}

var githubConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure the GitHub repository and token",
	Long: `Configure the GitHub issue mirror.

To create a token:
  1. GitHub Settings -> Developer settings -> Fine-grained tokens
  2. Generate a token with Issues: Read and Write on the target repo
  3. Pass it with --token; it is stored in the system keyring`,
	RunE: runGitHubConfig,
}

var githubPushCmd = &cobra.Command{
	Use:   "push [task-id]",
	Short: "Push a task to GitHub as an issue (create or update)",
	Args:  cobra.ExactArgs(1),
	RunE:  runGitHubPush,
}

var githubPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull unlinked GitHub issues into a board lane",
	RunE:  runGitHubPull,
}

var (
	ghConfigRepo   string
	ghConfigPrefix string
	ghConfigToken  string
	ghConfigShow   bool
	ghConfigClear  bool
	ghPullBoardID  string
	ghPullLaneID   string
	ghPullState    string
	ghPullLabel    string
)

func init() {
	rootCmd.AddCommand(githubCmd)
	githubCmd.AddCommand(githubConfigCmd)
	githubCmd.AddCommand(githubPushCmd)
	githubCmd.AddCommand(githubPullCmd)

	githubConfigCmd.Flags().StringVar(&ghConfigRepo, "repo", "", "GitHub repository (owner/repo)")
	githubConfigCmd.Flags().StringVar(&ghConfigPrefix, "prefix", "", "Issue title prefix")
	githubConfigCmd.Flags().StringVar(&ghConfigToken, "token", "", "GitHub token (stored in system keyring)")
	githubConfigCmd.Flags().BoolVar(&ghConfigShow, "show", false, "Show current configuration")
	githubConfigCmd.Flags().BoolVar(&ghConfigClear, "clear", false, "Clear GitHub configuration")

	githubPullCmd.Flags().StringVar(&ghPullBoardID, "board", "", "Target board id")
	githubPullCmd.Flags().StringVar(&ghPullLaneID, "lane", "", "Target lane id for open issues")
	githubPullCmd.Flags().StringVar(&ghPullState, "state", "open", "Issue state filter: open, closed or all")
	githubPullCmd.Flags().StringVar(&ghPullLabel, "label", "", "Only pull issues with this label")
	githubPullCmd.MarkFlagRequired("board")
	githubPullCmd.MarkFlagRequired("lane")
}

func runGitHubConfig(cmd *cobra.Command, args []string) error {
	if ghConfigShow {
		return showGitHubConfig()
	}
	if ghConfigClear {
		return clearGitHubConfig()
	}

	if ghConfigRepo != "" {
		if !strings.Contains(ghConfigRepo, "/") {
			return fmt.Errorf("repository must be in owner/repo format")
		}
		if err := db.SetConfig(models.ConfigGitHubRepo, ghConfigRepo); err != nil {
			return fmt.Errorf("failed to save repository: %w", err)
		}
	}
	if ghConfigPrefix != "" {
		if err := db.SetConfig(models.ConfigGitHubIssuePrefix, ghConfigPrefix); err != nil {
			return fmt.Errorf("failed to save prefix: %w", err)
		}
	}
	if ghConfigToken != "" {
		if err := gh.SetToken(ghConfigToken); err != nil {
			return fmt.Errorf("failed to store token in keyring: %w", err)
		}
		if err := db.SetConfig(models.ConfigGitHubTokenSet, "true"); err != nil {
			return fmt.Errorf("failed to save token flag: %w", err)
		}
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "message": "GitHub configuration updated"})
	} else {
		fmt.Println("GitHub configuration updated")
	}
	return nil
}

func showGitHubConfig() error {
	repo, _ := db.GetConfig(models.ConfigGitHubRepo)
	prefix, err := db.GetConfig(models.ConfigGitHubIssuePrefix)
	if err != nil || prefix == "" {
		prefix = models.DefaultGitHubIssuePrefix
	}
	tokenSet := false
	if v, err := db.GetConfig(models.ConfigGitHubTokenSet); err == nil {
		tokenSet = v == "true"
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"repository":   repo,
			"issue_prefix": prefix,
			"token_set":    tokenSet,
		})
		return nil
	}

	fmt.Println("GitHub Configuration:")
	if repo != "" {
		fmt.Printf("  Repository:   %s\n", repo)
	} else {
		fmt.Println("  Repository:   (not configured)")
	}
	fmt.Printf("  Issue Prefix: %s\n", prefix)
	if tokenSet {
		fmt.Println("  Token:        (stored in system keyring)")
	} else {
		fmt.Println("  Token:        (not configured)")
	}
	return nil
}

func clearGitHubConfig() error {
	db.GetDB().Where("key = ?", models.ConfigGitHubRepo).Delete(&models.Config{})
	db.GetDB().Where("key = ?", models.ConfigGitHubIssuePrefix).Delete(&models.Config{})
	db.GetDB().Where("key = ?", models.ConfigGitHubTokenSet).Delete(&models.Config{})

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "message": "GitHub configuration cleared"})
	} else {
		fmt.Println("GitHub configuration cleared")
	}
	return nil
}

// newBridge builds the GitHub bridge from stored config and keyring.
func newBridge() (*gh.Bridge, error) {
	repo, err := db.GetConfig(models.ConfigGitHubRepo)
	if err != nil || repo == "" {
		return nil, fmt.Errorf("GitHub not configured: run 'neon github config --repo owner/repo --token ...'")
	}
	prefix, err := db.GetConfig(models.ConfigGitHubIssuePrefix)
	if err != nil {
		prefix = ""
	}

	token := os.Getenv("NEONLANES_GITHUB_TOKEN")
	if token == "" {
		token, err = gh.GetToken()
		if err != nil {
			return nil, err
		}
	}
	return gh.NewBridge(db.GetDB(), token, repo, prefix)
}

func runGitHubPush(cmd *cobra.Command, args []string) error {
	bridge, err := newBridge()
	if err != nil {
		return err
	}

	var task models.Task
	if err := db.GetDB().First(&task, "id = ?", args[0]).Error; err != nil {
		return fmt.Errorf("task '%s' not found", args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := bridge.PushTask(ctx, &task, "")
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{
			"task_id":      result.TaskID,
			"issue_number": result.IssueNumber,
			"issue_url":    result.IssueURL,
			"action":       result.Action,
		})
	} else {
		fmt.Printf("%s: %s -> #%d (%s)\n", result.Action, task.ID, result.IssueNumber, result.IssueURL)
	}
	return nil
}

func runGitHubPull(cmd *cobra.Command, args []string) error {
	bridge, err := newBridge()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := bridge.PullIssues(ctx, ghPullBoardID, ghPullLaneID, ghPullState, ghPullLabel, "")
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"pulled": summary.Pulled, "skipped": summary.Skipped})
	} else {
		fmt.Printf("Pulled %d issue(s), skipped %d\n", summary.Pulled, summary.Skipped)
	}
	return nil
}
