package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"neonlanes/internal/output"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run and inspect board-level Jira syncs",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Re-run a saved sync profile",
	RunE:  runSyncNow,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs for a board",
	RunE:  runSyncStatus,
}

var (
	syncNowProfileID  string
	syncStatusBoardID string
	syncStatusLimit   int
	syncStatusRunID   string
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)

	syncNowCmd.Flags().StringVar(&syncNowProfileID, "profile", "", "Sync profile id")
	syncNowCmd.MarkFlagRequired("profile")

	syncStatusCmd.Flags().StringVar(&syncStatusBoardID, "board", "", "Board id")
	syncStatusCmd.Flags().IntVar(&syncStatusLimit, "limit", 10, "Number of runs to show")
	syncStatusCmd.Flags().StringVar(&syncStatusRunID, "run", "", "Show one run with its full log")
	syncStatusCmd.MarkFlagRequired("board")
}

func runSyncNow(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	run, err := engine.RunProfileNow(context.Background(), syncNowProfileID, "")
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(run)
		return nil
	}
	output.New(false).Run(run)
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	runs, err := engine.ListRuns(syncStatusBoardID, syncStatusLimit)
	if err != nil {
		return err
	}

	if syncStatusRunID != "" {
		for i := range runs {
			if runs[i].ID == syncStatusRunID {
				if IsJSONOutput() {
					OutputJSON(runs[i])
				} else {
					output.New(false).Run(&runs[i])
				}
				return nil
			}
		}
		return fmt.Errorf("run '%s' not found on board '%s'", syncStatusRunID, syncStatusBoardID)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"count": len(runs), "runs": runs})
		return nil
	}
	output.New(false).RunList(runs)
	return nil
}
