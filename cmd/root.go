package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"neonlanes/internal/db"
	"neonlanes/internal/settings"
	"neonlanes/internal/sync"
)

var (
	Version    = "0.1.0"
	jsonOutput bool
)

// commandsExemptFromDB lists commands that don't require database initialization
var commandsExemptFromDB = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "neon",
	Short: "NeonLanes - a Kanban board with Jira and GitHub sync",
	Long: `NeonLanes (neon) is a command-line Kanban board that syncs with Jira.

QUICK START:
  neon init                           # Initialize in current directory
  neon board create "Platform"        # Create a board with default lanes
  neon connection add                 # Save a Jira connection (token in keyring)
  neon import --board <id> --connection <id> --jql 'project = PROJ'
  neon sync now --profile <id>        # Re-run a saved import
  neon sync status --board <id>       # Show recent runs

PER-TASK JIRA:
  neon task link <id> --connection <id> --key PROJ-123
  neon task create-issue <id> --connection <id> --project PROJ
  neon task pull <id>                 # Refresh from Jira (+ comments)
  neon task sync <id>                 # Pull, then export local comments

PRIORITIES: P0 (critical) to P3 (low), default P2
TYPES: Feature (default), Bug, Chore, Spike

JSON OUTPUT: Add --json flag to any command for machine-readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if commandsExemptFromDB[cmd.Name()] {
			return nil
		}
		return db.EnsureInitialized()
	},
}

func Execute() {
	defer db.CloseDB()

	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			OutputJSON(map[string]interface{}{"error": true, "message": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.Version = Version
}

func OutputJSON(data interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(data)
}

func IsJSONOutput() bool {
	return jsonOutput
}

// newEngine builds the sync engine from the live DB and settings.
func newEngine() (*sync.Engine, error) {
	s, err := settings.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return sync.NewEngine(db.GetDB(), s), nil
}
