package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"neonlanes/internal/models"
	"neonlanes/internal/output"
	"neonlanes/internal/sync"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import Jira issues into a board via JQL",
	Long: `Import Jira issues into a board. The query and mappings are saved
as a sync profile; 'neon sync now' re-runs it later.

The mapping file is YAML:

  statusToState:
    "To Do": backlog
    "In Progress": in_progress
    "Done": done
  priorityMap:
    Highest: P0
    High: P1
  typeMap:
    Bug: Bug
    Story: Feature

Unmapped statuses land in the backlog lane; unmapped priorities and
types default to P2 / Feature.`,
	RunE: runImport,
}

var (
	importBoardID      string
	importConnectionID string
	importJQL          string
	importMappingFile  string
	importPolicy       string
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importBoardID, "board", "", "Target board id")
	importCmd.Flags().StringVar(&importConnectionID, "connection", "", "Jira connection id")
	importCmd.Flags().StringVar(&importJQL, "jql", "", "JQL query selecting the issues")
	importCmd.Flags().StringVar(&importMappingFile, "mapping", "", "YAML mapping file (status/priority/type)")
	importCmd.Flags().StringVar(&importPolicy, "policy", models.PolicyJiraWins, "Conflict policy: jiraWins, localWins or manual")
	importCmd.MarkFlagRequired("board")
	importCmd.MarkFlagRequired("connection")
	importCmd.MarkFlagRequired("jql")
}

// mappingFile is the YAML shape of --mapping.
type mappingFile struct {
	StatusToState map[string]string `yaml:"statusToState"`
	PriorityMap   map[string]string `yaml:"priorityMap"`
	TypeMap       map[string]string `yaml:"typeMap"`
}

func runImport(cmd *cobra.Command, args []string) error {
	var mapping mappingFile
	if importMappingFile != "" {
		data, err := os.ReadFile(importMappingFile)
		if err != nil {
			return fmt.Errorf("read mapping file: %w", err)
		}
		if err := yaml.Unmarshal(data, &mapping); err != nil {
			return fmt.Errorf("parse mapping file: %w", err)
		}
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	profile, run, err := engine.ImportIntoBoard(context.Background(), sync.ImportArgs{
		BoardID:        importBoardID,
		ConnectionID:   importConnectionID,
		JQL:            importJQL,
		StatusToState:  mapping.StatusToState,
		PriorityMap:    mapping.PriorityMap,
		TypeMap:        mapping.TypeMap,
		ConflictPolicy: importPolicy,
	})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"profile": profile, "run": run})
		return nil
	}

	fmt.Printf("Profile %s created\n", profile.ID)
	output.New(false).Run(run)
	return nil
}
