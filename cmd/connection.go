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

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Manage Jira connections",
}

var connectionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a Jira connection",
	Long: `Save a Jira connection. The API token is stored in the system
keyring, never in the database.

To create a token on Jira Cloud:
  1. Go to id.atlassian.com -> Security -> API tokens
  2. Create an API token and copy it
  3. Pass your account email with --email; the token authenticates as you`,
	RunE: runConnectionAdd,
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connections",
	RunE:  runConnectionList,
}

var connectionTestCmd = &cobra.Command{
	Use:   "test [connection-id]",
	Short: "Verify a connection's credential against Jira",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionTest,
}

var connectionRemoveCmd = &cobra.Command{
	Use:   "remove [connection-id]",
	Short: "Remove a connection and its keyring credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnectionRemove,
}

var (
	connAddName     string
	connAddURL      string
	connAddEmail    string
	connAddToken    string
	connAddAssignee string
)

func init() {
	rootCmd.AddCommand(connectionCmd)
	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionTestCmd)
	connectionCmd.AddCommand(connectionRemoveCmd)

	connectionAddCmd.Flags().StringVar(&connAddName, "name", "", "Display name for the connection")
	connectionAddCmd.Flags().StringVar(&connAddURL, "url", "", "Jira base URL (e.g. https://acme.atlassian.net)")
	connectionAddCmd.Flags().StringVar(&connAddEmail, "email", "", "Account email (basic auth); omit for bearer token")
	connectionAddCmd.Flags().StringVar(&connAddToken, "token", "", "API token (stored in system keyring)")
	connectionAddCmd.Flags().StringVar(&connAddAssignee, "default-assignee", "", "Default Jira accountId for created issues")
}

func runConnectionAdd(cmd *cobra.Command, args []string) error {
	baseURL, err := models.NormalizeBaseURL(connAddURL)
	if err != nil {
		return err
	}
	if connAddToken == "" {
		return fmt.Errorf("--token is required")
	}

	conn := models.JiraConnection{BaseURL: baseURL}
	if connAddName != "" {
		conn.Name = &connAddName
	}
	if connAddEmail != "" {
		conn.Email = &connAddEmail
	}
	if connAddAssignee != "" {
		conn.DefaultAssigneeID = &connAddAssignee
	}

	if err := db.GetDB().Create(&conn).Error; err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	if err := sync.SetConnectionToken(&conn, connAddToken); err != nil {
		// The row without a credential is useless; roll it back.
		db.GetDB().Delete(&conn)
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "connection_id": conn.ID})
	} else {
		fmt.Printf("Saved connection %s (token in system keyring)\n", conn.ID)
	}
	return nil
}

func runConnectionList(cmd *cobra.Command, args []string) error {
	var conns []models.JiraConnection
	if err := db.GetDB().Order("created_at ASC").Find(&conns).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"count": len(conns), "connections": conns})
		return nil
	}
	f := output.New(false)
	for i := range conns {
		f.Connection(&conns[i])
		fmt.Println()
	}
	return nil
}

func runConnectionTest(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	me, err := engine.TestConnection(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "account_id": me.AccountID, "display_name": me.DisplayName})
	} else {
		fmt.Printf("OK: authenticated as %s (%s)\n", me.DisplayName, me.AccountID)
	}
	return nil
}

func runConnectionRemove(cmd *cobra.Command, args []string) error {
	var conn models.JiraConnection
	if err := db.GetDB().First(&conn, "id = ?", args[0]).Error; err != nil {
		return fmt.Errorf("connection '%s' not found", args[0])
	}

	if err := sync.DeleteConnectionToken(&conn); err != nil {
		return fmt.Errorf("failed to remove keyring credential: %w", err)
	}
	if err := db.GetDB().Delete(&conn).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "connection_id": conn.ID})
	} else {
		fmt.Printf("Removed connection %s\n", conn.ID)
	}
	return nil
}
