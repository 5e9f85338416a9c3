package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"neonlanes/internal/db"
	"neonlanes/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage board members",
}

var userAddCmd = &cobra.Command{
	Use:   "add [email] [name]",
	Short: "Add a board member",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List board members",
	RunE:  runUserList,
}

var (
	userAddRole          string
	userAddJiraAccountID string
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)

	userAddCmd.Flags().StringVar(&userAddRole, "role", models.RoleMember, "Role: admin, member or viewer")
	userAddCmd.Flags().StringVar(&userAddJiraAccountID, "jira-account", "", "Jira accountId for assignee mapping")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	user := models.User{
		Email: args[0],
		Name:  args[1],
		Role:  userAddRole,
	}
	if userAddJiraAccountID != "" {
		user.JiraAccountID = &userAddJiraAccountID
	}
	if err := db.GetDB().Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if IsJSONOutput() {
		OutputJSON(&user)
		return nil
	}
	fmt.Printf("Added %s (%s)\n", user.Name, user.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	var users []models.User
	if err := db.GetDB().Order("created_at ASC").Find(&users).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"count": len(users), "users": users})
		return nil
	}
	for _, u := range users {
		fmt.Printf("[%s] %s <%s> %s\n", u.ID, u.Name, u.Email, u.Role)
	}
	return nil
}
