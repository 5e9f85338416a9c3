package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"neonlanes/internal/db"
	"neonlanes/internal/models"
	"neonlanes/internal/output"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Manage boards and lanes",
}

var boardCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a board with the default lanes",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardCreate,
}

var boardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List boards",
	RunE:  runBoardList,
}

var boardShowCmd = &cobra.Command{
	Use:   "show [board-id]",
	Short: "Show a board's lanes and tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardShow,
}

func init() {
	rootCmd.AddCommand(boardCmd)
	boardCmd.AddCommand(boardCreateCmd)
	boardCmd.AddCommand(boardListCmd)
	boardCmd.AddCommand(boardShowCmd)
}

// defaultLanes is the lane set every new board starts with.
var defaultLanes = []struct {
	name     string
	stateKey string
	laneType string
}{
	{"Backlog", "backlog", models.LaneTypeBacklog},
	{"In Progress", "in_progress", models.LaneTypeInProgress},
	{"Done", "done", models.LaneTypeDone},
}

func runBoardCreate(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return fmt.Errorf("board name is required")
	}

	database := db.GetDB()
	board := models.Board{
		Name:    name,
		NameKey: strings.ReplaceAll(strings.ToLower(name), " ", "-"),
	}
	if err := database.Create(&board).Error; err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}

	for i, l := range defaultLanes {
		lane := models.Lane{
			BoardID:  board.ID,
			Name:     l.name,
			StateKey: l.stateKey,
			Type:     l.laneType,
			Position: i,
		}
		if err := database.Create(&lane).Error; err != nil {
			return fmt.Errorf("failed to create lane %s: %w", l.name, err)
		}
	}

	// First board becomes the default.
	if _, err := db.GetConfig(models.ConfigDefaultBoard); err != nil {
		_ = db.SetConfig(models.ConfigDefaultBoard, board.ID)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "board_id": board.ID, "name": board.Name})
	} else {
		fmt.Printf("Created board %s (%s) with lanes: backlog, in_progress, done\n", board.Name, board.ID)
	}
	return nil
}

func runBoardList(cmd *cobra.Command, args []string) error {
	var boards []models.Board
	if err := db.GetDB().Order("created_at ASC").Find(&boards).Error; err != nil {
		return err
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"count": len(boards), "boards": boards})
		return nil
	}
	for _, b := range boards {
		fmt.Printf("[%s] %s\n", b.ID, b.Name)
	}
	return nil
}

func runBoardShow(cmd *cobra.Command, args []string) error {
	database := db.GetDB()

	var board models.Board
	if err := database.First(&board, "id = ?", args[0]).Error; err != nil {
		return fmt.Errorf("board '%s' not found", args[0])
	}

	var lanes []models.Lane
	if err := database.Where("board_id = ?", board.ID).Order("position ASC").Find(&lanes).Error; err != nil {
		return err
	}

	f := output.New(IsJSONOutput())
	if IsJSONOutput() {
		type laneView struct {
			Lane  models.Lane   `json:"lane"`
			Tasks []models.Task `json:"tasks"`
		}
		view := make([]laneView, 0, len(lanes))
		for _, lane := range lanes {
			var tasks []models.Task
			if err := database.Where("lane_id = ?", lane.ID).Order("order_index ASC").Find(&tasks).Error; err != nil {
				return err
			}
			view = append(view, laneView{Lane: lane, Tasks: tasks})
		}
		OutputJSON(map[string]interface{}{"board": board, "lanes": view})
		return nil
	}

	fmt.Printf("%s (%s)\n", board.Name, board.ID)
	for _, lane := range lanes {
		var tasks []models.Task
		if err := database.Where("lane_id = ?", lane.ID).Order("order_index ASC").Find(&tasks).Error; err != nil {
			return err
		}
		f.Section(fmt.Sprintf("%s (%d)", lane.Name, len(tasks)))
		for i := range tasks {
			f.TaskBrief(&tasks[i])
		}
	}
	return nil
}
