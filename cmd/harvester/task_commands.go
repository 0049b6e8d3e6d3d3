package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"harvester/internal/api"
	"harvester/internal/ipc"
)

const titleWidth = 40

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var stages []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks in insertion order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskList(stages)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.TaskListResponse{Tasks: resp.Tasks})
				}
				renderTaskTable(cmd.OutOrStdout(), resp.Tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&stages, "stage", "s", nil, "Filter by stage (repeatable or comma separated)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print tasks as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return errors.New("task id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskShow(id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.TaskResponse{Task: resp.Task})
				}
				renderTaskDetail(cmd.OutOrStdout(), resp.Task)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the task as JSON")
	return cmd
}

func newClearFinishedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-finished",
		Short: "Remove completed and skipped tasks (the dedup index is kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ClearFinished()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished tasks\n", resp.Removed)
				return nil
			})
		},
	}
}

func renderTaskTable(out io.Writer, tasks []api.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks")
		return
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Title", "Stage", "Progress", "Attempts", "Error"},
		buildTaskRows(tasks),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func buildTaskRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			task.ID,
			truncate(task.Title, titleWidth),
			task.Stage,
			formatProgress(task.Progress),
			strconv.Itoa(task.AttemptCount),
			truncate(task.Error, titleWidth),
		})
	}
	return rows
}

func renderTaskDetail(out io.Writer, task api.Task) {
	fields := []struct {
		label string
		value string
	}{
		{"ID", task.ID},
		{"Title", task.Title},
		{"Stage", task.Stage},
		{"Progress", formatProgress(task.Progress)},
		{"Attempts", strconv.Itoa(task.AttemptCount)},
		{"Rating", strconv.FormatFloat(task.Rating, 'f', -1, 64)},
		{"Published", task.PublishedAt},
		{"Source", task.SourceRef},
		{"Local path", task.LocalPath},
		{"Remote path", task.RemotePath},
		{"Failed from", task.FailedFrom},
		{"Failure kind", task.FailureKind},
		{"Error", task.Error},
		{"Added", task.AddedAt},
		{"Updated", task.UpdatedAt},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		fmt.Fprintf(out, "%-14s %s\n", field.label+":", field.value)
	}
}

func formatProgress(fraction float64) string {
	return fmt.Sprintf("%.0f%%", fraction*100)
}

func truncate(value string, width int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if width <= 0 || len(runes) <= width {
		return value
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
