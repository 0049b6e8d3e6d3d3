package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"harvester/internal/api"
	"harvester/internal/daemonctl"
	"harvester/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a discovery cycle, launching the daemon if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launched it")
			}
			if err != nil {
				return err
			}
			printAck(stdout, result.Ack)
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running cycle; in-flight transfers finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), resp.Ack)
				return nil
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset-failed",
		Short: "Requeue every failed task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ResetFailed()
				if err != nil {
					return err
				}
				printAck(cmd.OutOrStdout(), resp.Ack)
				return nil
			})
		},
	}

	shutdownCmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Terminate the daemon process",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var includeTasks bool
	var jsonOutput bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show system, cycle, and task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			view, err := daemonctl.BuildStatusView(cmd.Context(), ctx.socketPath(), cfg, includeTasks)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, view.Status)
			}
			renderStatusView(cmd.OutOrStdout(), view, includeTasks, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&includeTasks, "tasks", false, "Include the task list")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the status payload as JSON")

	return []*cobra.Command{startCmd, stopCmd, resetCmd, shutdownCmd, statusCmd}
}

func printAck(out io.Writer, ack api.Ack) {
	message := strings.TrimSpace(ack.Message)
	if message == "" {
		message = "Request sent"
	}
	fmt.Fprintln(out, message)
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{ConfigPath: ctx.configFlagValue()}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	return opts
}
