package main

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"ports/internal/app"
)

var (
	killAll     bool
	killForce   bool
	killTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(cmdKill)
	cmdKill.Flags().BoolVar(&killAll, "all", false, "Kill every process that matches the target")
	cmdKill.Flags().BoolVarP(&killForce, "force", "f", false, "Send SIGKILL instead of SIGTERM")
	cmdKill.Flags().DurationVar(&killTimeout, "timeout", app.DefaultKillTimeout, "How long to wait for the process to exit")
}

var cmdKill = &cobra.Command{
	Use:   "kill <target>",
	Short: "Terminate the process listening on a port, pid or name",
	Long: `Resolves the target against listening sockets and sends SIGTERM (SIGKILL with
--force), then waits for the process to exit. When more than one process
matches, --all is required.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		spin := spinner.New(spinner.CharSets[21], 120*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		spin.Suffix = " Waiting for exit..."
		spin.Start()
		res, err := controller().Kill(cmd.Context(), app.KillParams{
			Target:   args[0],
			AllowAll: killAll,
			Force:    killForce,
			Timeout:  killTimeout,
		})
		spin.Stop()

		if res.Message != "" {
			fmt.Fprintln(out, res.Message)
		}
		for _, event := range res.Events {
			name := orDash(event.Proc.Name)
			if event.Note != "" {
				fmt.Fprintf(out, "Note: %s\n", event.Note)
			}
			switch event.Kind {
			case "success":
				fmt.Fprintf(out, "Killed pid=%d name=%s\n", event.Proc.PID, name)
			case "kill_failure":
				fmt.Fprintf(out, "Failed to kill pid=%d name=%s: %v\n", event.Proc.PID, name, event.Err)
			case "timeout":
				fmt.Fprintf(out, "Signalled pid=%d name=%s but it is still running: %v\n", event.Proc.PID, name, event.Err)
			}
		}
		return err
	},
}
