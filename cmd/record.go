// -- cmd/record.go --
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stagehand/internal/observability"
	"github.com/xkilldash9x/stagehand/internal/stagehand"
)

var (
	recordSession   string
	recordScript    string
	recordSnapshots bool
)

var recordCmd = &cobra.Command{
	Use:   "record <target>",
	Short: "Record an interaction session against a page.",
	Long: `Record opens the target page with an in-page capture script and buffers
every click, scroll, keypress, and settled mouse movement. Press Ctrl+S
(Cmd+S on mac) inside the page to stop; Ctrl+C on the terminal also stops
and keeps everything captured so far.

With a state schema present, the recorder also samples which stage the
application is in and, with --snapshots, captures a restorable snapshot at
every stage transition.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := stagehand.NewService(cfg, observability.GetLogger())
		res, err := svc.Record(ctx, stagehand.RecordOptions{
			Target:           args[0],
			SessionName:      recordSession,
			ScriptPath:       recordScript,
			CaptureSnapshots: recordSnapshots,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Recording saved to %s\n", res.Path)
		fmt.Printf("  duration: %.1fs\n", res.Session.DurationSeconds)
		for typ, n := range res.Session.CountByType() {
			fmt.Printf("  %s: %d\n", typ, n)
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordSession, "session", "", "session name (default session_NNN, auto-numbered)")
	recordCmd.Flags().StringVar(&recordScript, "script", "", "action script to replay against the page while recording")
	recordCmd.Flags().BoolVar(&recordSnapshots, "snapshots", false, "capture a snapshot at every stage transition")
	rootCmd.AddCommand(recordCmd)
}
