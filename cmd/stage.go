// -- cmd/stage.go --
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stagehand/internal/observability"
	"github.com/xkilldash9x/stagehand/internal/stagehand"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Inspect and restore captured stage snapshots.",
}

var stageListCmd = &cobra.Command{
	Use:   "list [session]",
	Short: "List snapshot sessions, or the stages captured in one session.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := stagehand.NewService(cfg, observability.GetLogger())

		if len(args) == 0 {
			sessions, err := svc.ListSessions()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No snapshot sessions found.")
				return nil
			}
			for _, name := range sessions {
				fmt.Println(name)
			}
			return nil
		}

		manifest, err := svc.ListStages(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Session %s: %d stage(s)\n", manifest.SessionID, manifest.StagesCaptured)
		for _, n := range manifest.StageNumbers {
			fmt.Printf("  stage_%d\n", n)
		}
		return nil
	},
}

var stageExtractCmd = &cobra.Command{
	Use:   "extract <session> <stage>",
	Short: "Inspect one captured stage without a browser.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stageID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("stage must be a number: %w", err)
		}

		svc := stagehand.NewService(cfg, observability.GetLogger())
		info, err := svc.ExtractStage(args[0], stageID)
		if err != nil {
			return err
		}

		fmt.Printf("Session %s, stage %d", info.SessionID, info.StateID)
		if info.StateName != "" {
			fmt.Printf(" (%s)", info.StateName)
		}
		fmt.Printf("\n  captured at: %.1fs\n", info.CapturedAt)
		fmt.Printf("  elements: %d\n", info.Elements)
		if info.Counter != nil {
			fmt.Printf("  counter: %g\n", *info.Counter)
		}
		for name, value := range info.Variables {
			fmt.Printf("  %s = %v\n", name, value)
		}
		if len(info.Interactive) > 0 {
			fmt.Println("  interactive elements:")
			for _, el := range info.Interactive {
				fmt.Printf("    %s\n", el)
			}
		}
		if info.TextPreview != "" {
			fmt.Printf("  text: %s\n", info.TextPreview)
		}
		return nil
	},
}

var stageRestoreCmd = &cobra.Command{
	Use:   "restore <session> <stage> <target>",
	Short: "Load a page and inject a captured stage into it.",
	Long: `Restore opens the target page, quiesces its startup timers, and injects
the captured stage: variables first, then the content markup, then the
counter display. The application lands mid-progression without replaying
the journey there. The browser stays open for inspection.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		stageID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("stage must be a number: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := stagehand.NewService(cfg, observability.GetLogger())
		return svc.RestoreStage(ctx, args[0], stageID, args[2])
	},
}

var recordingsListCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List recorded sessions on disk.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := stagehand.NewService(cfg, observability.GetLogger())
		names, err := svc.ListRecordings()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No recordings found.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	stageCmd.AddCommand(stageListCmd, stageExtractCmd, stageRestoreCmd)
	rootCmd.AddCommand(stageCmd, recordingsListCmd)
}
