// -- cmd/replay.go --
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/stagehand/internal/observability"
	"github.com/xkilldash9x/stagehand/internal/stagehand"
)

var (
	replayTarget   string
	replayHoldOpen bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <recording-or-script>",
	Short: "Replay a recorded session or a converted action script.",
	Long: `Replay re-executes a session against a live page with timing fidelity.
Raw recordings replay on their original schedule; converted scripts honor
each action's wait after the previous action completes. --speed divides
every delay. Clicks resolve their recorded selector first and fall back to
raw coordinates when the markup drifted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := stagehand.NewService(cfg, observability.GetLogger())
		res, err := svc.Replay(ctx, stagehand.ReplayOptions{
			Path:     args[0],
			Target:   replayTarget,
			HoldOpen: replayHoldOpen,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Replay finished in %s: %d executed, %d failed\n",
			res.Duration.Round(10*time.Millisecond), res.Executed, res.Failed)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayTarget, "target", "", "override the page to replay against")
	replayCmd.Flags().Float64("speed", 1.0, "replay speed multiplier")
	replayCmd.Flags().BoolVar(&replayHoldOpen, "hold", false, "keep the browser open after replay")
	viper.BindPFlag("replay.speed", replayCmd.Flags().Lookup("speed"))
	rootCmd.AddCommand(replayCmd)
}
