// -- cmd/convert.go --
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/converter"
)

var convertOutput string

var convertCmd = &cobra.Command{
	Use:   "convert <recording>",
	Short: "Convert a raw recording into a replayable action script.",
	Long: `Convert distills a raw recording into an editable action script: mouse
movement noise is dropped, bare modifier keypresses are discarded, and
significant pauses between the remaining actions become explicit waits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := schemas.LoadRecording(args[0])
		if err != nil {
			return err
		}

		script := converter.Convert(session)

		out := convertOutput
		if out == "" {
			base := strings.TrimSuffix(args[0], filepath.Ext(args[0]))
			out = base + "_script.json"
		}
		if err := script.Save(out); err != nil {
			return err
		}

		fmt.Printf("Script saved to %s\n", out)
		fmt.Printf("  %d events -> %d actions\n", len(session.Events), script.TotalActions)
		for typ, n := range script.Summary {
			fmt.Printf("  %s: %d\n", typ, n)
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output path (default <recording>_script.json)")
	rootCmd.AddCommand(convertCmd)
}
