// -- cmd/analyze.go --
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/stagehand/internal/analyzer"
	"github.com/xkilldash9x/stagehand/internal/observability"
)

var analyzeOutput string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source-file>",
	Short: "Derive a state schema from application source code.",
	Long: `Analyze sends the application source to a Gemini model and asks it to
identify the distinct behavioral stages, their detection conditions, DOM
fallback rules, and key variables. The result is validated and written as
the state schema the recorder and detector consume.

Requires GEMINI_API_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := analyzer.New(ctx, cfg.Analyzer, observability.GetLogger())
		if err != nil {
			return err
		}

		schema, err := a.AnalyzeFile(ctx, args[0])
		if err != nil {
			return err
		}

		out := analyzeOutput
		if out == "" {
			out = cfg.Storage.SchemaPath
		}
		if err := analyzer.SaveSchema(schema, out); err != nil {
			return err
		}

		fmt.Printf("Detected %d state(s), schema saved to %s\n", len(schema.States), out)
		for _, st := range schema.States {
			fmt.Printf("  %d. %s", st.ID, st.Name)
			if st.RangeDescription != "" {
				fmt.Printf(" (%s)", st.RangeDescription)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "output path (default the configured schema path)")
	rootCmd.AddCommand(analyzeCmd)
}
