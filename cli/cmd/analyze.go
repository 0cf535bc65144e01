package cmd

import (
	"github.com/FollowTheProcess/dedup/cli/app"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

func buildAnalyzeCommand(dedup *app.App) *cobra.Command {
	options := app.AnalyzeOptions{}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Args:  cobra.NoArgs,
		Short: "Find duplicate files and subtrees in a hash tree",
		Long: heredoc.Doc(`

		Find duplicate files and subtrees in a hash tree.

		Entries are grouped by digest, every group of two or more
		byte-identical nodes becomes a duplicate set. Files inside a
		directory that is itself duplicated everywhere are not reported
		individually: removing the directory removes them anyway.
		`),
		Example: heredoc.Doc(`

		$ dedup analyze --input hashtree.dedup --output dupsets.json
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dedup.Analyze(options)
		},
	}

	flags := analyzeCmd.Flags()
	flags.StringVarP(&options.Input, "input", "i", defaultOutput, "The hash tree file to analyze.")
	flags.StringVarP(&options.Output, "output", "o", "dupsets.json", "File to write the duplicate sets to.")
	flags.BoolVar(&options.Overwrite, "overwrite", false, "Replace the output file if it already exists.")

	return analyzeCmd
}
