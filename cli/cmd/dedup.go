package cmd

import (
	"github.com/FollowTheProcess/dedup/cli/app"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

func buildDedupCommand(dedup *app.App) *cobra.Command {
	options := app.DedupOptions{}

	dedupCmd := &cobra.Command{
		Use:   "dedup",
		Args:  cobra.NoArgs,
		Short: "Plan deduplication actions from a duplicate-set file",
		Long: heredoc.Doc(`

		Plan deduplication actions from a duplicate-set file.

		The golden model keeps every copy under a reference location and
		plans removals for duplicates elsewhere, the incremental model keeps
		the first copy of each set. Each action carries the surviving
		duplicates so an executor may hard-link instead of delete.

		Nothing is removed: the output is a plan, applying it is up to you.
		`),
		Example: heredoc.Doc(`

		# Keep everything under the golden snapshot
		$ dedup dedup --input dupsets.json --reference /mnt/backup/2024

		# Restrict removals to the attic, matching with globs
		$ dedup dedup --input dupsets.json --match glob \
		    --reference '/mnt/backup/2024/**' --target '/mnt/attic/**'
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dedup.Dedup(options)
		},
	}

	flags := dedupCmd.Flags()
	flags.StringVarP(&options.Input, "input", "i", "dupsets.json", "The duplicate-set file to plan from.")
	flags.StringVarP(&options.Output, "output", "o", "actions.json", "File to write the action plan to.")
	flags.StringVar(&options.Model, "model", "golden", "Keep/remove policy: golden or incremental.")
	flags.StringVar(&options.Match, "match", "plain", "How patterns match paths: plain, glob or regex.")
	flags.StringVar(&options.Reference, "reference", "", "Reference location whose copies are always kept (golden model).")
	flags.StringArrayVar(&options.Targets, "target", nil, "Location removals are restricted to (repeatable).")
	flags.BoolVar(&options.Overwrite, "overwrite", false, "Replace the output file if it already exists.")

	return dedupCmd
}
