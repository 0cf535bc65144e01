package cmd

import (
	"github.com/FollowTheProcess/dedup/cli/app"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

func buildCleanCommand(dedup *app.App) *cobra.Command {
	options := app.CleanOptions{}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Args:  cobra.NoArgs,
		Short: "Drop stale entries from a hash tree file",
		Long: heredoc.Doc(`

		Drop stale entries from a hash tree file.

		Entries whose paths no longer exist on disk with a matching node
		type are removed, as are superseded records left behind by resumed
		builds. Entries whose paths lie inside an archive are kept without
		checking the disk.
		`),
		Example: heredoc.Doc(`

		# Clean in place
		$ dedup clean --input hashtree.dedup --output hashtree.dedup

		# Write the cleaned tree elsewhere
		$ dedup clean --input hashtree.dedup --output clean.dedup --overwrite
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dedup.Clean(options)
		},
	}

	flags := cleanCmd.Flags()
	flags.StringVarP(&options.Input, "input", "i", defaultOutput, "The hash tree file to clean.")
	flags.StringVarP(&options.Output, "output", "o", defaultOutput, "File to write the cleaned tree to.")
	flags.BoolVar(&options.FollowSymlinks, "follow-symlinks", false, "Follow symlinks when re-checking paths.")
	flags.BoolVar(&options.Overwrite, "overwrite", false, "Replace the output file if it already exists.")

	return cleanCmd
}
