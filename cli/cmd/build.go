package cmd

import (
	"github.com/FollowTheProcess/dedup/cli/app"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

// defaultOutput is the default hash tree file name.
const defaultOutput = "hashtree.dedup"

func buildBuildCommand(dedup *app.App) *cobra.Command {
	options := app.BuildOptions{}

	buildCmd := &cobra.Command{
		Use:   "build [flags] root...",
		Args:  cobra.MinimumNArgs(1),
		Short: "Build a hash tree for one or more directories",
		Long: heredoc.Doc(`

		Build a hash tree for one or more directories.

		Every file, symlink and directory under the given roots is hashed
		into a content-addressed index, one JSON record per line. Directory
		digests are computed from their children so whole identical subtrees
		can later be found by digest alone.

		By default an existing output file is continued: nodes whose type,
		modification time and size are unchanged are served from the index
		without rehashing. Pass --overwrite to start from scratch.
		`),
		Example: heredoc.Doc(`

		# Hash two directories into the default hashtree.dedup
		$ dedup build /mnt/backup /mnt/attic

		# Descend into tar/zip archives (gzip and xz are unwrapped)
		$ dedup build /mnt/backup --archives

		# Skip the noise
		$ dedup build /mnt/backup --exclude '**/.git' --exclude '*.tmp'
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Roots = args
			return dedup.Build(options)
		},
	}

	flags := buildCmd.Flags()
	flags.StringVar(&options.Hash, "hash", "SHA256", "Hash algorithm to use.")
	flags.StringVarP(&options.Output, "output", "o", defaultOutput, "File to write the hash tree to.")
	flags.BoolVar(&options.FollowSymlinks, "follow-symlinks", false, "Hash symlink targets instead of the links themselves.")
	flags.BoolVar(&options.Archives, "archives", false, "Traverse into tar and zip archives.")
	flags.BoolVar(&options.Overwrite, "overwrite", false, "Recreate the output file instead of continuing it.")
	flags.BoolVar(&options.NoClean, "no-clean", false, "Skip dropping stale entries after the build.")
	flags.StringArrayVar(&options.Excludes, "exclude", nil, "Glob pattern for paths to skip (repeatable).")

	return buildCmd
}
