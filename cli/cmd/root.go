// Package cmd implements the dedup CLI
package cmd

import (
	"github.com/FollowTheProcess/dedup/cli/app"
	"github.com/FollowTheProcess/dedup/iostream"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

var (
	version   = "dev" // dedup version, set at compile time by ldflags
	commit    = ""    // dedup version's commit hash, set at compile time by ldflags
	buildDate = ""    // dedup build date, set at compile time by ldflags
	builtBy   = ""    // dedup builder, set at compile time by ldflags
)

// BuildRootCmd builds and returns the root dedup CLI command.
func BuildRootCmd() *cobra.Command {
	streams := iostream.OS()
	dedup := app.New(streams.Stdout, streams.Stderr)

	rootCmd := &cobra.Command{
		Use:           "dedup [command]",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Find and plan away duplicate files in your backups",
		Long: heredoc.Doc(`

		Find and plan away duplicate files in your backups.

		Dedup walks one or more directory trees, hashes every file, symlink
		and directory into a content-addressed index (descending into tar and
		zip archives if asked), then finds byte-identical files and whole
		subtrees and plans what could be deleted or hard-linked.

		Dedup never deletes anything itself: the output is always a plan for
		you (or an executor of your choice) to review and apply.
		`),
		Example: heredoc.Doc(`

		# Hash a backup disk into an index, descending into archives
		$ dedup build /mnt/backup --archives

		# Interrupted? Run it again, unchanged files are not rehashed
		$ dedup build /mnt/backup --archives

		# Group identical content
		$ dedup analyze --input hashtree.dedup --output dupsets.json

		# Keep everything under the 2024 snapshot, plan removals elsewhere
		$ dedup dedup --input dupsets.json --reference /mnt/backup/2024
		`),
	}

	// Global flags, propagated to the App via the shared options struct
	persistent := rootCmd.PersistentFlags()
	persistent.IntVarP(&dedup.Options.Threads, "threads", "t", 0, "Number of worker threads (default: one per logical CPU).")
	persistent.BoolVarP(&dedup.Options.Verbose, "verbose", "v", false, "Show more information about what dedup is doing.")
	persistent.BoolVar(&dedup.Options.Debug, "debug", false, "Show debug information (implies --verbose).")

	rootCmd.AddCommand(
		buildBuildCommand(dedup),
		buildCleanCommand(dedup),
		buildAnalyzeCommand(dedup),
		buildDedupCommand(dedup),
	)

	// Set our custom version and usage templates
	rootCmd.SetUsageTemplate(usageTemplate)
	rootCmd.SetVersionTemplate(versionTemplate)

	return rootCmd
}
