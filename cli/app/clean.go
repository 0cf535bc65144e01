package app

import (
	"github.com/FollowTheProcess/dedup/hashtree"
)

// CleanOptions holds the flag options for the clean subcommand.
type CleanOptions struct {
	Input          string // The --input flag
	Output         string // The --output flag
	FollowSymlinks bool   // The --follow-symlinks flag
	Overwrite      bool   // The --overwrite flag
}

// Clean rewrites a hash tree file, dropping entries that no longer match
// anything on disk.
func (a *App) Clean(options CleanOptions) error {
	if err := a.setup(); err != nil {
		return err
	}
	defer a.logger.Sync() // nolint: errcheck

	if !exists(options.Input) {
		return configErrorf("Input file does not exist: %s", options.Input)
	}
	if options.Output != options.Input && exists(options.Output) && !options.Overwrite {
		return configErrorf("Output file already exists: %s. Pass --overwrite to replace it", options.Output)
	}

	kept, dropped, err := hashtree.Clean(hashtree.CleanOptions{
		Input:          options.Input,
		Output:         options.Output,
		FollowSymlinks: options.FollowSymlinks,
		Log:            a.logger,
	})
	if err != nil {
		return err
	}

	a.printer.Goodf("Cleaned %s: kept %d entries, dropped %d", options.Input, kept, dropped)
	return nil
}
