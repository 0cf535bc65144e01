package app

import (
	"github.com/FollowTheProcess/dedup/dedupe"
)

// DedupOptions holds the flag options for the dedup subcommand.
type DedupOptions struct {
	Input     string   // The --input flag
	Output    string   // The --output flag
	Model     string   // The --model flag
	Match     string   // The --match flag
	Reference string   // The --reference flag
	Targets   []string // The --target flag (repeatable)
	Overwrite bool     // The --overwrite flag
}

// Dedup turns a duplicate-set file into a plan of deduplication actions.
func (a *App) Dedup(options DedupOptions) error {
	if err := a.setup(); err != nil {
		return err
	}
	defer a.logger.Sync() // nolint: errcheck

	model, err := dedupe.ParseModel(options.Model)
	if err != nil {
		return configErrorf("%s", err)
	}
	match, err := dedupe.ParseMatchKind(options.Match)
	if err != nil {
		return configErrorf("%s", err)
	}
	if model == dedupe.Golden && options.Reference == "" {
		return configErrorf("The golden model requires --reference")
	}
	if !exists(options.Input) {
		return configErrorf("Input file does not exist: %s", options.Input)
	}
	if exists(options.Output) && !options.Overwrite {
		return configErrorf("Output file already exists: %s. Pass --overwrite to replace it", options.Output)
	}

	stats, err := dedupe.Run(dedupe.Settings{
		Input:     options.Input,
		Output:    options.Output,
		Model:     model,
		Match:     match,
		Reference: options.Reference,
		Targets:   options.Targets,
		Log:       a.logger,
	})
	if err != nil {
		return err
	}

	a.printer.Goodf(
		"Planned %d actions reclaiming %s, written to %s",
		stats.Actions, formatBytes(stats.ReclaimedBytes), options.Output,
	)
	return nil
}
