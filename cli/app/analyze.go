package app

import (
	"fmt"

	"github.com/FollowTheProcess/dedup/analyze"
	"github.com/fatih/color"
	"github.com/juju/ansiterm/tabwriter"
)

// AnalyzeOptions holds the flag options for the analyze subcommand.
type AnalyzeOptions struct {
	Input     string // The --input flag
	Output    string // The --output flag
	Overwrite bool   // The --overwrite flag
}

// Analyze reads a hash tree file, groups byte-identical nodes and writes
// the duplicate-set file.
func (a *App) Analyze(options AnalyzeOptions) error {
	if err := a.setup(); err != nil {
		return err
	}
	defer a.logger.Sync() // nolint: errcheck

	if !exists(options.Input) {
		return configErrorf("Input file does not exist: %s", options.Input)
	}
	if exists(options.Output) && !options.Overwrite {
		return configErrorf("Output file already exists: %s. Pass --overwrite to replace it", options.Output)
	}

	stats, err := analyze.Run(analyze.Settings{
		Input:   options.Input,
		Output:  options.Output,
		Threads: a.Options.Threads,
		Log:     a.logger,
	})
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.stdout, 0, 8, 1, '\t', tabwriter.AlignRight)
	titleStyle := color.New(color.FgHiWhite, color.Bold)
	titleStyle.Fprintln(writer, "Duplicate sets\tRedundant data")
	fmt.Fprintf(writer, "%d\t%s\n", stats.Groups, formatBytes(stats.DuplicatedBytes))
	if err := writer.Flush(); err != nil {
		return err
	}

	a.printer.Goodf("Duplicate sets written to %s", options.Output)
	return nil
}
