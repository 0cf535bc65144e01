// Package app implements the CLI functionality, the CLI defers
// execution to the exported methods in this package
package app

import (
	"fmt"
	"io"
	"os"

	"github.com/FollowTheProcess/dedup/logger"
	"github.com/FollowTheProcess/msg"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// App represents the dedup program.
type App struct {
	stdout  io.Writer          // Where to write to
	stderr  io.Writer          // Where to write errors to
	Options *Options           // The global CLI options
	logger  *zap.SugaredLogger // Dedup's logger, writes to stderr
	printer msg.Printer        // Dedup's printer, prints user messages to stdout
}

// Options holds the global flag options shared by every subcommand.
type Options struct {
	Threads int  // The --threads flag
	Verbose bool // The --verbose flag
	Debug   bool // The --debug flag
}

// New creates and returns a new App.
func New(stdout, stderr io.Writer) *App {
	options := &Options{}
	printer := msg.Default()
	printer.Stdout = stdout
	printer.Stderr = stderr
	return &App{
		stdout:  stdout,
		stderr:  stderr,
		Options: options,
		printer: printer,
	}
}

// setup performs the one time initialisation every subcommand needs:
// loading a .env file if present and building the logger.
func (a *App) setup() error {
	// Auto load .env (if present) so e.g. DEDUP_LOG can live next to the data
	if exists(".env") {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("Could not load .env file: %w", err)
		}
	}

	log, err := logger.New(a.Options.Verbose, a.Options.Debug)
	if err != nil {
		return err
	}
	a.logger = log
	return nil
}

// ConfigError is an error caused by bad flags or paths rather than by
// dedup itself, the front-end reports it with a distinct exit code.
type ConfigError struct {
	message string
}

// Error implements error for a ConfigError.
func (c ConfigError) Error() string {
	return c.message
}

// configErrorf builds a ConfigError in the fmt.Errorf style.
func configErrorf(format string, args ...any) error {
	return ConfigError{message: fmt.Sprintf(format, args...)}
}

// exists returns whether a path exists on disk.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// formatBytes renders a byte count human readable.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
