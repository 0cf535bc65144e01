package cmd

import "fmt"

// Custom version template for dedup --version, rendering the ldflags-set
// build metadata with the shared header style.
var versionTemplate = fmt.Sprintf(
	`{{printf "%s %s\n%s %s\n%s %s\n%s %s\n"}}`,
	headerStyle.Sprint("Version:"),
	version,
	headerStyle.Sprint("Commit:"),
	commit,
	headerStyle.Sprint("Build Date:"),
	buildDate,
	headerStyle.Sprint("Built By:"),
	builtBy,
)
