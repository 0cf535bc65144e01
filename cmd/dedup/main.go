package main

import (
	"errors"
	"os"

	"github.com/FollowTheProcess/dedup/cli/app"
	"github.com/FollowTheProcess/dedup/cli/cmd"
	"github.com/FollowTheProcess/msg"
)

// Exit codes, config errors are distinguishable from dedup failures.
const (
	exitOK       = 0
	exitSoftware = 1
	exitConfig   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := cmd.BuildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		msg.Failf("%s", err)
		var configErr app.ConfigError
		if errors.As(err, &configErr) {
			return exitConfig
		}
		return exitSoftware
	}
	return exitOK
}
