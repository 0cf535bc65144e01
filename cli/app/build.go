package app

import (
	"path/filepath"
	"sort"

	"github.com/FollowTheProcess/dedup/build"
	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/hashtree"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// BuildOptions holds the flag options for the build subcommand.
type BuildOptions struct {
	Hash           string   // The --hash flag
	Output         string   // The --output flag
	Roots          []string // The root paths to hash (positional args)
	Excludes       []string // The --exclude flag (repeatable)
	FollowSymlinks bool     // The --follow-symlinks flag
	Archives       bool     // The --archives flag
	Overwrite      bool     // The --overwrite flag
	NoClean        bool     // The --no-clean flag
}

// Build walks the given roots and writes (or continues) a hash tree file.
func (a *App) Build(options BuildOptions) error {
	if err := a.setup(); err != nil {
		return err
	}
	defer a.logger.Sync() // nolint: errcheck

	algorithm, err := parseHash(options.Hash)
	if err != nil {
		return err
	}

	for _, root := range options.Roots {
		if !exists(root) {
			return configErrorf("Target directory does not exist: %s", root)
		}
	}
	if parent := filepath.Dir(options.Output); !exists(parent) {
		return configErrorf("Output directory does not exist: %s", parent)
	}

	a.logger.Debugf("Building hash tree for %v into %s using %s", options.Roots, options.Output, algorithm)

	stats, err := build.Run(build.Settings{
		Roots:          options.Roots,
		Output:         options.Output,
		HashType:       algorithm,
		FollowSymlinks: options.FollowSymlinks,
		Archives:       options.Archives,
		Overwrite:      options.Overwrite,
		Excludes:       options.Excludes,
		Threads:        a.Options.Threads,
		Log:            a.logger,
	})
	if err != nil {
		return err
	}

	a.printer.Goodf(
		"Hashed %d nodes (%s in %d files), %d served from cache",
		stats.Entries, formatBytes(stats.Bytes), stats.Files, stats.CacheHits,
	)

	if options.NoClean {
		return nil
	}

	a.logger.Debugf("Cleaning %s", options.Output)
	kept, dropped, err := hashtree.Clean(hashtree.CleanOptions{
		Input:          options.Output,
		Output:         options.Output,
		FollowSymlinks: options.FollowSymlinks,
		Log:            a.logger,
	})
	if err != nil {
		return err
	}
	if dropped > 0 {
		a.printer.Infof("Cleaned %d stale entries, %d remain", dropped, kept)
	}
	return nil
}

// parseHash parses the --hash flag, suggesting close matches for typos.
func parseHash(value string) (digest.Algorithm, error) {
	algorithm, err := digest.ParseAlgorithm(value)
	if err == nil {
		return algorithm, nil
	}

	ranks := fuzzy.RankFindFold(value, digest.Algorithms())
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return digest.NULL, configErrorf("Unsupported hash %q. Did you mean %q?", value, ranks[0].Target)
	}
	return digest.NULL, configErrorf("Unsupported hash %q. Supported values are %v", value, digest.Algorithms())
}
