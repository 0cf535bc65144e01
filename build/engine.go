// Package build implements the parallel hash-tree build engine: a
// dependency-respecting job pipeline that traverses file trees of unknown
// depth across a fixed worker pool, producing one hash tree entry per node.
//
// Directories are expanded into child jobs and finalised only after every
// child has reported its digest, gated by an atomic outstanding-children
// counter. Files are served from the existing index when their
// (type, modified, size) triple matches, so an interrupted build resumed
// over the same tree only rehashes what changed.
package build

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/fspath"
	"github.com/FollowTheProcess/dedup/hashtree"
	"github.com/FollowTheProcess/dedup/pool"
	"go.uber.org/zap"
)

// livenessTimeout is how long the result consumer waits before warning that
// workers have gone quiet with jobs still open.
const livenessTimeout = 10 * time.Second

// Settings configures a build run.
type Settings struct {
	// Log is the engine's logger, nil means silent.
	Log *zap.SugaredLogger
	// Output is the path of the hash tree file to write or continue.
	Output string
	// Roots are the filesystem roots to hash.
	Roots []string
	// Excludes are doublestar patterns for children that must not be
	// scheduled.
	Excludes []string
	// HashType is the digest algorithm. When continuing an existing file
	// the file's header algorithm wins.
	HashType digest.Algorithm
	// Threads is the worker count, 0 means one per logical CPU.
	Threads int
	// FollowSymlinks resolves symlinks instead of recording them.
	FollowSymlinks bool
	// Archives descends into tar/zip containers, compressed or not.
	Archives bool
	// Overwrite recreates the output file instead of continuing it.
	Overwrite bool
}

// Stats summarises a completed build run.
type Stats struct {
	// Entries is the total number of entries written.
	Entries int
	// CacheHits is how many nodes were served from the existing index.
	CacheHits int
	// Files, Directories, Symlinks and Others count entries per node kind.
	Files       int
	Directories int
	Symlinks    int
	Others      int
	// Bytes is the total content size of hashed files.
	Bytes int64
}

// Run builds hash trees for every root in the settings, writing entries to
// the output file as they complete.
func Run(settings Settings) (Stats, error) {
	log := settings.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	threads := settings.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	file, tree, err := openOutput(settings, log)
	if err != nil {
		return Stats{}, err
	}
	defer file.Close()

	hashType := tree.Header.HashType

	args := make([]WorkerArg, threads)
	for i := range args {
		args[i] = WorkerArg{
			HashType:       hashType,
			FollowSymlinks: settings.FollowSymlinks,
			Archives:       settings.Archives,
			Excludes:       settings.Excludes,
			Index:          tree.ByPath,
			Log:            log,
		}
	}

	workers := pool.New[*Job, Result](args, run)

	for _, root := range settings.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			workers.Close()
			return Stats{}, fmt.Errorf("could not resolve root %s: %w", root, err)
		}
		workers.Publish(NewJob(fspath.New(abs), nil))
	}

	var stats Stats
	finals := 0
	for finals < len(settings.Roots) {
		result, err := workers.ReceiveTimeout(livenessTimeout)
		if err != nil {
			if err == pool.ErrTimeout {
				log.Warnf("No results for %s with %d root(s) outstanding, a worker may be stuck", livenessTimeout, len(settings.Roots)-finals)
				continue
			}
			workers.Close()
			return stats, fmt.Errorf("worker pool closed unexpectedly: %w", err)
		}

		record(&stats, result)

		if err := tree.Append(result.Node.Entry()); err != nil {
			workers.Close()
			return stats, fmt.Errorf("could not append to %s: %w", settings.Output, err)
		}

		if result.Final {
			finals++
		}
	}

	workers.Close()

	if err := tree.Flush(); err != nil {
		return stats, fmt.Errorf("could not flush %s: %w", settings.Output, err)
	}
	return stats, nil
}

// record tallies one result into the run's stats.
func record(stats *Stats, result Result) {
	stats.Entries++
	if result.Cached {
		stats.CacheHits++
	}
	switch result.Node.Kind {
	case KindDirectory:
		stats.Directories++
	case KindSymlink:
		stats.Symlinks++
	case KindOther:
		stats.Others++
	default:
		stats.Files++
		stats.Bytes += result.Node.Size
	}
}

// openOutput opens the hash tree file per the overwrite/continue setting,
// loading the by-path index from an existing file when continuing.
func openOutput(settings Settings, log *zap.SugaredLogger) (*os.File, *hashtree.File, error) {
	resume := false
	if !settings.Overwrite {
		if info, err := os.Stat(settings.Output); err == nil && info.Size() > 0 {
			resume = true
		}
	}

	if !resume {
		file, err := os.OpenFile(settings.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("could not create output file %s: %w", settings.Output, err)
		}
		tree := hashtree.New(file, settings.HashType, hashtree.Indexes{ByPath: true})
		tree.SetLogger(log)
		if err := tree.WriteHeader(); err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("could not write header to %s: %w", settings.Output, err)
		}
		return file, tree, nil
	}

	file, err := os.OpenFile(settings.Output, os.O_RDWR|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open output file %s: %w", settings.Output, err)
	}

	tree := hashtree.New(file, settings.HashType, hashtree.Indexes{ByPath: true})
	tree.SetLogger(log)
	if err := tree.Load(file, nil); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("could not continue %s, delete it or pass --overwrite: %w", settings.Output, err)
	}

	if tree.Header.HashType != settings.HashType {
		log.Infof("Continuing %s with its existing algorithm %s", settings.Output, tree.Header.HashType)
	}
	return file, tree, nil
}
