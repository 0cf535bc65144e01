// Package analyze implements the duplicate-set analyzer: it reads a
// complete hash tree file back, groups entries by Merkle digest and reports
// every group of byte-identical nodes.
//
// A group is only reported at the highest level at which it occurs: a file
// whose parent directory is itself duplicated everywhere it appears is not
// reported individually, removing the directories removes the file anyway.
package analyze

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/fspath"
	"github.com/FollowTheProcess/dedup/hashtree"
	"github.com/FollowTheProcess/dedup/pool"
	"go.uber.org/zap"
)

// Entry is one duplicate set: a group of byte-identical nodes and where
// they all live.
type Entry struct {
	FileType    hashtree.EntryType `json:"ftype"`
	Size        int64              `json:"size"`
	Hash        digest.Digest      `json:"hash"`
	Conflicting []fspath.Path      `json:"conflicting"`
}

// File is the duplicate-set file written by the analyzer and consumed by
// the action planner.
type File struct {
	Entries []*Entry `json:"entries"`
}

// Settings configures an analysis run.
type Settings struct {
	// Log is the run's logger, nil means silent.
	Log *zap.SugaredLogger
	// Input is the hash tree file to analyze.
	Input string
	// Output is the duplicate-set file to write.
	Output string
	// Threads is the worker count, 0 means one per logical CPU.
	Threads int
}

// Stats summarises an analysis run.
type Stats struct {
	// Groups is the number of duplicate sets found.
	Groups int
	// DuplicatedBytes is how much disk the redundant file copies occupy.
	DuplicatedBytes int64
}

// job is one digest bucket for a worker to examine.
type job struct {
	key     string
	entries []*hashtree.Entry
}

// result is what a worker reports per bucket.
type result struct {
	entries []*Entry
	bytes   int64
}

// workerArg is the shared read-only context for analysis workers.
type workerArg struct {
	byDigest map[string][]*hashtree.Entry
	byPath   map[string]*hashtree.Entry
}

// Run analyzes a hash tree file and writes the duplicate-set file.
func Run(settings Settings) (Stats, error) {
	log := settings.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	threads := settings.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	input, err := os.Open(settings.Input)
	if err != nil {
		return Stats{}, fmt.Errorf("could not open input file %s: %w", settings.Input, err)
	}
	tree := hashtree.New(io.Discard, digest.NULL, hashtree.Indexes{ByDigest: true, ByPath: true})
	tree.SetLogger(log)
	loadErr := tree.Load(input, nil)
	input.Close()
	if loadErr != nil {
		return Stats{}, fmt.Errorf("could not load %s: %w", settings.Input, loadErr)
	}

	arg := workerArg{byDigest: tree.ByDigest, byPath: tree.ByPath}
	args := make([]workerArg, threads)
	for i := range args {
		args[i] = arg
	}

	workers := pool.New[job, result](args, analyseBucket)

	published := 0
	for key, entries := range tree.ByDigest {
		if len(entries) < 2 || entries[0].Hash.IsNull() {
			continue // Unique, or the shared NULL digest of Other nodes
		}
		workers.Publish(job{key: key, entries: entries})
		published++
	}

	var found []*Entry
	var stats Stats
	for received := 0; received < published; received++ {
		res, err := workers.ReceiveTimeout(10 * time.Second)
		if err != nil {
			workers.Close()
			return stats, fmt.Errorf("analysis stalled: %w", err)
		}
		found = append(found, res.entries...)
		stats.DuplicatedBytes += res.bytes
	}
	workers.Close()

	// Map iteration above is unordered, fix the report order
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Hash.String() != found[j].Hash.String() {
			return found[i].Hash.String() < found[j].Hash.String()
		}
		return found[i].Size < found[j].Size
	})
	stats.Groups = len(found)

	output, err := os.Create(settings.Output)
	if err != nil {
		return stats, fmt.Errorf("could not open output file %s: %w", settings.Output, err)
	}
	defer output.Close()

	encoder := json.NewEncoder(output)
	if err := encoder.Encode(File{Entries: found}); err != nil {
		return stats, fmt.Errorf("could not write duplicate sets to %s: %w", settings.Output, err)
	}
	return stats, nil
}

// analyseBucket is the worker function: it splits one digest bucket into
// true duplicate sets and applies the parent suppression rule.
func analyseBucket(_ int, j job, results chan<- result, _ chan<- job, arg *workerArg) {
	var res result

	// A digest collision is only a duplicate when the structural metadata
	// agrees too, split the bucket by (type, size, children)
	sets := make(map[string][]*hashtree.Entry)
	var order []string
	for _, entry := range j.entries {
		key := setKey(entry)
		if _, ok := sets[key]; !ok {
			order = append(order, key)
		}
		sets[key] = append(sets[key], entry)
	}

	for _, key := range order {
		group := sets[key]
		if len(group) < 2 {
			continue
		}
		if suppressed(group, arg) {
			continue
		}

		paths := make([]fspath.Path, 0, len(group))
		for _, entry := range group {
			paths = append(paths, entry.Path)
		}
		res.entries = append(res.entries, &Entry{
			FileType:    group[0].FileType,
			Size:        group[0].Size,
			Hash:        group[0].Hash,
			Conflicting: paths,
		})
		if group[0].FileType == hashtree.TypeFile {
			res.bytes += group[0].Size * int64(len(group)-1)
		}
	}

	results <- res
}

// suppressed reports whether every member of a duplicate set lives inside
// a parent directory that is itself duplicated. Such sets are subsumed by
// their parents' set and not reported.
func suppressed(group []*hashtree.Entry, arg *workerArg) bool {
	for _, entry := range group {
		parentPath, ok := entry.Path.Parent()
		if !ok {
			return false // A root has no parent to subsume it
		}
		parent, ok := arg.byPath[parentPath.Key()]
		if !ok {
			return false
		}
		if parent.Hash.IsNull() || len(arg.byDigest[parent.Hash.String()]) < 2 {
			return false
		}
	}
	return true
}

// setKey builds the subgrouping key for entries sharing a digest.
func setKey(entry *hashtree.Entry) string {
	var sb strings.Builder
	sb.WriteString(string(entry.FileType))
	fmt.Fprintf(&sb, "|%d|", entry.Size)
	for _, child := range entry.Children {
		sb.WriteString(child.String())
		sb.WriteByte(',')
	}
	return sb.String()
}
