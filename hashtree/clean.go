package hashtree

import (
	"fmt"
	"io"
	"os"

	"github.com/FollowTheProcess/dedup/digest"
	"go.uber.org/zap"
)

// CleanOptions configures a Clean pass.
type CleanOptions struct {
	// Log is the pass's logger, nil means silent.
	Log *zap.SugaredLogger
	// Input is the hash tree file to read.
	Input string
	// Output is the file to write the surviving entries to. It may be the
	// same path as Input, the input is read in full first.
	Output string
	// FollowSymlinks selects stat over lstat when re-checking paths.
	FollowSymlinks bool
}

// Clean rewrites a hash tree file, dropping entries whose paths no longer
// exist on disk with a matching node type. Entries whose paths lie inside an
// archive are always kept without a disk check, and paths whose metadata
// cannot be read are kept rather than guessed at. Duplicate records for one
// path collapse to the newest. Returns how many entries were kept and how
// many dropped.
func Clean(opts CleanOptions) (kept, dropped int, err error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	input, err := os.Open(opts.Input)
	if err != nil {
		return 0, 0, fmt.Errorf("could not open input file %s: %w", opts.Input, err)
	}

	tree := New(io.Discard, digest.NULL, Indexes{ByPath: true, Order: true})
	tree.SetLogger(log)

	loadErr := tree.Load(input, func(entry *Entry) bool {
		if alive(entry, opts.FollowSymlinks, log) {
			return true
		}
		dropped++
		return false
	})
	input.Close()
	if loadErr != nil {
		return 0, dropped, fmt.Errorf("could not load %s: %w", opts.Input, loadErr)
	}

	output, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return 0, dropped, fmt.Errorf("could not open output file %s: %w", opts.Output, err)
	}
	defer output.Close()

	out := New(output, tree.Header.HashType, Indexes{})
	out.Header = tree.Header // Preserve the original creation date

	if err := out.WriteHeader(); err != nil {
		return 0, dropped, fmt.Errorf("could not write header to %s: %w", opts.Output, err)
	}
	for _, entry := range tree.Order {
		if err := out.Append(entry); err != nil {
			return kept, dropped, fmt.Errorf("could not write entry to %s: %w", opts.Output, err)
		}
		kept++
	}

	if err := out.Flush(); err != nil {
		return kept, dropped, err
	}
	// The output may be a longer, pre-existing file (e.g. the input itself),
	// cut it down to exactly what was written
	if err := output.Truncate(out.WrittenBytes()); err != nil {
		return kept, dropped, fmt.Errorf("could not truncate %s: %w", opts.Output, err)
	}
	return kept, dropped, nil
}

// alive reports whether an entry still describes something on disk.
func alive(entry *Entry, followSymlinks bool, log *zap.SugaredLogger) bool {
	host, err := entry.Path.Resolve()
	if err != nil {
		// Inside an archive, existence is the container's problem
		return true
	}

	var info os.FileInfo
	if followSymlinks {
		info, err = os.Stat(host)
	} else {
		info, err = os.Lstat(host)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		log.Warnf("Could not read metadata of %s: %v", entry.Path, err)
		return true
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return entry.FileType == TypeSymlink
	case info.IsDir():
		return entry.FileType == TypeDirectory
	case info.Mode().IsRegular():
		return entry.FileType == TypeFile
	default:
		return entry.FileType == TypeOther
	}
}
