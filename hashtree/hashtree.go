// Package hashtree implements dedup's on-disk content index: an append-only,
// line-oriented store of one JSON record per filesystem node.
//
// Line 0 is a header carrying the format version, the digest algorithm and a
// creation timestamp. Every following line is one entry. The store is
// designed for resumable builds: appends are flushed line by line, a partial
// trailing line (a crashed writer) is ignored on load, and the total bytes
// written are tracked so a finaliser can truncate cleanly.
package hashtree

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/fspath"
	"go.uber.org/zap"
)

// Version is the hash tree file format version tag. Readers fail closed on
// versions they do not know.
const Version = "V1"

// EntryType describes the kind of filesystem node an entry records.
type EntryType string

const (
	// TypeFile is a regular file.
	TypeFile EntryType = "File"
	// TypeDirectory is a directory.
	TypeDirectory EntryType = "Directory"
	// TypeSymlink is a symbolic link.
	TypeSymlink EntryType = "Symlink"
	// TypeOther is any other node: sockets, devices, unreadable files etc.
	TypeOther EntryType = "Other"
)

// Header is the first line of a hash tree file.
type Header struct {
	Version      string           `json:"version"`
	HashType     digest.Algorithm `json:"hash_type"`
	CreationDate int64            `json:"creation_date"`
}

// Entry is one line of a hash tree file, describing a single node.
//
// Size holds content bytes for files and the number of children for
// directories. For archive container files Hash is the digest of the
// archive's logical subtree and ArchiveOuterHash the digest of the raw byte
// stream, so two archives differing only in compression framing share Hash.
type Entry struct {
	FileType         EntryType       `json:"file_type"`
	Modified         int64           `json:"modified"`
	Size             int64           `json:"size"`
	Hash             digest.Digest   `json:"hash"`
	Path             fspath.Path     `json:"path"`
	Children         []digest.Digest `json:"children"`
	ArchiveChildren  []*Entry        `json:"archive_children"`
	ArchiveOuterHash *digest.Digest  `json:"archive_outer_hash,omitempty"`
}

// IsArchive reports whether the entry records an archive container file.
func (e *Entry) IsArchive() bool {
	return e.ArchiveOuterHash != nil
}

// Indexes selects which in-memory indexes a File maintains while loading.
// Each is independently toggleable, large runs only pay for what they use.
type Indexes struct {
	// ByDigest maps digest -> all entries with that digest.
	ByDigest bool
	// ByPath maps logical path -> the latest entry for it.
	ByPath bool
	// Order keeps entries in file order.
	Order bool
}

// File is an open hash tree file: the parsed header, the requested indexes
// and an append position.
type File struct {
	// Header is the file's header record.
	Header Header
	// ByDigest maps digest string form -> entries, duplicates expected.
	ByDigest map[string][]*Entry
	// ByPath maps logical path key -> entry. A path seen twice keeps the
	// newer entry, which is how a resumed build supersedes a changed file.
	ByPath map[string]*Entry
	// Order holds loaded entries in insertion order.
	Order []*Entry

	indexes Indexes
	writer  *bufio.Writer
	written int64
	log     *zap.SugaredLogger
}

// New creates a File appending to w, with a fresh V1 header for the given
// algorithm. The header is not written until WriteHeader is called.
func New(w io.Writer, algorithm digest.Algorithm, indexes Indexes) *File {
	return &File{
		Header: Header{
			Version:      Version,
			HashType:     algorithm,
			CreationDate: time.Now().Unix(),
		},
		ByDigest: make(map[string][]*Entry),
		ByPath:   make(map[string]*Entry),
		indexes:  indexes,
		writer:   bufio.NewWriter(w),
		log:      zap.NewNop().Sugar(),
	}
}

// SetLogger directs the file's index bookkeeping logs, e.g. the INFO record
// emitted when a resumed build superseded a path.
func (f *File) SetLogger(log *zap.SugaredLogger) {
	f.log = log
}

// Load reads a complete hash tree stream: the header followed by every
// entry, populating the enabled indexes. A nil filter admits everything,
// otherwise entries the filter rejects are skipped and never indexed.
//
// An empty stream is not an error, the file keeps the header it was
// constructed with. Malformed JSON mid-file is corruption and fails the
// load. A trailing line with no newline is ignored.
func (f *File) Load(r io.Reader, filter func(*Entry) bool) error {
	reader := bufio.NewReader(r)

	line, err := readLine(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil // Empty file, nothing to load
		}
		return err
	}

	var header Header
	if err := json.Unmarshal([]byte(line), &header); err != nil {
		return fmt.Errorf("could not parse hash tree header: %w", err)
	}
	if header.Version != Version {
		return fmt.Errorf("unsupported hash tree file version %q, expected %q", header.Version, Version)
	}
	f.Header = header

	for {
		line, err := readLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry := &Entry{}
		if err := json.Unmarshal([]byte(line), entry); err != nil {
			return fmt.Errorf("corrupt hash tree entry: %w", err)
		}

		if entry.Hash.Algorithm != f.Header.HashType &&
			!(entry.FileType == TypeOther && entry.Hash.IsNull()) {
			f.log.Warnf("Hash type mismatch, ignoring entry for %s", entry.Path)
			continue
		}

		if filter != nil && !filter(entry) {
			continue
		}

		f.index(entry)
	}
}

// index inserts an entry into whichever indexes are enabled.
func (f *File) index(entry *Entry) {
	if f.indexes.ByDigest {
		key := entry.Hash.String()
		f.ByDigest[key] = append(f.ByDigest[key], entry)
	}

	if f.indexes.ByPath {
		key := entry.Path.Key()
		if old, ok := f.ByPath[key]; ok {
			// A resumed build re-observed this path after it changed, the
			// newer record wins
			f.log.Infof("Duplicate entry for path %s, keeping the newer one", entry.Path)
			if f.indexes.Order {
				for i, candidate := range f.Order {
					if candidate == old {
						f.Order = append(f.Order[:i], f.Order[i+1:]...)
						break
					}
				}
			}
		}
		f.ByPath[key] = entry
	}

	if f.indexes.Order {
		f.Order = append(f.Order, entry)
	}
}

// WriteHeader appends the header line. Call once when creating a fresh file,
// not when resuming an existing one.
func (f *File) WriteHeader() error {
	data, err := json.Marshal(f.Header)
	if err != nil {
		return err
	}
	return f.writeLine(data)
}

// Append serialises one entry as a compact JSON line and flushes it so a
// concurrent reader at EOF can make forward progress.
func (f *File) Append(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return f.writeLine(data)
}

// WrittenBytes returns the total bytes this File has appended, the length a
// caller should truncate the backing file to after finalisation.
func (f *File) WrittenBytes() int64 {
	return f.written
}

// Flush flushes any buffered output.
func (f *File) Flush() error {
	return f.writer.Flush()
}

func (f *File) writeLine(data []byte) error {
	n, err := f.writer.Write(data)
	f.written += int64(n)
	if err != nil {
		return err
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return err
	}
	f.written++
	return f.writer.Flush()
}

// readLine reads one newline-terminated line. A final line without a
// terminator is reported as io.EOF and its bytes discarded: a half-written
// record from a killed process is not an entry.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}
