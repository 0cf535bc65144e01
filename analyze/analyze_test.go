package analyze

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/fspath"
	"github.com/FollowTheProcess/dedup/hashtree"
)

// writeTree writes a hash tree file from pre-built entries.
func writeTree(t *testing.T, path string, entries []*hashtree.Entry) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("could not create tree file: %v", err)
	}
	defer f.Close()

	tree := hashtree.New(f, digest.SHA256, hashtree.Indexes{})
	if err := tree.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader returned an error: %v", err)
	}
	for _, entry := range entries {
		if err := tree.Append(entry); err != nil {
			t.Fatalf("Append returned an error: %v", err)
		}
	}
}

// readSets reads a duplicate-set file back.
func readSets(t *testing.T, path string) File {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("could not open dupset file: %v", err)
	}
	defer f.Close()

	var sets File
	if err := json.NewDecoder(f).Decode(&sets); err != nil {
		t.Fatalf("could not decode dupset file: %v", err)
	}
	return sets
}

func file(path string, content string) *hashtree.Entry {
	return &hashtree.Entry{
		FileType: hashtree.TypeFile,
		Modified: 1700000000,
		Size:     int64(len(content)),
		Hash:     digest.OfBytes(digest.SHA256, []byte(content)),
		Path:     fspath.New(path),
		Children: []digest.Digest{},
	}
}

func directory(path string, children ...digest.Digest) *hashtree.Entry {
	return &hashtree.Entry{
		FileType: hashtree.TypeDirectory,
		Modified: 1700000000,
		Size:     int64(len(children)),
		Hash:     digest.Tree(digest.SHA256, children),
		Path:     fspath.New(path),
		Children: children,
	}
}

func TestDuplicateDirectorySuppressesFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Two identical files at a/x and b/x make a and b identical
	// directories: only the directory set is reported
	ax := file("/r/a/x", "same content")
	bx := file("/r/b/x", "same content")
	a := directory("/r/a", ax.Hash)
	b := directory("/r/b", bx.Hash)
	root := directory("/r", a.Hash, b.Hash)

	input := filepath.Join(dir, "tree.dedup")
	writeTree(t, input, []*hashtree.Entry{ax, bx, a, b, root})

	output := filepath.Join(dir, "dupsets.json")
	stats, err := Run(Settings{Input: input, Output: output, Threads: 2})
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}

	sets := readSets(t, output)
	if len(sets.Entries) != 1 {
		t.Fatalf("Got %d duplicate sets, wanted 1", len(sets.Entries))
	}

	set := sets.Entries[0]
	if set.FileType != hashtree.TypeDirectory {
		t.Errorf("Got %v, wanted %v", set.FileType, hashtree.TypeDirectory)
	}
	if len(set.Conflicting) != 2 {
		t.Errorf("Got %d conflicting paths, wanted 2", len(set.Conflicting))
	}
	if stats.Groups != 1 {
		t.Errorf("Got %d groups, wanted 1", stats.Groups)
	}
}

func TestDuplicateFilesAcrossUniqueParents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Identical files in directories that are NOT themselves duplicated
	// must be reported
	ax := file("/r/a/x", "same content")
	bx := file("/r/b/x", "same content")
	a := directory("/r/a", ax.Hash)
	b := directory("/r/b", bx.Hash)
	// Make the parents differ: b also holds a unique file
	unique := file("/r/b/unique", "only here")
	b = directory("/r/b", bx.Hash, unique.Hash)
	root := directory("/r", a.Hash, b.Hash)

	input := filepath.Join(dir, "tree.dedup")
	writeTree(t, input, []*hashtree.Entry{ax, bx, unique, a, b, root})

	output := filepath.Join(dir, "dupsets.json")
	stats, err := Run(Settings{Input: input, Output: output})
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}

	sets := readSets(t, output)
	if len(sets.Entries) != 1 {
		t.Fatalf("Got %d duplicate sets, wanted 1", len(sets.Entries))
	}
	set := sets.Entries[0]
	if set.FileType != hashtree.TypeFile {
		t.Errorf("Got %v, wanted %v", set.FileType, hashtree.TypeFile)
	}
	// One redundant copy of "same content"
	if want := int64(len("same content")); stats.DuplicatedBytes != want {
		t.Errorf("Got %d duplicated bytes, wanted %d", stats.DuplicatedBytes, want)
	}
}

func TestOtherNodesNeverGroup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Other nodes all share the NULL digest but are not duplicates
	socket := &hashtree.Entry{
		FileType: hashtree.TypeOther,
		Path:     fspath.New("/r/socket"),
		Hash:     digest.Null(),
		Children: []digest.Digest{},
	}
	device := &hashtree.Entry{
		FileType: hashtree.TypeOther,
		Path:     fspath.New("/r/device"),
		Hash:     digest.Null(),
		Children: []digest.Digest{},
	}
	root := directory("/r", digest.Null(), digest.Null())

	input := filepath.Join(dir, "tree.dedup")
	writeTree(t, input, []*hashtree.Entry{socket, device, root})

	output := filepath.Join(dir, "dupsets.json")
	if _, err := Run(Settings{Input: input, Output: output}); err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}

	sets := readSets(t, output)
	if len(sets.Entries) != 0 {
		t.Errorf("Got %d duplicate sets, wanted 0", len(sets.Entries))
	}
}

func TestSizeMismatchSplitsBuckets(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Two entries with the same digest but different sizes are not the
	// same content (only possible via hash collision or corruption), they
	// must not be grouped
	one := file("/r/one", "payload")
	two := file("/r/two", "payload")
	two.Size = 999
	root := directory("/r", one.Hash, two.Hash)

	input := filepath.Join(dir, "tree.dedup")
	writeTree(t, input, []*hashtree.Entry{one, two, root})

	output := filepath.Join(dir, "dupsets.json")
	if _, err := Run(Settings{Input: input, Output: output}); err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}

	sets := readSets(t, output)
	if len(sets.Entries) != 0 {
		t.Errorf("Got %d duplicate sets, wanted 0", len(sets.Entries))
	}
}
