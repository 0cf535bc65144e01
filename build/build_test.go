package build

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/hashtree"
)

// runBuild runs the engine and loads the resulting hash tree back.
func runBuild(t *testing.T, settings Settings) (Stats, *hashtree.File) {
	t.Helper()
	stats, err := Run(settings)
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}

	f, err := os.Open(settings.Output)
	if err != nil {
		t.Fatalf("could not open output file: %v", err)
	}
	defer f.Close()

	tree := hashtree.New(io.Discard, digest.NULL, hashtree.Indexes{ByDigest: true, ByPath: true, Order: true})
	if err := tree.Load(f, nil); err != nil {
		t.Fatalf("could not load output file: %v", err)
	}
	return stats, tree
}

// entryFor finds the entry for a host path, failing the test if absent.
func entryFor(t *testing.T, tree *hashtree.File, host string) *hashtree.Entry {
	t.Helper()
	for _, entry := range tree.Order {
		if resolved, err := entry.Path.Resolve(); err == nil && resolved == host {
			return entry
		}
	}
	t.Fatalf("no entry for %s", host)
	return nil
}

func TestSingleFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	target := filepath.Join(dir, "hello.txt")
	content := []byte("hello world\n")
	if err := os.WriteFile(target, content, 0644); err != nil {
		t.Fatalf("could not write test file: %v", err)
	}

	output := filepath.Join(dir, "tree.dedup")
	stats, tree := runBuild(t, Settings{
		Roots:    []string{target},
		Output:   output,
		HashType: digest.SHA256,
	})

	if stats.Entries != 1 {
		t.Fatalf("Got %d entries, wanted 1", stats.Entries)
	}
	entry := entryFor(t, tree, target)
	if entry.FileType != hashtree.TypeFile {
		t.Errorf("Got %v, wanted %v", entry.FileType, hashtree.TypeFile)
	}
	if entry.Size != int64(len(content)) {
		t.Errorf("Got size %d, wanted %d", entry.Size, len(content))
	}
	if want := digest.OfBytes(digest.SHA256, content); !entry.Hash.Equal(want) {
		t.Errorf("Got %s, wanted %s", entry.Hash, want)
	}
	if len(entry.Children) != 0 {
		t.Errorf("Got %d children, wanted 0", len(entry.Children))
	}

	// Running again from scratch must produce the identical entry
	_, again := runBuild(t, Settings{
		Roots:     []string{target},
		Output:    output,
		HashType:  digest.SHA256,
		Overwrite: true,
	})
	if !entryFor(t, again, target).Hash.Equal(entry.Hash) {
		t.Error("Two cold runs over the same file disagreed")
	}
}

func TestDirectoryMerkleDigest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("could not create root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a"), []byte("one"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "b"), []byte("two"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}

	_, tree := runBuild(t, Settings{
		Roots:    []string{root},
		Output:   filepath.Join(dir, "tree.dedup"),
		HashType: digest.SHA256,
	})

	rootEntry := entryFor(t, tree, root)
	if rootEntry.FileType != hashtree.TypeDirectory {
		t.Fatalf("Got %v, wanted %v", rootEntry.FileType, hashtree.TypeDirectory)
	}
	// For a directory, size records the number of children
	if rootEntry.Size != 2 {
		t.Errorf("Got size %d, wanted 2", rootEntry.Size)
	}

	one := digest.OfBytes(digest.SHA256, []byte("one"))
	two := digest.OfBytes(digest.SHA256, []byte("two"))
	if want := digest.Tree(digest.SHA256, []digest.Digest{one, two}); !rootEntry.Hash.Equal(want) {
		t.Errorf("Got %s, wanted %s", rootEntry.Hash, want)
	}

	// Children are stored in ascending digest order
	if len(rootEntry.Children) != 2 {
		t.Fatalf("Got %d children, wanted 2", len(rootEntry.Children))
	}
	if rootEntry.Children[1].Less(rootEntry.Children[0]) {
		t.Error("Children are not in ascending digest order")
	}
}

func TestEmptyDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	root := filepath.Join(dir, "empty")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("could not create root: %v", err)
	}

	stats, tree := runBuild(t, Settings{
		Roots:    []string{root},
		Output:   filepath.Join(dir, "tree.dedup"),
		HashType: digest.SHA256,
	})

	if stats.Entries != 1 {
		t.Fatalf("Got %d entries, wanted 1", stats.Entries)
	}
	entry := entryFor(t, tree, root)
	if entry.Size != 0 {
		t.Errorf("Got size %d, wanted 0", entry.Size)
	}
	if want := digest.Tree(digest.SHA256, nil); !entry.Hash.Equal(want) {
		t.Errorf("Got %s, wanted %s", entry.Hash, want)
	}
}

func TestResumeServesUnchangedFromCache(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("could not create tree: %v", err)
	}

	files := map[string]string{
		filepath.Join(root, "a.txt"): "alpha",
		filepath.Join(root, "b.txt"): "beta",
		filepath.Join(sub, "c.txt"):  "gamma",
	}
	past := time.Now().Add(-time.Hour)
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("could not write file: %v", err)
		}
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("could not set mtime: %v", err)
		}
	}

	output := filepath.Join(dir, "tree.dedup")
	settings := Settings{
		Roots:    []string{root},
		Output:   output,
		HashType: digest.SHA256,
	}

	cold, _ := runBuild(t, settings)
	if cold.CacheHits != 0 {
		t.Fatalf("Got %d cache hits on a cold run, wanted 0", cold.CacheHits)
	}
	if cold.Entries != 5 {
		t.Fatalf("Got %d entries, wanted 5", cold.Entries)
	}

	// Touch exactly one file
	changed := filepath.Join(root, "a.txt")
	if err := os.WriteFile(changed, []byte("ALPHA"), 0644); err != nil {
		t.Fatalf("could not modify file: %v", err)
	}

	warm, tree := runBuild(t, settings)

	// b.txt, sub and sub/c.txt come from the cache, a.txt and the root
	// directory (whose child digests changed) are recomputed
	if warm.CacheHits != 3 {
		t.Errorf("Got %d cache hits, wanted 3", warm.CacheHits)
	}
	if warm.Entries != 5 {
		t.Errorf("Got %d entries, wanted 5", warm.Entries)
	}
	if want := digest.OfBytes(digest.SHA256, []byte("ALPHA")); !entryFor(t, tree, changed).Hash.Equal(want) {
		t.Errorf("Got %s, wanted %s", entryFor(t, tree, changed).Hash, want)
	}
}

func TestDanglingSymlinkBecomesOther(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("could not create root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "ok.txt"), []byte("fine"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "broken")); err != nil {
		t.Fatalf("could not create symlink: %v", err)
	}

	// Following symlinks makes the dangling link unstattable
	stats, tree := runBuild(t, Settings{
		Roots:          []string{root},
		Output:         filepath.Join(dir, "tree.dedup"),
		HashType:       digest.SHA256,
		FollowSymlinks: true,
	})

	if stats.Others != 1 {
		t.Errorf("Got %d Other entries, wanted 1", stats.Others)
	}
	broken := entryFor(t, tree, filepath.Join(root, "broken"))
	if broken.FileType != hashtree.TypeOther {
		t.Errorf("Got %v, wanted %v", broken.FileType, hashtree.TypeOther)
	}
	if !broken.Hash.IsNull() {
		t.Errorf("Got %s, wanted the NULL digest", broken.Hash)
	}
	// The rest of the tree is unaffected
	if got := entryFor(t, tree, filepath.Join(root, "ok.txt")); got.FileType != hashtree.TypeFile {
		t.Errorf("Got %v, wanted %v", got.FileType, hashtree.TypeFile)
	}
}

func TestSymlinkHashesTargetPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("could not create root: %v", err)
	}
	target := filepath.Join(root, "real.txt")
	if err := os.WriteFile(target, []byte("data"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(root, "link")); err != nil {
		t.Fatalf("could not create symlink: %v", err)
	}

	_, tree := runBuild(t, Settings{
		Roots:    []string{root},
		Output:   filepath.Join(dir, "tree.dedup"),
		HashType: digest.SHA256,
	})

	link := entryFor(t, tree, filepath.Join(root, "link"))
	if link.FileType != hashtree.TypeSymlink {
		t.Fatalf("Got %v, wanted %v", link.FileType, hashtree.TypeSymlink)
	}
	// Not following symlinks: the digest covers the target path string, not
	// the linked data
	if want := digest.OfPath(digest.SHA256, target); !link.Hash.Equal(want) {
		t.Errorf("Got %s, wanted %s", link.Hash, want)
	}
}

func TestExcludes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("could not create root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "keep.txt"), []byte("keep"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "skip.tmp"), []byte("skip"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}

	stats, tree := runBuild(t, Settings{
		Roots:    []string{root},
		Output:   filepath.Join(dir, "tree.dedup"),
		HashType: digest.SHA256,
		Excludes: []string{"*.tmp"},
	})

	if stats.Entries != 2 {
		t.Fatalf("Got %d entries, wanted 2 (root + keep.txt)", stats.Entries)
	}
	if entryFor(t, tree, root).Size != 1 {
		t.Errorf("Got %d children, wanted 1", entryFor(t, tree, root).Size)
	}
}

func TestNullHashSkipsHashing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	target := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(target, []byte("content"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}

	_, tree := runBuild(t, Settings{
		Roots:    []string{target},
		Output:   filepath.Join(dir, "tree.dedup"),
		HashType: digest.NULL,
	})

	entry := entryFor(t, tree, target)
	if !entry.Hash.IsNull() {
		t.Errorf("Got %s, wanted the NULL digest", entry.Hash)
	}
	// Size still comes from metadata
	if entry.Size != int64(len("content")) {
		t.Errorf("Got size %d, wanted %d", entry.Size, len("content"))
	}
}

// writeTar writes a tar file whose members mirror name -> content.
func writeTar(t *testing.T, path string, files [][2]string) {
	t.Helper()
	var buf bytes.Buffer
	writer := tar.NewWriter(&buf)
	for _, file := range files {
		header := &tar.Header{
			Name:    file[0],
			Mode:    0644,
			Size:    int64(len(file[1])),
			ModTime: time.Unix(1700000000, 0),
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("could not write tar header: %v", err)
		}
		if _, err := writer.Write([]byte(file[1])); err != nil {
			t.Fatalf("could not write tar content: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("could not close tar writer: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("could not write tar file: %v", err)
	}
}

func TestTarInnerTreeEqualsDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// A directory with two files
	root := filepath.Join(dir, "data")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("could not create root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "x"), []byte("alpha"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "y"), []byte("beta"), 0644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}

	// And a tarball of exactly those files
	tarPath := filepath.Join(dir, "data.tar")
	writeTar(t, tarPath, [][2]string{{"x", "alpha"}, {"y", "beta"}})

	_, dirTree := runBuild(t, Settings{
		Roots:    []string{root},
		Output:   filepath.Join(dir, "dir.dedup"),
		HashType: digest.SHA256,
	})
	dirDigest := entryFor(t, dirTree, root).Hash

	_, tarTree := runBuild(t, Settings{
		Roots:    []string{tarPath},
		Output:   filepath.Join(dir, "tar.dedup"),
		HashType: digest.SHA256,
		Archives: true,
	})
	tarEntry := entryFor(t, tarTree, tarPath)

	// The archive's inner tree digest equals the directory's digest
	if !tarEntry.Hash.Equal(dirDigest) {
		t.Errorf("Got inner digest %s, wanted %s", tarEntry.Hash, dirDigest)
	}
	if tarEntry.ArchiveOuterHash == nil {
		t.Fatal("Archive entry should carry an outer hash")
	}
	if len(tarEntry.ArchiveChildren) != 2 {
		t.Errorf("Got %d archive children, wanted 2", len(tarEntry.ArchiveChildren))
	}

	// With archives disabled the tarball is an opaque file
	_, opaqueTree := runBuild(t, Settings{
		Roots:    []string{tarPath},
		Output:   filepath.Join(dir, "opaque.dedup"),
		HashType: digest.SHA256,
	})
	opaque := entryFor(t, opaqueTree, tarPath)
	tarBytes, err := os.ReadFile(tarPath)
	if err != nil {
		t.Fatalf("could not read tar file: %v", err)
	}
	if want := digest.OfBytes(digest.SHA256, tarBytes); !opaque.Hash.Equal(want) {
		t.Errorf("Got %s, wanted the raw byte digest %s", opaque.Hash, want)
	}
	if opaque.ArchiveOuterHash != nil {
		t.Error("Opaque file entry should not carry an outer hash")
	}
}

func TestArchiveOuterHashIsRawBytes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "data.tar")
	writeTar(t, tarPath, [][2]string{{"only", "content"}})

	_, tree := runBuild(t, Settings{
		Roots:    []string{tarPath},
		Output:   filepath.Join(dir, "tree.dedup"),
		HashType: digest.SHA256,
		Archives: true,
	})

	entry := entryFor(t, tree, tarPath)
	tarBytes, err := os.ReadFile(tarPath)
	if err != nil {
		t.Fatalf("could not read tar file: %v", err)
	}
	if entry.ArchiveOuterHash == nil {
		t.Fatal("Archive entry should carry an outer hash")
	}
	if want := digest.OfBytes(digest.SHA256, tarBytes); !entry.ArchiveOuterHash.Equal(want) {
		t.Errorf("Got %s, wanted %s", entry.ArchiveOuterHash, want)
	}
	if entry.Size != int64(len(tarBytes)) {
		t.Errorf("Got size %d, wanted %d", entry.Size, len(tarBytes))
	}
}
