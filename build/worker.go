package build

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/FollowTheProcess/dedup/archive"
	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/fspath"
	"github.com/FollowTheProcess/dedup/hashtree"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// WorkerArg is the per-worker state for the build pool. Every worker owns
// its copy so no locking is needed inside a job.
type WorkerArg struct {
	// HashType is the digest algorithm for this run.
	HashType digest.Algorithm
	// FollowSymlinks selects stat over lstat when reading metadata.
	FollowSymlinks bool
	// Archives enables descending into archive containers.
	Archives bool
	// Excludes are doublestar patterns, matching children are never
	// scheduled.
	Excludes []string
	// Index is the existing hash tree's by-path index, the resume/skip
	// fast path. Read only.
	Index map[string]*hashtree.Entry
	// Log is the worker's logger.
	Log *zap.SugaredLogger
}

// run is the worker function for the build pool: it resolves the job's
// path, reads its metadata and dispatches on the node kind. Any per-job
// I/O failure degrades to an Other node, the build always makes progress.
func run(id int, job *Job, results chan<- Result, jobs chan<- *Job, arg *WorkerArg) {
	host, err := job.Path.Resolve()
	if err != nil {
		arg.Log.Errorf("[%d] could not resolve %s: %v", id, job.Path, err)
		publish(job, otherNode(job.Path, 0, 0), false, results, jobs)
		return
	}

	var info os.FileInfo
	if arg.FollowSymlinks {
		info, err = os.Stat(host)
	} else {
		info, err = os.Lstat(host)
	}
	if err != nil {
		arg.Log.Warnf("[%d] could not stat %s: %v", id, job.Path, err)
		publish(job, otherNode(job.Path, 0, 0), false, results, jobs)
		return
	}

	modified := info.ModTime().Unix()
	size := info.Size()

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		runSymlink(host, modified, size, id, job, results, jobs, arg)
	case info.IsDir():
		runDirectory(host, modified, size, id, job, results, jobs, arg)
	case info.Mode().IsRegular():
		runFile(host, modified, size, id, job, results, jobs, arg)
	default:
		runOther(modified, size, job, results, jobs, arg)
	}
}

// publish delivers a completed node: the final root result goes straight to
// the result channel, an intermediate one additionally pushes its stub into
// the parent's bag and, if it was the last outstanding child, re-enqueues
// the parent for its Analyzed phase.
func publish(job *Job, node *Node, cached bool, results chan<- Result, jobs chan<- *Job) {
	if job.Parent == nil {
		results <- Result{Node: node, Cached: cached, Final: true}
		return
	}
	results <- Result{Node: node, Cached: cached}
	if job.Parent.childDone(node.Stub()) {
		jobs <- job.Parent
	}
}

// otherNode builds the Other node a failed or unsupported path degrades to.
func otherNode(path fspath.Path, modified, size int64) *Node {
	return &Node{
		Kind:     KindOther,
		Path:     path,
		Modified: modified,
		Size:     size,
		Digest:   digest.Null(),
	}
}

// cachedEntry looks the job's path up in the existing index.
func cachedEntry(arg *WorkerArg, path fspath.Path) *hashtree.Entry {
	return arg.Index[path.Key()]
}

// excluded reports whether a child path matches any exclude pattern, tried
// against both the full slashed host path and the bare name.
func excluded(arg *WorkerArg, host, name string) bool {
	slashed := filepath.ToSlash(host)
	for _, pattern := range arg.Excludes {
		if ok, err := doublestar.Match(pattern, slashed); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// runFile hashes a regular file, serving it from the index when the
// (type, modified, size) triple matches and descending into archives when
// enabled.
func runFile(host string, modified, size int64, id int, job *Job, results chan<- Result, jobs chan<- *Job, arg *WorkerArg) {
	if found := cachedEntry(arg, job.Path); found != nil &&
		found.FileType == hashtree.TypeFile && found.Modified == modified && found.Size == size {
		publish(job, &Node{
			Kind:            KindFile,
			Path:            job.Path,
			Modified:        modified,
			Size:            size,
			Digest:          found.Hash,
			ArchiveOuter:    found.ArchiveOuterHash,
			ArchiveChildren: found.ArchiveChildren,
		}, true, results, jobs)
		return
	}

	if arg.HashType == digest.NULL {
		// Size-only mode, no point opening the file
		publish(job, &Node{
			Kind:     KindFile,
			Path:     job.Path,
			Modified: modified,
			Size:     size,
			Digest:   digest.Null(),
		}, false, results, jobs)
		return
	}

	f, err := os.Open(host)
	if err != nil {
		arg.Log.Warnf("[%d] could not open %s: %v", id, job.Path, err)
		publish(job, otherNode(job.Path, modified, size), false, results, jobs)
		return
	}
	defer f.Close()

	hasher := digest.NewReader(bufio.NewReader(f), arg.HashType)

	node := &Node{Kind: KindFile, Path: job.Path, Modified: modified}

	if arg.Archives {
		kind, stream, ok, err := archive.Detect(hasher)
		if err != nil {
			arg.Log.Warnf("[%d] could not probe %s for archive signatures: %v", id, job.Path, err)
		} else if ok {
			children, inner, archiveErr := runArchive(stream, job.Path, kind, id, arg)
			if archiveErr != nil {
				arg.Log.Warnf("[%d] could not read archive %s, hashing it as a plain file: %v", id, job.Path, archiveErr)
			} else {
				node.Digest = inner
				node.ArchiveChildren = children
			}
		}
	}

	// Drain whatever the archive pass did not consume so the outer digest
	// covers the whole byte stream
	if _, err := io.Copy(io.Discard, hasher); err != nil {
		arg.Log.Warnf("[%d] could not hash %s: %v", id, job.Path, err)
		publish(job, otherNode(job.Path, modified, size), false, results, jobs)
		return
	}

	outer := hasher.Digest()
	node.Size = hasher.BytesRead()
	if node.ArchiveChildren != nil {
		node.ArchiveOuter = &outer
	} else {
		node.Digest = outer
	}

	publish(job, node, false, results, jobs)
}

// runDirectory handles both phases of a directory job: expansion into child
// jobs on first dispatch, digest finalisation once every child reported.
func runDirectory(host string, modified, size int64, id int, job *Job, results chan<- Result, jobs chan<- *Job, arg *WorkerArg) {
	switch job.State {
	case NotProcessed:
		listing, err := os.ReadDir(host)
		if err != nil {
			arg.Log.Warnf("[%d] could not read directory %s: %v", id, job.Path, err)
			publish(job, otherNode(job.Path, modified, size), false, results, jobs)
			return
		}

		var children []*Job
		for _, entry := range listing {
			if excluded(arg, filepath.Join(host, entry.Name()), entry.Name()) {
				arg.Log.Debugf("[%d] excluding %s", id, filepath.Join(host, entry.Name()))
				continue
			}
			children = append(children, NewJob(job.Path.Child(entry.Name()), job))
		}

		job.State = Analyzed
		job.arm(len(children))

		if len(children) == 0 {
			// Nothing will ever re-enqueue an empty directory, finalise it
			// straight away
			jobs <- job
			return
		}
		for _, child := range children {
			jobs <- child
		}

	case Analyzed:
		finished := job.takeFinished()

		digests := make([]digest.Digest, 0, len(finished))
		for _, stub := range finished {
			digests = append(digests, stub.Digest)
		}
		sortDigests(digests)

		if found := cachedEntry(arg, job.Path); found != nil &&
			found.FileType == hashtree.TypeDirectory &&
			found.Modified == modified &&
			found.Size == int64(len(finished)) &&
			digestsEqual(found.Children, digests) {
			publish(job, &Node{
				Kind:     KindDirectory,
				Path:     job.Path,
				Modified: modified,
				Size:     int64(len(finished)),
				Digest:   found.Hash,
				Children: digests,
			}, true, results, jobs)
			return
		}

		publish(job, &Node{
			Kind:     KindDirectory,
			Path:     job.Path,
			Modified: modified,
			Size:     int64(len(finished)),
			Digest:   digest.Tree(arg.HashType, digests),
			Children: digests,
		}, false, results, jobs)
	}
}

// runSymlink hashes the link's target path string. Symlink jobs only occur
// when symlinks are not being followed: with follow on, stat resolves the
// link and the job is dispatched as the target kind instead.
func runSymlink(host string, modified, size int64, id int, job *Job, results chan<- Result, jobs chan<- *Job, arg *WorkerArg) {
	target, err := os.Readlink(host)
	if err != nil {
		arg.Log.Warnf("[%d] could not read symlink %s: %v", id, job.Path, err)
		publish(job, otherNode(job.Path, modified, size), false, results, jobs)
		return
	}

	if found := cachedEntry(arg, job.Path); found != nil &&
		found.FileType == hashtree.TypeSymlink && found.Modified == modified && found.Size == size {
		publish(job, &Node{
			Kind:     KindSymlink,
			Path:     job.Path,
			Modified: modified,
			Size:     size,
			Digest:   found.Hash,
			Target:   target,
		}, true, results, jobs)
		return
	}

	publish(job, &Node{
		Kind:     KindSymlink,
		Path:     job.Path,
		Modified: modified,
		Size:     size,
		Digest:   digest.OfPath(arg.HashType, target),
		Target:   target,
	}, false, results, jobs)
}

// runOther records a node that is none of file, directory or symlink.
func runOther(modified, size int64, job *Job, results chan<- Result, jobs chan<- *Job, arg *WorkerArg) {
	if found := cachedEntry(arg, job.Path); found != nil &&
		found.FileType == hashtree.TypeOther && found.Modified == modified && found.Size == size {
		publish(job, otherNode(job.Path, modified, size), true, results, jobs)
		return
	}
	publish(job, otherNode(job.Path, modified, size), false, results, jobs)
}

// sortDigests sorts digests in place into ascending digest order.
func sortDigests(digests []digest.Digest) {
	sort.SliceStable(digests, func(i, j int) bool { return digests[i].Less(digests[j]) })
}

// digestsEqual reports element-wise equality of two digest lists.
func digestsEqual(a, b []digest.Digest) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
