package build

import (
	"sync"
	"sync/atomic"

	"github.com/FollowTheProcess/dedup/fspath"
)

// jobCounter hands out process-unique job ids.
var jobCounter atomic.Uint64

// State tracks how far a job has progressed.
type State int

const (
	// NotProcessed means the job has never run: the first dispatch emits a
	// leaf result or expands a directory.
	NotProcessed State = iota
	// Analyzed means a directory job whose children have all been
	// dispatched: the next dispatch finalises the directory digest.
	Analyzed
)

// Job is one unit of build work: hash a node at a logical path and report
// to the parent directory job, if any.
//
// A directory job is dispatched twice. The first run expands it into one
// child job per entry and arms the outstanding-children counter; each
// completing child then pushes its stub into the bag and decrements the
// counter, and whichever worker decrements it to zero re-enqueues the job
// for its Analyzed phase. That gating is the only reference children hold
// to their parent.
type Job struct {
	id     uint64
	Path   fspath.Path
	State  State
	Parent *Job

	pending atomic.Int64

	mu       sync.Mutex
	finished []*Node
}

// NewJob creates a job for the given logical path, parented to parent
// (nil for root jobs).
func NewJob(path fspath.Path, parent *Job) *Job {
	return &Job{
		id:     jobCounter.Add(1),
		Path:   path,
		Parent: parent,
	}
}

// ID returns the job's process-unique id.
func (j *Job) ID() uint64 {
	return j.id
}

// arm sets the number of children that must complete before the job may be
// finalised. Call before publishing any child job.
func (j *Job) arm(n int) {
	j.pending.Store(int64(n))
}

// childDone records a completed child's stub and reports whether this was
// the last outstanding child, in which case the caller must re-enqueue the
// job for its Analyzed phase.
func (j *Job) childDone(stub *Node) bool {
	j.mu.Lock()
	j.finished = append(j.finished, stub)
	j.mu.Unlock()
	return j.pending.Add(-1) == 0
}

// takeFinished removes and returns the accumulated child stubs.
func (j *Job) takeFinished() []*Node {
	j.mu.Lock()
	defer j.mu.Unlock()
	finished := j.finished
	j.finished = nil
	return finished
}

// Result is what a worker delivers for each completed node.
type Result struct {
	// Node is the completed node.
	Node *Node
	// Cached is true when the node was served from the existing index
	// without rehashing.
	Cached bool
	// Final is true for a root node, the last result of its tree.
	Final bool
}
