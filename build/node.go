package build

import (
	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/fspath"
	"github.com/FollowTheProcess/dedup/hashtree"
)

// NodeKind discriminates the Node variants.
type NodeKind int

const (
	// KindFile is a regular file.
	KindFile NodeKind = iota
	// KindDirectory is a directory.
	KindDirectory
	// KindSymlink is a symbolic link.
	KindSymlink
	// KindOther is any node that is none of the above: sockets, devices,
	// files we lack permission to read, etc.
	KindOther
	// KindStub is the minimum projection of a completed child that a parent
	// needs to compute its own digest.
	KindStub
)

// Node is one analyzed filesystem node, a tagged union over the five node
// variants. Which fields are meaningful depends on Kind.
type Node struct {
	Kind     NodeKind
	Path     fspath.Path
	Modified int64
	// Size is content bytes for files and symlinks, the number of children
	// for directories, the filesystem-reported length for Other.
	Size   int64
	Digest digest.Digest
	// Children holds a directory's child digests in ascending digest order.
	Children []digest.Digest
	// Target is the literal link target for symlinks.
	Target string
	// ArchiveOuter is the raw byte-stream digest for archive container
	// files; Digest then holds the inner tree digest.
	ArchiveOuter *digest.Digest
	// ArchiveChildren holds the recursive member entries for archive
	// container files.
	ArchiveChildren []*hashtree.Entry
}

// Stub returns the node's stub projection: just enough for a parent to
// compute its Merkle digest.
func (n *Node) Stub() *Node {
	return &Node{Kind: KindStub, Path: n.Path, Digest: n.Digest}
}

// Entry converts a node into its hash tree file record. Children and
// ArchiveChildren serialise as empty arrays rather than nulls.
func (n *Node) Entry() *hashtree.Entry {
	if n.Children == nil {
		n.Children = []digest.Digest{}
	}
	if n.ArchiveChildren == nil {
		n.ArchiveChildren = []*hashtree.Entry{}
	}
	entry := &hashtree.Entry{
		Modified:         n.Modified,
		Size:             n.Size,
		Hash:             n.Digest,
		Path:             n.Path,
		Children:         n.Children,
		ArchiveChildren:  n.ArchiveChildren,
		ArchiveOuterHash: n.ArchiveOuter,
	}
	switch n.Kind {
	case KindDirectory:
		entry.FileType = hashtree.TypeDirectory
	case KindSymlink:
		entry.FileType = hashtree.TypeSymlink
	case KindOther:
		entry.FileType = hashtree.TypeOther
		entry.Hash = digest.Null()
	default:
		entry.FileType = hashtree.TypeFile
	}
	return entry
}
