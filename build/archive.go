package build

import (
	"errors"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/FollowTheProcess/dedup/archive"
	"github.com/FollowTheProcess/dedup/digest"
	"github.com/FollowTheProcess/dedup/fspath"
	"github.com/FollowTheProcess/dedup/hashtree"
)

// runArchive materialises an archive's members as a synthetic directory
// tree rooted at the container's logical path and returns the recursive
// member entries plus the inner tree digest: the Merkle digest of the
// archive's top-level members, which is what makes two archives with the
// same contents but different framing compare equal.
//
// stream must be the decompressed container stream positioned at byte 0.
// Members that are themselves archives recurse, carrying both their outer
// byte digest and their own inner tree digest.
func runArchive(stream io.Reader, container fspath.Path, kind archive.Kind, id int, arg *WorkerArg) ([]*hashtree.Entry, digest.Digest, error) {
	iterator, err := kind.Open(stream)
	if err != nil {
		return nil, digest.Null(), err
	}

	root := container.EnterArchive(kind.Target())
	tree := newMemberTree(root)

	for {
		member, reader, err := iterator.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, digest.Null(), err
		}

		node, err := runMember(member, reader, root, id, arg)
		if err != nil {
			return nil, digest.Null(), err
		}
		tree.insert(member.Name, node)
	}

	inner := tree.finalise(arg.HashType)
	return tree.entries(), inner, nil
}

// runMember turns one archive member into a node, hashing file members and
// recursing into nested archives.
func runMember(member archive.Member, reader io.Reader, root fspath.Path, id int, arg *WorkerArg) (*Node, error) {
	memberPath := root.Join(member.Name)

	switch member.Type {
	case archive.MemberDir:
		return &Node{
			Kind:     KindDirectory,
			Path:     memberPath,
			Modified: member.Modified,
		}, nil
	case archive.MemberSymlink:
		return &Node{
			Kind:     KindSymlink,
			Path:     memberPath,
			Modified: member.Modified,
			Size:     member.Size,
			Digest:   digest.OfPath(arg.HashType, member.LinkTarget),
			Target:   member.LinkTarget,
		}, nil
	case archive.MemberOther:
		return otherNode(memberPath, member.Modified, member.Size), nil
	}

	hasher := digest.NewReader(reader, arg.HashType)
	node := &Node{Kind: KindFile, Path: memberPath, Modified: member.Modified}

	kind, stream, ok, err := archive.Detect(hasher)
	if err != nil {
		return nil, fmt.Errorf("could not probe member %s: %w", memberPath, err)
	}
	if ok {
		children, inner, archiveErr := runArchive(stream, memberPath, kind, id, arg)
		if archiveErr != nil {
			arg.Log.Warnf("[%d] could not read nested archive %s, hashing it as a plain file: %v", id, memberPath, archiveErr)
		} else {
			node.Digest = inner
			node.ArchiveChildren = children
		}
	}

	if _, err := io.Copy(io.Discard, hasher); err != nil {
		return nil, fmt.Errorf("could not hash member %s: %w", memberPath, err)
	}

	outer := hasher.Digest()
	node.Size = hasher.BytesRead()
	if node.ArchiveChildren != nil {
		node.ArchiveOuter = &outer
	} else {
		node.Digest = outer
	}
	return node, nil
}

// memberTree assembles archive members into a directory tree. Members can
// arrive in any order and parent directories may be implied rather than
// listed, so nodes live in one indexed arena keyed by their member path
// and synthetic directories are created on demand.
type memberTree struct {
	root  fspath.Path
	nodes map[string]*memberNode
	top   []*memberNode
}

type memberNode struct {
	node     *Node
	children []*memberNode
}

func newMemberTree(root fspath.Path) *memberTree {
	return &memberTree{
		root:  root,
		nodes: make(map[string]*memberNode),
	}
}

// insert places a member node at its slash-separated relative name,
// creating any implied parent directories.
func (t *memberTree) insert(name string, node *Node) {
	rel := path.Clean(name)
	if rel == "." || rel == "/" {
		return
	}

	if existing, ok := t.nodes[rel]; ok {
		// A synthetic directory this member now describes properly
		existing.node = node
		return
	}

	inserted := &memberNode{node: node}
	t.nodes[rel] = inserted
	t.attach(rel, inserted)
}

// attach links a node into its parent, creating the parent chain as needed.
func (t *memberTree) attach(rel string, node *memberNode) {
	parent := path.Dir(rel)
	if parent == "." || parent == "/" {
		t.top = append(t.top, node)
		return
	}

	if existing, ok := t.nodes[parent]; ok {
		existing.children = append(existing.children, node)
		return
	}

	synthetic := &memberNode{
		node: &Node{
			Kind: KindDirectory,
			Path: t.root.Join(parent),
		},
		children: []*memberNode{node},
	}
	t.nodes[parent] = synthetic
	t.attach(parent, synthetic)
}

// finalise computes directory digests bottom-up and returns the archive's
// inner tree digest.
func (t *memberTree) finalise(algorithm digest.Algorithm) digest.Digest {
	digests := make([]digest.Digest, 0, len(t.top))
	for _, node := range t.top {
		finaliseNode(node, algorithm)
		digests = append(digests, node.node.Digest)
	}
	return digest.Tree(algorithm, digests)
}

func finaliseNode(n *memberNode, algorithm digest.Algorithm) {
	if n.node.Kind != KindDirectory {
		return
	}
	digests := make([]digest.Digest, 0, len(n.children))
	for _, child := range n.children {
		finaliseNode(child, algorithm)
		digests = append(digests, child.node.Digest)
	}
	sort.SliceStable(digests, func(i, j int) bool { return digests[i].Less(digests[j]) })
	n.node.Digest = digest.Tree(algorithm, digests)
	n.node.Children = digests
	n.node.Size = int64(len(n.children))
}

// entries flattens the tree into hash tree entries, breadth first so a
// directory always precedes its contents.
func (t *memberTree) entries() []*hashtree.Entry {
	var entries []*hashtree.Entry
	queue := append([]*memberNode{}, t.top...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		entries = append(entries, node.node.Entry())
		queue = append(queue, node.children...)
	}
	return entries
}
