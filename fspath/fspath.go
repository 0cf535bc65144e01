// Package fspath implements the logical paths dedup uses to name filesystem
// nodes, including nodes that live inside archive containers.
//
// A logical path is an ordered sequence of components. Each component is a
// path string plus a target kind: a File component is an ordinary path on
// the host filesystem, an archive component names a member inside the
// container reached by the previous component. So
//
//	[("/backup.tar", File), ("payroll/2024.csv", Tar)]
//
// names a CSV file inside a tarball. The first component is always a File
// component.
package fspath

import (
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Target is the kind of thing a path component traverses.
type Target int

const (
	// File is an ordinary path on the host filesystem.
	File Target = iota
	// Tar is a member path inside a tar archive.
	Tar
	// Zip is a member path inside a zip archive.
	Zip
)

// String implements Stringer for a Target.
func (t Target) String() string {
	switch t {
	case File:
		return "File"
	case Tar:
		return "Tar"
	case Zip:
		return "Zip"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Target) UnmarshalText(text []byte) error {
	switch string(text) {
	case "File":
		*t = File
	case "Tar":
		*t = Tar
	case "Zip":
		*t = Zip
	default:
		return fmt.Errorf("unknown path target %q", string(text))
	}
	return nil
}

// Archive reports whether the target is an archive kind.
func (t Target) Archive() bool {
	return t == Tar || t == Zip
}

// Component is one step of a logical path.
type Component struct {
	// Path is the path string of this step: a host filesystem path for File
	// components, a slash-separated member path for archive components.
	Path string `json:"path"`
	// Target tags what kind of traversal this step is.
	Target Target `json:"target"`
}

// Path is a logical path: a non-empty sequence of components of which only
// the first addresses the host filesystem directly.
type Path struct {
	components []Component
}

// New returns a logical path for a plain host filesystem path.
func New(host string) Path {
	return Path{components: []Component{{Path: host, Target: File}}}
}

// FromComponents builds a Path from raw components.
func FromComponents(components []Component) Path {
	return Path{components: components}
}

// Components returns the path's components.
func (p Path) Components() []Component {
	return p.components
}

// Empty reports whether the path has no components. The zero value is empty,
// valid paths never are.
func (p Path) Empty() bool {
	return len(p.components) == 0
}

// Child returns p extended by one name within its last component: host
// separator rules for File components, slash rules inside archives.
func (p Path) Child(name string) Path {
	components := clone(p.components)
	last := &components[len(components)-1]
	if last.Target == File {
		last.Path = filepath.Join(last.Path, name)
	} else {
		last.Path = path.Join(last.Path, name)
	}
	return Path{components: components}
}

// EnterArchive returns p extended with a fresh archive component of the
// given kind, rooted at the container itself. Member paths are then added
// with Child.
func (p Path) EnterArchive(kind Target) Path {
	components := clone(p.components)
	components = append(components, Component{Path: ".", Target: kind})
	return Path{components: components}
}

// Join returns p with member extended onto the last component, one name at
// a time.
func (p Path) Join(member string) Path {
	joined := p
	for _, name := range strings.Split(path.Clean(member), "/") {
		if name == "" || name == "." {
			continue
		}
		joined = joined.Child(name)
	}
	return joined
}

// Parent returns the logical parent of p and true, or the zero Path and
// false when p is a root. Stepping above an archive member lands on the
// container file itself.
func (p Path) Parent() (Path, bool) {
	if len(p.components) == 0 {
		return Path{}, false
	}
	components := clone(p.components)
	last := &components[len(components)-1]

	var up string
	if last.Target == File {
		up = filepath.Dir(last.Path)
	} else {
		up = path.Dir(last.Path)
	}

	if up != last.Path && up != "." {
		last.Path = up
		return Path{components: components}, true
	}

	// The last component is exhausted. For archive components the parent is
	// the container file, for the first File component there is no parent.
	if last.Target.Archive() {
		return Path{components: components[:len(components)-1]}, true
	}
	if up != last.Path {
		last.Path = up
		return Path{components: components}, true
	}
	return Path{}, false
}

// Resolve returns the host filesystem path this logical path addresses.
// Paths that cross into an archive have no host path and resolve with an
// error.
func (p Path) Resolve() (string, error) {
	if len(p.components) == 0 {
		return "", fmt.Errorf("cannot resolve an empty path")
	}
	if len(p.components) > 1 {
		return "", fmt.Errorf("cannot resolve archive interior path %s", p)
	}
	return p.components[0].Path, nil
}

// InArchive reports whether the path addresses a node inside a container.
func (p Path) InArchive() bool {
	return len(p.components) > 1
}

// Equal reports whether two paths are component-wise identical.
func (p Path) Equal(other Path) bool {
	if len(p.components) != len(other.components) {
		return false
	}
	for i, c := range p.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

// Key returns a canonical string form suitable for map keys.
func (p Path) Key() string {
	var sb strings.Builder
	for i, c := range p.components {
		if i > 0 {
			sb.WriteByte('\x00')
		}
		sb.WriteString(c.Target.String())
		sb.WriteByte(':')
		sb.WriteString(c.Path)
	}
	return sb.String()
}

// String implements Stringer for a Path, rendering archive crossings with
// a "!kind!" marker, e.g. "/backup.tar!tar!payroll/2024.csv".
func (p Path) String() string {
	var sb strings.Builder
	for i, c := range p.components {
		if i > 0 {
			sb.WriteString("!" + strings.ToLower(c.Target.String()) + "!")
		}
		sb.WriteString(c.Path)
	}
	return sb.String()
}

// MarshalJSON implements json.Marshaler, a path serialises as its component
// array.
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.components)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Path) UnmarshalJSON(data []byte) error {
	var components []Component
	if err := json.Unmarshal(data, &components); err != nil {
		return err
	}
	if len(components) == 0 {
		return fmt.Errorf("logical path must have at least one component")
	}
	if components[0].Target != File {
		return fmt.Errorf("logical path must start with a File component, got %s", components[0].Target)
	}
	p.components = components
	return nil
}

func clone(components []Component) []Component {
	cloned := make([]Component, len(components))
	copy(cloned, components)
	return cloned
}
