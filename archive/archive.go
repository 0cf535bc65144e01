// Package archive lets the build engine descend into archive containers as
// if they were directories.
//
// It detects container and compression formats from leading byte signatures
// (read through a ReplayReader so the probe shares its single pass with the
// content hash), decompresses gzip and xz framing, and iterates tar and zip
// members through one small Iterator interface.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/FollowTheProcess/dedup/fspath"
)

// Kind is a supported archive container format.
type Kind int

const (
	// TarKind is a POSIX/GNU tar archive.
	TarKind Kind = iota
	// ZipKind is a zip archive.
	ZipKind
)

// String implements Stringer for a Kind.
func (k Kind) String() string {
	switch k {
	case TarKind:
		return "tar"
	case ZipKind:
		return "zip"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Target returns the fspath target tag for paths inside this container.
func (k Kind) Target() fspath.Target {
	switch k {
	case ZipKind:
		return fspath.Zip
	default:
		return fspath.Tar
	}
}

// MemberType is the kind of node an archive member records.
type MemberType int

const (
	// MemberFile is a regular file member.
	MemberFile MemberType = iota
	// MemberDir is a directory member.
	MemberDir
	// MemberSymlink is a symbolic link member.
	MemberSymlink
	// MemberOther is any other member type.
	MemberOther
)

// Member is the metadata of one archive member.
type Member struct {
	// Name is the member's slash-separated path inside the archive.
	Name string
	// Size is the member's content size in bytes.
	Size int64
	// Modified is the member's modification time in unix seconds.
	Modified int64
	// Type is the kind of node the member records.
	Type MemberType
	// LinkTarget is the symlink target for symlink members.
	LinkTarget string
}

// Iterator walks an archive's members in container order. Next returns
// io.EOF when the archive is exhausted. The returned reader is only valid
// until the following Next call.
type Iterator interface {
	Next() (Member, io.Reader, error)
}

// Open returns an Iterator over the (already decompressed) archive stream.
func (k Kind) Open(r io.Reader) (Iterator, error) {
	switch k {
	case TarKind:
		return &tarIterator{reader: tar.NewReader(r)}, nil
	case ZipKind:
		return newZipIterator(r)
	default:
		return nil, fmt.Errorf("unknown archive kind %d", int(k))
	}
}

// tarIterator streams tar members straight off the underlying reader.
type tarIterator struct {
	reader *tar.Reader
}

// Next implements Iterator for tar archives.
func (t *tarIterator) Next() (Member, io.Reader, error) {
	for {
		header, err := t.reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Member{}, nil, io.EOF
			}
			return Member{}, nil, fmt.Errorf("could not read tar member: %w", err)
		}

		member := Member{
			Name:     header.Name,
			Size:     header.Size,
			Modified: header.ModTime.Unix(),
		}
		switch header.Typeflag {
		case tar.TypeReg:
			member.Type = MemberFile
		case tar.TypeDir:
			member.Type = MemberDir
		case tar.TypeSymlink, tar.TypeLink:
			member.Type = MemberSymlink
			member.LinkTarget = header.Linkname
		case tar.TypeXGlobalHeader:
			continue // pax global headers are not filesystem nodes
		default:
			member.Type = MemberOther
		}
		return member, t.reader, nil
	}
}

// zipIterator walks a zip archive. The zip central directory lives at the
// end of the file so the stream has to be buffered in full first, zip
// members cannot be streamed the way tar members can.
type zipIterator struct {
	files []*zip.File
	next  int
	open  io.ReadCloser
}

func newZipIterator(r io.Reader) (*zipIterator, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not buffer zip stream: %w", err)
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("could not open zip archive: %w", err)
	}
	return &zipIterator{files: reader.File}, nil
}

// Next implements Iterator for zip archives.
func (z *zipIterator) Next() (Member, io.Reader, error) {
	if z.open != nil {
		z.open.Close()
		z.open = nil
	}
	if z.next >= len(z.files) {
		return Member{}, nil, io.EOF
	}

	file := z.files[z.next]
	z.next++

	member := Member{
		Name:     file.Name,
		Size:     int64(file.UncompressedSize64),
		Modified: file.Modified.Unix(),
	}

	info := file.FileInfo()
	switch {
	case info.IsDir():
		member.Type = MemberDir
		return member, bytes.NewReader(nil), nil
	case !info.Mode().IsRegular():
		member.Type = MemberOther
		return member, bytes.NewReader(nil), nil
	}

	member.Type = MemberFile
	rc, err := file.Open()
	if err != nil {
		return Member{}, nil, fmt.Errorf("could not open zip member %s: %w", file.Name, err)
	}
	z.open = rc
	return member, rc, nil
}
