package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// Compression is a recognised compression framing around an archive stream.
type Compression int

const (
	// NoCompression means the stream is not compressed.
	NoCompression Compression = iota
	// Gzip is gzip (RFC 1952) framing.
	Gzip
	// Xz is xz framing.
	Xz
)

// String implements Stringer for a Compression.
func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Xz:
		return "xz"
	default:
		return "none"
	}
}

// Open wraps r in the matching decompressor. NoCompression returns r as is.
func (c Compression) Open(r io.Reader) (io.Reader, error) {
	switch c {
	case Gzip:
		reader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("could not open gzip stream: %w", err)
		}
		return reader, nil
	case Xz:
		reader, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("could not open xz stream: %w", err)
		}
		return reader, nil
	default:
		return r, nil
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
)

// tar has no leading magic, the "ustar" marker sits at offset 257 of the
// first 512 byte header block.
const (
	tarMagicOffset = 257
	tarPeek        = 265
)

// sniffCompression probes the leading bytes of r for compression framing.
func sniffCompression(r io.Reader) (Compression, error) {
	head := make([]byte, len(xzMagic))
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return NoCompression, err
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, xzMagic):
		return Xz, nil
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip, nil
	default:
		return NoCompression, nil
	}
}

// sniffKind probes the leading bytes of r for a container signature.
func sniffKind(r io.Reader) (Kind, bool, error) {
	head := make([]byte, tarPeek)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, false, err
	}
	head = head[:n]

	if bytes.HasPrefix(head, zipMagic) {
		return ZipKind, true, nil
	}
	if len(head) >= tarMagicOffset+5 && bytes.Equal(head[tarMagicOffset:tarMagicOffset+5], []byte("ustar")) {
		return TarKind, true, nil
	}
	return 0, false, nil
}

// Detect probes r for a (possibly compressed) archive container. On a match
// it returns the container kind and a reader positioned at byte 0 of the
// decompressed stream; ok is false when r is not an archive.
//
// r is only read forward: probed bytes are captured and replayed, so if r
// hashes what passes through it the digest still covers the whole stream.
func Detect(r io.Reader) (kind Kind, stream io.Reader, ok bool, err error) {
	outer := NewReplayReader(r)
	compression, err := sniffCompression(outer.Child())
	if err != nil {
		return 0, nil, false, err
	}

	decompressed, err := compression.Open(outer.Rewind())
	if err != nil {
		// A matching magic number but an unreadable stream: treat as not
		// an archive, the caller hashes it as an opaque file
		return 0, nil, false, nil
	}

	inner := NewReplayReader(decompressed)
	kind, ok, err = sniffKind(inner.Child())
	if err != nil || !ok {
		return 0, nil, false, err
	}
	return kind, inner.Rewind(), true, nil
}
