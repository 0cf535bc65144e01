package digest

import (
	"hash"
	"io"
)

// Reader wraps an io.Reader and hashes every byte that passes through it,
// keeping count of how many bytes have been read. It lets a single pass over
// a file feed both the content digest and any other consumer, e.g. the
// archive signature probe.
type Reader struct {
	inner     io.Reader
	hasher    hash.Hash
	algorithm Algorithm
	processed int64
}

// NewReader returns a Reader hashing r with the given algorithm. For NULL
// the bytes are counted but not hashed.
func NewReader(r io.Reader, algorithm Algorithm) *Reader {
	return &Reader{
		inner:     r,
		hasher:    algorithm.New(),
		algorithm: algorithm,
	}
}

// Read implements io.Reader, feeding everything read into the hasher.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.processed += int64(n)
		if r.algorithm != NULL {
			r.hasher.Write(p[:n]) //nolint: errcheck // hash.Hash writes never fail
		}
	}
	return n, err
}

// BytesRead returns the number of bytes consumed from the underlying reader
// so far.
func (r *Reader) BytesRead() int64 {
	return r.processed
}

// Digest returns the digest of everything read so far. Callers normally
// drain the reader first so this covers the whole stream.
func (r *Reader) Digest() Digest {
	return Digest{Algorithm: r.algorithm, Sum: r.hasher.Sum(nil)}
}
