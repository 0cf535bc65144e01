// Package digest implements the tagged content digests used throughout dedup
// to identify file and directory contents.
//
// Every digest carries the algorithm that produced it, the serialised form
// is "ALG:hexdigits" and two digests of different algorithms never compare
// equal. A directory digest is the hash of its children's digests sorted
// into ascending digest order, which makes it deterministic yet independent
// of filesystem enumeration order.
package digest

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	xxh32 "github.com/OneOfOne/xxhash"
	xxh64 "github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm int

const (
	// NULL is the no-op algorithm, it produces an empty digest and is used
	// where a digest is structurally required but semantically absent.
	NULL Algorithm = iota
	// SHA512 is 512 bit SHA-2.
	SHA512
	// SHA256 is 256 bit SHA-2.
	SHA256
	// SHA1 is 160 bit SHA-1.
	SHA1
	// XXH64 is 64 bit xxHash.
	XXH64
	// XXH32 is 32 bit xxHash.
	XXH32
	// BLAKE3 is 256 bit BLAKE3.
	BLAKE3
)

// Algorithms returns the names of all supported algorithms, used in CLI error
// messages and typo suggestions.
func Algorithms() []string {
	return []string{"SHA512", "SHA256", "SHA1", "XXH64", "XXH32", "BLAKE3", "NULL"}
}

// ParseAlgorithm parses an algorithm from its case-insensitive name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToUpper(s) {
	case "SHA512":
		return SHA512, nil
	case "SHA256":
		return SHA256, nil
	case "SHA1":
		return SHA1, nil
	case "XXH64":
		return XXH64, nil
	case "XXH32":
		return XXH32, nil
	case "BLAKE3":
		return BLAKE3, nil
	case "NULL":
		return NULL, nil
	default:
		return NULL, fmt.Errorf("unsupported hash algorithm: %q", s)
	}
}

// String implements Stringer for an Algorithm.
func (a Algorithm) String() string {
	switch a {
	case SHA512:
		return "SHA512"
	case SHA256:
		return "SHA256"
	case SHA1:
		return "SHA1"
	case XXH64:
		return "XXH64"
	case XXH32:
		return "XXH32"
	case BLAKE3:
		return "BLAKE3"
	case NULL:
		return "NULL"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// Size returns the digest width in bytes for the algorithm.
func (a Algorithm) Size() int {
	switch a {
	case SHA512:
		return sha512.Size
	case SHA256:
		return sha256.Size
	case SHA1:
		return sha1.Size
	case XXH64:
		return 8
	case XXH32:
		return 4
	case BLAKE3:
		return 32
	default:
		return 0
	}
}

// New returns a fresh hash.Hash for the algorithm. NULL returns a hasher
// that discards its input and sums to nothing.
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA512:
		return sha512.New()
	case SHA256:
		return sha256.New()
	case SHA1:
		return sha1.New()
	case XXH64:
		return xxh64.New()
	case XXH32:
		return xxh32.New32()
	case BLAKE3:
		return blake3.New()
	default:
		return nullHash{}
	}
}

// MarshalText implements encoding.TextMarshaler so algorithms serialise by
// name inside the hash tree file header.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Digest is a tagged digest value: the algorithm that produced it plus the
// raw sum bytes.
type Digest struct {
	Algorithm Algorithm
	Sum       []byte
}

// Null returns the NULL digest.
func Null() Digest {
	return Digest{Algorithm: NULL}
}

// Parse parses the "ALG:hexdigits" text form of a digest.
func Parse(s string) (Digest, error) {
	name, data, found := strings.Cut(s, ":")
	if !found {
		return Digest{}, fmt.Errorf("malformed digest %q: missing ':'", s)
	}
	algorithm, err := ParseAlgorithm(name)
	if err != nil {
		return Digest{}, err
	}
	if algorithm == NULL {
		return Null(), nil
	}
	sum, err := hex.DecodeString(data)
	if err != nil {
		return Digest{}, fmt.Errorf("malformed digest %q: %w", s, err)
	}
	if len(sum) != algorithm.Size() {
		return Digest{}, fmt.Errorf("digest %q has %d bytes, %s requires %d", s, len(sum), algorithm, algorithm.Size())
	}
	return Digest{Algorithm: algorithm, Sum: sum}, nil
}

// String implements Stringer for a Digest, rendering "ALG:lower-hex". The
// NULL digest renders as "NULL:00" so the text form always has both halves.
func (d Digest) String() string {
	if d.Algorithm == NULL {
		return "NULL:00"
	}
	return d.Algorithm.String() + ":" + hex.EncodeToString(d.Sum)
}

// IsNull reports whether d is the NULL digest.
func (d Digest) IsNull() bool {
	return d.Algorithm == NULL
}

// Equal reports whether two digests are equal, digests of different
// algorithms are never equal.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && bytes.Equal(d.Sum, other.Sum)
}

// Less orders digests lexicographically over their sum bytes, falling back
// to the algorithm tag so ordering is total.
func (d Digest) Less(other Digest) bool {
	if c := bytes.Compare(d.Sum, other.Sum); c != 0 {
		return c < 0
	}
	return d.Algorithm < other.Algorithm
}

// MarshalText implements encoding.TextMarshaler, digests serialise to their
// "ALG:hex" string form in JSON.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// OfBytes digests a byte slice in one shot.
func OfBytes(algorithm Algorithm, data []byte) Digest {
	h := algorithm.New()
	h.Write(data) //nolint: errcheck // hash.Hash writes never fail
	return Digest{Algorithm: algorithm, Sum: h.Sum(nil)}
}

// OfPath digests a path string, used for symlink targets when symlinks are
// not followed.
func OfPath(algorithm Algorithm, path string) Digest {
	return OfBytes(algorithm, []byte(path))
}

// Tree computes the Merkle digest of a set of child digests: the children
// are sorted into ascending digest order and the concatenation of their sum
// bytes is hashed. The input slice is not modified.
func Tree(algorithm Algorithm, children []Digest) Digest {
	sorted := make([]Digest, len(children))
	copy(sorted, children)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	h := algorithm.New()
	for _, child := range sorted {
		h.Write(child.Sum) //nolint: errcheck // hash.Hash writes never fail
	}
	return Digest{Algorithm: algorithm, Sum: h.Sum(nil)}
}

// nullHash is the hash.Hash behind the NULL algorithm.
type nullHash struct{}

func (nullHash) Write(p []byte) (int, error) { return len(p), nil }
func (nullHash) Sum(b []byte) []byte         { return b }
func (nullHash) Reset()                      {}
func (nullHash) Size() int                   { return 0 }
func (nullHash) BlockSize() int              { return 1 }
