package digest

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestParseAlgorithm(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    Algorithm
		wantErr bool
	}{
		{name: "sha256", input: "SHA256", want: SHA256},
		{name: "lower case", input: "sha512", want: SHA512},
		{name: "mixed case", input: "Blake3", want: BLAKE3},
		{name: "sha1", input: "SHA1", want: SHA1},
		{name: "xxh64", input: "XXH64", want: XXH64},
		{name: "xxh32", input: "xxh32", want: XXH32},
		{name: "null", input: "NULL", want: NULL},
		{name: "unknown", input: "md5", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAlgorithm(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Got %v, wanted %v", got, tt.want)
			}
		})
	}
}

func TestAlgorithmSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		algorithm Algorithm
		want      int
	}{
		{SHA512, 64},
		{SHA256, 32},
		{SHA1, 20},
		{XXH64, 8},
		{XXH32, 4},
		{BLAKE3, 32},
		{NULL, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.algorithm.String(), func(t *testing.T) {
			t.Parallel()
			if got := tt.algorithm.Size(); got != tt.want {
				t.Errorf("Got %d, wanted %d", got, tt.want)
			}
			// The hasher must agree with the declared width
			sum := OfBytes(tt.algorithm, []byte("dedup"))
			if len(sum.Sum) != tt.want {
				t.Errorf("Hasher produced %d bytes, wanted %d", len(sum.Sum), tt.want)
			}
		})
	}
}

func TestDigestStringRoundTrip(t *testing.T) {
	t.Parallel()
	algorithms := []Algorithm{SHA512, SHA256, SHA1, XXH64, XXH32, BLAKE3}
	for _, algorithm := range algorithms {
		algorithm := algorithm
		t.Run(algorithm.String(), func(t *testing.T) {
			t.Parallel()
			original := OfBytes(algorithm, []byte("hello world\n"))

			text := original.String()
			if !strings.HasPrefix(text, algorithm.String()+":") {
				t.Errorf("Got %q, wanted prefix %q", text, algorithm.String()+":")
			}

			parsed, err := Parse(text)
			if err != nil {
				t.Fatalf("Parse(%q) returned an error: %v", text, err)
			}
			if !parsed.Equal(original) {
				t.Errorf("Round trip changed the digest: got %s, wanted %s", parsed, original)
			}
		})
	}
}

func TestKnownSHA256(t *testing.T) {
	t.Parallel()
	// Classic: echo "hello world" | sha256sum
	const want = "SHA256:a948904f2f0f479b8f8197694b30184b0d2ed1c1cd2a1ec0fb85d299a192a447"
	got := OfBytes(SHA256, []byte("hello world\n"))
	if got.String() != want {
		t.Errorf("Got %s, wanted %s", got, want)
	}
}

func TestNullDigest(t *testing.T) {
	t.Parallel()
	null := Null()
	if got := null.String(); got != "NULL:00" {
		t.Errorf("Got %q, wanted %q", got, "NULL:00")
	}
	if !null.IsNull() {
		t.Error("Null() should report IsNull")
	}

	parsed, err := Parse("NULL:00")
	if err != nil {
		t.Fatalf("Parse returned an error: %v", err)
	}
	if !parsed.IsNull() {
		t.Error("Parsed NULL digest should report IsNull")
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{name: "no colon", input: "SHA256abc"},
		{name: "bad algorithm", input: "MD5:abcd"},
		{name: "bad hex", input: "SHA256:zzzz"},
		{name: "wrong length", input: "SHA256:abcd"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) should have returned an error", tt.input)
			}
		})
	}
}

func TestDigestEqual(t *testing.T) {
	t.Parallel()
	a := OfBytes(SHA256, []byte("same"))
	b := OfBytes(SHA256, []byte("same"))
	c := OfBytes(SHA256, []byte("different"))

	if !a.Equal(b) {
		t.Error("Identical content should produce equal digests")
	}
	if a.Equal(c) {
		t.Error("Different content should produce different digests")
	}

	// Same bytes under a different algorithm are never equal
	sha := OfBytes(SHA256, []byte("same"))
	blake := OfBytes(BLAKE3, []byte("same"))
	if sha.Equal(blake) {
		t.Error("Digests of different algorithms must never be equal")
	}
}

func TestTreeOrderIndependent(t *testing.T) {
	t.Parallel()
	one := OfBytes(SHA256, []byte("one"))
	two := OfBytes(SHA256, []byte("two"))
	three := OfBytes(SHA256, []byte("three"))

	a := Tree(SHA256, []Digest{one, two, three})
	b := Tree(SHA256, []Digest{three, one, two})
	c := Tree(SHA256, []Digest{two, three, one})

	if !a.Equal(b) || !a.Equal(c) {
		t.Errorf("Tree digest depends on child order: %s, %s, %s", a, b, c)
	}
}

func TestTreeContentSensitive(t *testing.T) {
	t.Parallel()
	one := OfBytes(SHA256, []byte("one"))
	two := OfBytes(SHA256, []byte("two"))
	changed := OfBytes(SHA256, []byte("two!"))

	a := Tree(SHA256, []Digest{one, two})
	b := Tree(SHA256, []Digest{one, changed})

	if a.Equal(b) {
		t.Error("Changing a child digest should change the tree digest")
	}
}

func TestTreeEmpty(t *testing.T) {
	t.Parallel()
	// An empty directory still has a deterministic digest
	a := Tree(SHA256, nil)
	b := Tree(SHA256, []Digest{})
	if !a.Equal(b) {
		t.Errorf("Got %s, wanted %s", a, b)
	}
}

func TestReader(t *testing.T) {
	t.Parallel()
	content := []byte("the quick brown fox jumps over the lazy dog")

	reader := NewReader(bytes.NewReader(content), SHA256)
	if _, err := io.Copy(io.Discard, reader); err != nil {
		t.Fatalf("Copy returned an error: %v", err)
	}

	if reader.BytesRead() != int64(len(content)) {
		t.Errorf("Got %d bytes, wanted %d", reader.BytesRead(), len(content))
	}
	if want := OfBytes(SHA256, content); !reader.Digest().Equal(want) {
		t.Errorf("Got %s, wanted %s", reader.Digest(), want)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	original := OfBytes(XXH64, []byte("serialise me"))

	text, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText returned an error: %v", err)
	}

	var parsed Digest
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText returned an error: %v", err)
	}
	if !parsed.Equal(original) {
		t.Errorf("Got %s, wanted %s", parsed, original)
	}
}
