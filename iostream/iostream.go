// Package iostream bundles the output streams the dedup CLI writes to, so
// the real command wires up the OS streams and tests capture everything in
// buffers through the same App constructor.
package iostream

import (
	"bytes"
	"io"
	"os"
)

// IOStream holds the writers dedup sends user output and errors to.
type IOStream struct {
	Stdout io.Writer
	Stderr io.Writer
}

// OS returns an IOStream backed by the real OS streams, used by the CLI
// entry point.
func OS() IOStream {
	return IOStream{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Test returns an IOStream backed by in-memory buffers that tests can read
// back to verify output.
func Test() IOStream {
	return IOStream{
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	}
}
