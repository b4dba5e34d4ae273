package object

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrAlignment reports a function that would start off its 8-byte boundary.
var ErrAlignment = errors.New("object: alignment invariant violated")

const (
	funcAlign = 8
	padLen    = 4
)

// FunctionSource opens the standalone binary of a compiled function.
type FunctionSource interface {
	OpenFunction(name string) (io.ReadCloser, int64, error)
}

// PathSource maps a function name to the file holding its binary.
type PathSource func(name string) string

// OpenFunction opens the function's file and reports its length.
func (p PathSource) OpenFunction(name string) (io.ReadCloser, int64, error) {
	file, err := os.Open(p(name))
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, err
	}
	return file, info.Size(), nil
}

// Concat appends the named functions to w in order. A function starting at
// an offset that is 4 mod 8 is preceded by four zero bytes. The total must
// end on a 4-byte boundary.
func Concat(w io.Writer, names []string, src FunctionSource) (int64, error) {
	var offset int64
	var pad [padLen]byte
	for _, name := range names {
		if offset%funcAlign == padLen {
			if _, err := w.Write(pad[:]); err != nil {
				return offset, err
			}
			offset += padLen
		}
		if offset%funcAlign != 0 {
			return offset, fmt.Errorf("%w: %s at offset 0x%x", ErrAlignment, name, offset)
		}
		n, err := copyFunction(w, name, src)
		offset += n
		if err != nil {
			return offset, err
		}
	}
	if offset%padLen != 0 {
		return offset, fmt.Errorf("%w: code ends at offset 0x%x", ErrAlignment, offset)
	}
	return offset, nil
}

func copyFunction(w io.Writer, name string, src FunctionSource) (int64, error) {
	r, size, err := src.OpenFunction(name)
	if err != nil {
		return 0, fmt.Errorf("function %s: %w", name, err)
	}
	defer r.Close()
	n, err := io.CopyN(w, r, size)
	if err != nil {
		return n, fmt.Errorf("function %s: %w", name, err)
	}
	return n, nil
}

// Extract recovers the code-section functions of the object at objectPath
// and concatenates their binaries from src into w.
func Extract(objectPath string, machine uint16, src FunctionSource, w io.Writer) ([]string, int64, error) {
	f, err := Open(objectPath, machine)
	if err != nil {
		return nil, 0, err
	}
	names := f.Functions(TextSection)
	n, err := Concat(w, names, src)
	if err != nil {
		return names, n, fmt.Errorf("%s: %w", objectPath, err)
	}
	return names, n, nil
}
