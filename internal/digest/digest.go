// Package digest computes whole-file content hashes used to confirm that an
// image is the one a manifest was written against.
package digest

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrMismatch reports an image whose digest differs from the expected one.
var ErrMismatch = errors.New("digest: checksum mismatch")

// Algorithm names a supported content hash.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	BLAKE3 Algorithm = "blake3"
)

// ForDigest picks the algorithm by the length of a hex digest.
func ForDigest(expected string) (Algorithm, error) {
	switch len(expected) {
	case 2 * sha1.Size:
		return SHA1, nil
	case 64:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("digest: cannot infer algorithm from %d hex characters", len(expected))
	}
}

// New returns a fresh hasher for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA1:
		return sha1.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("digest: unsupported algorithm %q", a)
	}
}

// OfReader hashes everything r yields and returns the lowercase hex digest.
func OfReader(r io.Reader, algo Algorithm) (string, error) {
	h, err := algo.New()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Of hashes the full content of the file at path.
func Of(path string, algo Algorithm) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return OfReader(file, algo)
}

// Matches reports whether the file at path hashes to expected and returns
// the digest it computed.
func Matches(path, expected string) (bool, string, error) {
	algo, err := ForDigest(expected)
	if err != nil {
		return false, "", err
	}
	actual, err := Of(path, algo)
	if err != nil {
		return false, "", err
	}
	return Equal(actual, expected), actual, nil
}

// Verify returns the digest of path, or ErrMismatch with both digests when
// it differs from expected.
func Verify(path, expected string) (string, error) {
	ok, actual, err := Matches(path, expected)
	if err != nil {
		return "", err
	}
	if !ok {
		return actual, fmt.Errorf("%w: %s expected %s got %s", ErrMismatch, path, strings.ToLower(expected), actual)
	}
	return actual, nil
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Sum256 is the BLAKE3 hash used for artifact records.
func Sum256(data []byte) [32]byte {
	return blake3.Sum256(data)
}
