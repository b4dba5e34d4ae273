package digest

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.xex")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOfKnownVectors(t *testing.T) {
	tests := []struct {
		name string
		algo Algorithm
		data string
		want string
	}{
		{
			name: "sha1-empty",
			algo: SHA1,
			data: "",
			want: "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		},
		{
			name: "sha1-abc",
			algo: SHA1,
			data: "abc",
			want: "a9993e364706816aba3e25717850c26c9cd0d89d",
		},
		{
			name: "blake3-empty",
			algo: BLAKE3,
			data: "",
			want: "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OfReader(strings.NewReader(tt.data), tt.algo)
			if err != nil {
				t.Fatalf("OfReader: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestForDigest(t *testing.T) {
	if algo, err := ForDigest(strings.Repeat("a", 40)); err != nil || algo != SHA1 {
		t.Fatalf("expected sha1, got %s (%v)", algo, err)
	}
	if algo, err := ForDigest(strings.Repeat("a", 64)); err != nil || algo != BLAKE3 {
		t.Fatalf("expected blake3, got %s (%v)", algo, err)
	}
	if _, err := ForDigest("abc"); err == nil {
		t.Fatalf("expected error for short digest")
	}
}

func TestMatchesAndVerify(t *testing.T) {
	path := writeFile(t, []byte("abc"))

	ok, actual, err := Matches(path, "A9993E364706816ABA3E25717850C26C9CD0D89D")
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if !ok {
		t.Fatalf("expected case-insensitive match, computed %s", actual)
	}
	got, err := Verify(path, "a9993e364706816aba3e25717850c26c9cd0d89d")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Fatalf("Verify digest: %s", got)
	}

	got, err = Verify(path, strings.Repeat("0", 40))
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if got != actual {
		t.Fatalf("expected computed digest on mismatch, got %q", got)
	}
}

func TestBLAKE3FileMatchesSum256(t *testing.T) {
	data := bytes.Repeat([]byte{0x7c, 0x08, 0x02, 0xa6}, 1024)
	path := writeFile(t, data)
	got, err := Of(path, BLAKE3)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	sum := Sum256(data)
	ok, _, err := Matches(path, got)
	if err != nil || !ok {
		t.Fatalf("Matches: ok=%v err=%v", ok, err)
	}
	if got != hex.EncodeToString(sum[:]) {
		t.Fatalf("streaming and one-shot BLAKE3 disagree: %s", got)
	}
}

func TestOfMissingFile(t *testing.T) {
	if _, err := Of(filepath.Join(t.TempDir(), "missing"), SHA1); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
