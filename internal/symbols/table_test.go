package symbols

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	table, err := Parse(strings.NewReader("0x82000000 _start\n00001000 entry\n\n0X00002000 helper\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 symbols, got %d", table.Len())
	}
	tests := []struct {
		addr uint64
		name string
	}{
		{0x82000000, "_start"},
		{0x1000, "entry"},
		{0x2000, "helper"},
	}
	for _, tt := range tests {
		name, ok := table.Resolve(tt.addr)
		if !ok || name != tt.name {
			t.Errorf("Resolve(%#x): expected %s, got %q (ok=%v)", tt.addr, tt.name, name, ok)
		}
		addr, ok := table.AddressOf(tt.name)
		if !ok || addr != tt.addr {
			t.Errorf("AddressOf(%s): expected %#x, got %#x (ok=%v)", tt.name, tt.addr, addr, ok)
		}
	}
	if _, ok := table.Resolve(0x3000); ok {
		t.Fatalf("expected unknown address to stay unresolved")
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "one-token", input: "00001000\n", wantErr: ErrMalformedLine},
		{name: "three-tokens", input: "00001000 entry extra\n", wantErr: ErrMalformedLine},
		{name: "bad-hex", input: "zz entry\n", wantErr: ErrMalformedLine},
		{name: "address-conflict", input: "1000 a\n1000 b\n", wantErr: ErrConflict},
		{name: "name-conflict", input: "1000 a\n2000 a\n", wantErr: ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseDuplicatePairIsNoop(t *testing.T) {
	table, err := Parse(strings.NewReader("1000 a\n1000 a\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 symbol, got %d", table.Len())
	}
}

func TestLoadMissingFile(t *testing.T) {
	table, err := Load(filepath.Join(t.TempDir(), "addresses.txt"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d entries", table.Len())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.txt")
	if err := os.WriteFile(path, []byte("0x00001000 entry\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := table.String(); got != "00001000 entry\n" {
		t.Fatalf("String: unexpected %q", got)
	}
}

func TestNilTable(t *testing.T) {
	var table *Table
	if _, ok := table.Resolve(0); ok {
		t.Fatalf("nil table resolved an address")
	}
	if _, ok := table.AddressOf("x"); ok {
		t.Fatalf("nil table resolved a name")
	}
	if table.Len() != 0 {
		t.Fatalf("nil table has entries")
	}
	if got := table.String(); got != "" {
		t.Fatalf("nil table printed %q", got)
	}
}
