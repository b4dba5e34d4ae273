package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

type testSymbol struct {
	name    string
	section int16
	aux     uint8
}

// buildObject assembles a COFF image with the given section names and
// symbols. Names longer than eight bytes go to the string table.
func buildObject(order binary.ByteOrder, machine uint16, sections []string, syms []testSymbol) []byte {
	var strtab bytes.Buffer
	strtab.Write([]byte{0, 0, 0, 0})
	addString := func(s string) uint32 {
		off := uint32(strtab.Len())
		strtab.WriteString(s)
		strtab.WriteByte(0)
		return off
	}

	nrec := 0
	for _, s := range syms {
		nrec += 1 + int(s.aux)
	}
	symoff := fileHeaderLen + sectionHeaderLen*len(sections)

	var buf bytes.Buffer
	var hdr [fileHeaderLen]byte
	order.PutUint16(hdr[0:2], machine)
	order.PutUint16(hdr[2:4], uint16(len(sections)))
	order.PutUint32(hdr[8:12], uint32(symoff))
	order.PutUint32(hdr[12:16], uint32(nrec))
	buf.Write(hdr[:])

	for _, name := range sections {
		var rec [sectionHeaderLen]byte
		if len(name) > 8 {
			copy(rec[0:8], "/"+strconv.FormatUint(uint64(addString(name)), 10))
		} else {
			copy(rec[0:8], name)
		}
		buf.Write(rec[:])
	}
	for _, s := range syms {
		var rec [symbolLen]byte
		if len(s.name) > 8 {
			order.PutUint32(rec[4:8], addString(s.name))
		} else {
			copy(rec[0:8], s.name)
		}
		order.PutUint16(rec[12:14], uint16(s.section))
		rec[16] = 2
		rec[17] = s.aux
		buf.Write(rec[:])
		for i := 0; i < int(s.aux); i++ {
			buf.Write(make([]byte, symbolLen))
		}
	}
	tab := strtab.Bytes()
	order.PutUint32(tab[0:4], uint32(len(tab)))
	buf.Write(tab)
	return buf.Bytes()
}

func TestParseFunctions(t *testing.T) {
	sections := []string{".text", ".data", ".text", ".text"}
	syms := []testSymbol{
		{name: ".text", section: 1, aux: 1},
		{name: "data_table_main", section: 2},
		{name: "first_function", section: 1},
		{name: "second_candidate", section: 1},
		{name: ".text", section: 3, aux: 1},
		{name: "other_function", section: 3},
		{name: "short", section: 4},
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			data := buildObject(order, MachinePowerPCBE, sections, syms)
			f, err := Parse(data, MachinePowerPCBE)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(f.Sections) != 4 || f.Sections[2].Index != 3 {
				t.Fatalf("unexpected sections: %+v", f.Sections)
			}
			if len(f.Symbols) != 7 {
				t.Fatalf("expected 7 primary symbols, got %d", len(f.Symbols))
			}
			got := f.Functions(TextSection)
			want := []string{"first_function", "other_function"}
			if len(got) != len(want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("expected %v, got %v", want, got)
				}
			}
		})
	}
}

func TestParseLongSectionName(t *testing.T) {
	data := buildObject(binary.LittleEndian, MachinePowerPCBE, []string{".text$long_name"}, []testSymbol{{name: "long_function", section: 1}})
	f, err := Parse(data, MachinePowerPCBE)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Sections[0].Name != ".text$long_name" {
		t.Fatalf("unexpected section name %q", f.Sections[0].Name)
	}
	if fns := f.Functions(TextSection); len(fns) != 0 {
		t.Fatalf("expected no .text functions, got %v", fns)
	}
}

func TestParseRejects(t *testing.T) {
	good := buildObject(binary.LittleEndian, MachinePowerPCBE, []string{".text"}, []testSymbol{{name: "some_function", section: 1}})
	tests := []struct {
		name    string
		data    []byte
		machine uint16
		wantErr error
	}{
		{name: "wrong-machine", data: good, machine: MachinePowerPC, wantErr: ErrUnsupportedFormat},
		{name: "short-header", data: good[:10], machine: MachinePowerPCBE, wantErr: ErrTruncated},
		{name: "short-sections", data: good[:fileHeaderLen+8], machine: MachinePowerPCBE, wantErr: ErrTruncated},
		{name: "short-symbols", data: good[:fileHeaderLen+sectionHeaderLen+4], machine: MachinePowerPCBE, wantErr: ErrTruncated},
		{name: "short-strings", data: good[:len(good)-3], machine: MachinePowerPCBE, wantErr: ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data, tt.machine); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

type memSource map[string][]byte

func (m memSource) OpenFunction(name string) (io.ReadCloser, int64, error) {
	b, ok := m[name]
	if !ok {
		return nil, 0, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func TestConcatAlignment(t *testing.T) {
	src := memSource{
		"a": bytes.Repeat([]byte{0xaa}, 4),
		"b": bytes.Repeat([]byte{0xbb}, 8),
		"c": bytes.Repeat([]byte{0xcc}, 12),
		"d": bytes.Repeat([]byte{0xdd}, 6),
	}
	tests := []struct {
		name    string
		names   []string
		want    int64
		wantErr error
	}{
		{name: "single", names: []string{"a"}, want: 4},
		{name: "pad-after-half", names: []string{"a", "b"}, want: 16},
		{name: "no-pad-when-aligned", names: []string{"b", "b"}, want: 16},
		{name: "pad-twice", names: []string{"c", "a", "a"}, want: 28},
		{name: "misaligned", names: []string{"d", "a"}, wantErr: ErrAlignment},
		{name: "ragged-tail", names: []string{"a", "d"}, wantErr: ErrAlignment},
		{name: "missing", names: []string{"nope"}, wantErr: os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := Concat(&buf, tt.names, src)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Concat: %v", err)
			}
			if n != tt.want || int64(buf.Len()) != tt.want {
				t.Fatalf("expected %d bytes, got n=%d len=%d", tt.want, n, buf.Len())
			}
			if n%4 != 0 {
				t.Fatalf("final offset %d not a multiple of 4", n)
			}
		})
	}
}

func TestConcatPadsWithZeros(t *testing.T) {
	src := memSource{"a": {1, 2, 3, 4}, "b": {5, 6, 7, 8}}
	var buf bytes.Buffer
	if _, err := Concat(&buf, []string{"a", "b"}, src); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	want := []byte{1, 2, 3, 4, 0, 0, 0, 0, 5, 6, 7, 8}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("expected %x, got %x", want, buf.Bytes())
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	objPath := filepath.Join(dir, "unit.obj")
	obj := buildObject(binary.BigEndian, MachinePowerPCBE, []string{".text", ".text"}, []testSymbol{
		{name: ".text", section: 1, aux: 1},
		{name: "update_player", section: 1},
		{name: "render_player", section: 2},
	})
	if err := os.WriteFile(objPath, obj, 0o644); err != nil {
		t.Fatalf("write object: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "update_player.bin"), []byte{0x4e, 0x80, 0x00, 0x20}, 0o644); err != nil {
		t.Fatalf("write function: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "render_player.bin"), []byte{0x38, 0x60, 0x00, 0x01, 0x4e, 0x80, 0x00, 0x20}, 0o644); err != nil {
		t.Fatalf("write function: %v", err)
	}
	src := PathSource(func(name string) string {
		return filepath.Join(dir, name+".bin")
	})

	var buf bytes.Buffer
	names, n, err := Extract(objPath, MachineFor(false), src, &buf)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(names) != 2 || names[0] != "update_player" || names[1] != "render_player" {
		t.Fatalf("unexpected functions: %v", names)
	}
	if n != 16 || buf.Len() != 16 {
		t.Fatalf("expected 16 bytes, got %d", n)
	}

	if _, _, err := Extract(objPath, MachineFor(true), src, io.Discard); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
