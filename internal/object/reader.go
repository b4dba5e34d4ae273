// Package object reads the small subset of COFF relocatable objects needed
// to recover compiled functions from their code sections.
package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
)

var (
	// ErrUnsupportedFormat reports an object whose machine tag is not the target's.
	ErrUnsupportedFormat = errors.New("object: unsupported format")
	// ErrTruncated reports a table that extends past the end of the file.
	ErrTruncated = errors.New("object: truncated")
)

// Machine tags of the supported targets.
const (
	MachinePowerPC   uint16 = 0x01f0
	MachinePowerPCBE uint16 = 0x01f2
)

// TextSection is the reserved name of executable code sections.
const TextSection = ".text"

const (
	fileHeaderLen    = 20
	sectionHeaderLen = 40
	symbolLen        = 18
)

// MachineFor returns the machine tag expected for a PowerPC target.
func MachineFor(littleEndian bool) uint16 {
	if littleEndian {
		return MachinePowerPC
	}
	return MachinePowerPCBE
}

// FileHeader is the fixed COFF file header.
type FileHeader struct {
	Machine            uint16
	NumSections        uint16
	TimeDateStamp      uint32
	SymbolTableOffset  uint32
	NumSymbols         uint32
	OptionalHeaderSize uint16
	Characteristics    uint16
}

// Section is one section header. Index is 1-based.
type Section struct {
	Index           int
	Name            string
	VirtualSize     uint32
	VirtualAddress  uint32
	RawSize         uint32
	RawOffset       uint32
	Characteristics uint32
}

// Symbol is one primary symbol record; auxiliary records are skipped.
type Symbol struct {
	Name string
	// Indirect is set when the name lives in the string table.
	Indirect      bool
	Value         uint32
	SectionNumber int16
	Type          uint16
	StorageClass  uint8
	NumAux        uint8
}

// File is a parsed object.
type File struct {
	Header   FileHeader
	Sections []Section
	Symbols  []Symbol
	order    binary.ByteOrder
}

// Open reads and parses the object at path.
func Open(path string, machine uint16) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data, machine)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes an object image. The header byte order is the one under
// which the machine field equals machine.
func Parse(data []byte, machine uint16) (*File, error) {
	if len(data) < fileHeaderLen {
		return nil, fmt.Errorf("%w: file header", ErrTruncated)
	}
	var order binary.ByteOrder
	switch machine {
	case binary.LittleEndian.Uint16(data[0:2]):
		order = binary.LittleEndian
	case binary.BigEndian.Uint16(data[0:2]):
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: machine 0x%04x, want 0x%04x", ErrUnsupportedFormat, binary.LittleEndian.Uint16(data[0:2]), machine)
	}
	f := &File{order: order}
	f.Header = decodeFileHeader(data, order)

	strtab, err := f.stringTable(data)
	if err != nil {
		return nil, err
	}
	if err := f.readSections(data, strtab); err != nil {
		return nil, err
	}
	if err := f.readSymbols(data, strtab); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeFileHeader(buf []byte, order binary.ByteOrder) FileHeader {
	return FileHeader{
		Machine:            order.Uint16(buf[0:2]),
		NumSections:        order.Uint16(buf[2:4]),
		TimeDateStamp:      order.Uint32(buf[4:8]),
		SymbolTableOffset:  order.Uint32(buf[8:12]),
		NumSymbols:         order.Uint32(buf[12:16]),
		OptionalHeaderSize: order.Uint16(buf[16:18]),
		Characteristics:    order.Uint16(buf[18:20]),
	}
}

// stringTable returns the string table that follows the symbol table. Its
// first four bytes hold its total size; offsets count from its start.
func (f *File) stringTable(data []byte) ([]byte, error) {
	if f.Header.NumSymbols == 0 {
		return nil, nil
	}
	start := uint64(f.Header.SymbolTableOffset) + symbolLen*uint64(f.Header.NumSymbols)
	if start > uint64(len(data)) {
		return nil, fmt.Errorf("%w: symbol table", ErrTruncated)
	}
	if start+4 > uint64(len(data)) {
		// No string table: every name is inline.
		return nil, nil
	}
	size := uint64(f.order.Uint32(data[start : start+4]))
	if size < 4 || start+size > uint64(len(data)) {
		return nil, fmt.Errorf("%w: string table", ErrTruncated)
	}
	return data[start : start+size], nil
}

func (f *File) readSections(data, strtab []byte) error {
	off := uint64(fileHeaderLen) + uint64(f.Header.OptionalHeaderSize)
	end := off + sectionHeaderLen*uint64(f.Header.NumSections)
	if end > uint64(len(data)) {
		return fmt.Errorf("%w: section headers", ErrTruncated)
	}
	f.Sections = make([]Section, 0, f.Header.NumSections)
	for i := 0; i < int(f.Header.NumSections); i++ {
		rec := data[off : off+sectionHeaderLen]
		name := inlineName(rec[0:8])
		// Long section names are written as "/<decimal string table offset>".
		if len(name) > 1 && name[0] == '/' {
			if n, err := strconv.ParseUint(name[1:], 10, 32); err == nil {
				long, err := lookupString(strtab, uint32(n))
				if err != nil {
					return fmt.Errorf("section %d: %w", i+1, err)
				}
				name = long
			}
		}
		f.Sections = append(f.Sections, Section{
			Index:           i + 1,
			Name:            name,
			VirtualSize:     f.order.Uint32(rec[8:12]),
			VirtualAddress:  f.order.Uint32(rec[12:16]),
			RawSize:         f.order.Uint32(rec[16:20]),
			RawOffset:       f.order.Uint32(rec[20:24]),
			Characteristics: f.order.Uint32(rec[36:40]),
		})
		off += sectionHeaderLen
	}
	return nil
}

func (f *File) readSymbols(data, strtab []byte) error {
	n := uint64(f.Header.NumSymbols)
	off := uint64(f.Header.SymbolTableOffset)
	if n == 0 {
		return nil
	}
	if off+symbolLen*n > uint64(len(data)) {
		return fmt.Errorf("%w: symbol table", ErrTruncated)
	}
	f.Symbols = make([]Symbol, 0, n)
	for i := uint64(0); i < n; i++ {
		rec := data[off+i*symbolLen : off+(i+1)*symbolLen]
		sym := Symbol{
			Value:         f.order.Uint32(rec[8:12]),
			SectionNumber: int16(f.order.Uint16(rec[12:14])),
			Type:          f.order.Uint16(rec[14:16]),
			StorageClass:  rec[16],
			NumAux:        rec[17],
		}
		if binary.LittleEndian.Uint32(rec[0:4]) == 0 {
			name, err := lookupString(strtab, f.order.Uint32(rec[4:8]))
			if err != nil {
				return fmt.Errorf("symbol %d: %w", i, err)
			}
			sym.Name = name
			sym.Indirect = true
		} else {
			sym.Name = inlineName(rec[0:8])
		}
		f.Symbols = append(f.Symbols, sym)
		i += uint64(sym.NumAux)
	}
	return nil
}

// PrimaryFunction returns the first string-table-named symbol bound to
// section index, in symbol table order.
func (f *File) PrimaryFunction(index int) (string, bool) {
	var section string
	if index >= 1 && index <= len(f.Sections) {
		section = f.Sections[index-1].Name
	}
	for _, sym := range f.Symbols {
		if int(sym.SectionNumber) != index || !sym.Indirect {
			continue
		}
		if sym.Name == "" || sym.Name == section {
			continue
		}
		return sym.Name, true
	}
	return "", false
}

// Functions returns the primary function of every section called name,
// in section order. Sections without one are skipped.
func (f *File) Functions(name string) []string {
	var out []string
	for _, sec := range f.Sections {
		if sec.Name != name {
			continue
		}
		if fn, ok := f.PrimaryFunction(sec.Index); ok {
			out = append(out, fn)
		}
	}
	return out
}

func inlineName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func lookupString(strtab []byte, off uint32) (string, error) {
	if off < 4 || uint64(off) >= uint64(len(strtab)) {
		return "", fmt.Errorf("%w: string offset %d", ErrTruncated, off)
	}
	s := strtab[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), nil
}
