package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrMalformed reports a manifest that cannot be processed at all.
var ErrMalformed = errors.New("manifest: malformed")

// Format selects how a segment is dumped at split time and resolved at merge time.
type Format string

const (
	FormatRaw         Format = "raw"
	FormatDisassemble Format = "disassemble"
	FormatObject      Format = "object"
	FormatPassThrough Format = "pass-through"
)

// legacyFormats maps the tags used by older manifests.
var legacyFormats = map[string]Format{
	"bin": FormatRaw,
	"asm": FormatDisassemble,
	"c":   FormatPassThrough,
}

// ParseFormat resolves a manifest format tag, including legacy aliases.
func ParseFormat(tag string) (Format, error) {
	switch f := Format(tag); f {
	case FormatRaw, FormatDisassemble, FormatObject, FormatPassThrough:
		return f, nil
	}
	if f, ok := legacyFormats[tag]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", ErrMalformed, tag)
}

// Endian names the byte order of the instruction stream.
type Endian string

const (
	EndianBig    Endian = "big"
	EndianLittle Endian = "little"
)

// Segment is a declared contiguous byte range of the image.
type Segment struct {
	Start  uint64
	Size   uint64
	Name   string
	Format Format
	// Path overrides the output directory of raw segments.
	Path  string
	Group string
	// Vram is an explicit virtual base; HasVram distinguishes an explicit zero.
	Vram    uint64
	HasVram bool
}

// End returns the offset one past the last byte of the segment.
func (s Segment) End() uint64 {
	return s.Start + s.Size
}

// VirtualBase returns the address a segment is disassembled at: the explicit
// vram when set, else the address lookup returns for the segment name, else
// offset+Start. lookup may be nil.
func (s Segment) VirtualBase(offset uint64, lookup func(name string) (uint64, bool)) uint64 {
	if s.HasVram {
		return s.Vram
	}
	if lookup != nil {
		if addr, ok := lookup(s.Name); ok {
			return addr
		}
	}
	return offset + s.Start
}

// Grouped reports whether the segment belongs to a source group.
func (s Segment) Grouped() bool {
	return s.Group != ""
}

// Manifest describes every declared segment of one image.
type Manifest struct {
	Name       string
	Digest     string
	VramOffset uint64
	Arch       string
	Endian     Endian
	Segments   []Segment
}

// Validate checks required fields and tags. Ordering and overlap are
// checked while the image is walked, not here.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil manifest", ErrMalformed)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: name required", ErrMalformed)
	}
	if err := validateDigest(m.Digest); err != nil {
		return err
	}
	if m.Arch != "" && m.Arch != defaultArch {
		return fmt.Errorf("%w: unsupported arch %q", ErrMalformed, m.Arch)
	}
	switch m.Endian {
	case "", EndianBig, EndianLittle:
	default:
		return fmt.Errorf("%w: unknown endian %q", ErrMalformed, m.Endian)
	}
	seen := make(map[string]int)
	for i, seg := range m.Segments {
		if seg.Name == "" {
			return fmt.Errorf("%w: segment %d: name required", ErrMalformed, i)
		}
		if strings.ContainsAny(seg.Name, `/\`) || seg.Name == "." || seg.Name == ".." {
			return fmt.Errorf("%w: segment %d: invalid name %q", ErrMalformed, i, seg.Name)
		}
		if seg.Size == 0 {
			return fmt.Errorf("%w: segment %q: size required", ErrMalformed, seg.Name)
		}
		if _, err := ParseFormat(string(seg.Format)); err != nil {
			return fmt.Errorf("segment %q: %w", seg.Name, err)
		}
		key := string(seg.Format) + ":" + path.Clean(seg.Path) + ":" + seg.Name
		if j, ok := seen[key]; ok {
			return fmt.Errorf("%w: segment %q declared twice (%d and %d)", ErrMalformed, seg.Name, j, i)
		}
		seen[key] = i
	}
	return nil
}

// LittleEndian reports whether the instruction stream is little endian.
// An unset endian means big endian.
func (m *Manifest) LittleEndian() bool {
	return m.Endian == EndianLittle
}

// Segment returns the segment with the given name.
func (m *Manifest) Segment(name string) (Segment, bool) {
	for _, seg := range m.Segments {
		if seg.Name == name {
			return seg, true
		}
	}
	return Segment{}, false
}

func validateDigest(d string) error {
	if len(d) != 40 && len(d) != 64 {
		return fmt.Errorf("%w: digest must be 40 or 64 hex characters, got %d", ErrMalformed, len(d))
	}
	for _, c := range d {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return fmt.Errorf("%w: digest has non-hex character %q", ErrMalformed, c)
		}
	}
	return nil
}
