package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultArch   = "ppc"
	defaultEndian = EndianBig
)

// Codec serializes and deserializes manifests.
type Codec interface {
	Encode(w io.Writer, m *Manifest) error
	Decode(r io.Reader) (*Manifest, error)
}

// YAMLCodec implements the textual manifest format.
type YAMLCodec struct{}

type yamlSegment struct {
	Start  *uint64 `yaml:"start"`
	Size   *uint64 `yaml:"size"`
	Name   string  `yaml:"name"`
	Format string  `yaml:"format"`
	Path   string  `yaml:"path,omitempty"`
	Group  string  `yaml:"group,omitempty"`
	Vram   *uint64 `yaml:"vram,omitempty"`
}

type yamlManifest struct {
	Name       string        `yaml:"name"`
	Digest     string        `yaml:"digest,omitempty"`
	SHA1       string        `yaml:"sha1,omitempty"`
	VramOffset uint64        `yaml:"vram_offset,omitempty"`
	Arch       string        `yaml:"arch,omitempty"`
	Endian     string        `yaml:"endian,omitempty"`
	Segments   []yamlSegment `yaml:"segments"`
}

// Encode writes a manifest as YAML.
func (c *YAMLCodec) Encode(w io.Writer, m *Manifest) error {
	if m == nil {
		return errors.New("manifest: nil manifest")
	}
	out := yamlManifest{
		Name:       m.Name,
		Digest:     m.Digest,
		VramOffset: m.VramOffset,
		Arch:       m.Arch,
		Endian:     string(m.Endian),
		Segments:   make([]yamlSegment, 0, len(m.Segments)),
	}
	for _, seg := range m.Segments {
		ys := yamlSegment{
			Start:  ptr(seg.Start),
			Size:   ptr(seg.Size),
			Name:   seg.Name,
			Format: string(seg.Format),
			Path:   seg.Path,
			Group:  seg.Group,
		}
		if seg.HasVram {
			ys.Vram = ptr(seg.Vram)
		}
		out.Segments = append(out.Segments, ys)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return err
	}
	return enc.Close()
}

// Decode reads a YAML manifest, fills defaults and validates it.
func (c *YAMLCodec) Decode(r io.Reader) (*Manifest, error) {
	var in yamlManifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	digest := in.Digest
	if digest == "" {
		digest = in.SHA1
	} else if in.SHA1 != "" && in.SHA1 != in.Digest {
		return nil, fmt.Errorf("%w: digest and sha1 disagree", ErrMalformed)
	}
	m := &Manifest{
		Name:       in.Name,
		Digest:     digest,
		VramOffset: in.VramOffset,
		Arch:       in.Arch,
		Endian:     Endian(in.Endian),
		Segments:   make([]Segment, 0, len(in.Segments)),
	}
	if m.Arch == "" {
		m.Arch = defaultArch
	}
	if m.Endian == "" {
		m.Endian = defaultEndian
	}
	for i, ys := range in.Segments {
		if ys.Start == nil {
			return nil, fmt.Errorf("%w: segment %d: start required", ErrMalformed, i)
		}
		if ys.Size == nil {
			return nil, fmt.Errorf("%w: segment %d: size required", ErrMalformed, i)
		}
		if ys.Format == "" {
			return nil, fmt.Errorf("%w: segment %d: format required", ErrMalformed, i)
		}
		format, err := ParseFormat(ys.Format)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		seg := Segment{
			Start:  *ys.Start,
			Size:   *ys.Size,
			Name:   ys.Name,
			Format: format,
			Path:   ys.Path,
			Group:  ys.Group,
		}
		if ys.Vram != nil {
			seg.Vram = *ys.Vram
			seg.HasVram = true
		}
		m.Segments = append(m.Segments, seg)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load decodes the manifest stored at path.
func Load(path string) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	m, err := (&YAMLCodec{}).Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func ptr[T any](v T) *T {
	return &v
}
