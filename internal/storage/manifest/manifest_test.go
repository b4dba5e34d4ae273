package manifest

import "testing"

func TestSegmentVirtualBase(t *testing.T) {
	lookup := func(name string) (uint64, bool) {
		if name == "main" {
			return 0x82001000, true
		}
		return 0, false
	}
	tests := []struct {
		name   string
		seg    Segment
		lookup func(string) (uint64, bool)
		want   uint64
	}{
		{name: "explicit", seg: Segment{Start: 0x40, Name: "main", Vram: 0x1234, HasVram: true}, lookup: lookup, want: 0x1234},
		{name: "explicit-zero", seg: Segment{Start: 0x40, Name: "main", HasVram: true}, lookup: lookup, want: 0},
		{name: "symbol", seg: Segment{Start: 0x40, Name: "main"}, lookup: lookup, want: 0x82001000},
		{name: "offset", seg: Segment{Start: 0x40, Name: "other"}, lookup: lookup, want: 0x82000040},
		{name: "nil-lookup", seg: Segment{Start: 0x40, Name: "main"}, want: 0x82000040},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.seg.VirtualBase(0x82000000, tt.lookup); got != tt.want {
				t.Fatalf("expected 0x%x, got 0x%x", tt.want, got)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	m := &Manifest{
		Name:   "img",
		Digest: sampleDigest,
		Segments: []Segment{
			{Start: 0, Size: 4, Name: "a", Format: FormatRaw},
			{Start: 4, Size: 4, Name: "a", Format: FormatRaw, Path: "other"},
			{Start: 8, Size: 4, Name: "a", Format: FormatDisassemble},
		},
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.LittleEndian() {
		t.Fatalf("expected big endian default")
	}
	if _, ok := m.Segment("a"); !ok {
		t.Fatalf("expected segment lookup to succeed")
	}
	if _, ok := m.Segment("missing"); ok {
		t.Fatalf("expected missing segment")
	}
}
