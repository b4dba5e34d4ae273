package fs

import (
	"fmt"
	"path/filepath"
)

// Layout defines the on-disk directory layout for split artifacts.
type Layout struct {
	Root     string
	BinDir   string
	AsmDir   string
	ObjDir   string
	BuildDir string
	StateDir string
}

// NewLayout builds a default layout under the given root.
func NewLayout(root string) Layout {
	return Layout{
		Root:     root,
		BinDir:   filepath.Join(root, "bin"),
		AsmDir:   filepath.Join(root, "asm"),
		ObjDir:   filepath.Join(root, "obj"),
		BuildDir: filepath.Join(root, "build"),
		StateDir: filepath.Join(root, ".segsplit"),
	}
}

// GapPath names the artifact of an unmapped range by its start offset.
func (l Layout) GapPath(start uint64) string {
	return filepath.Join(l.BinDir, fmt.Sprintf("bin_%x.bin", start))
}

// RawPath is where a raw segment is dumped. dir overrides the default bin
// directory and is taken relative to the root.
func (l Layout) RawPath(dir, name string) string {
	if dir == "" {
		return filepath.Join(l.BinDir, name+".bin")
	}
	if filepath.IsAbs(dir) {
		return filepath.Join(dir, name+".bin")
	}
	return filepath.Join(l.Root, dir, name+".bin")
}

// ReferencePath is the raw dump kept next to a disassembly listing.
func (l Layout) ReferencePath(name string) string {
	return filepath.Join(l.AsmDir, name+".bin")
}

func (l Layout) ListingPath(name string) string {
	return filepath.Join(l.AsmDir, name+".s")
}

// HoldingPath keeps the original bytes an object segment must reproduce.
func (l Layout) HoldingPath(name string) string {
	return filepath.Join(l.ObjDir, name+".bin")
}

// LinkedPath receives the functions extracted from a segment's object.
func (l Layout) LinkedPath(name string) string {
	return filepath.Join(l.ObjDir, name+".linked.bin")
}

// ObjectPath is the externally compiled object backing an object segment.
func (l Layout) ObjectPath(name string) string {
	return filepath.Join(l.BuildDir, name+".obj")
}

// FunctionPath is the standalone binary dump of one compiled function.
func (l Layout) FunctionPath(function string) string {
	return filepath.Join(l.BuildDir, function+".bin")
}

// BuildPath is the externally built artifact of a pass-through segment.
func (l Layout) BuildPath(name, group string) string {
	if group == "" {
		return filepath.Join(l.BuildDir, name+".bin")
	}
	return filepath.Join(l.BuildDir, name+"_"+group+".bin")
}

func (l Layout) LedgerPath() string {
	return filepath.Join(l.StateDir, "ledger.db")
}
