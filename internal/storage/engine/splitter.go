package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kk-code-lab/segsplit/internal/digest"
	"github.com/kk-code-lab/segsplit/internal/disasm"
	"github.com/kk-code-lab/segsplit/internal/meta"
	"github.com/kk-code-lab/segsplit/internal/storage/manifest"
)

// SplitResult summarizes a split run.
type SplitResult struct {
	RunID       string          `json:"run_id"`
	Manifest    string          `json:"manifest"`
	ImageDigest string          `json:"image_digest"`
	ImageSize   int64           `json:"image_size"`
	Segments    int             `json:"segments"`
	Gaps        int             `json:"gaps"`
	Artifacts   []meta.Artifact `json:"artifacts"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// Split walks the image at imagePath and writes one artifact per segment
// and per unmapped range. The image digest must equal the manifest's before
// anything is written.
func (e *Engine) Split(ctx context.Context, m *manifest.Manifest, imagePath string) (*SplitResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkArtifactPaths(m); err != nil {
		return nil, err
	}
	target, err := targetFor(m)
	if err != nil {
		return nil, err
	}
	actual, err := digest.Verify(imagePath, m.Digest)
	if err != nil {
		return nil, err
	}

	img, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	info, err := img.Stat()
	if err != nil {
		return nil, err
	}
	size := uint64(info.Size())

	res := &SplitResult{
		RunID:       e.runIDs.Next(),
		Manifest:    m.Name,
		ImageDigest: actual,
		ImageSize:   info.Size(),
		StartedAt:   e.clock.Now(),
	}
	cursor := uint64(0)
	next := 0
	for cursor < size || next < len(m.Segments) {
		nextStart := size
		if next < len(m.Segments) {
			nextStart = m.Segments[next].Start
		}
		switch {
		case nextStart < cursor:
			seg := m.Segments[next]
			return nil, fmt.Errorf("%w: segment %s starts at 0x%x, cursor at 0x%x", ErrOverlap, seg.Name, seg.Start, cursor)
		case nextStart > size:
			seg := m.Segments[next]
			return nil, fmt.Errorf("%w: segment %s starts at 0x%x, image is 0x%x bytes", ErrTruncatedImage, seg.Name, seg.Start, size)
		case cursor < nextStart:
			data, err := readAt(img, cursor, nextStart-cursor)
			if err != nil {
				return nil, err
			}
			art, err := writeArtifact(e.layout.GapPath(cursor), meta.KindGap, "", cursor, data)
			if err != nil {
				return nil, err
			}
			e.logf("split kind=%s start=0x%x size=0x%x path=%s", art.Kind, cursor, len(data), art.Path)
			res.Artifacts = append(res.Artifacts, art)
			res.Gaps++
			cursor = nextStart
		default:
			seg := m.Segments[next]
			if seg.Size > size-cursor {
				return nil, fmt.Errorf("%w: segment %s ends at 0x%x, image is 0x%x bytes", ErrTruncatedImage, seg.Name, seg.End(), size)
			}
			data, err := readAt(img, cursor, seg.Size)
			if err != nil {
				return nil, err
			}
			arts, err := e.splitSegment(target, m, seg, data)
			if err != nil {
				return nil, fmt.Errorf("segment %s: %w", seg.Name, err)
			}
			res.Artifacts = append(res.Artifacts, arts...)
			res.Segments++
			cursor += seg.Size
			next++
		}
	}
	res.FinishedAt = e.clock.Now()

	if e.ledger != nil {
		if err := e.Record(ctx, e.ledger, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Record stores a finished split run and its artifacts in ledger.
func (e *Engine) Record(ctx context.Context, ledger *meta.Store, res *SplitResult) error {
	run := meta.Run{
		ID:          res.RunID,
		Manifest:    res.Manifest,
		ImageDigest: res.ImageDigest,
		ImageSize:   res.ImageSize,
		StartedAt:   res.StartedAt.Format(time.RFC3339Nano),
		FinishedAt:  res.FinishedAt.Format(time.RFC3339Nano),
	}
	if err := ledger.RecordSplit(ctx, run, e.ledgerRecords(res.Artifacts)); err != nil {
		return fmt.Errorf("record split: %w", err)
	}
	return nil
}

// readAt reads n bytes at cursor after checking the file sits exactly there.
func readAt(img *os.File, cursor, n uint64) ([]byte, error) {
	pos, err := img.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	if uint64(pos) != cursor {
		return nil, fmt.Errorf("%w: file at 0x%x, cursor at 0x%x", ErrPositionDrift, pos, cursor)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(img, buf); err != nil {
		return nil, fmt.Errorf("read 0x%x bytes at 0x%x: %w", n, cursor, err)
	}
	return buf, nil
}

func (e *Engine) splitSegment(target disasm.Target, m *manifest.Manifest, seg manifest.Segment, data []byte) ([]meta.Artifact, error) {
	format, err := manifest.ParseFormat(string(seg.Format))
	if err != nil {
		return nil, err
	}
	var out []meta.Artifact
	add := func(path string, kind meta.Kind, b []byte) error {
		art, err := writeArtifact(path, kind, seg.Name, seg.Start, b)
		if err != nil {
			return err
		}
		e.logf("split kind=%s segment=%s start=0x%x size=0x%x path=%s", kind, seg.Name, seg.Start, len(b), path)
		out = append(out, art)
		return nil
	}

	listing := false
	switch format {
	case manifest.FormatRaw:
		err = add(e.layout.RawPath(seg.Path, seg.Name), meta.KindRaw, data)
	case manifest.FormatDisassemble:
		err = add(e.layout.ReferencePath(seg.Name), meta.KindReference, data)
		listing = true
	case manifest.FormatObject:
		err = add(e.layout.HoldingPath(seg.Name), meta.KindHolding, data)
		listing = !seg.Grouped()
	case manifest.FormatPassThrough:
		listing = !seg.Grouped()
	}
	if err != nil {
		return nil, err
	}
	if listing {
		text, err := e.renderListing(target, m, seg, data)
		if err != nil {
			return nil, err
		}
		if err := add(e.layout.ListingPath(seg.Name), meta.KindListing, text); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) renderListing(target disasm.Target, m *manifest.Manifest, seg manifest.Segment, data []byte) ([]byte, error) {
	base := seg.VirtualBase(m.VramOffset, e.symbols.AddressOf)
	lines, err := target.Disassemble(data, base, e.symbols)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := disasm.WriteListing(&buf, seg.Name, lines); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Listing renders the disassembly of data as segment seg would be listed at
// split time.
func (e *Engine) Listing(m *manifest.Manifest, seg manifest.Segment, data []byte) ([]byte, error) {
	target, err := targetFor(m)
	if err != nil {
		return nil, err
	}
	return e.renderListing(target, m, seg, data)
}

func targetFor(m *manifest.Manifest) (disasm.Target, error) {
	arch := m.Arch
	if arch == "" {
		arch = string(disasm.ArchPPC)
	}
	return disasm.NewTarget(arch, m.LittleEndian())
}

// gapName matches the file names split gives unmapped ranges.
var gapName = regexp.MustCompile(`^bin_[0-9a-f]+\.bin$`)

// segmentPaths lists the files split and merge write for seg.
func (e *Engine) segmentPaths(seg manifest.Segment) []string {
	format, _ := manifest.ParseFormat(string(seg.Format))
	var paths []string
	switch format {
	case manifest.FormatRaw:
		paths = append(paths, e.layout.RawPath(seg.Path, seg.Name))
	case manifest.FormatDisassemble:
		paths = append(paths, e.layout.ReferencePath(seg.Name), e.layout.ListingPath(seg.Name))
	case manifest.FormatObject:
		paths = append(paths, e.layout.HoldingPath(seg.Name), e.layout.LinkedPath(seg.Name))
		if !seg.Grouped() {
			paths = append(paths, e.layout.ListingPath(seg.Name))
		}
	case manifest.FormatPassThrough:
		if !seg.Grouped() {
			paths = append(paths, e.layout.ListingPath(seg.Name))
		}
	}
	return paths
}

// checkArtifactPaths rejects manifests where two segments, or a segment and
// an unmapped range, would write the same file.
func (e *Engine) checkArtifactPaths(m *manifest.Manifest) error {
	binDir := filepath.Clean(e.layout.BinDir)
	owner := make(map[string]string)
	for _, seg := range m.Segments {
		for _, p := range e.segmentPaths(seg) {
			p = filepath.Clean(p)
			if filepath.Dir(p) == binDir && gapName.MatchString(filepath.Base(p)) {
				return fmt.Errorf("%w: segment %s: %s is reserved for unmapped ranges", manifest.ErrMalformed, seg.Name, p)
			}
			if prev, ok := owner[p]; ok {
				return fmt.Errorf("%w: segments %s and %s both write %s", manifest.ErrMalformed, prev, seg.Name, p)
			}
			owner[p] = seg.Name
		}
	}
	return nil
}

// ledgerRecords stores artifact paths relative to the layout root.
func (e *Engine) ledgerRecords(arts []meta.Artifact) []meta.Artifact {
	out := make([]meta.Artifact, len(arts))
	for i, a := range arts {
		if rel, err := filepath.Rel(e.layout.Root, a.Path); err == nil && !strings.HasPrefix(rel, "..") {
			a.Path = filepath.ToSlash(rel)
		}
		out[i] = a
	}
	return out
}
