package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kk-code-lab/segsplit/internal/digest"
	"github.com/kk-code-lab/segsplit/internal/object"
	"github.com/kk-code-lab/segsplit/internal/storage/manifest"
)

// MergeResult summarizes a merge run.
type MergeResult struct {
	Output    string   `json:"output"`
	Size      int64    `json:"size"`
	Artifacts int      `json:"artifacts"`
	Functions []string `json:"functions,omitempty"`
	Digest    string   `json:"digest"`
	Match     bool     `json:"match"`
}

// Merge concatenates the artifacts of every segment and gap into outPath.
// The output is written to a temporary file and renamed on success.
func (e *Engine) Merge(m *manifest.Manifest, outPath string) (res *MergeResult, err error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkArtifactPaths(m); err != nil {
		return nil, err
	}
	algo, err := digest.ForDigest(m.Digest)
	if err != nil {
		return nil, err
	}
	h, err := algo.New()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), "."+filepath.Base(outPath)+".*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	res = &MergeResult{Output: outPath}
	w := io.MultiWriter(tmp, h)
	appendFile := func(path string, want uint64) error {
		n, err := appendArtifact(w, path, want)
		if err != nil {
			return err
		}
		e.logf("merge path=%s size=0x%x offset=0x%x", path, n, res.Size)
		res.Size += n
		res.Artifacts++
		return nil
	}

	cursor := uint64(0)
	for _, seg := range m.Segments {
		if seg.Start < cursor {
			return nil, fmt.Errorf("%w: segment %s starts at 0x%x, cursor at 0x%x", ErrOverlap, seg.Name, seg.Start, cursor)
		}
		if cursor < seg.Start {
			if err := appendFile(e.layout.GapPath(cursor), seg.Start-cursor); err != nil {
				return nil, err
			}
			cursor = seg.Start
		}
		path, err := e.resolveArtifact(m, seg, res)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.Name, err)
		}
		if err := appendFile(path, seg.Size); err != nil {
			return nil, fmt.Errorf("segment %s: %w", seg.Name, err)
		}
		cursor += seg.Size
	}
	trailing := e.layout.GapPath(cursor)
	info, err := os.Stat(trailing)
	switch {
	case err == nil && info.Mode().IsRegular():
		if err := appendFile(trailing, uint64(info.Size())); err != nil {
			return nil, err
		}
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	if err := tmp.Sync(); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	res.Digest = hex.EncodeToString(h.Sum(nil))
	res.Match = digest.Equal(res.Digest, m.Digest)
	if e.verify && !res.Match {
		return nil, fmt.Errorf("%w: %s expected %s got %s", digest.ErrMismatch, outPath, strings.ToLower(m.Digest), res.Digest)
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return nil, err
	}
	return res, nil
}

// resolveArtifact returns the file that supplies a segment's bytes.
func (e *Engine) resolveArtifact(m *manifest.Manifest, seg manifest.Segment, res *MergeResult) (string, error) {
	format, err := manifest.ParseFormat(string(seg.Format))
	if err != nil {
		return "", err
	}
	switch format {
	case manifest.FormatRaw:
		return e.layout.RawPath(seg.Path, seg.Name), nil
	case manifest.FormatDisassemble:
		return e.layout.ReferencePath(seg.Name), nil
	case manifest.FormatObject:
		names, err := e.link(m, seg)
		if err != nil {
			return "", err
		}
		res.Functions = append(res.Functions, names...)
		return e.layout.LinkedPath(seg.Name), nil
	default:
		return e.layout.BuildPath(seg.Name, seg.Group), nil
	}
}

// link extracts the functions of a segment's compiled object into its
// linked artifact.
func (e *Engine) link(m *manifest.Manifest, seg manifest.Segment) ([]string, error) {
	linked := e.layout.LinkedPath(seg.Name)
	if err := os.MkdirAll(filepath.Dir(linked), 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(linked)
	if err != nil {
		return nil, err
	}
	names, n, err := object.Extract(e.layout.ObjectPath(seg.Name), object.MachineFor(m.LittleEndian()), object.PathSource(e.layout.FunctionPath), file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	e.logf("link segment=%s functions=%d size=0x%x path=%s", seg.Name, len(names), n, linked)
	return names, nil
}

// appendArtifact copies the file at path to w after checking its length.
func appendArtifact(w io.Writer, path string, want uint64) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	if uint64(info.Size()) != want {
		return 0, fmt.Errorf("%w: %s expected %d bytes, got %d", ErrSizeMismatch, path, want, info.Size())
	}
	n, err := io.Copy(w, file)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", path, err)
	}
	return n, nil
}
