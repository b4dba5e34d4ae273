package ops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kk-code-lab/segsplit/internal/digest"
	"github.com/kk-code-lab/segsplit/internal/meta"
	"github.com/kk-code-lab/segsplit/internal/storage/fs"
	"github.com/kk-code-lab/segsplit/internal/storage/manifest"
)

const maxErrorSample = 5

// Report summarizes an ops run.
type Report struct {
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Mode          string         `json:"mode"`
	Manifest      string         `json:"manifest,omitempty"`
	Artifacts     int            `json:"artifacts"`
	Kinds         map[string]int `json:"kinds,omitempty"`
	Recorded      int            `json:"recorded,omitempty"`
	LastRun       string         `json:"last_run,omitempty"`
	Modified      int            `json:"modified,omitempty"`
	Missing       int            `json:"missing,omitempty"`
	ModifiedPaths []string       `json:"modified_paths,omitempty"`
	MissingPaths  []string       `json:"missing_paths,omitempty"`
	Expected      string         `json:"expected,omitempty"`
	Actual        string         `json:"actual,omitempty"`
	Match         *bool          `json:"match,omitempty"`
	Errors        int            `json:"errors"`
	ErrorSample   []string       `json:"error_sample,omitempty"`
}

func (r *Report) addError(err error) {
	r.Errors++
	if len(r.ErrorSample) < maxErrorSample {
		r.ErrorSample = append(r.ErrorSample, err.Error())
	}
}

// Status counts the artifacts a manifest implies that exist on disk, and
// what the ledger recorded for its last split. ledger may be nil.
func Status(ctx context.Context, layout fs.Layout, m *manifest.Manifest, ledger *meta.Store) (*Report, error) {
	report := &Report{Mode: "status", Manifest: m.Name, StartedAt: now(), Kinds: make(map[string]int)}

	gaps, err := listFiles(layout.BinDir)
	if err != nil {
		return nil, err
	}
	for _, path := range gaps {
		if strings.HasPrefix(filepath.Base(path), "bin_") {
			report.Kinds[string(meta.KindGap)]++
			report.Artifacts++
		}
	}
	for _, exp := range expectedArtifacts(layout, m) {
		if _, err := os.Stat(exp.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				report.Missing++
				report.MissingPaths = append(report.MissingPaths, exp.path)
				continue
			}
			report.addError(err)
			continue
		}
		report.Kinds[string(exp.kind)]++
		report.Artifacts++
	}

	if ledger != nil {
		run, err := ledger.LastRun(ctx, m.Name)
		switch {
		case err == nil:
			report.LastRun = run.ID
		case errors.Is(err, meta.ErrNoRun):
		default:
			return nil, err
		}
		recorded, err := ledger.ListArtifacts(ctx, m.Name)
		if err != nil {
			return nil, err
		}
		report.Recorded = len(recorded)
	}
	report.FinishedAt = now()
	return report, nil
}

type expectedArtifact struct {
	path string
	kind meta.Kind
}

// expectedArtifacts lists the segment artifacts a split of m writes.
func expectedArtifacts(layout fs.Layout, m *manifest.Manifest) []expectedArtifact {
	var out []expectedArtifact
	for _, seg := range m.Segments {
		format, err := manifest.ParseFormat(string(seg.Format))
		if err != nil {
			continue
		}
		switch format {
		case manifest.FormatRaw:
			out = append(out, expectedArtifact{layout.RawPath(seg.Path, seg.Name), meta.KindRaw})
		case manifest.FormatDisassemble:
			out = append(out,
				expectedArtifact{layout.ReferencePath(seg.Name), meta.KindReference},
				expectedArtifact{layout.ListingPath(seg.Name), meta.KindListing})
		case manifest.FormatObject:
			out = append(out, expectedArtifact{layout.HoldingPath(seg.Name), meta.KindHolding})
			if !seg.Grouped() {
				out = append(out, expectedArtifact{layout.ListingPath(seg.Name), meta.KindListing})
			}
		case manifest.FormatPassThrough:
			if !seg.Grouped() {
				out = append(out, expectedArtifact{layout.ListingPath(seg.Name), meta.KindListing})
			}
		}
	}
	return out
}

// Scrub rehashes every artifact recorded for the manifest's last split and
// reports the ones that changed or disappeared since.
func Scrub(ctx context.Context, layout fs.Layout, m *manifest.Manifest, ledger *meta.Store) (*Report, error) {
	if ledger == nil {
		return nil, errors.New("ops: scrub requires a ledger")
	}
	report := &Report{Mode: "scrub", Manifest: m.Name, StartedAt: now()}
	run, err := ledger.LastRun(ctx, m.Name)
	if err != nil {
		return nil, err
	}
	report.LastRun = run.ID
	recorded, err := ledger.ListArtifacts(ctx, m.Name)
	if err != nil {
		return nil, err
	}
	report.Recorded = len(recorded)
	for _, a := range recorded {
		path := a.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(layout.Root, filepath.FromSlash(path))
		}
		sum, err := digest.Of(path, digest.BLAKE3)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				report.Missing++
				report.MissingPaths = append(report.MissingPaths, a.Path)
				continue
			}
			report.addError(fmt.Errorf("%s: %w", a.Path, err))
			continue
		}
		report.Artifacts++
		if !digest.Equal(sum, a.Hash) {
			report.Modified++
			report.ModifiedPaths = append(report.ModifiedPaths, a.Path)
		}
	}
	report.FinishedAt = now()
	return report, nil
}

// Checksum compares the image digest with the manifest's. A mismatch is
// reported, never returned as an error.
func Checksum(m *manifest.Manifest, imagePath string) (*Report, error) {
	report := &Report{Mode: "checksum", Manifest: m.Name, StartedAt: now(), Expected: strings.ToLower(m.Digest)}
	ok, actual, err := digest.Matches(imagePath, m.Digest)
	if err != nil {
		return nil, err
	}
	report.Actual = actual
	report.Match = &ok
	report.FinishedAt = now()
	return report, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	return out, nil
}
