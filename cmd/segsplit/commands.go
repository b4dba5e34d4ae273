package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kk-code-lab/segsplit/internal/diff"
	"github.com/kk-code-lab/segsplit/internal/ops"
	"github.com/kk-code-lab/segsplit/internal/storage/manifest"
)

func runSplit(cfg config, args []string) error {
	if len(args) < 1 {
		return usageError(ErrManifestRequired)
	}
	if len(args) > 2 {
		return usageError(fmt.Errorf("unknown arguments: %v", args[2:]))
	}
	image := defaultImage
	if len(args) == 2 {
		image = args[1]
	}
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	res, err := eng.Split(ctx, m, image)
	if err != nil {
		return err
	}
	// The ledger is opened only once there is a run to record.
	ledger, err := openLedger(cfg, true)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if ledger != nil {
		defer ledger.Close()
		if err := eng.Record(ctx, ledger, res); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		if err := ledger.Flush(); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
	}
	if cfg.jsonOut {
		return writeJSON(cfg.stdout, res)
	}
	fmt.Fprintf(cfg.stdout, "split manifest=%s run=%s image_size=%d segments=%d gaps=%d artifacts=%d\n",
		res.Manifest, res.RunID, res.ImageSize, res.Segments, res.Gaps, len(res.Artifacts))
	return nil
}

func runMerge(cfg config, args []string) error {
	switch {
	case len(args) < 1:
		return usageError(ErrManifestRequired)
	case len(args) < 2:
		return usageError(ErrOutputRequired)
	case len(args) > 2:
		return usageError(fmt.Errorf("unknown arguments: %v", args[2:]))
	}
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	res, err := eng.Merge(m, args[1])
	if err != nil {
		return err
	}
	if cfg.jsonOut {
		return writeJSON(cfg.stdout, res)
	}
	fmt.Fprintf(cfg.stdout, "merge manifest=%s output=%s size=%d artifacts=%d digest=%s match=%t\n",
		m.Name, res.Output, res.Size, res.Artifacts, res.Digest, res.Match)
	return nil
}

func runChecksum(cfg config, args []string) error {
	switch {
	case len(args) < 1:
		return usageError(ErrManifestRequired)
	case len(args) < 2:
		return usageError(ErrImageRequired)
	case len(args) > 2:
		return usageError(fmt.Errorf("unknown arguments: %v", args[2:]))
	}
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	report, err := ops.Checksum(m, args[1])
	if err != nil {
		return err
	}
	return printReport(cfg, report)
}

func runStatus(cfg config, args []string) error {
	if len(args) != 1 {
		return usageError(ErrManifestRequired)
	}
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg, false)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer ledger.Close()
	report, err := ops.Status(context.Background(), cfg.layout, m, ledger)
	if err != nil {
		return err
	}
	return printReport(cfg, report)
}

func runScrub(cfg config, args []string) error {
	if len(args) != 1 {
		return usageError(ErrManifestRequired)
	}
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	ledger, err := openLedger(cfg, false)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer ledger.Close()
	report, err := ops.Scrub(context.Background(), cfg.layout, m, ledger)
	if err != nil {
		return err
	}
	if err := printReport(cfg, report); err != nil {
		return err
	}
	if report.Modified > 0 || report.Missing > 0 {
		return &exitCodeError{code: exitFatal, msg: "scrub found changed artifacts", quiet: true}
	}
	return nil
}

// runDiff disassembles the rebuilt code of a segment and diffs it against
// the reference listing written at split time.
func runDiff(cfg config, args []string) error {
	switch {
	case len(args) < 1:
		return usageError(ErrManifestRequired)
	case len(args) < 2:
		return usageError(ErrSegmentRequired)
	case len(args) > 2:
		return usageError(fmt.Errorf("unknown arguments: %v", args[2:]))
	}
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	seg, ok := m.Segment(args[1])
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSegment, args[1])
	}
	format, err := manifest.ParseFormat(string(seg.Format))
	if err != nil {
		return err
	}
	var rebuiltPath string
	switch format {
	case manifest.FormatObject:
		rebuiltPath = cfg.layout.LinkedPath(seg.Name)
	case manifest.FormatPassThrough:
		rebuiltPath = cfg.layout.BuildPath(seg.Name, seg.Group)
	default:
		return fmt.Errorf("%w: %s is %s", ErrNoRebuiltCode, seg.Name, format)
	}

	referencePath := cfg.layout.ListingPath(seg.Name)
	reference, err := os.ReadFile(referencePath)
	if err != nil {
		return err
	}
	rebuilt, err := os.ReadFile(rebuiltPath)
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	listing, err := eng.Listing(m, seg, rebuilt)
	if err != nil {
		return err
	}
	body, err := diff.Unified(referencePath, rebuiltPath, reference, listing, diff.Options{})
	if err != nil {
		return err
	}
	if body == "" {
		fmt.Fprintf(cfg.stdout, "segment %s: identical\n", seg.Name)
		return nil
	}
	fmt.Fprint(cfg.stdout, body)
	if !strings.HasSuffix(body, "\n") {
		fmt.Fprintln(cfg.stdout)
	}
	return &exitCodeError{code: exitFatal, msg: ErrListingsDiffer.Error(), quiet: true}
}
