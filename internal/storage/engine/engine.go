package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kk-code-lab/segsplit/internal/clock"
	"github.com/kk-code-lab/segsplit/internal/digest"
	"github.com/kk-code-lab/segsplit/internal/meta"
	"github.com/kk-code-lab/segsplit/internal/storage/fs"
	"github.com/kk-code-lab/segsplit/internal/symbols"
)

var (
	// ErrOverlap reports a segment that starts behind the cursor.
	ErrOverlap = errors.New("engine: segments overlap or are out of order")
	// ErrSizeMismatch reports a merge artifact whose length differs from its segment.
	ErrSizeMismatch = errors.New("engine: artifact size mismatch")
	// ErrPositionDrift reports an image position that disagrees with the cursor.
	ErrPositionDrift = errors.New("engine: image position drift")
	// ErrTruncatedImage reports a segment extending past the end of the image.
	ErrTruncatedImage = errors.New("engine: segment extends past end of image")
)

// Options configures the split/merge engine.
type Options struct {
	Layout fs.Layout
	// Symbols resolves listing labels and operands; nil means an empty table.
	Symbols *symbols.Table
	// Ledger, when set, receives the artifacts of every successful split.
	Ledger *meta.Store
	// Verify makes Merge check the output digest against the manifest.
	Verify bool
	// Logger receives one line per artifact; nil disables logging.
	Logger *log.Logger
	Clock  clock.Clock
}

// Engine splits images into artifacts and merges them back.
type Engine struct {
	layout  fs.Layout
	symbols *symbols.Table
	ledger  *meta.Store
	verify  bool
	logger  *log.Logger
	clock   clock.Clock
	runIDs  *clock.HLC
}

// New creates an engine instance.
func New(opts Options) (*Engine, error) {
	if opts.Layout.Root == "" {
		return nil, errors.New("engine: layout root required")
	}
	if opts.Symbols == nil {
		opts.Symbols = symbols.NewTable()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Engine{
		layout:  opts.Layout,
		symbols: opts.Symbols,
		ledger:  opts.Ledger,
		verify:  opts.Verify,
		logger:  opts.Logger,
		clock:   opts.Clock,
		runIDs:  clock.New(opts.Clock),
	}, nil
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// writeArtifact replaces path with data and returns its ledger record.
func writeArtifact(path string, kind meta.Kind, segment string, offset uint64, data []byte) (meta.Artifact, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return meta.Artifact{}, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return meta.Artifact{}, fmt.Errorf("write %s: %w", path, err)
	}
	sum := digest.Sum256(data)
	return meta.Artifact{
		Path:    path,
		Kind:    kind,
		Segment: segment,
		Offset:  offset,
		Size:    int64(len(data)),
		Hash:    hex.EncodeToString(sum[:]),
	}, nil
}
