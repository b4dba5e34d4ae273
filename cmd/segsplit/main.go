package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/kk-code-lab/segsplit/internal/app"
	"github.com/kk-code-lab/segsplit/internal/meta"
	"github.com/kk-code-lab/segsplit/internal/storage/engine"
	"github.com/kk-code-lab/segsplit/internal/storage/fs"
	"github.com/kk-code-lab/segsplit/internal/storage/manifest"
	"github.com/kk-code-lab/segsplit/internal/symbols"
)

const defaultImage = "default.xex"

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	code, show := exitCode(err)
	if show {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(code)
}

// config carries the global flags shared by every command.
type config struct {
	layout      fs.Layout
	symbolsPath string
	ledgerPath  string
	noLedger    bool
	jsonOut     bool
	verify      bool
	logger      *log.Logger
	stdout      io.Writer
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("segsplit", flag.ContinueOnError)
	flags.SetOutput(stderr)
	showVersion := flags.Bool("version", false, "Print version and exit")
	root := flags.String("root", ".", "Artifact root directory")
	symbolsPath := flags.String("symbols", "addresses.txt", "Symbol list (addr name per line); missing file means no symbols")
	ledgerPath := flags.String("ledger", "", "Artifact ledger path (default <root>/.segsplit/ledger.db)")
	noLedger := flags.Bool("no-ledger", false, "Do not record or read the artifact ledger")
	jsonOut := flags.Bool("json", false, "Output results as JSON")
	verify := flags.Bool("verify", false, "merge: fail unless the output matches the manifest digest")
	quiet := flags.Bool("quiet", false, "Suppress per-artifact log lines")
	flags.Usage = func() { printUsage(stderr, flags) }
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &exitCodeError{code: exitUsage, msg: err.Error(), quiet: true}
	}
	if *showVersion {
		fmt.Fprintf(stdout, "segsplit %s (commit %s)\n", app.Version, app.BuildCommit)
		return nil
	}
	if flags.NArg() == 0 {
		printUsage(stderr, flags)
		return usageError(ErrCommandRequired)
	}

	cfg := config{
		layout:      fs.NewLayout(*root),
		symbolsPath: *symbolsPath,
		ledgerPath:  *ledgerPath,
		noLedger:    *noLedger,
		jsonOut:     *jsonOut,
		verify:      *verify,
		stdout:      stdout,
	}
	if !*quiet {
		cfg.logger = log.New(stderr, "", log.LstdFlags)
	}

	cmd, rest := flags.Arg(0), flags.Args()[1:]
	switch cmd {
	case "split":
		return runSplit(cfg, rest)
	case "merge":
		return runMerge(cfg, rest)
	case "checksum":
		return runChecksum(cfg, rest)
	case "status":
		return runStatus(cfg, rest)
	case "scrub":
		return runScrub(cfg, rest)
	case "diff":
		return runDiff(cfg, rest)
	case "help":
		if len(rest) == 0 {
			printUsage(stdout, flags)
			return nil
		}
		printCommandHelp(stdout, rest[0])
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", cmd))
	}
}

func printUsage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(w, "usage: segsplit [flags] <command> [args]")
	fmt.Fprintln(w, "commands: split, merge, checksum, status, scrub, diff, help")
	fmt.Fprintln(w, "flags:")
	flags.SetOutput(w)
	flags.PrintDefaults()
}

func loadManifest(path string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if err != nil {
		if errors.Is(err, manifest.ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return m, nil
}

// openLedger opens the artifact ledger. With create unset a missing ledger
// yields a nil store.
func openLedger(cfg config, create bool) (*meta.Store, error) {
	if cfg.noLedger {
		return nil, nil
	}
	path := cfg.ledgerPath
	if path == "" {
		path = cfg.layout.LedgerPath()
	}
	if !create {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return meta.Open(path)
}

func newEngine(cfg config) (*engine.Engine, error) {
	table, err := symbols.Load(cfg.symbolsPath)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		Layout:  cfg.layout,
		Symbols: table,
		Verify:  cfg.verify,
		Logger:  cfg.logger,
	})
}
