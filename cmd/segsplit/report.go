package main

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/kk-code-lab/segsplit/internal/meta"
	"github.com/kk-code-lab/segsplit/internal/ops"
)

func printReport(cfg config, report *ops.Report) error {
	if cfg.jsonOut {
		return writeJSON(cfg.stdout, report)
	}
	_, err := fmt.Fprintln(cfg.stdout, formatReport(report))
	return err
}

func formatReport(report *ops.Report) string {
	if report == nil {
		return ""
	}
	switch report.Mode {
	case "checksum":
		verdict := "mismatch"
		if report.Match != nil && *report.Match {
			verdict = "match"
		}
		return fmt.Sprintf("expected: %s\ncalculated: %s\n%s", report.Expected, report.Actual, verdict)
	case "status":
		return fmt.Sprintf("mode=status manifest=%s artifacts=%d %s missing=%d recorded=%d last_run=%s errors=%d",
			report.Manifest, report.Artifacts, formatKinds(report.Kinds), report.Missing, report.Recorded, orNone(report.LastRun), report.Errors)
	case "scrub":
		lines := []string{fmt.Sprintf("mode=scrub manifest=%s recorded=%d checked=%d modified=%d missing=%d last_run=%s errors=%d",
			report.Manifest, report.Recorded, report.Artifacts, report.Modified, report.Missing, orNone(report.LastRun), report.Errors)}
		for _, p := range report.ModifiedPaths {
			lines = append(lines, "modified "+p)
		}
		for _, p := range report.MissingPaths {
			lines = append(lines, "missing "+p)
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("mode=%s errors=%d", report.Mode, report.Errors)
	}
}

// formatKinds renders per-kind counts in a fixed order.
func formatKinds(kinds map[string]int) string {
	parts := make([]string, 0, len(kinds))
	seen := make(map[string]bool)
	for _, k := range meta.Kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, kinds[string(k)]))
		seen[string(k)] = true
	}
	var extra []string
	for k := range kinds {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, fmt.Sprintf("%s=%d", k, kinds[k]))
	}
	return strings.Join(parts, " ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func printCommandHelp(w io.Writer, cmd string) {
	switch cmd {
	case "split":
		fmt.Fprintln(w, "split <manifest> [<image>]: verify the image digest, then dump every segment and gap.")
		fmt.Fprintln(w, "Image defaults to "+defaultImage+". Flags: -root, -symbols, -ledger, -no-ledger.")
	case "merge":
		fmt.Fprintln(w, "merge <manifest> <output-image>: concatenate segment and gap artifacts into one image.")
		fmt.Fprintln(w, "Object segments are linked from build/<name>.obj. Flags: -root, -verify.")
	case "checksum":
		fmt.Fprintln(w, "checksum <manifest> <image>: print expected and calculated digests; never fails on mismatch.")
	case "status":
		fmt.Fprintln(w, "status <manifest>: count artifacts on disk by kind and what the ledger recorded.")
	case "scrub":
		fmt.Fprintln(w, "scrub <manifest>: rehash ledger artifacts and list modified or missing ones (exit 1 if any).")
	case "diff":
		fmt.Fprintln(w, "diff <manifest> <segment>: diff the reference listing against the rebuilt code (exit 1 if they differ).")
	default:
		fmt.Fprintf(w, "Unknown command %q\n", cmd)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(normalizeJSONValue(v), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func normalizeJSONValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return reflect.MakeSlice(rv.Type(), 0, 0).Interface()
		}
	case reflect.Map:
		if rv.IsNil() {
			return reflect.MakeMap(rv.Type()).Interface()
		}
	}
	return v
}
