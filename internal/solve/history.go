package solve

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// HistoryEntry is one timestamped block of conda-meta/history: the
// command that produced it, the specs it added/removed, and the full
// set of records installed immediately afterward.
type HistoryEntry struct {
	Timestamp    time.Time
	Command      string
	SpecsAdded   []MatchSpec
	SpecsRemoved []MatchSpec
	Records      []Identity
}

const historyFileName = "conda-meta/history"

const historyTimeLayout = "2006-01-02 15:04:05"

// ReadHistory implements spec.md §4.6's read(prefix) -> list<HistoryEntry>.
// Malformed blocks are skipped with a warning rather than aborting the
// whole read, matching the spec's tolerant-parsing requirement.
func ReadHistory(ctx context.Context, prefix string) ([]HistoryEntry, error) {
	path := filepath.Join(prefix, historyFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newHistoryCorruptedError(path, 0)
	}
	defer f.Close()

	entries, err := parseHistory(ctx, f, path)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func parseHistory(ctx context.Context, r io.Reader, path string) ([]HistoryEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var entries []HistoryEntry
	var cur *HistoryEntry
	lineNo := 0
	blockValid := true

	flush := func() {
		if cur != nil && blockValid {
			entries = append(entries, *cur)
		}
		cur = nil
		blockValid = true
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, wrapCancellation(err, "history read cancelled")
		}
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "==>") && strings.HasSuffix(line, "<==") {
			flush()
			ts, err := parseHistoryTimestamp(line)
			if err != nil {
				log.Ctx(ctx).Warn().Str("file", path).Int("line", lineNo).Err(err).Msg("skipping malformed history block header")
				blockValid = false
				continue
			}
			cur = &HistoryEntry{Timestamp: ts}
			continue
		}

		if cur == nil {
			// content before any header: not a valid block, ignore line.
			continue
		}

		switch {
		case strings.HasPrefix(line, "# cmd:"):
			cur.Command = strings.TrimSpace(strings.TrimPrefix(line, "# cmd:"))
		case strings.HasPrefix(line, "# update_specs:"):
			specs, err := parseSpecListComment(strings.TrimPrefix(line, "# update_specs:"))
			if err != nil {
				log.Ctx(ctx).Warn().Str("file", path).Int("line", lineNo).Err(err).Msg("skipping malformed update_specs line")
				continue
			}
			cur.SpecsAdded = append(cur.SpecsAdded, specs...)
		case strings.HasPrefix(line, "# remove_specs:"):
			specs, err := parseSpecListComment(strings.TrimPrefix(line, "# remove_specs:"))
			if err != nil {
				log.Ctx(ctx).Warn().Str("file", path).Int("line", lineNo).Err(err).Msg("skipping malformed remove_specs line")
				continue
			}
			cur.SpecsRemoved = append(cur.SpecsRemoved, specs...)
		case strings.HasPrefix(line, "#"):
			// unknown comment line: tolerate per spec.md §6.
		default:
			id, err := parseHistoryRecordLine(line)
			if err != nil {
				log.Ctx(ctx).Warn().Str("file", path).Int("line", lineNo).Err(err).Msg("skipping malformed history record line")
				continue
			}
			cur.Records = append(cur.Records, id)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, newHistoryCorruptedError(path, lineNo)
	}
	return entries, nil
}

func parseHistoryTimestamp(line string) (time.Time, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "==>"), "<==")
	inner = strings.TrimSpace(inner)
	return time.Parse(historyTimeLayout, inner)
}

// parseSpecListComment parses "[numpy=1.2,requests]" style lists.
func parseSpecListComment(s string) ([]MatchSpec, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	specs := make([]MatchSpec, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		spec, err := ParseMatchSpec(p)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// parseHistoryRecordLine parses a bare "name-version-build" line into
// an Identity (channel/subdir are not recorded in this legacy format).
func parseHistoryRecordLine(line string) (Identity, error) {
	fields := strings.Split(line, "-")
	if len(fields) < 3 {
		return Identity{}, fmt.Errorf("malformed history record line %q", line)
	}
	build := fields[len(fields)-1]
	version := fields[len(fields)-2]
	name := strings.Join(fields[:len(fields)-2], "-")
	if name == "" || version == "" || build == "" {
		return Identity{}, fmt.Errorf("malformed history record line %q", line)
	}
	return Identity{Name: name, Version: version, Build: build}, nil
}

// AppendHistory implements spec.md §4.6's append(prefix, entry). Writes
// are tolerant of the file being absent (created) or the directory
// being read-only (warn, skip), never returning an error that would
// abort a solve.
func AppendHistory(ctx context.Context, prefix string, entry HistoryEntry, allRecords []*PackageRecord) {
	path := filepath.Join(prefix, historyFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Ctx(ctx).Warn().Str("file", path).Err(err).Msg("history directory not writable, skipping append")
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Ctx(ctx).Warn().Str("file", path).Err(err).Msg("history file not writable, skipping append")
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "==> %s <==\n", entry.Timestamp.Format(historyTimeLayout))
	if entry.Command != "" {
		fmt.Fprintf(w, "# cmd: %s\n", entry.Command)
	}
	fmt.Fprintf(w, "# update_specs: [%s]\n", joinSpecStrings(entry.SpecsAdded))
	fmt.Fprintf(w, "# remove_specs: [%s]\n", joinSpecStrings(entry.SpecsRemoved))
	for _, r := range allRecords {
		fmt.Fprintf(w, "%s-%s-%s\n", r.Name, r.Version.String(), r.Build)
	}
	if err := w.Flush(); err != nil {
		log.Ctx(ctx).Warn().Str("file", path).Err(err).Msg("history append failed to flush")
	}
}

func joinSpecStrings(specs []MatchSpec) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		parts = append(parts, s.ToCanonicalString())
	}
	return strings.Join(parts, ", ")
}

// DeriveHistorySpecs implements spec.md §4.6's derive_history_specs():
// walk entries oldest-to-newest, unioning +spec adds and -spec removes
// by name, producing the surviving set of user-requested specs.
// Removing a name from history does not by itself uninstall the
// package (enforced by callers treating this purely as the demand
// set, never as an un-link instruction).
func DeriveHistorySpecs(entries []HistoryEntry) []MatchSpec {
	surviving := make(map[string]MatchSpec)
	listed := make(map[string]struct{})
	var order []string
	for _, e := range entries {
		for _, s := range e.SpecsAdded {
			if _, ok := listed[s.Name]; !ok {
				listed[s.Name] = struct{}{}
				order = append(order, s.Name)
			}
			surviving[s.Name] = s
		}
		for _, s := range e.SpecsRemoved {
			delete(surviving, s.Name)
		}
	}
	out := make([]MatchSpec, 0, len(surviving))
	for _, name := range order {
		if s, ok := surviving[name]; ok {
			out = append(out, s)
		}
	}
	return out
}
