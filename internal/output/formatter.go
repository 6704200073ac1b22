// Package output renders the result stream: an incremental NDJSON stream, a
// buffered pretty JSON collection, or a human-readable end-of-run summary.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Crusty-rs/crusty/internal/dispatch"
	"github.com/Crusty-rs/crusty/internal/target"
)

// Mode selects the output discipline.
type Mode string

const (
	// TextMode buffers everything and prints a human summary at the end.
	TextMode Mode = "text"

	// JSONStreamMode emits one NDJSON record per result as it arrives.
	JSONStreamMode Mode = "json"

	// JSONPrettyMode buffers results and prints one indented collection,
	// ordered by inventory position.
	JSONPrettyMode Mode = "pretty-json"
)

// Formatter consumes results one at a time and finishes with Finalize.
type Formatter interface {
	Format(result *dispatch.Result) error
	Finalize() error
}

// NewFormatter builds the formatter for the selected mode. The inventory
// order of targets fixes the ordering of buffered modes.
func NewFormatter(mode Mode, w io.Writer, targets []target.Target, fields *FieldFilter) (Formatter, error) {
	switch mode {
	case TextMode:
		return &textFormatter{w: w, order: targetOrder(targets)}, nil
	case JSONStreamMode:
		return &streamFormatter{w: w, fields: fields}, nil
	case JSONPrettyMode:
		return &prettyFormatter{w: w, order: targetOrder(targets), fields: fields}, nil
	default:
		return nil, fmt.Errorf("unknown output mode %q", mode)
	}
}

func targetOrder(targets []target.Target) map[string]int {
	order := make(map[string]int, len(targets))
	for i, t := range targets {
		order[t.Key()] = i
	}
	return order
}

// record flattens a result into the streaming record schema. A mechanism
// failure carries an error description and a null exit_code instead of
// output content.
func record(r *dispatch.Result, fields *FieldFilter) map[string]any {
	m := map[string]any{
		"hostname":    r.Target.String(),
		"duration_ms": r.Duration.Milliseconds(),
		"timestamp":   r.Timestamp.UTC().Format(time.RFC3339),
		"attempts":    r.Attempts,
	}
	if r.Err != nil {
		m["exit_code"] = nil
		m["error"] = r.Err.Error()
	} else {
		m["exit_code"] = *r.ExitCode
		m["stdout"] = r.Stdout
		m["stderr"] = r.Stderr
		m["stdout_lines"] = r.StdoutLines()
	}
	return fields.Apply(m)
}

// streamFormatter writes one self-contained JSON record per line, the
// instant each result is available.
type streamFormatter struct {
	w      io.Writer
	fields *FieldFilter
}

func (f *streamFormatter) Format(r *dispatch.Result) error {
	data, err := json.Marshal(record(r, f.fields))
	if err != nil {
		return fmt.Errorf("marshal result for %s: %w", r.Target, err)
	}
	_, err = fmt.Fprintf(f.w, "%s\n", data)
	return err
}

func (f *streamFormatter) Finalize() error { return nil }

// prettyFormatter buffers all records and prints them as one indented
// collection in inventory order.
type prettyFormatter struct {
	w       io.Writer
	order   map[string]int
	fields  *FieldFilter
	results []*dispatch.Result
}

func (f *prettyFormatter) Format(r *dispatch.Result) error {
	f.results = append(f.results, r)
	return nil
}

func (f *prettyFormatter) Finalize() error {
	sortByInventory(f.results, f.order)
	records := make([]map[string]any, 0, len(f.results))
	for _, r := range f.results {
		records = append(records, record(r, f.fields))
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	_, err = fmt.Fprintf(f.w, "%s\n", data)
	return err
}

// textFormatter buffers all results and prints the human summary: totals,
// then successes with duration and stdout, then failures with reasons.
type textFormatter struct {
	w       io.Writer
	order   map[string]int
	results []*dispatch.Result
}

func (f *textFormatter) Format(r *dispatch.Result) error {
	f.results = append(f.results, r)
	return nil
}

func (f *textFormatter) Finalize() error {
	sortByInventory(f.results, f.order)

	var ok, failed []*dispatch.Result
	for _, r := range f.results {
		if r.Success {
			ok = append(ok, r)
		} else {
			failed = append(failed, r)
		}
	}

	fmt.Fprintf(f.w, "%d hosts: %d succeeded, %d failed\n", len(f.results), len(ok), len(failed))

	for _, r := range ok {
		fmt.Fprintf(f.w, "\n=== %s (%v", r.Target, r.Duration.Round(time.Millisecond))
		if r.Attempts > 1 {
			fmt.Fprintf(f.w, ", %d attempts", r.Attempts)
		}
		fmt.Fprint(f.w, ") ===\n")
		if r.Stdout != "" {
			fmt.Fprint(f.w, r.Stdout)
			if !strings.HasSuffix(r.Stdout, "\n") {
				fmt.Fprintln(f.w)
			}
		}
	}

	if len(failed) > 0 {
		fmt.Fprintf(f.w, "\nFailed hosts:\n")
		for _, r := range failed {
			fmt.Fprintf(f.w, "  %s: %s\n", r.Target, failureReason(r))
			if r.Stderr != "" {
				for _, line := range strings.Split(strings.TrimRight(r.Stderr, "\n"), "\n") {
					fmt.Fprintf(f.w, "    %s\n", line)
				}
			}
		}
	}

	return nil
}

func failureReason(r *dispatch.Result) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.ExitCode != nil {
		return fmt.Sprintf("exit code %d", *r.ExitCode)
	}
	return "unknown failure"
}

func sortByInventory(results []*dispatch.Result, order map[string]int) {
	sort.SliceStable(results, func(i, j int) bool {
		return order[results[i].Target.Key()] < order[results[j].Target.Key()]
	})
}
