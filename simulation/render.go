package simulation

import (
	"bufio"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var reportJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteText writes the report in the human-readable form: per-actor counts, per-actor values,
// totals, and the account state if attached.
func (r Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)

	for _, actor := range r.Actors {
		_, _ = fmt.Fprintf(bw, "Actor %d (%s): mutations made times: %d\n", actor.Index, actor.Direction, actor.Successes)
	}
	_, _ = fmt.Fprintf(bw, "Total mutations by all actors: %d\n", r.TotalSuccesses)

	for _, actor := range r.Actors {
		_, _ = fmt.Fprintf(bw, "Actor %d (%s): mutations made values: %s\n", actor.Index, actor.Direction, actor.Sum)
	}
	_, _ = fmt.Fprintf(bw, "Total value mutated by all actors: %s\n", r.TotalSum)
	_, _ = fmt.Fprintf(bw, "Net balance change: %s\n", r.TotalSigned)
	_, _ = fmt.Fprintf(bw, "Version conflicts: %d\n", r.TotalConflicts)

	for _, actor := range r.Actors {
		if actor.Error != "" {
			_, _ = fmt.Fprintf(bw, "Actor %d failed: %s\n", actor.Index, actor.Error)
		}
	}

	if r.Initial != nil && r.Final != nil {
		_, _ = fmt.Fprintf(bw, "Balance: %s (version %d) -> %s (version %d)\n",
			r.Initial.Balance, r.Initial.Version, r.Final.Balance, r.Final.Version)
	}

	return bw.Flush()
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	encoded, err := reportJSON.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if _, err := w.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
