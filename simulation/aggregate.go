package simulation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore"
)

// ActorReport is the aggregated view of one actor.
type ActorReport struct {
	Index      int             `json:"actor"`
	Direction  string          `json:"direction"`
	Successes  int             `json:"successes"`
	Sum        decimal.Decimal `json:"sum"`
	SignedSum  decimal.Decimal `json:"signed_sum"`
	Conflicts  int             `json:"conflicts"`
	StopReason string          `json:"stop_reason"`
	Error      string          `json:"error,omitempty"`
}

// SnapshotReport is a balance/version pair as shown in a Report.
type SnapshotReport struct {
	Balance decimal.Decimal `json:"balance"`
	Version int64           `json:"version"`
}

// Report is the result of a simulation run.
type Report struct {
	RunID          string          `json:"run_id,omitempty"`
	AccountID      int64           `json:"account_id"`
	Actors         []ActorReport   `json:"actors"`
	TotalSuccesses int             `json:"total_successes"`
	TotalSum       decimal.Decimal `json:"total_sum"`
	TotalSigned    decimal.Decimal `json:"total_signed"`
	TotalConflicts int             `json:"total_conflicts"`
	Failures       int             `json:"failures"`
	Initial        *SnapshotReport `json:"initial,omitempty"`
	Final          *SnapshotReport `json:"final,omitempty"`
}

// Aggregate merges per-actor results into a Report ordered by actor index.
// The signed sum of an actor is its committed sum, negated for debit actors.
func Aggregate(results []ActorResult) Report {
	report := Report{
		Actors:      make([]ActorReport, 0, len(results)),
		TotalSum:    decimal.Zero,
		TotalSigned: decimal.Zero,
	}

	for _, result := range results {
		signed := result.Direction.Signed(result.Sum)

		actor := ActorReport{
			Index:      result.Index,
			Direction:  result.Direction.String(),
			Successes:  result.Successes,
			Sum:        result.Sum,
			SignedSum:  signed,
			Conflicts:  result.Conflicts,
			StopReason: result.StopReason.String(),
		}

		if result.Err != nil {
			actor.Error = result.Err.Error()
			report.Failures++
		}

		report.Actors = append(report.Actors, actor)
		report.TotalSuccesses += result.Successes
		report.TotalSum = report.TotalSum.Add(result.Sum)
		report.TotalSigned = report.TotalSigned.Add(signed)
		report.TotalConflicts += result.Conflicts
	}

	sort.Slice(report.Actors, func(i, j int) bool {
		return report.Actors[i].Index < report.Actors[j].Index
	})

	return report
}

// WithSnapshots attaches the account state before and after the run.
func (r Report) WithSnapshots(initial, final accountstore.Snapshot) Report {
	r.Initial = &SnapshotReport{Balance: initial.Balance, Version: initial.Version}
	r.Final = &SnapshotReport{Balance: final.Balance, Version: final.Version}

	return r
}

// Consistent reports whether the final account state equals the initial state plus every
// committed mutation: the balance moved by exactly TotalSigned and the version by exactly
// TotalSuccesses. It returns false when the snapshots are not attached.
func (r Report) Consistent() bool {
	if r.Initial == nil || r.Final == nil {
		return false
	}

	return r.Final.Balance.Equal(r.Initial.Balance.Add(r.TotalSigned)) &&
		r.Final.Version == r.Initial.Version+int64(r.TotalSuccesses)
}
