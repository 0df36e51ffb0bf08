package model

import "github.com/m-mizutani/reposync/pkg/domain/types"

// ItemFailure describes one item that could not be synchronized
type ItemFailure struct {
	Key               LedgerKey
	DestinationNumber int64 // 0 when nothing was created
	Err               error
	Hint              string
}

// TitleMatch is a destination object kept as the replica of a source item
// only because it has the same title and kind. It carries no marker, so it
// may be unrelated.
type TitleMatch struct {
	Key LedgerKey
	URL string
}

// Report summarizes one collection sync pass
type Report struct {
	RunID        string
	Synced       int
	Skipped      int
	Placeholders int
	Degraded     int // pull requests recreated with a synthetic head
	Failures     []*ItemFailure
	TitleMatches []*TitleMatch
	// Aborted is set when a fatal error stopped the pass
	Aborted error
}

// OK reports whether the pass finished without failures
func (r *Report) OK() bool {
	return r.Aborted == nil && len(r.Failures) == 0
}

// Merge adds the counters and failures of other into r
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Synced += other.Synced
	r.Skipped += other.Skipped
	r.Placeholders += other.Placeholders
	r.Degraded += other.Degraded
	r.Failures = append(r.Failures, other.Failures...)
	r.TitleMatches = append(r.TitleMatches, other.TitleMatches...)
	if r.Aborted == nil {
		r.Aborted = other.Aborted
	}
}

// AddFailure records a failed item with its remediation hint
func (r *Report) AddFailure(key LedgerKey, dest int64, err error) {
	r.Failures = append(r.Failures, &ItemFailure{
		Key:               key,
		DestinationNumber: dest,
		Err:               err,
		Hint:              types.RemediationHint(err),
	})
}
