package types

// ObjectKind identifies the kind of a replicated object
type ObjectKind string

const (
	KindIssue       ObjectKind = "issue"
	KindPullRequest ObjectKind = "pull_request"
	KindRelease     ObjectKind = "release"
	KindPlaceholder ObjectKind = "placeholder"
)

// SharesNumbering reports whether objects of this kind consume the
// repository-wide issue/pull request/discussion counter.
func (k ObjectKind) SharesNumbering() bool {
	switch k {
	case KindIssue, KindPullRequest, KindPlaceholder:
		return true
	default:
		return false
	}
}

func (k ObjectKind) String() string { return string(k) }

// SyncStatus is the state of a ledger entry
type SyncStatus string

const (
	StatusUnknown SyncStatus = "unknown"
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
	StatusSkipped SyncStatus = "skipped"
	StatusFailed  SyncStatus = "failed"
)

// ParseSyncStatus converts a string to SyncStatus. Empty string is StatusUnknown.
func ParseSyncStatus(s string) (SyncStatus, bool) {
	switch st := SyncStatus(s); st {
	case StatusPending, StatusSynced, StatusSkipped, StatusFailed, StatusUnknown:
		return st, true
	case "":
		return StatusUnknown, true
	default:
		return StatusUnknown, false
	}
}
