package sync

import "time"

// Resolution classifies one task/issue pair against the last sync point.
type Resolution int

const (
	// AcceptRemote: the remote snapshot can be applied without losing
	// local edits (remote-only change, or no sync point yet).
	AcceptRemote Resolution = iota
	// KeepLocal: only the local side changed since the last sync.
	KeepLocal
	// Conflict: both sides changed since the last sync.
	Conflict
)

func (r Resolution) String() string {
	switch r {
	case KeepLocal:
		return "keep-local"
	case Conflict:
		return "conflict"
	default:
		return "accept-remote"
	}
}

// Classify compares local and remote modification times against the last
// sync point. A nil lastSync means the pair has never been reconciled and
// the remote snapshot is authoritative. A nil remoteUpdated (tenant with
// the updated field disabled) counts as no remote change.
//
// Classification is advisory: the engine records conflicts in the run but
// applies the remote snapshot regardless of the profile's declared policy.
func Classify(localUpdated time.Time, remoteUpdated, lastSync *time.Time) Resolution {
	if lastSync == nil {
		return AcceptRemote
	}
	localChanged := localUpdated.After(*lastSync)
	remoteChanged := remoteUpdated != nil && remoteUpdated.After(*lastSync)

	switch {
	case localChanged && remoteChanged:
		return Conflict
	case localChanged:
		return KeepLocal
	default:
		return AcceptRemote
	}
}
