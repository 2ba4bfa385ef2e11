package sessionstore

import (
	"time"

	"github.com/abhisek/examdrill/internal/remote"
)

// Source says which store an active session was resolved from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Shape is the combination of local and remote candidates seen.
type Shape int

const (
	ShapeNeither Shape = iota
	ShapeLocalOnly
	ShapeRemoteOnly
	ShapeBothMatching
	ShapeBothMismatching
)

func (s Shape) String() string {
	switch s {
	case ShapeLocalOnly:
		return "local-only"
	case ShapeRemoteOnly:
		return "remote-only"
	case ShapeBothMatching:
		return "both-matching"
	case ShapeBothMismatching:
		return "both-mismatching"
	default:
		return "neither"
	}
}

// LocalCandidate is the most recently saved local session that has not ended.
type LocalCandidate struct {
	SessionID    string
	LastActiveAt time.Time
}

// Lookup is the result of asking the remote about the local candidate by ID.
type Lookup struct {
	// Record is nil when the remote has no such record.
	Record      *remote.Record
	Unavailable bool
}

// Inputs is everything reconciliation looks at.
type Inputs struct {
	Local *LocalCandidate

	// Remote is the most recently started in-progress remote record.
	Remote *remote.Record

	// RemoteUnavailable is set when the in-progress query failed. Remote is
	// nil in that case.
	RemoteUnavailable bool

	// Lookup is filled in after a decision asks for verification.
	Lookup *Lookup
}

// Decision is the outcome of reconciliation. An empty SessionID means there
// is no active session.
type Decision struct {
	Shape     Shape
	SessionID string
	Source    Source

	// NeedsVerification asks the caller to look the local candidate up on
	// the remote, set Inputs.Lookup and reconcile again.
	NeedsVerification bool

	// DeleteLocal lists local copies to remove.
	DeleteLocal []string

	Mismatch *MismatchError
}

// None reports whether there is no session to resume.
func (d Decision) None() bool {
	return d.SessionID == "" && !d.NeedsVerification
}

// Reconcile decides which session, if any, should be resumed. The remote is
// the tie-breaker whenever both stores have a candidate; a local-only
// session survives unless the remote confirms it has ended.
func Reconcile(in Inputs) Decision {
	switch {
	case in.Local == nil && in.Remote == nil:
		return Decision{Shape: ShapeNeither}

	case in.Local == nil:
		return Decision{
			Shape:     ShapeRemoteOnly,
			SessionID: in.Remote.SessionID,
			Source:    SourceRemote,
		}

	case in.Remote == nil:
		return reconcileLocalOnly(in)

	case in.Local.SessionID == in.Remote.SessionID:
		return Decision{
			Shape:     ShapeBothMatching,
			SessionID: in.Remote.SessionID,
			Source:    SourceRemote,
		}

	default:
		return Decision{
			Shape:       ShapeBothMismatching,
			SessionID:   in.Remote.SessionID,
			Source:      SourceRemote,
			DeleteLocal: []string{in.Local.SessionID},
			Mismatch:    &MismatchError{LocalID: in.Local.SessionID, RemoteID: in.Remote.SessionID},
		}
	}
}

func reconcileLocalOnly(in Inputs) Decision {
	d := Decision{Shape: ShapeLocalOnly}
	keep := func() Decision {
		d.SessionID = in.Local.SessionID
		d.Source = SourceLocal
		return d
	}

	// An unreachable remote is treated as silent.
	if in.RemoteUnavailable {
		return keep()
	}
	if in.Lookup == nil {
		d.NeedsVerification = true
		return d
	}
	if in.Lookup.Unavailable || in.Lookup.Record == nil || !in.Lookup.Record.Ended() {
		return keep()
	}
	d.DeleteLocal = []string{in.Local.SessionID}
	return d
}
