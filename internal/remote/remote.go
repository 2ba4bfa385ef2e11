// Package remote is the contract with the authoritative session record
// service, plus an HTTP implementation of it.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/examdrill/internal/session"
)

//go:generate mockgen -source=remote.go -destination=../mocks/remote/mock_remote.go -package=mock_remote

// ErrUnreachable marks failures to reach the record service, as opposed to
// the service answering that it has no data.
var ErrUnreachable = errors.New("remote record service unreachable")

// StatusError is an unexpected HTTP status from the record service.
// 5xx and 429 responses count as unreachable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Temporary() {
		return ErrUnreachable
	}
	return nil
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}

// Record is the server-confirmed mirror of a practice session. Payload
// holds the full encoded session record.
type Record struct {
	SessionID           string          `json:"sessionId"`
	OwnerID             string          `json:"ownerId"`
	ExamName            string          `json:"examName"`
	Variant             string          `json:"variant,omitempty"`
	StartedAt           time.Time       `json:"startedAt"`
	EndedAt             *time.Time      `json:"endedAt"`
	LastActiveAt        time.Time       `json:"lastActiveAt"`
	IsPaused            bool            `json:"isPaused"`
	CurrentIndex        int             `json:"currentIndex"`
	CurrentSectionIndex int             `json:"currentSectionIndex"`
	InProgress          bool            `json:"inProgress"`
	Payload             json.RawMessage `json:"payload,omitempty"`
}

// Ended reports whether the service has confirmed the session finished.
func (r *Record) Ended() bool {
	return r.EndedAt != nil
}

// NewRecord builds the mirror record for s with its encoded payload.
func NewRecord(s *session.PracticeSession, payload []byte) Record {
	return Record{
		SessionID:           s.SessionID,
		OwnerID:             s.OwnerID,
		ExamName:            s.ExamMeta.Name,
		Variant:             s.ExamMeta.Variant,
		StartedAt:           s.StartedAt,
		EndedAt:             s.EndedAt,
		LastActiveAt:        s.LastActiveAt,
		IsPaused:            s.IsPaused,
		CurrentIndex:        s.CurrentIndex,
		CurrentSectionIndex: s.CurrentSectionIndex,
		InProgress:          s.EndedAt == nil,
		Payload:             payload,
	}
}

// Service is the authoritative session record store.
type Service interface {
	// CreateOrUpdate upserts the record keyed by its session ID.
	CreateOrUpdate(ctx context.Context, rec Record) error

	// GetInProgress returns the owner's records flagged in progress.
	GetInProgress(ctx context.Context, ownerID string) ([]Record, error)

	// GetByID returns the record for id, or (nil, nil) if the service has none.
	GetByID(ctx context.Context, id string) (*Record, error)
}

// Deleter is implemented by services that can remove records.
type Deleter interface {
	// Delete removes the record for id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
}

// LatestStarted returns the most recently started record, or nil.
func LatestStarted(records []Record) *Record {
	var latest *Record
	for i := range records {
		if latest == nil || records[i].StartedAt.After(latest.StartedAt) {
			latest = &records[i]
		}
	}
	return latest
}
