// Package record encodes practice sessions as self-describing JSON records
// shared by the local cache and the remote record service.
package record

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"

	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/session"
)

// SchemaVersion is written into every encoded record. Records with a
// different major version are rejected. v1.1.0 added lastAttemptSec.
const SchemaVersion = "v1.1.0"

const schemaURL = "schema://practice-session.json"

//go:embed session.schema.json
var schemaJSON []byte

var (
	// ErrInvalidRecord indicates a blob that is not a valid session record.
	ErrInvalidRecord = errors.New("invalid session record")

	// ErrUnsupportedVersion indicates a record written by an incompatible
	// schema version.
	ErrUnsupportedVersion = errors.New("unsupported record schema version")
)

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

type envelope struct {
	SchemaVersion string `json:"schemaVersion"`
	*session.PracticeSession
}

// Header is the subset of a record needed to index it without a full decode.
type Header struct {
	SchemaVersion string     `json:"schemaVersion"`
	SessionID     string     `json:"sessionId"`
	OwnerID       string     `json:"ownerId"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt"`
	LastActiveAt  time.Time  `json:"lastActiveAt"`
}

// Ended reports whether the recorded session has ended.
func (h Header) Ended() bool { return h.EndedAt != nil }

// Encode serializes a session. Transient timing state is not included, so
// callers that need the record accurate to the current instant should
// checkpoint the session first.
func Encode(s *session.PracticeSession) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("encode: nil session")
	}
	b, err := json.Marshal(envelope{SchemaVersion: SchemaVersion, PracticeSession: s})
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.SessionID, err)
	}
	return b, nil
}

// Decode parses, validates and restores a session record. The returned
// session is bound to clk.
func Decode(blob []byte, clk clock.Clock) (*session.PracticeSession, error) {
	if err := Validate(blob); err != nil {
		return nil, err
	}

	env := envelope{PracticeSession: &session.PracticeSession{}}
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := env.PracticeSession.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	env.PracticeSession.Restore(clk)
	return env.PracticeSession, nil
}

// Validate checks a blob against the record schema and version.
func Validate(blob []byte) error {
	var parsed any
	if err := json.Unmarshal(blob, &parsed); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrInvalidRecord, err)
	}

	if obj, ok := parsed.(map[string]any); ok {
		if v, ok := obj["schemaVersion"].(string); ok {
			if err := checkVersion(v); err != nil {
				return err
			}
		}
	}

	schema, err := recordSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// PeekHeader reads the indexing fields of a record without validating the
// full body.
func PeekHeader(blob []byte) (Header, error) {
	var h Header
	if err := json.Unmarshal(blob, &h); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if h.SessionID == "" {
		return Header{}, fmt.Errorf("%w: missing sessionId", ErrInvalidRecord)
	}
	return h, nil
}

func checkVersion(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
	}
	if semver.Major(v) != semver.Major(SchemaVersion) {
		return fmt.Errorf("%w: %s (reader is %s)", ErrUnsupportedVersion, v, SchemaVersion)
	}
	return nil
}

func recordSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		var def any
		if err := json.Unmarshal(schemaJSON, &def); err != nil {
			compileErr = fmt.Errorf("parse record schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}
