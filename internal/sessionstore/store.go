// Package sessionstore keeps practice sessions durable across client
// interruption. Every save is written through to a local cache and mirrored
// asynchronously to the remote record service; FindActive reconciles the
// two into the session the learner should resume.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/record"
	"github.com/abhisek/examdrill/internal/remote"
	"github.com/abhisek/examdrill/internal/session"
)

//go:generate mockgen -source=store.go -destination=../mocks/sessionstore/mock_store.go -package=mock_sessionstore

// LocalCache is a durable key/value store of encoded sessions.
type LocalCache interface {
	Put(ctx context.Context, id string, blob []byte) error
	// Get returns ok=false when id is absent.
	Get(ctx context.Context, id string) (blob []byte, ok bool, err error)
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	// ListNotEnded returns sessions whose local copy has no end time,
	// most recently saved first.
	ListNotEnded(ctx context.Context) ([][]byte, error)
}

// Active is the session FindActive resolved.
type Active struct {
	SessionID string
	Source    Source
	// Session is nil if neither store had a decodable copy.
	Session *session.PracticeSession
}

// DefaultMirrorTimeout bounds one background remote write.
const DefaultMirrorTimeout = 15 * time.Second

// Store is safe for concurrent use.
type Store struct {
	local  LocalCache
	remote remote.Service
	clk    clock.Clock
	log    *zap.Logger

	mirrorTimeout time.Duration

	mu       sync.Mutex
	pending  map[string]remote.Record
	inflight map[string]chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithRemote enables mirroring to and reconciling with svc.
func WithRemote(svc remote.Service) Option {
	return func(s *Store) { s.remote = svc }
}

// WithClock sets the clock decoded sessions are bound to.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) { s.clk = clk }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithMirrorTimeout bounds each background remote write.
func WithMirrorTimeout(d time.Duration) Option {
	return func(s *Store) { s.mirrorTimeout = d }
}

// New creates a Store over local. Without WithRemote it runs local-only.
func New(local LocalCache, opts ...Option) *Store {
	s := &Store{
		local:         local,
		clk:           clock.Real{},
		log:           zap.NewNop(),
		mirrorTimeout: DefaultMirrorTimeout,
		pending:       make(map[string]remote.Record),
		inflight:      make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes sess through to the local cache and schedules a remote
// mirror. A local failure is returned as *StorageUnavailableError; the
// remote write never blocks or fails the save.
func (s *Store) Save(ctx context.Context, sess *session.PracticeSession) error {
	if sess == nil {
		return fmt.Errorf("save: nil session")
	}
	blob, err := record.Encode(sess)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := s.local.Put(ctx, sess.SessionID, blob); err != nil {
		return &StorageUnavailableError{Op: "save", SessionID: sess.SessionID, Err: err}
	}
	if s.remote != nil {
		s.mirror(remote.NewRecord(sess, blob))
	}
	return nil
}

// mirror queues rec for the remote. Writes for one session are sent in
// order by a single worker and coalesced so that only the newest pending
// snapshot is sent.
func (s *Store) mirror(rec remote.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.Warn("store closed, remote mirror skipped", zap.String("session_id", rec.SessionID))
		return
	}
	s.pending[rec.SessionID] = rec
	if _, running := s.inflight[rec.SessionID]; running {
		return
	}
	done := make(chan struct{})
	s.inflight[rec.SessionID] = done
	s.wg.Add(1)
	go s.mirrorLoop(rec.SessionID, done)
}

func (s *Store) mirrorLoop(id string, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	for {
		s.mu.Lock()
		rec, ok := s.pending[id]
		if !ok {
			delete(s.inflight, id)
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.mirrorTimeout)
		err := s.remote.CreateOrUpdate(ctx, rec)
		cancel()
		if err != nil {
			s.log.Warn("remote mirror failed",
				zap.String("session_id", id),
				zap.Bool("unreachable", errors.Is(err, remote.ErrUnreachable)),
				zap.Error(err))
		}
	}
}

// Delete removes a session from both stores. Deleting an absent session is
// not an error. Local failures are returned; remote failures are logged.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.pending, id)
	done := s.inflight[id]
	s.mu.Unlock()

	// Let an in-flight mirror land first so it cannot recreate the record.
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.local.Delete(ctx, id); err != nil {
		return &StorageUnavailableError{Op: "delete", SessionID: id, Err: err}
	}

	if d, ok := s.remote.(remote.Deleter); ok {
		if err := d.Delete(ctx, id); err != nil {
			s.log.Warn("remote delete failed", zap.String("session_id", id), zap.Error(err))
		}
	}
	return nil
}

// Load returns the session with id, preferring the local copy and falling
// back to the remote payload.
func (s *Store) Load(ctx context.Context, id string) (*session.PracticeSession, error) {
	blob, ok, err := s.local.Get(ctx, id)
	if err != nil {
		s.log.Warn("local read failed", zap.String("session_id", id), zap.Error(err))
	}
	if ok {
		sess, derr := record.Decode(blob, s.clk)
		if derr == nil {
			return sess, nil
		}
		s.log.Warn("local copy unreadable", zap.String("session_id", id), zap.Error(derr))
	}

	if s.remote != nil {
		rec, rerr := s.remote.GetByID(ctx, id)
		switch {
		case rerr != nil:
			s.log.Warn("remote lookup failed", zap.String("session_id", id), zap.Error(rerr))
		case rec != nil:
			if sess := s.decodeRemote(rec); sess != nil {
				return sess, nil
			}
		}
	}

	if err != nil {
		return nil, &StorageUnavailableError{Op: "load", SessionID: id, Err: err}
	}
	return nil, fmt.Errorf("load session %s: %w", id, ErrNotFound)
}

// FindActive reconciles the local cache and the remote record service into
// the session ownerID should resume, or nil if there is none. Remote
// failures never fail the call.
func (s *Store) FindActive(ctx context.Context, ownerID string) (*Active, error) {
	in := Inputs{}

	localSess, err := s.latestLocal(ctx, ownerID)
	if err != nil {
		s.log.Warn("local listing failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
	if localSess != nil {
		in.Local = &LocalCandidate{SessionID: localSess.SessionID, LastActiveAt: localSess.LastActiveAt}
	}

	if s.remote == nil {
		in.RemoteUnavailable = true
	} else {
		recs, err := s.remote.GetInProgress(ctx, ownerID)
		if err != nil {
			s.log.Warn("remote unreachable, using local copy",
				zap.String("owner_id", ownerID), zap.Error(err))
			in.RemoteUnavailable = true
		} else {
			in.Remote = remote.LatestStarted(inProgress(recs))
		}
	}

	d := Reconcile(in)
	if d.NeedsVerification {
		rec, err := s.remote.GetByID(ctx, in.Local.SessionID)
		if err != nil {
			s.log.Warn("remote verification failed",
				zap.String("session_id", in.Local.SessionID), zap.Error(err))
		}
		in.Lookup = &Lookup{Record: rec, Unavailable: err != nil}
		d = Reconcile(in)
	}

	if d.Mismatch != nil {
		s.log.Warn("active session mismatch, remote wins",
			zap.String("local_id", d.Mismatch.LocalID),
			zap.String("remote_id", d.Mismatch.RemoteID))
	}
	for _, id := range d.DeleteLocal {
		if err := s.local.Delete(ctx, id); err != nil {
			s.log.Warn("failed to drop stale local copy", zap.String("session_id", id), zap.Error(err))
		}
	}

	s.log.Debug("reconciled active session",
		zap.String("owner_id", ownerID),
		zap.Stringer("shape", d.Shape),
		zap.String("session_id", d.SessionID),
		zap.String("source", string(d.Source)))

	if d.SessionID == "" {
		return nil, nil
	}
	if d.Shape == ShapeRemoteOnly && s.endedLocally(ctx, d.SessionID) {
		return nil, nil
	}

	active := &Active{SessionID: d.SessionID, Source: d.Source}
	switch d.Source {
	case SourceLocal:
		active.Session = localSess
	case SourceRemote:
		var matching *session.PracticeSession
		if d.Shape == ShapeBothMatching {
			matching = localSess
		}
		active.Session = s.resolveRemote(in.Remote, matching)
	}
	return active, nil
}

// endedLocally reports whether the local cache holds an ended copy of id.
// The remote still lists such a session when the final mirror was lost, so
// the ended copy is mirrored again instead of being resumed.
func (s *Store) endedLocally(ctx context.Context, id string) bool {
	blob, ok, err := s.local.Get(ctx, id)
	if err != nil {
		s.log.Warn("local read failed", zap.String("session_id", id), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	h, err := record.PeekHeader(blob)
	if err != nil || !h.Ended() {
		return false
	}
	sess, err := record.Decode(blob, s.clk)
	if err != nil {
		s.log.Warn("ended local copy unreadable", zap.String("session_id", id), zap.Error(err))
		return false
	}
	s.log.Info("remote lists an ended session as in progress, mirroring again",
		zap.String("session_id", id))
	s.mirror(remote.NewRecord(sess, blob))
	return true
}

// latestLocal returns the most recently saved not-ended local session
// belonging to ownerID.
func (s *Store) latestLocal(ctx context.Context, ownerID string) (*session.PracticeSession, error) {
	blobs, err := s.local.ListNotEnded(ctx)
	if err != nil {
		return nil, err
	}
	for _, blob := range blobs {
		h, err := record.PeekHeader(blob)
		if err != nil {
			s.log.Warn("skipping unreadable local record", zap.Error(err))
			continue
		}
		if h.OwnerID != ownerID || h.Ended() {
			continue
		}
		sess, err := record.Decode(blob, s.clk)
		if err != nil {
			s.log.Warn("skipping invalid local record", zap.String("session_id", h.SessionID), zap.Error(err))
			continue
		}
		return sess, nil
	}
	return nil, nil
}

// resolveRemote builds the session for a remote decision. The remote
// payload is used unless the matching local copy has progressed further,
// in which case the local body is kept under the remote's lifecycle.
func (s *Store) resolveRemote(rec *remote.Record, local *session.PracticeSession) *session.PracticeSession {
	fromRemote := s.decodeRemote(rec)
	switch {
	case fromRemote == nil:
		if local != nil {
			local.EndedAt = rec.EndedAt
		}
		return local
	case local == nil:
		return fromRemote
	case local.LastActiveAt.After(fromRemote.LastActiveAt):
		local.EndedAt = fromRemote.EndedAt
		return local
	default:
		return fromRemote
	}
}

func (s *Store) decodeRemote(rec *remote.Record) *session.PracticeSession {
	if rec == nil || len(rec.Payload) == 0 {
		return nil
	}
	sess, err := record.Decode(rec.Payload, s.clk)
	if err != nil {
		s.log.Warn("remote payload unreadable", zap.String("session_id", rec.SessionID), zap.Error(err))
		return nil
	}
	return sess
}

func inProgress(recs []remote.Record) []remote.Record {
	out := recs[:0:0]
	for _, r := range recs {
		if r.InProgress && r.EndedAt == nil {
			out = append(out, r)
		}
	}
	return out
}

// Flush waits until every queued remote mirror has been attempted.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting mirror writes and waits for in-flight ones.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
