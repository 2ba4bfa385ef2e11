package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/abhisek/examdrill/internal/clock"
	mock_remote "github.com/abhisek/examdrill/internal/mocks/remote"
	mock_sessionstore "github.com/abhisek/examdrill/internal/mocks/sessionstore"
	"github.com/abhisek/examdrill/internal/record"
	"github.com/abhisek/examdrill/internal/remote"
	"github.com/abhisek/examdrill/internal/session"
	"github.com/abhisek/examdrill/internal/store"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// deletingRemote is a remote service that also supports deletes.
type deletingRemote struct {
	*mock_remote.MockService
	*mock_remote.MockDeleter
}

func newLocalCache(t *testing.T, clk clock.Clock) *store.SessionCache {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Sessions(clk)
}

func startSession(t *testing.T, id, owner string, clk clock.Clock) *session.PracticeSession {
	t.Helper()
	s, err := session.Start(session.StartParams{
		SessionID: id,
		OwnerID:   owner,
		Meta: session.ExamMeta{
			Name:               "Quant Mock",
			Sections:           []string{"Arithmetic", "Algebra"},
			SectionTimeBudgets: []int{600, 900},
		},
		QuestionOrder: []string{"q1", "q2", "q3", "q4"},
		SectionStarts: []int{0, 2},
	}, clk)
	require.NoError(t, err)
	return s
}

func remoteRecord(t *testing.T, s *session.PracticeSession) remote.Record {
	t.Helper()
	blob, err := record.Encode(s)
	require.NoError(t, err)
	return remote.NewRecord(s, blob)
}

func TestFindActive_RemoteConfirmsEnded(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := mock_remote.NewMockService(ctrl)

	a := startSession(t, "A", "owner", clk)
	blob, err := record.Encode(a)
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "A", blob))

	endedAt := t0.Add(time.Hour)
	svc.EXPECT().GetInProgress(gomock.Any(), "owner").Return(nil, nil)
	svc.EXPECT().GetByID(gomock.Any(), "A").Return(&remote.Record{SessionID: "A", EndedAt: &endedAt}, nil)

	st := New(local, WithRemote(svc), WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	assert.Nil(t, active)

	_, ok, err := local.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok, "ended session should be dropped from the local cache")
}

func TestFindActive_RemoteWinsMismatch(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := mock_remote.NewMockService(ctrl)

	a := startSession(t, "A", "owner", clk)
	blob, err := record.Encode(a)
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "A", blob))

	b := startSession(t, "B", "owner", clk)
	require.NoError(t, b.RecordAnswer(0, "42", true, false, 30))
	svc.EXPECT().GetInProgress(gomock.Any(), "owner").Return([]remote.Record{remoteRecord(t, b)}, nil)

	st := New(local, WithRemote(svc), WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "B", active.SessionID)
	assert.Equal(t, SourceRemote, active.Source)
	require.NotNil(t, active.Session)
	assert.Equal(t, "42", active.Session.Answers[0])
	assert.Equal(t, 1, active.Session.CurrentIndex)

	_, ok, err := local.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok, "mismatched local session should be deleted")
}

func TestFindActive_RemoteUnreachableKeepsLocal(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := mock_remote.NewMockService(ctrl)

	a := startSession(t, "A", "owner", clk)
	blob, err := record.Encode(a)
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "A", blob))

	svc.EXPECT().GetInProgress(gomock.Any(), "owner").Return(nil, remote.ErrUnreachable)

	st := New(local, WithRemote(svc), WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "A", active.SessionID)
	assert.Equal(t, SourceLocal, active.Source)
	assert.NotNil(t, active.Session)
}

func TestFindActive_VerificationUnreachableKeepsLocal(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := mock_remote.NewMockService(ctrl)

	a := startSession(t, "A", "owner", clk)
	blob, err := record.Encode(a)
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "A", blob))

	svc.EXPECT().GetInProgress(gomock.Any(), "owner").Return(nil, nil)
	svc.EXPECT().GetByID(gomock.Any(), "A").Return(nil, remote.ErrUnreachable)

	st := New(local, WithRemote(svc), WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, SourceLocal, active.Source)
}

func TestFindActive_LocalOnlyWithoutRemote(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)

	st := New(local, WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	assert.Nil(t, active)

	a := startSession(t, "A", "owner", clk)
	require.NoError(t, st.Save(ctx, a))
	other := startSession(t, "X", "someone-else", clk)
	require.NoError(t, st.Save(ctx, other))

	active, err = st.FindActive(ctx, "owner")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "A", active.SessionID)
	assert.Equal(t, SourceLocal, active.Source)
}

func TestFindActive_RemoteOnly(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	svc := mock_remote.NewMockService(ctrl)

	b := startSession(t, "B", "owner", clk)
	older := startSession(t, "C", "owner", clk)
	older.StartedAt = t0.Add(-time.Hour)
	closed := remoteRecord(t, startSession(t, "D", "owner", clk))
	closed.InProgress = false

	svc.EXPECT().GetInProgress(gomock.Any(), "owner").
		Return([]remote.Record{remoteRecord(t, older), closed, remoteRecord(t, b)}, nil)

	st := New(newLocalCache(t, clk), WithRemote(svc), WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "B", active.SessionID)
	assert.Equal(t, SourceRemote, active.Source)
}

func TestFindActive_EndedLocallyIsMirroredAgain(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := mock_remote.NewMockService(ctrl)

	a := startSession(t, "A", "owner", clk)
	stale := remoteRecord(t, a)

	clk.Advance(time.Minute)
	require.NoError(t, a.End())
	blob, err := record.Encode(a)
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "A", blob))

	var got remote.Record
	svc.EXPECT().GetInProgress(gomock.Any(), "owner").Return([]remote.Record{stale}, nil)
	svc.EXPECT().CreateOrUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec remote.Record) error {
			got = rec
			return nil
		})

	st := New(local, WithRemote(svc), WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, st.Flush(ctx))
	assert.Equal(t, "A", got.SessionID)
	assert.False(t, got.InProgress)
	require.NotNil(t, got.EndedAt)
}

func TestFindActive_BothMatchingPrefersNewerLocalBody(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := mock_remote.NewMockService(ctrl)

	a := startSession(t, "A", "owner", clk)
	stale := remoteRecord(t, a)

	clk.Advance(time.Minute)
	require.NoError(t, a.RecordAnswer(0, "7", false, true, 60))
	blob, err := record.Encode(a)
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, "A", blob))

	svc.EXPECT().GetInProgress(gomock.Any(), "owner").Return([]remote.Record{stale}, nil)

	st := New(local, WithRemote(svc), WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, SourceRemote, active.Source)
	assert.Equal(t, "7", active.Session.Answers[0], "local progress beyond the mirror is kept")
	assert.Nil(t, active.Session.EndedAt)
}

func TestFindActive_LocalListingFailureIsSoft(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := mock_sessionstore.NewMockLocalCache(ctrl)

	local.EXPECT().ListNotEnded(gomock.Any()).Return(nil, errors.New("disk I/O error"))

	st := New(local, WithClock(clk))
	active, err := st.FindActive(ctx, "owner")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestSave_LocalFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := mock_sessionstore.NewMockLocalCache(ctrl)
	svc := mock_remote.NewMockService(ctrl)

	diskErr := errors.New("database is locked")
	local.EXPECT().Put(gomock.Any(), "A", gomock.Any()).Return(diskErr)

	st := New(local, WithRemote(svc), WithClock(clk))
	err := st.Save(ctx, startSession(t, "A", "owner", clk))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.True(t, errors.Is(err, diskErr))

	var sue *StorageUnavailableError
	require.True(t, errors.As(err, &sue))
	assert.Equal(t, "save", sue.Op)
	assert.Equal(t, "A", sue.SessionID)
}

func TestSave_MirrorsToRemote(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	svc := mock_remote.NewMockService(ctrl)

	a := startSession(t, "A", "owner", clk)

	var got remote.Record
	svc.EXPECT().CreateOrUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec remote.Record) error {
			got = rec
			return nil
		})

	st := New(newLocalCache(t, clk), WithRemote(svc), WithClock(clk))
	require.NoError(t, st.Save(ctx, a))
	require.NoError(t, st.Flush(ctx))

	assert.Equal(t, "A", got.SessionID)
	assert.Equal(t, "owner", got.OwnerID)
	assert.Equal(t, "Quant Mock", got.ExamName)
	assert.True(t, got.InProgress)

	decoded, err := record.Decode(got.Payload, clk)
	require.NoError(t, err)
	assert.Equal(t, a.QuestionOrder, decoded.QuestionOrder)
}

func TestSave_RemoteFailureDoesNotFailSave(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := mock_remote.NewMockService(ctrl)

	svc.EXPECT().CreateOrUpdate(gomock.Any(), gomock.Any()).Return(remote.ErrUnreachable)

	st := New(local, WithRemote(svc), WithClock(clk))
	require.NoError(t, st.Save(ctx, startSession(t, "A", "owner", clk)))
	require.NoError(t, st.Flush(ctx))

	_, ok, err := local.Get(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSave_CoalescesMirrorWrites(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	svc := mock_remote.NewMockService(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		sent []int
	)
	first := svc.EXPECT().CreateOrUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec remote.Record) error {
			mu.Lock()
			sent = append(sent, rec.CurrentIndex)
			mu.Unlock()
			close(started)
			<-release
			return nil
		})
	svc.EXPECT().CreateOrUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec remote.Record) error {
			mu.Lock()
			sent = append(sent, rec.CurrentIndex)
			mu.Unlock()
			return nil
		}).After(first)

	st := New(newLocalCache(t, clk), WithRemote(svc), WithClock(clk))
	a := startSession(t, "A", "owner", clk)
	require.NoError(t, st.Save(ctx, a))
	<-started

	for i := range 3 {
		require.NoError(t, a.RecordAnswer(i, "x", true, false, 10))
		require.NoError(t, st.Save(ctx, a))
	}
	close(release)
	require.NoError(t, st.Flush(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 3}, sent, "only the newest pending snapshot is sent")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := deletingRemote{
		MockService: mock_remote.NewMockService(ctrl),
		MockDeleter: mock_remote.NewMockDeleter(ctrl),
	}

	svc.MockService.EXPECT().CreateOrUpdate(gomock.Any(), gomock.Any()).Return(nil)
	svc.MockDeleter.EXPECT().Delete(gomock.Any(), "A").Return(nil)
	svc.MockDeleter.EXPECT().Delete(gomock.Any(), "A").Return(remote.ErrUnreachable)

	st := New(local, WithRemote(svc), WithClock(clk))
	require.NoError(t, st.Save(ctx, startSession(t, "A", "owner", clk)))

	require.NoError(t, st.Delete(ctx, "A"))
	_, ok, err := local.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again succeeds even though the remote is down.
	require.NoError(t, st.Delete(ctx, "A"))
}

func TestDelete_LocalFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mock_sessionstore.NewMockLocalCache(ctrl)
	local.EXPECT().Delete(gomock.Any(), "A").Return(errors.New("readonly database"))

	err := New(local).Delete(context.Background(), "A")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	local := newLocalCache(t, clk)
	svc := mock_remote.NewMockService(ctrl)

	a := startSession(t, "A", "owner", clk)
	b := startSession(t, "B", "owner", clk)
	recB := remoteRecord(t, b)

	svc.EXPECT().CreateOrUpdate(gomock.Any(), gomock.Any()).Return(nil)
	svc.EXPECT().GetByID(gomock.Any(), "B").Return(&recB, nil)
	svc.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, nil)

	st := New(local, WithRemote(svc), WithClock(clk))
	require.NoError(t, st.Save(ctx, a))
	require.NoError(t, st.Flush(ctx))

	got, err := st.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "A", got.SessionID)

	got, err = st.Load(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", got.SessionID)

	_, err = st.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_LocalErrorWithoutFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mock_sessionstore.NewMockLocalCache(ctrl)
	local.EXPECT().Get(gomock.Any(), "A").Return(nil, false, errors.New("disk gone"))

	_, err := New(local).Load(context.Background(), "A")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestClose_SkipsLaterMirrors(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clk := clock.NewManual(t0)
	svc := mock_remote.NewMockService(ctrl)

	st := New(newLocalCache(t, clk), WithRemote(svc), WithClock(clk))
	st.Close()

	// No CreateOrUpdate is expected once closed; the local write still lands.
	require.NoError(t, st.Save(ctx, startSession(t, "A", "owner", clk)))
	require.NoError(t, st.Flush(ctx))
}

func TestNewRecord(t *testing.T) {
	clk := clock.NewManual(t0)
	a := startSession(t, "A", "owner", clk)
	require.NoError(t, a.End())

	rec := remoteRecord(t, a)
	assert.False(t, rec.InProgress)
	assert.True(t, rec.Ended())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Payload, &body))
	assert.Equal(t, record.SchemaVersion, body["schemaVersion"])
}
