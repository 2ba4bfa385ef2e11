package diagnosis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/drill"
	"github.com/abhisek/examdrill/internal/session"
)

func newTestSession(t *testing.T) *session.PracticeSession {
	t.Helper()
	s, err := session.Start(session.StartParams{
		SessionID:     "s1",
		Meta:          session.ExamMeta{Name: "Mock", Sections: []string{"All"}, SectionTimeBudgets: []int{600}},
		QuestionOrder: []string{"q1", "q2"},
	}, clock.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	return s
}

func TestService_TagsWrongAnswer(t *testing.T) {
	svc := NewService(2*time.Minute, nil)
	s := newTestSession(t)
	require.NoError(t, s.RecordAnswer(0, "7", false, true, 2))

	results, err := svc.Diagnose(s, 0, &ClassifyInput{
		Answer:  "7",
		Elapsed: 2 * time.Second,
		Guessed: true,
		Prior:   drill.Item{ID: "q1"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"speed-rush", "guessed-wrong"}, s.MistakeTags[0])
}

func TestService_SkipsCorrectAnswer(t *testing.T) {
	svc := NewService(2*time.Minute, nil)
	s := newTestSession(t)
	require.NoError(t, s.RecordAnswer(1, "ok", true, false, 1))

	results, err := svc.Diagnose(s, 1, &ClassifyInput{Elapsed: time.Second})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, s.MistakeTags[1])
}

func TestService_OutOfRange(t *testing.T) {
	svc := NewService(time.Minute, nil)
	s := newTestSession(t)
	_, err := svc.Diagnose(s, 5, &ClassifyInput{})
	assert.ErrorIs(t, err, session.ErrIndexOutOfRange)
}

func TestService_EndedSession(t *testing.T) {
	svc := NewService(time.Minute, nil)
	s := newTestSession(t)
	require.NoError(t, s.RecordAnswer(0, "x", false, false, 1))
	require.NoError(t, s.End())

	_, err := svc.Diagnose(s, 0, &ClassifyInput{Elapsed: time.Second})
	assert.ErrorIs(t, err, session.ErrInvalidState)
}
