package bank

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/drill"
	"github.com/abhisek/examdrill/internal/session"
)

func loadQuant(t *testing.T) *Bank {
	t.Helper()
	b, err := Load("testdata/quant.yaml")
	require.NoError(t, err)
	return b
}

func TestLoad(t *testing.T) {
	b := loadQuant(t)

	assert.Equal(t, "Quant Mock", b.Name)
	assert.Equal(t, []string{"arith-1", "arith-2", "alg-1", "alg-2"}, b.QuestionOrder())
	assert.Equal(t, []int{0, 2}, b.SectionStarts())
	assert.Equal(t, session.ExamMeta{
		Name:               "Quant Mock",
		Variant:            "A",
		Sections:           []string{"Arithmetic", "Algebra"},
		SectionTimeBudgets: []int{600, 900},
	}, b.Meta())

	q, ok := b.Question("alg-2")
	require.True(t, ok)
	assert.Len(t, q.Choices, 3)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no name", "sections: [{name: A, time_budget_sec: 60, questions: [{id: q, answer: a}]}]"},
		{"no sections", "name: X"},
		{"empty section", "name: X\nsections: [{name: A, time_budget_sec: 60}]"},
		{"zero budget", "name: X\nsections: [{name: A, questions: [{id: q, answer: a}]}]"},
		{"missing id", "name: X\nsections: [{name: A, time_budget_sec: 60, questions: [{answer: a}]}]"},
		{"missing answer", "name: X\nsections: [{name: A, time_budget_sec: 60, questions: [{id: q}]}]"},
		{"unknown key", "name: X\ncolor: red\nsections: [{name: A, time_budget_sec: 60, questions: [{id: q, answer: a}]}]"},
		{"not yaml", "name: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_DuplicateID(t *testing.T) {
	src := `
name: X
sections:
  - name: A
    time_budget_sec: 60
    questions:
      - {id: q1, answer: a}
  - name: B
    time_budget_sec: 60
    questions:
      - {id: q1, answer: b}
`
	_, err := Parse(strings.NewReader(src))
	assert.True(t, errors.Is(err, drill.ErrDuplicateItem))
}

func TestStartParams(t *testing.T) {
	b := loadQuant(t)
	clk := clock.NewManual(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	paper := b.StartParams("s1", "owner", session.KindPaper, 0)
	s, err := session.Start(paper, clk)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, s.SectionStarts)
	assert.Len(t, s.SectionElapsedMs, 2)

	d := b.StartParams("s2", "owner", session.KindDrill, 0)
	assert.Equal(t, []string{"Drill"}, d.Meta.Sections)
	assert.Equal(t, []int{int(session.DefaultDrillBudget.Seconds())}, d.Meta.SectionTimeBudgets)
	assert.Empty(t, d.SectionStarts)
	_, err = session.Start(d, clk)
	require.NoError(t, err)

	d = b.StartParams("s3", "owner", session.KindDrill, 300)
	assert.Equal(t, []int{300}, d.Meta.SectionTimeBudgets)
}

func TestPool(t *testing.T) {
	b := loadQuant(t)
	pool := b.Pool()
	require.NoError(t, pool.Validate())
	assert.Len(t, pool, 4)
	for _, it := range pool {
		assert.Equal(t, drill.OutcomeUnknown, it.LastOutcome)
		assert.Nil(t, it.LastReviewedAt)
	}
}

func TestReplayPool(t *testing.T) {
	b := loadQuant(t)
	clk := clock.NewManual(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	s, err := session.Start(b.StartParams("s1", "owner", session.KindDrill, 0), clk)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	require.NoError(t, s.RecordAnswer(2, "5", false, false, 42))

	pool := b.ReplayPool(s)
	it, ok := pool.Find("alg-1")
	require.True(t, ok)
	assert.Equal(t, drill.OutcomeIncorrect, it.LastOutcome)
	assert.Equal(t, s.LastActiveAt, it.LastWrongAt)
	assert.InDelta(t, 42.0, it.LastTimeSec, 1e-9)

	untouched, _ := pool.Find("arith-1")
	assert.Equal(t, drill.OutcomeUnknown, untouched.LastOutcome)
}

func TestReplayPool_RetiresCorrectAnswers(t *testing.T) {
	b := loadQuant(t)
	clk := clock.NewManual(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	s, err := session.Start(b.StartParams("s1", "owner", session.KindDrill, 0), clk)
	require.NoError(t, err)

	require.NoError(t, s.RecordAnswer(0, "144", true, false, 10))
	require.NoError(t, s.RecordAnswer(2, "5", false, false, 10))
	require.NoError(t, s.RecordAnswer(2, "4", true, false, 10))

	pool := b.ReplayPool(s)
	assert.Len(t, pool, 2)
	_, ok := pool.Find("arith-1")
	assert.False(t, ok)
	_, ok = pool.Find("alg-1")
	assert.False(t, ok)
}

func TestReplayPool_UsesLastAttemptTime(t *testing.T) {
	b := loadQuant(t)
	clk := clock.NewManual(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	s, err := session.Start(b.StartParams("s1", "owner", session.KindDrill, 0), clk)
	require.NoError(t, err)

	live := b.Pool()
	for range 2 {
		clk.Advance(70 * time.Second)
		require.NoError(t, s.RecordAnswer(0, "1", false, false, 70))
		it, _ := live.Find("arith-1")
		live = live.Replace(it.Answered(false, 70*time.Second, clk.Now()))
	}

	replay := b.ReplayPool(s)
	assert.Equal(t, live, replay)

	sch := drill.NewScheduler(drill.DefaultWeightConfig())
	now := clk.Now().Add(3 * time.Hour)
	assert.Equal(t, sch.ExplainWeights(live, now), sch.ExplainWeights(replay, now))
}

func TestCheck(t *testing.T) {
	b := loadQuant(t)

	tests := []struct {
		id     string
		answer string
		want   bool
	}{
		{"arith-1", "144", true},
		{"arith-1", "  144 ", true},
		{"arith-1", "143", false},
		{"arith-1", "", false},
		{"arith-2", "Twelve", true},
		{"alg-1", "x  =  4", true},
		{"alg-2", "X - 3", true},
		{"alg-2", "2", true},
		{"alg-2", "1", false},
	}
	for _, tt := range tests {
		t.Run(tt.id+"/"+tt.answer, func(t *testing.T) {
			got, err := b.Check(tt.id, tt.answer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := b.Check("nope", "1")
	assert.ErrorIs(t, err, ErrUnknownQuestion)
}
