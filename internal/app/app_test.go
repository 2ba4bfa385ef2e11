package app

import (
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/examdrill/internal/screen"
	"github.com/abhisek/examdrill/internal/ui/layout"
)

type statusScreen struct {
	initRan bool
}

func (s *statusScreen) Init() tea.Cmd {
	s.initRan = true
	return nil
}
func (s *statusScreen) Update(tea.Msg) (screen.Screen, tea.Cmd) { return s, nil }
func (s *statusScreen) View(int, int) string                    { return "question body" }
func (s *statusScreen) Title() string                           { return "Quant Mock" }
func (s *statusScreen) Status() string                          { return "12:34" }
func (s *statusScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{{Key: "Enter", Description: "Submit"}}
}

func TestInitRunsActiveScreen(t *testing.T) {
	s := &statusScreen{}
	m := NewAppModel(s)
	m.Init()
	if !s.initRan {
		t.Error("expected Init on the initial screen")
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := NewAppModel(&statusScreen{})
	_, cmd := m.Update(tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl})
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestViewShowsStatusAndHints(t *testing.T) {
	var model tea.Model = NewAppModel(&statusScreen{})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	out := model.(AppModel).render()
	for _, want := range []string{"Quant Mock", "12:34", "question body", "Submit", "Quit"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewTooSmall(t *testing.T) {
	var model tea.Model = NewAppModel(&statusScreen{})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 40, Height: 10})

	out := model.(AppModel).render()
	if !strings.Contains(out, "Terminal too small") {
		t.Errorf("expected size warning, got %q", out)
	}
}
