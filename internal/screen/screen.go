package screen

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/examdrill/internal/ui/layout"
)

// Screen is one full-window view of the application.
type Screen interface {
	// Init returns an initial command when the screen is first shown.
	Init() tea.Cmd

	// Update handles messages and returns the updated screen and command.
	Update(msg tea.Msg) (Screen, tea.Cmd)

	// View renders the screen content, excluding header and footer.
	View(width, height int) string

	// Title returns the screen name for the header.
	Title() string
}

// KeyHintProvider is implemented by screens with their own footer hints.
type KeyHintProvider interface {
	KeyHints() []layout.KeyHint
}

// Closer is implemented by screens that must persist state before the
// program exits.
type Closer interface {
	Close()
}
