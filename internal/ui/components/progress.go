package components

import (
	"fmt"
	"strings"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/examdrill/internal/ui/theme"
)

// TimeBar shows how much of a section budget is left.
type TimeBar struct {
	Label     string
	Remaining time.Duration
	Budget    time.Duration
	Width     int
}

// Share returns the remaining fraction of the budget in [0, 1].
func (b TimeBar) Share() float64 {
	if b.Budget <= 0 {
		return 0
	}
	return min(max(float64(b.Remaining)/float64(b.Budget), 0), 1)
}

// View renders the bar followed by the remaining time.
func (b TimeBar) View() string {
	var result string
	if b.Label != "" {
		result += lipgloss.NewStyle().Foreground(theme.Text).Render(b.Label) + "  "
	}

	clock := FormatClock(b.Remaining)
	style := theme.TimerStyle(b.Share())

	barWidth := max(b.Width-lipgloss.Width(result)-len(clock)-2, 4)
	filled := min(int(float64(barWidth)*b.Share()), barWidth)

	result += lipgloss.NewStyle().
		Background(style.GetForeground()).
		Render(strings.Repeat(" ", filled))
	result += lipgloss.NewStyle().
		Background(theme.Border).
		Render(strings.Repeat(" ", barWidth-filled))

	return result + "  " + style.Render(clock)
}

// FormatClock renders d as m:ss, or h:mm:ss from one hour.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
