package drill

import "time"

// tickMsg drives the section timer once a second.
type tickMsg time.Time

// finishMsg ends the attempt and shows its summary.
type finishMsg struct{}
