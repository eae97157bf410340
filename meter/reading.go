package meter

import (
	"time"
)

// Reading is one measurement from a meter gateway: the instantaneous output
// of a single system at a single point in time.
type Reading struct {
	SystemID  string
	Timestamp time.Time
	Value     float64
}

type readingPayload struct {
	Timestamp string  `json:"timestamp"`
	Output    float64 `json:"output"`
}
