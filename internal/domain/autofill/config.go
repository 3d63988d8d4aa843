package autofill

import "time"

// Config holds runtime knobs for the fill workflow.
type Config struct {
	Temperature           float64
	Delay                 time.Duration
	Strict                bool
	Submit                bool
	ResetHistoryOnSection bool
}
