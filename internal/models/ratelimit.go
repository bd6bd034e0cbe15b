package models

import "time"

// RateDecision решение лимитера по одному запросу.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter имеет смысл только при Allowed == false.
	RetryAfter time.Duration
}
