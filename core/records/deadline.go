package records

import "time"

const DefaultTermDays = 15

// ComputeDeadline counts termDays inclusively from start: start itself is day
// one. termDays below 1 is treated as 1. No zone conversion is applied.
func ComputeDeadline(start time.Time, termDays int) time.Time {
	if termDays < 1 {
		termDays = 1
	}
	return start.AddDate(0, 0, termDays-1)
}
