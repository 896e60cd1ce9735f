package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeDeadline(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		term int
		want time.Time
	}{
		{"default term", DefaultTermDays, time.Date(2026, 1, 24, 0, 0, 0, 0, time.UTC)},
		{"single day", 1, start},
		{"zero clamps to one", 0, start},
		{"negative clamps to one", -7, start},
		{"crosses month", 30, time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeDeadline(start, tc.term))
		})
	}
}

func TestComputeDeadlineKeepsLocation(t *testing.T) {
	kyiv := time.FixedZone("EET", 2*60*60)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, kyiv)
	got := ComputeDeadline(start, 15)
	assert.Equal(t, kyiv, got.Location())
	assert.Equal(t, start.AddDate(0, 0, 14), got)
}
