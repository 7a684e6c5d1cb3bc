package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTakeRateOf(t *testing.T) {
	assert.True(t, TakeRateOf(decimal.NewFromInt(15), decimal.NewFromInt(100)).Equal(decimal.RequireFromString("0.15")))
	assert.True(t, TakeRateOf(decimal.NewFromInt(15), decimal.Zero).IsZero())
}

func TestDayBounds(t *testing.T) {
	start, end := DayBounds(time.Date(2025, 5, 1, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), end)
}
