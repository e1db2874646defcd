package fake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockAdvanceAndSet(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := New(start)
	require.Equal(t, start, clk.Now())

	clk.Advance(25 * time.Hour)
	require.Equal(t, start.Add(25*time.Hour), clk.Now())

	clk.Set(start)
	require.Equal(t, start, clk.Now())
}
