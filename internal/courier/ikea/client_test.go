package ikea

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackingURL(t *testing.T) {
	c := New("", "", 1)
	require.Equal(t,
		"https://www.ikea.gr/poreia-paraggelias/?OrderNumber=123456789",
		c.TrackingURL("123456789"))
}

func TestParseIkeaTime(t *testing.T) {
	require.Equal(t,
		time.Date(2025, 3, 2, 16, 45, 0, 0, time.UTC),
		parseIkeaTime("02/03/2025 16:45"))
	require.Equal(t,
		time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		parseIkeaTime(" 2/3/2025 "))
	require.True(t, parseIkeaTime("").IsZero())
	require.True(t, parseIkeaTime("αύριο").IsZero())
}
