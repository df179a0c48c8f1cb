package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	c.Sleep(2 * time.Second)
	c.Sleep(3 * time.Second)
	c.Advance(time.Minute)

	assert.Equal(t, start.Add(65*time.Second), c.Now())
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, c.Sleeps())
}

func TestRealNowMovesForward(t *testing.T) {
	c := Real()
	a := c.Now()
	c.Sleep(time.Millisecond)
	assert.True(t, c.Now().After(a))
}
