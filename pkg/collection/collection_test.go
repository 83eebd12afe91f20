package collection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRollsUpHosts(t *testing.T) {
	at := time.Now()
	c := New(10 * time.Second)
	c.now = func() time.Time { return at }

	// Two hosts each busy half the window
	for i := 0; i < 10; i++ {
		c.Update("extract", "host-a", 0, 0.5)
		c.Update("extract", "host-b", 0, 0.5)
	}

	reading, ok := c.Read("extract")
	require.True(t, ok)
	assert.Equal(t, 2, reading.Instances)
	assert.InDelta(t, 0.5, reading.DutyCycle, 1e-9)
}

func TestReadUnknownService(t *testing.T) {
	c := New(10 * time.Second)
	_, ok := c.Read("missing")
	assert.False(t, ok)
}

func TestSamplesExpire(t *testing.T) {
	at := time.Now()
	c := New(10 * time.Second)
	c.now = func() time.Time { return at }

	c.Update("extract", "host-a", 1, 1)

	// Move past the window; the host no longer counts
	at = at.Add(11 * time.Second)
	_, ok := c.Read("extract")
	assert.False(t, ok)
}

func TestDutyCycleClamped(t *testing.T) {
	at := time.Now()
	c := New(time.Second)
	c.now = func() time.Time { return at }

	// Over-reporting busy time must not push duty past one
	c.Update("extract", "host-a", 0, 5)
	reading, ok := c.Read("extract")
	require.True(t, ok)
	assert.Equal(t, 1.0, reading.DutyCycle)
}

func TestThroughputAccumulates(t *testing.T) {
	at := time.Now()
	c := New(10 * time.Second)
	c.now = func() time.Time { return at }

	c.Update("extract", "host-a", 2, 0)
	c.Update("extract", "host-a", 3, 0)

	reading, ok := c.Read("extract")
	require.True(t, ok)
	assert.Equal(t, 5.0, reading.Throughput)
}

func TestForget(t *testing.T) {
	c := New(10 * time.Second)
	c.Update("extract", "host-a", 0, 1)
	c.Forget("extract")
	_, ok := c.Read("extract")
	assert.False(t, ok)
}
