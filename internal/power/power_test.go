package power

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock(start time.Time) (*Ctl, *time.Time) {
	cur := start
	c := New(Config{
		Mode: "scan", ScanInferEveryN: 10, TrackInferEveryN: 2,
		BurstSeconds: 4, BurstInferEveryN: 1, IdleToScanSeconds: 5,
	})
	c.now = func() time.Time { return cur }
	c.lastActivity = cur
	return c, &cur
}

func TestScanCadence(t *testing.T) {
	c, _ := fakeClock(time.Now())
	hits := 0
	for i := 0; i < 10; i++ {
		if c.TickShouldInfer() {
			hits++
		}
	}
	assert.Equal(t, 1, hits)
	assert.Equal(t, Scan, c.CurrentMode())
}

func TestLockTransitionsToTrack(t *testing.T) {
	c, _ := fakeClock(time.Now())
	c.OnLockState(true)
	assert.Equal(t, Track, c.CurrentMode())
}

func TestTargetEventEntersBurstThenDecaysToTrack(t *testing.T) {
	c, cur := fakeClock(time.Now())
	c.OnTargetEvent()
	require.Equal(t, Burst, c.CurrentMode())

	*cur = cur.Add(2 * time.Second)
	c.TickShouldInfer()
	assert.Equal(t, Burst, c.CurrentMode(), "still within burst_seconds")

	*cur = cur.Add(3 * time.Second) // total 5s elapsed, past burst_seconds=4
	c.TickShouldInfer()
	assert.Equal(t, Track, c.CurrentMode())
}

func TestIdleFallsBackToScan(t *testing.T) {
	c, cur := fakeClock(time.Now())
	c.OnLockState(true)
	require.Equal(t, Track, c.CurrentMode())

	*cur = cur.Add(6 * time.Second) // past idle_to_scan_seconds=5
	c.TickShouldInfer()
	assert.Equal(t, Scan, c.CurrentMode())
}

func TestBurstInferEveryOneInfersEveryTick(t *testing.T) {
	c, _ := fakeClock(time.Now())
	c.OnTargetEvent()
	for i := 0; i < 3; i++ {
		assert.True(t, c.TickShouldInfer())
	}
}
