package calib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyAccelIsAlignTimesRawPlusBias(t *testing.T) {
	c := NewCache()
	c.SetAccelAlign([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	c.SetAccelBias([3]float64{0.1, -0.2, 0.3})

	got := c.Snapshot().ApplyAccel([3]float64{0, 0, 1})
	assert.InDelta(t, 0.1, got[0], 1e-9)
	assert.InDelta(t, -0.2, got[1], 1e-9)
	assert.InDelta(t, 1.3, got[2], 1e-9)
}

func TestApplyGyroIsAlignTimesRawPlusBias(t *testing.T) {
	c := NewCache()
	c.SetGyroAlign([3][3]float64{{2, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	c.SetGyroBias([3]float64{1, 0, 0})

	got := c.Snapshot().ApplyGyro([3]float64{1, 2, 3})
	assert.InDelta(t, 3.0, got[0], 1e-9)
	assert.InDelta(t, 2.0, got[1], 1e-9)
	assert.InDelta(t, 3.0, got[2], 1e-9)
}

func TestApplyMagIsSoftIronTimesRawMinusHardIron(t *testing.T) {
	c := NewCache()
	c.SetMagSoftIron([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	c.SetMagHardIron([3]float64{1, 1, 1})

	got := c.Snapshot().ApplyMag([3]float64{2, 3, 4})
	assert.InDelta(t, 1.0, got[0], 1e-9)
	assert.InDelta(t, 2.0, got[1], 1e-9)
	assert.InDelta(t, 3.0, got[2], 1e-9)
}

// Snapshot must never observe a torn write: a concurrent Set* call either
// happens fully before or fully after a Snapshot call, never interleaved.
func TestSnapshotIsNotTornByConcurrentWrites(t *testing.T) {
	c := NewCache()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			c.SetAccelBias([3]float64{float64(i), float64(i), float64(i)})
		}
	}()

	for i := 0; i < 1000; i++ {
		snap := c.Snapshot()
		b := snap.AccelBias
		assert.Equal(t, b[0], b[1])
		assert.Equal(t, b[1], b[2])
	}
	<-done
}
