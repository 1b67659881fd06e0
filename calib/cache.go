package calib

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Snapshot is a value-type copy of the calibration state used for exactly
// one sample's math, so the parser never holds Cache's lock for longer
// than the copy itself (the mutex is "held only for the duration of a
// matrix/vector copy").
type Snapshot struct {
	AccelAlign [3][3]float64
	GyroAlign  [3][3]float64
	MagSoft    [3][3]float64
	AccelBias  [3]float64
	GyroBias   [3]float64
	MagHard    [3]float64
}

func identity3() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Cache holds the six calibration quantities (three 3x3 matrices, three
// 3-vectors) for one IMU component. It is written rarely (device init, or
// a property-change callback after an application write) and read at
// sample rate, so the Set* methods and Snapshot each only hold the lock
// long enough to copy data, never during the surrounding matrix multiply.
type Cache struct {
	mu   sync.RWMutex
	data Snapshot
}

// NewCache returns a cache seeded with identity alignment matrices and zero
// bias/offset vectors, the safe default before the device's real
// calibration has been read.
func NewCache() *Cache {
	return &Cache{data: Snapshot{
		AccelAlign: identity3(),
		GyroAlign:  identity3(),
		MagSoft:    identity3(),
	}}
}

// Snapshot returns a consistent copy of every calibration quantity.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

func (c *Cache) SetAccelAlign(m [3][3]float64) {
	c.mu.Lock()
	c.data.AccelAlign = m
	c.mu.Unlock()
}

func (c *Cache) SetGyroAlign(m [3][3]float64) {
	c.mu.Lock()
	c.data.GyroAlign = m
	c.mu.Unlock()
}

func (c *Cache) SetMagSoftIron(m [3][3]float64) {
	c.mu.Lock()
	c.data.MagSoft = m
	c.mu.Unlock()
}

func (c *Cache) SetAccelBias(v [3]float64) {
	c.mu.Lock()
	c.data.AccelBias = v
	c.mu.Unlock()
}

func (c *Cache) SetGyroBias(v [3]float64) {
	c.mu.Lock()
	c.data.GyroBias = v
	c.mu.Unlock()
}

func (c *Cache) SetMagHardIron(v [3]float64) {
	c.mu.Lock()
	c.data.MagHard = v
	c.mu.Unlock()
}

// matVec multiplies a row-major 3x3 matrix by a 3-vector using gonum, the
// alignment-matrix math library this client borrows from the rest of the
// retrieval pack's sensor-processing code.
func matVec(m [3][3]float64, v [3]float64) [3]float64 {
	md := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	vd := mat.NewVecDense(3, []float64{v[0], v[1], v[2]})
	var out mat.VecDense
	out.MulVec(md, vd)
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

func addVec(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func subVec(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// ApplyAccel computes A*raw + b for the snapshot's accelerometer alignment
// and bias.
func (s Snapshot) ApplyAccel(raw [3]float64) [3]float64 {
	return addVec(matVec(s.AccelAlign, raw), s.AccelBias)
}

// ApplyGyro computes A*raw + b for the snapshot's gyroscope alignment and
// bias. raw is expected in degrees/second (already converted from the
// wire's radians/second).
func (s Snapshot) ApplyGyro(raw [3]float64) [3]float64 {
	return addVec(matVec(s.GyroAlign, raw), s.GyroBias)
}

// ApplyMag computes S*(raw - h) for the snapshot's soft-iron matrix and
// hard-iron offset.
func (s Snapshot) ApplyMag(raw [3]float64) [3]float64 {
	return matVec(s.MagSoft, subVec(raw, s.MagHard))
}
