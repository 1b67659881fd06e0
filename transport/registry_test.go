package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/motionlink/errs"
)

func TestRegistryGetUnknownKeyIsNotFound(t *testing.T) {
	r := &Registry{transports: make(map[string]Transport)}
	_, err := r.Get("NoSuchTransport")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestRegisterSkipsUnavailableTransports(t *testing.T) {
	r := &Registry{transports: make(map[string]Transport)}

	// The vendor-USB stubs report Available() == false on every platform,
	// so registering one must be a silent no-op.
	r.Register(NewSiUsbTransport())
	_, err := r.Get("SiUsb")
	require.Error(t, err)

	r.Register(NewTestSensorTransport())
	got, err := r.Get(TestSensorKey)
	require.NoError(t, err)
	assert.Equal(t, TestSensorKey, got.Key())
	assert.Len(t, r.List(), 1)
}

func TestRegisterDefaultsIsIdempotent(t *testing.T) {
	RegisterDefaults()
	before := len(Default().List())

	RegisterDefaults()
	assert.Equal(t, before, len(Default().List()))

	// The in-process fixture is available everywhere, so it is always part
	// of the default set.
	got, err := Default().Get(TestSensorKey)
	require.NoError(t, err)
	assert.Equal(t, TestSensorKey, got.Key())
}
