package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightctl/internal/application"
	"lightctl/internal/domain"
)

func newRegistry(v *fakeVendor, cfg application.RegistryConfig) *application.Registry {
	return application.NewRegistry(v, cfg, nil, discardLogger())
}

func TestRegistry_FiltersLights(t *testing.T) {
	plug := &fakeDevice{name: "Heater", id: "h", class: "plug"}
	unnamed := &fakeDevice{name: " ", id: "u", class: "light"}
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d"), plug, unnamed, {name: "Porch", id: "p", class: "LIGHT"}}}

	devices, err := newRegistry(v, application.RegistryConfig{DeviceClass: "light"}).Devices(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, d := range devices {
		ids = append(ids, d.ID())
	}
	assert.Equal(t, []string{"d", "p"}, ids)
}

func TestRegistry_EmptyClassKeepsAll(t *testing.T) {
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d"), {name: "Heater", id: "h", class: "plug"}}}

	devices, err := newRegistry(v, application.RegistryConfig{}).Devices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestRegistry_CachesSession(t *testing.T) {
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d")}}
	r := newRegistry(v, application.RegistryConfig{})

	assert.False(t, r.Connected())
	for range 3 {
		_, err := r.Devices(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), v.connects.Load())
	assert.True(t, r.Connected())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_SingleFlightLogin(t *testing.T) {
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d")}, delay: 50 * time.Millisecond}
	r := newRegistry(v, application.RegistryConfig{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Devices(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), v.connects.Load())
}

func TestRegistry_Invalidate(t *testing.T) {
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d")}}
	r := newRegistry(v, application.RegistryConfig{})

	_, err := r.Devices(context.Background())
	require.NoError(t, err)

	r.Invalidate()
	assert.False(t, r.Connected())
	assert.Equal(t, 0, r.Count())

	_, err = r.Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), v.connects.Load())
}

func TestRegistry_InvalidateSessionIgnoresReplacedSession(t *testing.T) {
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d")}}
	r := newRegistry(v, application.RegistryConfig{})

	old, err := r.Session(context.Background())
	require.NoError(t, err)

	require.NoError(t, r.Sync(context.Background()))
	current, err := r.Session(context.Background())
	require.NoError(t, err)
	assert.Greater(t, current.Generation, old.Generation)

	r.InvalidateSession(old.Generation)
	assert.True(t, r.Connected())

	r.InvalidateSession(current.Generation)
	assert.False(t, r.Connected())
	assert.Equal(t, int32(2), v.connects.Load())
}

func TestRegistry_MaxAge(t *testing.T) {
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d")}}
	r := newRegistry(v, application.RegistryConfig{MaxAge: 10 * time.Millisecond})

	_, err := r.Devices(context.Background())
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.False(t, r.Connected())

	_, err = r.Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), v.connects.Load())
}

func TestRegistry_LoginFailure(t *testing.T) {
	v := &fakeVendor{connectErr: errors.New("bad password")}
	r := newRegistry(v, application.RegistryConfig{})

	_, err := r.Devices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Contains(t, err.Error(), "bad password")
	assert.False(t, r.Connected())
}

func TestRegistry_Sync(t *testing.T) {
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d")}}
	r := newRegistry(v, application.RegistryConfig{})

	require.NoError(t, r.Sync(context.Background()))
	require.NoError(t, r.Sync(context.Background()))
	assert.Equal(t, int32(2), v.connects.Load())
}

func TestRegistry_StartPeriodicSync(t *testing.T) {
	v := &fakeVendor{devices: []*fakeDevice{newLight("Desk", "d")}}
	r := newRegistry(v, application.RegistryConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, r.StartPeriodicSync(ctx, ""))
	assert.Error(t, r.StartPeriodicSync(ctx, "not a schedule"))
	require.NoError(t, r.StartPeriodicSync(ctx, "@every 1s"))

	assert.Eventually(t, func() bool { return v.connects.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
