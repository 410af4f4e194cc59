package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/model"
)

func bare(id, host string) *Coordinator {
	return New(megad.New(id, host, model.DeviceConfig{}, nil, megad.Options{}), Options{})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(bare("kitchen", "192.168.0.15")))
	require.NoError(t, r.Register(bare("hall", "192.168.0.14:80")))
	assert.Error(t, r.Register(bare("hall", "192.168.0.99")))

	c, ok := r.ByHost("192.168.0.14")
	require.True(t, ok)
	assert.Equal(t, "hall", c.ID())

	c, ok = r.ByHost("192.168.0.15:51234")
	require.True(t, ok)
	assert.Equal(t, "kitchen", c.ID())

	_, ok = r.ByHost("10.0.0.1")
	assert.False(t, ok)

	var ids []string
	for _, c := range r.All() {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"hall", "kitchen"}, ids)

	r.Unregister("hall")
	_, ok = r.Get("hall")
	assert.False(t, ok)
	_, ok = r.Get("kitchen")
	assert.True(t, ok)
}
