package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestVirtual_AdvanceAndSince(t *testing.T) {
	vc := NewVirtual(epoch)
	assert.Equal(t, epoch, vc.Now())

	vc.Advance(1500 * time.Millisecond)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), vc.Now())
	assert.Equal(t, 1500*time.Millisecond, vc.Since(epoch))
}

func TestVirtual_SetRejectsPast(t *testing.T) {
	vc := NewVirtual(epoch)
	vc.Set(epoch.Add(time.Hour))
	require.Panics(t, func() { vc.Set(epoch) })
	require.Panics(t, func() { vc.Advance(-time.Second) })
}
