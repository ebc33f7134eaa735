package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), got)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := DefaultSettings()
	s.DisplayName = "Alice"
	s.SignalURL = "ws://example.com/ws"
	s.CaptureAudio = true
	s.MaxViewers = 4

	require.NoError(t, Save(s))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
