package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfile(t *testing.T) {
	p, err := LoadProfile("")
	require.NoError(t, err)

	assert.Equal(t, "XAUUSD", p.Symbol)
	assert.InDelta(t, 0.50, p.Volume, 1e-9)
	assert.Equal(t, 60*time.Second, p.TradeInterval)
	assert.Equal(t, 5*time.Minute, p.MonitorWindow)
}

func TestLoadProfileFillsUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbol: EURUSD\nvolume: 0.10\ntrade_interval: 30s\n"), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "EURUSD", p.Symbol)
	assert.InDelta(t, 0.10, p.Volume, 1e-9)
	assert.Equal(t, 30*time.Second, p.TradeInterval)
	// Unset fields fall back to defaults.
	assert.InDelta(t, 2374.85, p.FallbackPrice, 1e-9)
	assert.Equal(t, 10*time.Second, p.MonitorInterval)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile("/nonexistent/profile.yaml")
	assert.Error(t, err)
}
