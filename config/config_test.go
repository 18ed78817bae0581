package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().MemTableMaxSize, s.MemTableMaxSize)
	assert.Equal(t, Default().BloomFPR, s.BloomFPR)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.DBPath, reloaded.DBPath)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := Default()
	s.MemTableMaxSize = 42
	s.BloomFPR = 0.05

	require.NoError(t, Save(path, s))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.MemTableMaxSize)
	assert.Equal(t, 0.05, got.BloomFPR)
}

func TestValidateRejectsBadBounds(t *testing.T) {
	s := Default()
	s.MemTableMaxSize = 0
	assert.Error(t, s.Validate())

	s = Default()
	s.BloomFPR = 1.5
	assert.Error(t, s.Validate())

	s = Default()
	s.IndexCacheEntries = 0
	assert.Error(t, s.Validate())

	assert.NoError(t, Default().Validate())
}
