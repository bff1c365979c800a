package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aritech2mqtt/internal/ats"
	"aritech2mqtt/internal/panel"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	c := openTestCache(t)

	data := panel.CacheData{
		Device: panel.Device{Model: "ATS4500A", Firmware: "MR2.0", Family: ats.FamilyX700},
		Areas:  []ats.NamedItem{{Number: 1, Name: "Office"}},
		Zones:  []ats.NamedItem{{Number: 1, Name: "Reception Door"}},
		Doors:  []ats.NamedItem{{Number: 1, Name: "Reception"}},
	}
	require.NoError(t, c.Save(data))

	loaded, updatedAt, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, data, loaded)
	assert.WithinDuration(t, time.Now(), updatedAt, time.Minute)
}

func TestCacheLoadEmpty(t *testing.T) {
	c := openTestCache(t)

	_, _, err := c.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheClear(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.Save(panel.CacheData{Device: panel.Device{Model: "ATS1500A"}}))
	require.NoError(t, c.Clear())

	_, _, err := c.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}
