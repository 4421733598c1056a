package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("QUOTE_CACHE_TTL_SECONDS", "0")
	t.Setenv("LOYALTY_POINT_VALUE", "1")
	t.Setenv("LOYALTY_BASE_POINTS_RATE", "0.01")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 30, cfg.QuoteCacheTTLSeconds)
	assert.True(t, cfg.LoyaltyRules().PointValue.Equal(decimal.NewFromInt(1)))
	assert.True(t, cfg.LoyaltyRules().BasePointsRate.Equal(decimal.RequireFromString("0.01")))
}

func TestLoadRejectsNonPositivePointValue(t *testing.T) {
	t.Setenv("LOYALTY_POINT_VALUE", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[store]]
id = "downtown"
name = "Downtown Salon"
tax_enabled = true
tax_rate = 10.5
open_hour = 10
close_hour = 20
timezone = "UTC"

[[store]]
id = "mall"
name = "Mall Kiosk"
tax_enabled = false
tax_rate = 0
open_hour = 9
close_hour = 22
`), 0o600))

	stores, err := LoadStores(path)
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "downtown", stores[0].ID)
	assert.True(t, stores[0].TaxEnabled)
	assert.True(t, stores[0].TaxRate.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, 20, stores[0].CloseHour)
	assert.False(t, stores[1].TaxEnabled)
}

func TestLoadStoresRejectsBadHours(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[store]]
id = "late"
open_hour = 22
close_hour = 8
`), 0o600))

	_, err := LoadStores(path)
	assert.Error(t, err)
}
