package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadSyncPolicy_Defaults(t *testing.T) {
	for _, k := range []string{"PHONE_AREA_PREFIX", "LOW_STOCK_THRESHOLD", "WASTAGE_METHOD", "SYNC_ALLOWED_ROLES", "SECONDARY_TAB_NAME", "SYNC_LOCK_TTL_SECONDS", "JOB_STATUS_TTL_HOURS", "SYNC_DISPATCH"} {
		t.Setenv(k, "")
	}
	p := LoadSyncPolicy()
	assert.Equal(t, "034", p.AreaPrefix)
	assert.True(t, p.LowStockThreshold.IsZero())
	assert.Equal(t, "smart_segments", p.WastageMethod)
	assert.Equal(t, []string{"admin", "manager"}, p.AllowedRoles)
	assert.Equal(t, "DW", p.SecondaryTab)
	assert.Equal(t, 10*time.Minute, p.LockTTL)
	assert.Equal(t, DispatchInline, p.Dispatch)
}

func TestLoadSyncPolicy_Overrides(t *testing.T) {
	t.Setenv("PHONE_AREA_PREFIX", "011")
	t.Setenv("LOW_STOCK_THRESHOLD", "50.5")
	t.Setenv("SYNC_ALLOWED_ROLES", "owner, supervisor ,")
	t.Setenv("SYNC_LOCK_TTL_SECONDS", "30")
	t.Setenv("SYNC_DISPATCH", "PubSub")

	p := LoadSyncPolicy()
	assert.Equal(t, "011", p.AreaPrefix)
	assert.True(t, p.LowStockThreshold.Equal(decimal.RequireFromString("50.5")))
	assert.Equal(t, []string{"owner", "supervisor"}, p.AllowedRoles)
	assert.Equal(t, 30*time.Second, p.LockTTL)
	assert.Equal(t, DispatchPubSub, p.Dispatch)
}

func TestLoadSyncPolicy_IgnoresNegativeThreshold(t *testing.T) {
	t.Setenv("LOW_STOCK_THRESHOLD", "-3")
	assert.True(t, LoadSyncPolicy().LowStockThreshold.IsZero())
}
