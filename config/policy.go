package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SyncPolicy holds the tunables of a reconciliation pass.
//
// Set via env:
//   - PHONE_AREA_PREFIX ("034")
//   - LOW_STOCK_THRESHOLD (metres, "0" disables the inactive transition)
//   - WASTAGE_METHOD ("smart_segments" | "legacy_gaps")
//   - SYNC_ALLOWED_ROLES ("admin,manager")
//   - SECONDARY_TAB_NAME ("DW")
//   - SYNC_LOCK_TTL_SECONDS (600)
//   - JOB_STATUS_TTL_HOURS (24)
//   - SYNC_DISPATCH ("inline" | "pubsub")
type SyncPolicy struct {
	AreaPrefix        string
	LowStockThreshold decimal.Decimal
	WastageMethod     string
	AllowedRoles      []string
	SecondaryTab      string
	LockTTL           time.Duration
	JobStatusTTL      time.Duration
	Dispatch          string
}

const (
	DispatchInline = "inline"
	DispatchPubSub = "pubsub"
)

func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		AreaPrefix:        "034",
		LowStockThreshold: decimal.Zero,
		WastageMethod:     "smart_segments",
		AllowedRoles:      []string{"admin", "manager"},
		SecondaryTab:      "DW",
		LockTTL:           10 * time.Minute,
		JobStatusTTL:      24 * time.Hour,
		Dispatch:          DispatchInline,
	}
}

func LoadSyncPolicy() SyncPolicy {
	p := DefaultSyncPolicy()
	p.AreaPrefix = stringFromEnv("PHONE_AREA_PREFIX", p.AreaPrefix)
	if raw := strings.TrimSpace(os.Getenv("LOW_STOCK_THRESHOLD")); raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil && !d.IsNegative() {
			p.LowStockThreshold = d
		}
	}
	p.WastageMethod = stringFromEnv("WASTAGE_METHOD", p.WastageMethod)
	if roles := splitAndTrim(os.Getenv("SYNC_ALLOWED_ROLES")); len(roles) > 0 {
		p.AllowedRoles = roles
	}
	p.SecondaryTab = stringFromEnv("SECONDARY_TAB_NAME", p.SecondaryTab)
	if secs := intFromEnv("SYNC_LOCK_TTL_SECONDS", 0); secs > 0 {
		p.LockTTL = time.Duration(secs) * time.Second
	}
	if hours := intFromEnv("JOB_STATUS_TTL_HOURS", 0); hours > 0 {
		p.JobStatusTTL = time.Duration(hours) * time.Hour
	}
	if strings.EqualFold(stringFromEnv("SYNC_DISPATCH", ""), DispatchPubSub) {
		p.Dispatch = DispatchPubSub
	}
	return p
}

// CorsAllowedOrigins returns nil outside production, meaning all origins are allowed.
func CorsAllowedOrigins() (origins []string, allowAll bool) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		return nil, true
	}
	return splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")), false
}

// SkipMigrations reports whether AutoMigrate should be skipped on startup.
func SkipMigrations() bool {
	return envBoolDefault("SKIP_MIGRATIONS", false)
}
