package settings

import (
	"context"

	"github.com/spf13/cast"

	"motormods/backend/internal/store"
)

// Well-known keys. Values live in the settings table so the thresholds can
// be changed without a restart.
const (
	KeyNonMovingThresholdDays = "non_moving_threshold_days"
	KeyFastMovingWindowDays   = "fast_moving_window_days"
	KeyDefaultCustomerName    = "default_customer_name"
	KeyMirrorEnabled          = "mirror_enabled"
	KeyLowStockMethod         = "low_stock_method"
	KeyLowStockPercent        = "low_stock_percent"
)

const (
	DefaultNonMovingThresholdDays = 90
	DefaultFastMovingWindowDays   = 30
	DefaultLowStockPercent        = 20

	LowStockMethodReorderLevel = "reorder_level"
	LowStockMethodPercentOfMax = "percent_of_max"
)

// Provider reads typed values from the settings table, falling back to the
// given default on a missing key or an unparseable value.
type Provider struct {
	store store.Provider
}

func NewProvider(p store.Provider) *Provider {
	return &Provider{store: p}
}

func (p *Provider) String(ctx context.Context, key string, fallback string) string {
	setting, err := p.store.Repo().GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	return setting.Value
}

func (p *Provider) Int(ctx context.Context, key string, fallback int) int {
	setting, err := p.store.Repo().GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	v, err := cast.ToIntE(setting.Value)
	if err != nil {
		return fallback
	}
	return v
}

func (p *Provider) Bool(ctx context.Context, key string, fallback bool) bool {
	setting, err := p.store.Repo().GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	v, err := cast.ToBoolE(setting.Value)
	if err != nil {
		return fallback
	}
	return v
}

func (p *Provider) Set(ctx context.Context, key string, value string) error {
	return p.store.Repo().PutSetting(ctx, key, value)
}
