package app

import (
	"sync/atomic"

	"editormcp/internal/domain"
)

// TierHolder is a TierSource whose value follows config reloads.
type TierHolder struct {
	value atomic.Int32
}

func NewTierHolder(tier domain.Tier) *TierHolder {
	h := &TierHolder{}
	h.Set(tier)
	return h
}

func (h *TierHolder) CurrentTier() domain.Tier {
	return domain.Tier(h.value.Load())
}

// Set replaces the tier and reports whether it changed.
func (h *TierHolder) Set(tier domain.Tier) bool {
	return domain.Tier(h.value.Swap(int32(tier))) != tier
}
