package domain

import (
	"fmt"
	"strings"
)

// Tier is the ordinal license tier gating tool visibility.
type Tier int

const (
	TierCore Tier = iota
	TierPro
	TierStudio
	TierEnterprise
)

var tierNames = []string{"core", "pro", "studio", "enterprise"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// Allows reports whether a caller at tier t may use a tool requiring min.
func (t Tier) Allows(min Tier) bool {
	return min <= t
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier parses a case-insensitive tier name.
func ParseTier(value string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for i, name := range tierNames {
		if normalized == name {
			return Tier(i), nil
		}
	}
	return TierCore, fmt.Errorf("unknown tier %q", value)
}

// TierSource supplies the caller's current tier.
type TierSource interface {
	CurrentTier() Tier
}

// StaticTier is a TierSource with a fixed value.
type StaticTier Tier

func (s StaticTier) CurrentTier() Tier {
	return Tier(s)
}
