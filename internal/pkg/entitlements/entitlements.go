package entitlements

import (
	"strings"
)

type Tier string

const (
	TierEmber       Tier = "ember"
	TierFlamewalker Tier = "flamewalker"
	TierHarmonizer  Tier = "harmonizer"
	TierArchitect   Tier = "architect"
)

// DefaultTier is the free tier every payer falls back to.
const DefaultTier = TierEmber

// ParseTier resolves a raw tier name. The boolean is false for unknown or
// empty input, in which case the default tier is returned.
func ParseTier(raw string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierEmber:
		return TierEmber, true
	case TierFlamewalker:
		return TierFlamewalker, true
	case TierHarmonizer:
		return TierHarmonizer, true
	case TierArchitect:
		return TierArchitect, true
	default:
		return DefaultTier, false
	}
}

// NormalizeTier maps unknown tiers onto the default tier.
func NormalizeTier(raw string) Tier {
	t, _ := ParseTier(raw)
	return t
}

// Rank orders tiers from free to most privileged.
func Rank(t Tier) int {
	switch NormalizeTier(string(t)) {
	case TierArchitect:
		return 3
	case TierHarmonizer:
		return 2
	case TierFlamewalker:
		return 1
	default:
		return 0
	}
}

// IsPaid reports whether the tier requires a subscription.
func (t Tier) IsPaid() bool {
	return Rank(t) > 0
}

func (t Tier) String() string {
	return string(t)
}

var contentPrefixes = []string{"contentunlock:", "content_unlock:", "scroll_"}

// ContentID strips a known namespace prefix ("scroll_007-D" -> "007-D") so
// grants and lookups share one form.
func ContentID(raw string) string {
	id := strings.TrimSpace(raw)
	lower := strings.ToLower(id)
	for _, prefix := range contentPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return id[len(prefix):]
		}
	}
	return id
}
