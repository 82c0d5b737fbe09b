package services

import (
	"merch-loyalty-system/config"
	"merch-loyalty-system/models"
)

// TierPolicy derives a membership tier from cumulative points. Pure and
// monotonic: more points never means a lower tier. Thresholds come from
// configuration, never from literals in the call sites.
type TierPolicy struct {
	silver int64
	gold   int64
	vip    int64
}

func NewTierPolicy(cfg config.LoyaltyConfig) *TierPolicy {
	return &TierPolicy{
		silver: cfg.SilverThreshold,
		gold:   cfg.GoldThreshold,
		vip:    cfg.VIPThreshold,
	}
}

// TierForPoints maps a cumulative point total to its tier.
func (p *TierPolicy) TierForPoints(total int64) models.Tier {
	switch {
	case total >= p.vip:
		return models.TierVIP
	case total >= p.gold:
		return models.TierGold
	case total >= p.silver:
		return models.TierSilver
	default:
		return models.TierBronze
	}
}

// Thresholds returns (silver, gold, vip) so the store layer can embed the
// same boundaries in its conditional update.
func (p *TierPolicy) Thresholds() (int64, int64, int64) {
	return p.silver, p.gold, p.vip
}

// NextTier returns the tier above the given total and how many points are
// missing, or ("", 0) at the top.
func (p *TierPolicy) NextTier(total int64) (models.Tier, int64) {
	switch p.TierForPoints(total) {
	case models.TierBronze:
		return models.TierSilver, p.silver - total
	case models.TierSilver:
		return models.TierGold, p.gold - total
	case models.TierGold:
		return models.TierVIP, p.vip - total
	default:
		return "", 0
	}
}
