package services

import (
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/models"
)

// FeePolicy maps (operation kind, amount) to a fee in minor units. It is
// deterministic and side-effect-free so the engine can price an operation
// before committing anything.
type FeePolicy struct {
	cfg *config.FeeConfig
}

func NewFeePolicy(cfg *config.FeeConfig) *FeePolicy {
	return &FeePolicy{cfg: cfg}
}

// Fee returns the platform fee for a single-rate operation kind.
// Earning, deposits and admin adjustments are never charged.
func (p *FeePolicy) Fee(kind string, amount int64) int64 {
	switch kind {
	case models.EntryTransferOut, models.EntryTransferIn:
		return bpsOf(amount, p.cfg.TransferBps)
	case models.EntryWithdrawal:
		return bpsOf(amount, p.cfg.WithdrawalBps)
	default:
		return 0
	}
}

// PurchaseFee returns the marketplace commission for a category, clamped to
// the configured band. Unknown categories use the default rate.
func (p *FeePolicy) PurchaseFee(category string, amount int64) int64 {
	bps := p.cfg.PurchaseDefaultBps
	if category != "" {
		if rate, ok := p.cfg.PurchaseCategoryBps[category]; ok {
			bps = rate
		}
	}
	if bps < p.cfg.PurchaseMinBps {
		bps = p.cfg.PurchaseMinBps
	}
	if bps > p.cfg.PurchaseMaxBps {
		bps = p.cfg.PurchaseMaxBps
	}
	return bpsOf(amount, bps)
}

// bpsOf computes amount * bps / 10000 in integer math, truncating toward
// zero. The result always lands in [0, amount]: a rate at or above 10000 bps
// caps at the full amount, so a misconfigured rate can never price a fee
// larger than the value it applies to. Splitting the amount at the bps
// divisor keeps the multiplication from overflowing int64 on large amounts.
func bpsOf(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	if bps >= 10000 {
		return amount
	}
	return amount/10000*bps + amount%10000*bps/10000
}
