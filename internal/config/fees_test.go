package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadFeeConfig_Defaults(t *testing.T) {
	cfg := LoadFeeConfig()

	assert.Equal(t, int64(200), cfg.TransferBps)
	assert.Equal(t, int64(250), cfg.WithdrawalBps)
	assert.Equal(t, int64(200), cfg.PurchaseDefaultBps)
	assert.Equal(t, int64(200), cfg.PurchaseMinBps)
	assert.Equal(t, int64(2000), cfg.PurchaseMaxBps)
	assert.Empty(t, cfg.PurchaseCategoryBps)
}

func TestLoadFeeConfig_Overrides(t *testing.T) {
	t.Setenv("FEE_TRANSFER_BPS", "150")
	t.Setenv("FEE_PURCHASE_CATEGORY_BPS", "books:500, movies:1000,broken,also:bad:pair")

	cfg := LoadFeeConfig()

	assert.Equal(t, int64(150), cfg.TransferBps)
	assert.Equal(t, int64(500), cfg.PurchaseCategoryBps["books"])
	assert.Equal(t, int64(1000), cfg.PurchaseCategoryBps["movies"])
	assert.NotContains(t, cfg.PurchaseCategoryBps, "broken")
}

func TestLoadLedgerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadLedgerConfig()

		assert.Equal(t, "platform-fees", cfg.SystemFeeAccount)
		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, 25*time.Millisecond, cfg.RetryBackoff)
		assert.Equal(t, 100, cfg.HistoryMaxLimit)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("LEDGER_MAX_RETRIES", "8")
		t.Setenv("LEDGER_RETRY_BACKOFF", "100ms")

		cfg := LoadLedgerConfig()

		assert.Equal(t, 8, cfg.MaxRetries)
		assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff)
	})
}
