package config

import (
	"time"
)

// LedgerConfig tunes the transfer engine. SystemFeeAccount is the internal
// account that collects platform fees; it must exist before the first fee
// is taken.
type LedgerConfig struct {
	SystemFeeAccount string
	MaxRetries       int
	RetryBackoff     time.Duration
	HistoryMaxLimit  int
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		SystemFeeAccount: getEnv("SYSTEM_FEE_ACCOUNT", "platform-fees"),
		MaxRetries:       getEnvAsInt("LEDGER_MAX_RETRIES", 5),
		RetryBackoff:     getEnvAsDuration("LEDGER_RETRY_BACKOFF", 25*time.Millisecond),
		HistoryMaxLimit:  getEnvAsInt("LEDGER_HISTORY_MAX_LIMIT", 100),
	}
}
