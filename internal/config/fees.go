package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FeeConfig carries the platform fee rates in basis points. Rates are
// configuration, not code: operators tune them per deployment.
type FeeConfig struct {
	TransferBps         int64
	WithdrawalBps       int64
	PurchaseDefaultBps  int64
	PurchaseMinBps      int64
	PurchaseMaxBps      int64
	PurchaseCategoryBps map[string]int64
}

func LoadFeeConfig() *FeeConfig {
	return &FeeConfig{
		TransferBps:         getEnvAsInt64("FEE_TRANSFER_BPS", 200),
		WithdrawalBps:       getEnvAsInt64("FEE_WITHDRAWAL_BPS", 250),
		PurchaseDefaultBps:  getEnvAsInt64("FEE_PURCHASE_DEFAULT_BPS", 200),
		PurchaseMinBps:      getEnvAsInt64("FEE_PURCHASE_MIN_BPS", 200),
		PurchaseMaxBps:      getEnvAsInt64("FEE_PURCHASE_MAX_BPS", 2000),
		PurchaseCategoryBps: getEnvAsBpsMap("FEE_PURCHASE_CATEGORY_BPS"),
	}
}

// getEnvAsBpsMap parses "books:500,movies:1000" into a category rate map.
func getEnvAsBpsMap(key string) map[string]int64 {
	rates := map[string]int64{}
	val := os.Getenv(key)
	if val == "" {
		return rates
	}
	for _, pair := range strings.Split(val, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		if bps, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			rates[parts[0]] = bps
		}
	}
	return rates
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
