package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidchain/pkg/domain"
)

const testAuthority = "0x00000000000000000000000000000000000000a1"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AIDCHAIN_AUTHORITY", testAuthority)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, time.Second, cfg.RelayInterval)
	assert.Equal(t, 5, cfg.Ledger.MaxUnitsPerCall)
	assert.Equal(t, 0, cfg.Ledger.Threshold.Cmp(domain.MilliEther(320)))
	assert.Equal(t, 0, cfg.Ledger.MinDonation.Cmp(domain.MilliEther(5)))
	assert.Equal(t, common.HexToAddress(testAuthority), cfg.Ledger.Authority)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, 60, cfg.RateLimit.WritesPerWindow)
	assert.Equal(t, 600, cfg.RateLimit.ReadsPerWindow)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AIDCHAIN_AUTHORITY", testAuthority)
	t.Setenv("AIDCHAIN_STORE", "SQLite")
	t.Setenv("AIDCHAIN_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AIDCHAIN_THRESHOLD_WEI", "1000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "1000", cfg.Ledger.Threshold.String())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing authority", map[string]string{}},
		{"postgres without url", map[string]string{"AIDCHAIN_AUTHORITY": testAuthority, "AIDCHAIN_STORE": "postgres"}},
		{"unknown store", map[string]string{"AIDCHAIN_AUTHORITY": testAuthority, "AIDCHAIN_STORE": "mongo"}},
		{"zero threshold", map[string]string{"AIDCHAIN_AUTHORITY": testAuthority, "AIDCHAIN_THRESHOLD_WEI": "0"}},
		{"zero cap", map[string]string{"AIDCHAIN_AUTHORITY": testAuthority, "AIDCHAIN_MAX_UNITS_PER_CALL": "0"}},
		{"negative write limit", map[string]string{"AIDCHAIN_AUTHORITY": testAuthority, "AIDCHAIN_RATE_LIMIT_WRITES": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AIDCHAIN_AUTHORITY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
