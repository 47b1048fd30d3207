package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLedgerConfigDefaultsWhenFileMissing(t *testing.T) {
	holder, err := NewLedgerConfigHolder(Config{LedgerConfigPath: filepath.Join(t.TempDir(), "missing.yml")}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultLedgerConfig(), holder.Get())
}

func TestLedgerConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yml")
	content := "ledger:\n  needsAttentionOverdueCount: 5\n  monthlyDueDay: 28\n  chargeLockTTL: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	holder, err := NewLedgerConfigHolder(Config{LedgerConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 5, cfg.NeedsAttentionOverdueCount)
	assert.Equal(t, 28, cfg.MonthlyDueDay)
	assert.Equal(t, 2*time.Second, cfg.ChargeLockTTL)
	assert.Equal(t, 3, cfg.MutationRetryAttempts)
}

func TestLedgerConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  monthlyDueDay: 40\n"), 0o600))

	_, err := NewLedgerConfigHolder(Config{LedgerConfigPath: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestNilHolderReturnsDefaults(t *testing.T) {
	var holder *LedgerConfigHolder
	assert.Equal(t, DefaultLedgerConfig(), holder.Get())
}
