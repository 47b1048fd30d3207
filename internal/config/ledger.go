package config

import (
	"errors"
	"io/fs"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LedgerConfig holds the operational knobs of the billing ledger that can be
// changed without a restart.
type LedgerConfig struct {
	NeedsAttentionOverdueCount int           `mapstructure:"needsAttentionOverdueCount"`
	MutationRetryAttempts      int           `mapstructure:"mutationRetryAttempts"`
	MonthlyDueDay              int           `mapstructure:"monthlyDueDay"`
	ChargeLockTTL              time.Duration `mapstructure:"chargeLockTTL"`
	OverdueBatchSize           int           `mapstructure:"overdueBatchSize"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		NeedsAttentionOverdueCount: 3,
		MutationRetryAttempts:      3,
		MonthlyDueDay:              10,
		ChargeLockTTL:              5 * time.Second,
		OverdueBatchSize:           200,
	}
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

// NewStaticLedgerConfigHolder returns a holder that never reloads.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewLedgerConfigHolder(cfg Config, log *zap.Logger) (*LedgerConfigHolder, error) {
	log = log.Named("ledger.config")
	v := viper.New()

	if cfg.LedgerConfigPath != "" {
		v.SetConfigFile(cfg.LedgerConfigPath)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/bursar")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BURSAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.needsAttentionOverdueCount", defaults.NeedsAttentionOverdueCount)
	v.SetDefault("ledger.mutationRetryAttempts", defaults.MutationRetryAttempts)
	v.SetDefault("ledger.monthlyDueDay", defaults.MonthlyDueDay)
	v.SetDefault("ledger.chargeLockTTL", defaults.ChargeLockTTL)
	v.SetDefault("ledger.overdueBatchSize", defaults.OverdueBatchSize)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
		log.Info("ledger config file not found, using defaults")
	}

	current := defaults
	if err := v.UnmarshalKey("ledger", &current); err != nil {
		return nil, err
	}
	if err := ValidateLedgerConfig(current); err != nil {
		return nil, err
	}

	holder := NewStaticLedgerConfigHolder(current)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultLedgerConfig()
		if err := v.UnmarshalKey("ledger", &updated); err != nil {
			log.Warn("ledger config reload failed", zap.Error(err))
			return
		}
		if err := ValidateLedgerConfig(updated); err != nil {
			log.Warn("invalid ledger config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("ledger config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	if h == nil {
		return DefaultLedgerConfig()
	}
	cfg, ok := h.current.Load().(LedgerConfig)
	if !ok {
		return DefaultLedgerConfig()
	}
	return cfg
}

func ValidateLedgerConfig(cfg LedgerConfig) error {
	if cfg.NeedsAttentionOverdueCount < 1 {
		return errors.New("ledger.needsAttentionOverdueCount must be at least 1")
	}
	if cfg.MutationRetryAttempts < 1 {
		return errors.New("ledger.mutationRetryAttempts must be at least 1")
	}
	if cfg.MonthlyDueDay < 1 || cfg.MonthlyDueDay > 31 {
		return errors.New("ledger.monthlyDueDay must be between 1 and 31")
	}
	if cfg.ChargeLockTTL <= 0 {
		return errors.New("ledger.chargeLockTTL must be positive")
	}
	if cfg.OverdueBatchSize < 1 {
		return errors.New("ledger.overdueBatchSize must be at least 1")
	}
	return nil
}
