package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath  string
	JSON        bool
	Plain       bool
	Select      string
	ResultsOnly bool
	Timeout     string
	LogLevel    string
	NoCache     bool
}

type Settings struct {
	OutputMode   string
	SelectFields []string
	ResultsOnly  bool
	LogLevel     string

	Timeout         time.Duration
	QuoteTTL        time.Duration
	SourceTimeout   time.Duration
	DebounceWindow  time.Duration
	SourceRateLimit int
	RateWindow      time.Duration
	CacheEnabled    bool

	EVMChainID int64

	HistoryPath     string
	HistoryLockPath string

	OneInchAPIKey string
	UniswapAPIKey string
	JupiterAPIKey string

	EVMWalletAddress string
	EVMWalletName    string
	SolWalletAddress string
	SolWalletName    string

	DefaultSlippageBps uint16
}

type fileConfig struct {
	Output   string `yaml:"output"`
	LogLevel string `yaml:"log_level"`
	Timeout  string `yaml:"timeout"`
	Quotes   struct {
		TTL            string `yaml:"ttl"`
		SourceTimeout  string `yaml:"source_timeout"`
		Debounce       string `yaml:"debounce"`
		RateLimit      *int   `yaml:"rate_limit"`
		RateWindow     string `yaml:"rate_window"`
		SlippageBps    *int   `yaml:"slippage_bps"`
		DisableCaching *bool  `yaml:"disable_caching"`
	} `yaml:"quotes"`
	Chains struct {
		EVMChainID *int64 `yaml:"evm_chain_id"`
	} `yaml:"chains"`
	History struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"history"`
	Sources struct {
		OneInch struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"oneinch"`
		Uniswap struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"uniswap"`
		Jupiter struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"jupiter"`
	} `yaml:"sources"`
	Wallets struct {
		EVM struct {
			Address string `yaml:"address"`
			Name    string `yaml:"name"`
		} `yaml:"evm"`
		Solana struct {
			Address string `yaml:"address"`
			Name    string `yaml:"name"`
		} `yaml:"solana"`
	} `yaml:"wallets"`
}

// Load merges settings in precedence order: defaults, then the yaml file,
// then TRADEDESK_* environment variables, then flags.
func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.QuoteTTL <= 0 {
		settings.QuoteTTL = 30 * time.Second
	}
	if settings.SourceTimeout <= 0 {
		settings.SourceTimeout = 12 * time.Second
	}
	if settings.DebounceWindow <= 0 {
		settings.DebounceWindow = time.Second
	}
	if settings.RateWindow <= 0 {
		settings.RateWindow = time.Minute
	}
	if settings.DefaultSlippageBps == 0 {
		settings.DefaultSlippageBps = 50
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	historyPath, lockPath, err := defaultHistoryPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:         "json",
		LogLevel:           "silent",
		Timeout:            15 * time.Second,
		QuoteTTL:           30 * time.Second,
		SourceTimeout:      12 * time.Second,
		DebounceWindow:     time.Second,
		SourceRateLimit:    30,
		RateWindow:         time.Minute,
		CacheEnabled:       true,
		EVMChainID:         1,
		HistoryPath:        historyPath,
		HistoryLockPath:    lockPath,
		DefaultSlippageBps: 50,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "tradedesk", "config.yaml"), nil
}

func defaultHistoryPaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "tradedesk")
	return filepath.Join(dir, "history.db"), filepath.Join(dir, "history.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Quotes.TTL != "" {
		d, err := time.ParseDuration(cfg.Quotes.TTL)
		if err != nil {
			return fmt.Errorf("config quotes.ttl: %w", err)
		}
		settings.QuoteTTL = d
	}
	if cfg.Quotes.SourceTimeout != "" {
		d, err := time.ParseDuration(cfg.Quotes.SourceTimeout)
		if err != nil {
			return fmt.Errorf("config quotes.source_timeout: %w", err)
		}
		settings.SourceTimeout = d
	}
	if cfg.Quotes.Debounce != "" {
		d, err := time.ParseDuration(cfg.Quotes.Debounce)
		if err != nil {
			return fmt.Errorf("config quotes.debounce: %w", err)
		}
		settings.DebounceWindow = d
	}
	if cfg.Quotes.RateLimit != nil {
		settings.SourceRateLimit = *cfg.Quotes.RateLimit
	}
	if cfg.Quotes.RateWindow != "" {
		d, err := time.ParseDuration(cfg.Quotes.RateWindow)
		if err != nil {
			return fmt.Errorf("config quotes.rate_window: %w", err)
		}
		settings.RateWindow = d
	}
	if cfg.Quotes.SlippageBps != nil {
		if *cfg.Quotes.SlippageBps <= 0 || *cfg.Quotes.SlippageBps > 5000 {
			return fmt.Errorf("config quotes.slippage_bps: must be between 1 and 5000")
		}
		settings.DefaultSlippageBps = uint16(*cfg.Quotes.SlippageBps)
	}
	if cfg.Quotes.DisableCaching != nil {
		settings.CacheEnabled = !*cfg.Quotes.DisableCaching
	}
	if cfg.Chains.EVMChainID != nil {
		settings.EVMChainID = *cfg.Chains.EVMChainID
	}
	if cfg.History.Path != "" {
		settings.HistoryPath = cfg.History.Path
	}
	if cfg.History.LockPath != "" {
		settings.HistoryLockPath = cfg.History.LockPath
	}
	if cfg.Sources.OneInch.APIKey != "" {
		settings.OneInchAPIKey = cfg.Sources.OneInch.APIKey
	}
	if cfg.Sources.OneInch.APIKeyEnv != "" {
		settings.OneInchAPIKey = os.Getenv(cfg.Sources.OneInch.APIKeyEnv)
	}
	if cfg.Sources.Uniswap.APIKey != "" {
		settings.UniswapAPIKey = cfg.Sources.Uniswap.APIKey
	}
	if cfg.Sources.Uniswap.APIKeyEnv != "" {
		settings.UniswapAPIKey = os.Getenv(cfg.Sources.Uniswap.APIKeyEnv)
	}
	if cfg.Sources.Jupiter.APIKey != "" {
		settings.JupiterAPIKey = cfg.Sources.Jupiter.APIKey
	}
	if cfg.Sources.Jupiter.APIKeyEnv != "" {
		settings.JupiterAPIKey = os.Getenv(cfg.Sources.Jupiter.APIKeyEnv)
	}
	if cfg.Wallets.EVM.Address != "" {
		settings.EVMWalletAddress = cfg.Wallets.EVM.Address
	}
	if cfg.Wallets.EVM.Name != "" {
		settings.EVMWalletName = cfg.Wallets.EVM.Name
	}
	if cfg.Wallets.Solana.Address != "" {
		settings.SolWalletAddress = cfg.Wallets.Solana.Address
	}
	if cfg.Wallets.Solana.Name != "" {
		settings.SolWalletName = cfg.Wallets.Solana.Name
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("TRADEDESK_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("TRADEDESK_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("TRADEDESK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("TRADEDESK_QUOTE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.QuoteTTL = d
		}
	}
	if v := os.Getenv("TRADEDESK_SOURCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.SourceTimeout = d
		}
	}
	if v := os.Getenv("TRADEDESK_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.DebounceWindow = d
		}
	}
	if v := os.Getenv("TRADEDESK_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.SourceRateLimit = n
		}
	}
	if v := os.Getenv("TRADEDESK_RATE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.RateWindow = d
		}
	}
	if v := os.Getenv("TRADEDESK_SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 5000 {
			settings.DefaultSlippageBps = uint16(n)
		}
	}
	if v := os.Getenv("TRADEDESK_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("TRADEDESK_EVM_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.EVMChainID = n
		}
	}
	if v := os.Getenv("TRADEDESK_HISTORY_PATH"); v != "" {
		settings.HistoryPath = v
	}
	if v := os.Getenv("TRADEDESK_HISTORY_LOCK_PATH"); v != "" {
		settings.HistoryLockPath = v
	}
	if v := os.Getenv("TRADEDESK_1INCH_API_KEY"); v != "" {
		settings.OneInchAPIKey = v
	}
	if v := os.Getenv("TRADEDESK_UNISWAP_API_KEY"); v != "" {
		settings.UniswapAPIKey = v
	}
	if v := os.Getenv("TRADEDESK_JUPITER_API_KEY"); v != "" {
		settings.JupiterAPIKey = v
	}
	if v := os.Getenv("TRADEDESK_EVM_WALLET"); v != "" {
		settings.EVMWalletAddress = v
	}
	if v := os.Getenv("TRADEDESK_EVM_WALLET_NAME"); v != "" {
		settings.EVMWalletName = v
	}
	if v := os.Getenv("TRADEDESK_SOL_WALLET"); v != "" {
		settings.SolWalletAddress = v
	}
	if v := os.Getenv("TRADEDESK_SOL_WALLET_NAME"); v != "" {
		settings.SolWalletName = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			f := strings.TrimSpace(part)
			if f != "" {
				fields = append(fields, f)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}
