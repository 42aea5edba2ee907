package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
	"github.com/tyler-smith/go-bip39"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

const (
	FileName  = "config.toml"
	EnvPrefix = "ORACLED_"

	// DevMnemonic derives the accounts of a local ganache node started with -m.
	DevMnemonic = "candy maple cake sugar pudding cream honey rich smooth crumble sweet treat"
)

type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Oracle   OracleConfig   `toml:"oracle"`
	Gas      GasConfig      `toml:"gas"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`

	home string
}

type ChainConfig struct {
	Endpoint  string `toml:"endpoint"`
	Contract  string `toml:"contract"`
	FromBlock uint64 `toml:"from_block"`
}

type OracleConfig struct {
	PoolSize      int    `toml:"pool_size"`
	AccountOffset int    `toml:"account_offset"`
	AccountCount  int    `toml:"account_count"`
	Mnemonic      string `toml:"mnemonic"`
}

type GasConfig struct {
	RegistrationLimit uint64 `toml:"registration_limit"`
	SubmissionLimit   uint64 `toml:"submission_limit"`
}

type DispatchConfig struct {
	Timeout       Duration `toml:"timeout"`
	MaxAttempts   int      `toml:"max_attempts"`
	MaxInFlight   int      `toml:"max_in_flight"`
	VerdictSeed   int64    `toml:"verdict_seed"`
	VerdictSource string   `toml:"verdict_source"`
	VerdictURL    string   `toml:"verdict_url"`
	VerdictPath   string   `toml:"verdict_path"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	ToFile bool   `toml:"to_file"`
}

// Duration is a time.Duration written as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed

	return nil
}

func Default() Config {
	return Config{
		Chain: ChainConfig{
			Endpoint:  "ws://127.0.0.1:8545",
			FromBlock: 0,
		},
		Oracle: OracleConfig{
			PoolSize:      20,
			AccountOffset: 10,
			AccountCount:  50,
			Mnemonic:      DevMnemonic,
		},
		Gas: GasConfig{
			RegistrationLimit: 3000000,
			SubmissionLimit:   200000,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:   1,
			VerdictSource: "random",
		},
		Server: ServerConfig{
			Enabled: true,
			Listen:  "127.0.0.1:3000",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultHome is ~/.oracled.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oracled"
	}

	return filepath.Join(home, ".oracled")
}

// Load reads <home>/config.toml, creating it with defaults when missing, then
// applies the .env file and ORACLED_* environment overrides.
func Load(home string) (*Config, error) {
	cfg, err := Read(home)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read is Load without validation, for commands that only need part of the
// config.
func Read(home string) (*Config, error) {
	if home == "" {
		home = DefaultHome()
	}
	path := filepath.Join(home, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefault(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		log.Infof("Created default config at %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	cfg.home = home

	// missing .env is fine
	_ = godotenv.Load()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	log.Infof("Loaded config from %s", path)

	return &cfg, nil
}

// WriteDefault writes the default config to path, creating parent dirs.
func WriteDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && err == nil {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && err == nil {
			n, castErr := cast.ToIntE(strings.TrimSpace(v))
			if castErr != nil {
				err = errorsmod.Wrapf(types.ErrInvalidConfig, "%s%s: %v", EnvPrefix, key, castErr)
				return
			}
			*dst = n
		}
	}

	str("ENDPOINT", &c.Chain.Endpoint)
	str("CONTRACT", &c.Chain.Contract)
	str("MNEMONIC", &c.Oracle.Mnemonic)
	str("LOG_LEVEL", &c.Log.Level)
	str("LISTEN", &c.Server.Listen)
	integer("POOL_SIZE", &c.Oracle.PoolSize)
	integer("ACCOUNT_OFFSET", &c.Oracle.AccountOffset)
	integer("ACCOUNT_COUNT", &c.Oracle.AccountCount)

	if v, ok := lookup(EnvPrefix + "FROM_BLOCK"); ok && err == nil {
		n, castErr := cast.ToUint64E(strings.TrimSpace(v))
		if castErr != nil {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "%sFROM_BLOCK: %v", EnvPrefix, castErr)
		}
		c.Chain.FromBlock = n
	}

	return err
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errorsmod.Wrapf(types.ErrInvalidConfig, format, args...)
	}

	if c.Chain.Endpoint == "" {
		return invalid("chain endpoint is required")
	}
	if _, err := url.Parse(c.Chain.Endpoint); err != nil {
		return invalid("chain endpoint: %v", err)
	}
	if !common.IsHexAddress(c.Chain.Contract) {
		return invalid("contract address %q is not a hex address", c.Chain.Contract)
	}
	if c.Oracle.PoolSize <= 0 {
		return invalid("pool size must be positive")
	}
	if c.Oracle.AccountOffset < 0 {
		return invalid("account offset must not be negative")
	}
	if c.Oracle.AccountCount < c.Oracle.AccountOffset+c.Oracle.PoolSize {
		return invalid("account count %d cannot hold offset %d plus pool size %d",
			c.Oracle.AccountCount, c.Oracle.AccountOffset, c.Oracle.PoolSize)
	}
	if !bip39.IsMnemonicValid(c.Oracle.Mnemonic) {
		return invalid("mnemonic is not a valid BIP-39 phrase")
	}
	if c.Gas.RegistrationLimit == 0 || c.Gas.SubmissionLimit == 0 {
		return invalid("gas limits are required")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return invalid("max attempts must be at least 1")
	}
	if c.Dispatch.MaxInFlight < 0 {
		return invalid("max in flight must not be negative")
	}
	if c.Dispatch.Timeout.Duration < 0 {
		return invalid("dispatch timeout must not be negative")
	}
	switch c.Dispatch.VerdictSource {
	case "random":
	case "http":
		if c.Dispatch.VerdictURL == "" || c.Dispatch.VerdictPath == "" {
			return invalid("http verdict source needs verdict_url and verdict_path")
		}
	default:
		return invalid("unknown verdict source %q", c.Dispatch.VerdictSource)
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		return invalid("server listen address is required")
	}

	return nil
}

// Home is the directory the config was loaded from.
func (c *Config) Home() string {
	return c.home
}

func (c *Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Chain.Contract)
}

func (c *Config) Print() {
	log.Infof("%-15s: %s", "Home", c.home)
	log.Infof("%-15s: %s", "Endpoint", c.Chain.Endpoint)
	log.Infof("%-15s: %s", "Contract", c.Chain.Contract)
	log.Infof("%-15s: %d", "From Block", c.Chain.FromBlock)
	log.Infof("%-15s: %d", "Pool Size", c.Oracle.PoolSize)
	log.Infof("%-15s: %d", "Account Offset", c.Oracle.AccountOffset)
	log.Infof("%-15s: %s", "Mnemonic", maskMnemonic(c.Oracle.Mnemonic))
	log.Infof("%-15s: %d", "Gas (register)", c.Gas.RegistrationLimit)
	log.Infof("%-15s: %d", "Gas (submit)", c.Gas.SubmissionLimit)
	log.Infof("%-15s: %s", "Verdict Source", c.Dispatch.VerdictSource)
	log.Infof("%-15s: %v", "Submit Timeout", c.Dispatch.Timeout.Duration)
	log.Infof("%-15s: %d", "Max Attempts", c.Dispatch.MaxAttempts)
	log.Infof("%-15s: %v", "Server", c.Server.Enabled)
	log.Infof("%-15s: %s", "Listen", c.Server.Listen)
}

func maskMnemonic(m string) string {
	words := strings.Fields(m)
	if len(words) == 0 {
		return ""
	}

	return words[0] + " ... (" + cast.ToString(len(words)) + " words)"
}

// SetForTesting builds a valid config without touching the filesystem.
func SetForTesting(endpoint, contract string, poolSize int) *Config {
	cfg := Default()
	cfg.Chain.Endpoint = endpoint
	cfg.Chain.Contract = contract
	cfg.Oracle.PoolSize = poolSize
	cfg.Oracle.AccountCount = cfg.Oracle.AccountOffset + poolSize
	cfg.Server.Enabled = false
	cfg.home = os.TempDir()

	return &cfg
}
