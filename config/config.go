package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config captures the runtime settings for flashliqd.
type Config struct {
	ListenAddress   string `toml:"ListenAddress"`
	Environment     string `toml:"Environment"`
	DataDir         string `toml:"DataDir"`
	APIToken        string `toml:"APIToken"`
	APITokenEnv     string `toml:"APITokenEnv"`
	AuditLogPath    string `toml:"AuditLogPath"`
	ExecutorAddress string `toml:"ExecutorAddress"`
	AdminAddress    string `toml:"AdminAddress"`

	Pool   PoolConfig   `toml:"Pool"`
	Issuer IssuerConfig `toml:"Issuer"`
	Ledger LedgerConfig `toml:"Ledger"`
}

// PoolConfig describes the rehearsal pool the daemon seeds at startup.
type PoolConfig struct {
	Address      string `toml:"Address"`
	BaseToken    string `toml:"BaseToken"`
	QuoteToken   string `toml:"QuoteToken"`
	BaseReserve  string `toml:"BaseReserve"`
	QuoteReserve string `toml:"QuoteReserve"`
}

// IssuerConfig describes the rehearsal debt-proxy issuer.
type IssuerConfig struct {
	ProxyToken string `toml:"ProxyToken"`
	MintFeeBps uint64 `toml:"MintFeeBps"`
}

// LedgerConfig describes the rehearsal lending ledger.
type LedgerConfig struct {
	CustodyAddress    string `toml:"CustodyAddress"`
	CustodyCollateral string `toml:"CustodyCollateral"`
	CollateralRateNum int64  `toml:"CollateralRateNum"`
	CollateralRateDen int64  `toml:"CollateralRateDen"`
}

const defaultAPITokenEnv = "FLASHLIQ_API_TOKEN"

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8695"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.APITokenEnv) == "" {
		cfg.APITokenEnv = defaultAPITokenEnv
	}
	if cfg.Ledger.CollateralRateDen == 0 {
		cfg.Ledger.CollateralRateNum = 1
		cfg.Ledger.CollateralRateDen = 100
	}
}

// ResolveAPIToken returns the bearer token the HTTP API requires, preferring
// the environment over the config file so the secret stays out of it.
func (cfg *Config) ResolveAPIToken() string {
	if token := strings.TrimSpace(os.Getenv(cfg.APITokenEnv)); token != "" {
		return token
	}
	return strings.TrimSpace(cfg.APIToken)
}

// Validate ensures the configuration is internally consistent.
func (cfg *Config) Validate() error {
	if _, err := parseAddress("ExecutorAddress", cfg.ExecutorAddress); err != nil {
		return err
	}
	if _, err := parseAddress("AdminAddress", cfg.AdminAddress); err != nil {
		return err
	}
	for field, value := range map[string]string{
		"Pool.Address":          cfg.Pool.Address,
		"Pool.BaseToken":        cfg.Pool.BaseToken,
		"Pool.QuoteToken":       cfg.Pool.QuoteToken,
		"Issuer.ProxyToken":     cfg.Issuer.ProxyToken,
		"Ledger.CustodyAddress": cfg.Ledger.CustodyAddress,
	} {
		if _, err := parseAddress(field, value); err != nil {
			return err
		}
	}
	for field, value := range map[string]string{
		"Pool.BaseReserve":         cfg.Pool.BaseReserve,
		"Pool.QuoteReserve":        cfg.Pool.QuoteReserve,
		"Ledger.CustodyCollateral": cfg.Ledger.CustodyCollateral,
	} {
		amount, err := parseAmount(field, value)
		if err != nil {
			return err
		}
		if amount.Sign() <= 0 {
			return fmt.Errorf("config: %s must be positive", field)
		}
	}
	if cfg.Issuer.MintFeeBps > 10_000 {
		return fmt.Errorf("config: Issuer.MintFeeBps must not exceed 10000")
	}
	if cfg.Ledger.CollateralRateNum <= 0 || cfg.Ledger.CollateralRateDen <= 0 {
		return fmt.Errorf("config: collateral rate must be positive")
	}
	return nil
}

// Address parses a validated hex address field.
func Address(value string) common.Address {
	return common.HexToAddress(strings.TrimSpace(value))
}

// Amount parses a validated decimal amount field.
func Amount(value string) *big.Int {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return big.NewInt(0)
	}
	return amount
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: %s must be a hex address, got %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("config: %s must be a decimal integer, got %q", field, value)
	}
	return amount, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:   ":8695",
		Environment:     "local",
		DataDir:         "./flashliq-data",
		APITokenEnv:     defaultAPITokenEnv,
		ExecutorAddress: "0x0000000000000000000000000000000000000001",
		AdminAddress:    "0x0000000000000000000000000000000000000002",
		Pool: PoolConfig{
			Address:      "0x0000000000000000000000000000000000000010",
			BaseToken:    "0x0000000000000000000000000000000000000020",
			QuoteToken:   "0x0000000000000000000000000000000000000021",
			BaseReserve:  "50",
			QuoteReserve: "1000000",
		},
		Issuer: IssuerConfig{
			ProxyToken: "0x0000000000000000000000000000000000000022",
		},
		Ledger: LedgerConfig{
			CustodyAddress:    "0x0000000000000000000000000000000000000003",
			CustodyCollateral: "1000000",
			CollateralRateNum: 1,
			CollateralRateDen: 100,
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
