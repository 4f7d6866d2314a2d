package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	NetworkName   string `toml:"NetworkName"`
	Environment   string `toml:"Environment"`
	AdminAddress  string `toml:"AdminAddress"`
	OrderTimeout  int64  `toml:"OrderTimeoutSeconds"`
	AuthTokenEnv  string `toml:"AuthTokenEnv"`
	LogFile       string `toml:"LogFile"`
}

// Load loads the configuration from the given path, writing a commented
// default file on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./escrowdata"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "aeris-local"
	}
	if strings.TrimSpace(cfg.AuthTokenEnv) == "" {
		cfg.AuthTokenEnv = "AERIS_RPC_TOKEN"
	}
	if cfg.OrderTimeout == 0 {
		cfg.OrderTimeout = 24 * 60 * 60
	}
}

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if cfg.OrderTimeout < 0 {
		return fmt.Errorf("config: OrderTimeoutSeconds must be non-negative")
	}
	if strings.TrimSpace(cfg.AdminAddress) == "" {
		return fmt.Errorf("config: AdminAddress is required")
	}
	if _, err := cfg.Admin(); err != nil {
		return err
	}
	return nil
}

// Admin decodes the configured admin identity.
func (c *Config) Admin() ([20]byte, error) {
	addr, err := parseAddress(c.AdminAddress)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: invalid AdminAddress: %w", err)
	}
	return addr, nil
}

// parseAddress decodes a 0x-prefixed or bare 40-character hex account address.
func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != len(addr)*2 {
		return addr, fmt.Errorf("address must be %d bytes (got %d hex chars)", len(addr), len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode address: %w", err)
	}
	copy(addr[:], decoded)
	return addr, nil
}

// AuthToken resolves the RPC bearer token from the configured environment
// variable. An empty token disables authenticated methods.
func (c *Config) AuthToken() string {
	return strings.TrimSpace(os.Getenv(c.AuthTokenEnv))
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, err := file.WriteString("# aeris escrowd configuration\n# AdminAddress must be set before the daemon will start.\n"); err != nil {
		return nil, err
	}
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("config: wrote default config to %s; set AdminAddress and restart", path)
}
