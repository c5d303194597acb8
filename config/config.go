package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"predictchain/crypto"
)

// Config carries the deploy-time parameters of the market daemon. The
// program owner and protocol treasury are injected here at deploy time and
// never mutated at runtime.
type Config struct {
	RPCAddress       string `toml:"RPCAddress"`
	MetricsAddress   string `toml:"MetricsAddress"`
	DataDir          string `toml:"DataDir"`
	NetworkName      string `toml:"NetworkName"`
	LogFile          string `toml:"LogFile"`
	ProgramOwner     string `toml:"ProgramOwner"`
	ProtocolTreasury string `toml:"ProtocolTreasury"`
	CustodyReserve   uint64 `toml:"CustodyReserve"`
}

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

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "predict-local"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./predict-data"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the deploy-time addresses decode.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProgramOwner) == "" {
		return fmt.Errorf("config: ProgramOwner must be set")
	}
	if _, err := crypto.DecodeAddress(c.ProgramOwner); err != nil {
		return fmt.Errorf("config: invalid ProgramOwner: %w", err)
	}
	if strings.TrimSpace(c.ProtocolTreasury) == "" {
		return fmt.Errorf("config: ProtocolTreasury must be set")
	}
	if _, err := crypto.DecodeAddress(c.ProtocolTreasury); err != nil {
		return fmt.Errorf("config: invalid ProtocolTreasury: %w", err)
	}
	return nil
}

// OwnerAddress returns the decoded program-owner address.
func (c *Config) OwnerAddress() ([20]byte, error) {
	return decode20(c.ProgramOwner)
}

// TreasuryAddress returns the decoded protocol-treasury address.
func (c *Config) TreasuryAddress() ([20]byte, error) {
	return decode20(c.ProtocolTreasury)
}

func decode20(addr string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(addr)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

// createDefault creates and saves a default configuration file. The owner
// and treasury fields are deliberately left empty so a fresh deployment
// fails closed until they are filled in.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./predict-data",
		NetworkName:    "predict-local",
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
