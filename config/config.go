package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tolelom/dealchain/crypto"
	"github.com/tolelom/dealchain/vm"
)

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id" toml:"ChainID"`
	Alloc   map[string]uint64 `json:"alloc" toml:"Alloc"` // base58 address -> initial lamports
	// Timestamp is the genesis program clock in unix seconds.
	Timestamp int64 `json:"timestamp,omitempty" toml:"Timestamp"`
}

// ProgramConfig holds the on-chain program parameters.
type ProgramConfig struct {
	ProgramID              string `json:"program_id" toml:"ProgramID"`
	PlatformWallet         string `json:"platform_wallet" toml:"PlatformWallet"`
	PlatformFeeBps         uint64 `json:"platform_fee_bps" toml:"PlatformFeeBps"`
	SettleRewardsOnUnstake bool   `json:"settle_rewards_on_unstake" toml:"SettleRewardsOnUnstake"`
}

// LogConfig controls logrus output. An empty File logs to stderr.
type LogConfig struct {
	Level      string `json:"level" toml:"Level"`
	Format     string `json:"format" toml:"Format"` // "text" or "json"
	File       string `json:"file,omitempty" toml:"File"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" toml:"MaxSizeMB"`
	MaxBackups int    `json:"max_backups,omitempty" toml:"MaxBackups"`
	MaxAgeDays int    `json:"max_age_days,omitempty" toml:"MaxAgeDays"`
}

// RPCConfig configures the JSON-RPC server.
type RPCConfig struct {
	AuthToken string `json:"auth_token,omitempty" toml:"AuthToken"`
	// RateLimit is the sustained requests per second per client; 0 disables.
	RateLimit float64 `json:"rate_limit" toml:"RateLimit"`
	Burst     int     `json:"burst" toml:"Burst"`
}

// TLSConfig holds PEM file paths for mutual TLS between peers.
type TLSConfig struct {
	CACert   string `json:"ca_cert" toml:"CACert"`
	NodeCert string `json:"node_cert" toml:"NodeCert"`
	NodeKey  string `json:"node_key" toml:"NodeKey"`
}

// SeedPeer is a peer dialled at startup.
type SeedPeer struct {
	ID   string `json:"id" toml:"ID"`
	Addr string `json:"addr" toml:"Addr"`
}

// Config holds all node configuration.
type Config struct {
	NodeID        string        `json:"node_id" toml:"NodeID"`
	DataDir       string        `json:"data_dir" toml:"DataDir"`
	RPCPort       int           `json:"rpc_port" toml:"RPCPort"`
	P2PPort       int           `json:"p2p_port" toml:"P2PPort"`
	MaxBlockTxs   int           `json:"max_block_txs" toml:"MaxBlockTxs"`     // 0 -> 500
	BlockInterval string        `json:"block_interval" toml:"BlockInterval"` // Go duration, e.g. "2s"
	Validators    []string      `json:"validators" toml:"Validators"`        // authorised proposer addresses
	Genesis       GenesisConfig `json:"genesis" toml:"Genesis"`
	Program       ProgramConfig `json:"program" toml:"Program"`
	Log           LogConfig     `json:"log" toml:"Log"`
	RPC           RPCConfig     `json:"rpc" toml:"RPC"`
	TLS           *TLSConfig    `json:"tls,omitempty" toml:"TLS"`
	SeedPeers     []SeedPeer    `json:"seed_peers,omitempty" toml:"SeedPeers"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		RPCPort:       8545,
		P2PPort:       30303,
		MaxBlockTxs:   500,
		BlockInterval: "2s",
		Genesis: GenesisConfig{
			ChainID: "dealchain-dev",
			Alloc:   map[string]uint64{},
		},
		Program: ProgramConfig{
			ProgramID:      vm.DefaultProgramID,
			PlatformWallet: vm.DefaultPlatformWallet,
			PlatformFeeBps: vm.DefaultPlatformFeeBps,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		RPC: RPCConfig{RateLimit: 50, Burst: 100},
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads a config file from path. Files ending in .toml are decoded as
// TOML, anything else as JSON. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if isTOML(path) {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path in the format its extension selects.
func Save(cfg *Config, path string) error {
	if isTOML(path) {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return toml.NewEncoder(f).Encode(cfg)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields every node needs before it can start.
func (c *Config) Validate() error {
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id is required")
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	for addr := range c.Genesis.Alloc {
		if _, err := crypto.PubKeyFromString(addr); err != nil {
			return fmt.Errorf("genesis alloc %q: %w", addr, err)
		}
	}
	for _, v := range c.Validators {
		if _, err := crypto.PubKeyFromString(v); err != nil {
			return fmt.Errorf("validator %q: %w", v, err)
		}
	}
	return nil
}

// Params converts the program section into executor parameters.
func (c *Config) Params() (vm.Params, error) {
	id, err := crypto.PubKeyFromString(c.Program.ProgramID)
	if err != nil {
		return vm.Params{}, fmt.Errorf("program.program_id: %w", err)
	}
	p := vm.Params{
		ProgramID:              id,
		PlatformWallet:         c.Program.PlatformWallet,
		PlatformFeeBps:         c.Program.PlatformFeeBps,
		SettleRewardsOnUnstake: c.Program.SettleRewardsOnUnstake,
	}
	return p, p.Validate()
}
