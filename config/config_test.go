package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/config"
	"github.com/tolelom/dealchain/crypto"
	"github.com/tolelom/dealchain/internal/testutil"
	"github.com/tolelom/dealchain/vm"
)

func newAddress(t *testing.T) string {
	t.Helper()
	_, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return pub.String()
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, vm.DefaultParams(), p)
}

func TestLoadJSON(t *testing.T) {
	alloc := newAddress(t)
	path := writeFile(t, "node.json", `{
		"node_id": "n1",
		"rpc_port": 9000,
		"genesis": {"chain_id": "dealchain-qa", "alloc": {"`+alloc+`": 500}, "timestamp": 1700000000},
		"program": {"program_id": "`+vm.DefaultProgramID+`", "platform_wallet": "`+vm.DefaultPlatformWallet+`", "platform_fee_bps": 300, "settle_rewards_on_unstake": true}
	}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "n1", cfg.NodeID)
	assert.Equal(t, 9000, cfg.RPCPort)
	assert.Equal(t, 30303, cfg.P2PPort, "unset fields keep defaults")
	assert.Equal(t, "dealchain-qa", cfg.Genesis.ChainID)
	assert.EqualValues(t, 500, cfg.Genesis.Alloc[alloc])

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.EqualValues(t, 300, p.PlatformFeeBps)
	assert.True(t, p.SettleRewardsOnUnstake)
}

func TestLoadTOML(t *testing.T) {
	validator := newAddress(t)
	path := writeFile(t, "node.toml", `
NodeID = "toml-node"
BlockInterval = "5s"
Validators = ["`+validator+`"]

[Genesis]
ChainID = "dealchain-toml"

[Log]
Level = "debug"
Format = "json"

[RPC]
AuthToken = "secret"
RateLimit = 5.0
Burst = 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "toml-node", cfg.NodeID)
	assert.Equal(t, "5s", cfg.BlockInterval)
	assert.Equal(t, []string{validator}, cfg.Validators)
	assert.Equal(t, "dealchain-toml", cfg.Genesis.ChainID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "secret", cfg.RPC.AuthToken)
	assert.Equal(t, 10, cfg.RPC.Burst)
	assert.Equal(t, vm.DefaultProgramID, cfg.Program.ProgramID)
}

func TestSaveThenLoadTOML(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.NodeID = "saved"
	cfg.Genesis.Alloc[newAddress(t)] = 42
	path := filepath.Join(t.TempDir(), "saved.toml")
	require.NoError(t, config.Save(cfg, path))

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.NodeID, got.NodeID)
	assert.Equal(t, cfg.Genesis.Alloc, got.Genesis.Alloc)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing chain id", func(c *config.Config) { c.Genesis.ChainID = "" }},
		{"bad alloc address", func(c *config.Config) { c.Genesis.Alloc["0xdead"] = 1 }},
		{"bad validator", func(c *config.Config) { c.Validators = []string{"nope"} }},
		{"bad program id", func(c *config.Config) { c.Program.ProgramID = "" }},
		{"bad platform wallet", func(c *config.Config) { c.Program.PlatformWallet = "x" }},
		{"fee above 100%", func(c *config.Config) { c.Program.PlatformFeeBps = 10_001 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "bad.json", "{"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "bad.toml", `[Genesis]
ChainID = ""`))
	assert.ErrorContains(t, err, "chain_id")
}

func TestCreateGenesisBlock_Deterministic(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Genesis.Timestamp = testutil.GenesisTime
	a, b := newAddress(t), newAddress(t)
	cfg.Genesis.Alloc[a] = 1_000
	cfg.Genesis.Alloc[b] = 2_000

	s1, s2 := testutil.NewStateDB(), testutil.NewStateDB()
	g1, err := config.CreateGenesisBlock(cfg, s1)
	require.NoError(t, err)
	g2, err := config.CreateGenesisBlock(cfg, s2)
	require.NoError(t, err)

	assert.Equal(t, g1.Hash, g2.Hash)
	assert.Equal(t, g1.Header.StateRoot, g2.Header.StateRoot)
	assert.EqualValues(t, 0, g1.Header.Height)
	assert.Equal(t, testutil.GenesisTime, g1.Header.Timestamp)
	assert.True(t, config.IsGenesisHash(g1.Header.PrevHash))

	acc, err := s1.GetAccount(a)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000, acc.Balance)

	// A different allocation yields a different genesis.
	cfg.Genesis.Alloc[a] = 1_001
	g3, err := config.CreateGenesisBlock(cfg, testutil.NewStateDB())
	require.NoError(t, err)
	assert.NotEqual(t, g1.Hash, g3.Hash)
}

func TestSetupLogging(t *testing.T) {
	logger := logrus.StandardLogger()
	level, out, formatter := logger.GetLevel(), logger.Out, logger.Formatter
	t.Cleanup(func() {
		logger.SetLevel(level)
		logger.SetOutput(out)
		logger.SetFormatter(formatter)
	})

	file := filepath.Join(t.TempDir(), "node.log")
	closer, err := config.SetupLogging(config.LogConfig{Level: "warn", Format: "json", File: file, MaxSizeMB: 1})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logrus.Warn("rotated output")
	require.NoError(t, closer.Close())
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated output")

	_, err = config.SetupLogging(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
	_, err = config.SetupLogging(config.LogConfig{Format: "xml"})
	assert.Error(t, err)
}
