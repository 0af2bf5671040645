package config

import (
	"sort"
	"strings"

	"github.com/tolelom/dealchain/core"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock credits the Alloc balances, commits them and returns
// block #0. Genesis is unsigned and fully determined by the genesis config,
// so every node of a network derives the same hash.
func CreateGenesisBlock(cfg *Config, state core.State) (*core.Block, error) {
	addrs := make([]string, 0, len(cfg.Genesis.Alloc))
	for addr := range cfg.Genesis.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		if err := state.SetAccount(&core.Account{Address: addr, Balance: cfg.Genesis.Alloc[addr]}); err != nil {
			return nil, err
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlockAt(cfg.Genesis.ChainID, 0, GenesisHash, "", cfg.Genesis.Timestamp, nil)
	block.Header.StateRoot = stateRoot
	block.Hash = block.ComputeHash()
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return len(h) == 64 && strings.Count(h, "0") == len(h)
}
