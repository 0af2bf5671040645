// Command node runs a dealchain validator: block production, peer sync and
// the JSON-RPC front end.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/dealchain/config"
	"github.com/tolelom/dealchain/consensus"
	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/crypto/certgen"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/indexer"
	"github.com/tolelom/dealchain/network"
	"github.com/tolelom/dealchain/rpc"
	"github.com/tolelom/dealchain/storage"
	"github.com/tolelom/dealchain/vm"
	"github.com/tolelom/dealchain/wallet"

	// Instruction handlers register themselves in init().
	_ "github.com/tolelom/dealchain/vm/modules/coupon"
	_ "github.com/tolelom/dealchain/vm/modules/deal"
	_ "github.com/tolelom/dealchain/vm/modules/economy"
	_ "github.com/tolelom/dealchain/vm/modules/market"
	_ "github.com/tolelom/dealchain/vm/modules/social"
	_ "github.com/tolelom/dealchain/vm/modules/staking"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file (.json or .toml)")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "issue CA and node TLS certs into the given directory and exit")
	flag.Parse()

	log := logrus.StandardLogger().WithField("type", "cmd/node")

	// Passwords on the command line leak through ps.
	password := os.Getenv("DEAL_PASSWORD")
	if password == "" {
		log.Warn("DEAL_PASSWORD not set, keystore uses an empty password")
	}

	cfg, err := loadConfig(*cfgPath, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	if *genKey {
		w, err := wallet.Generate(cfg.Genesis.ChainID)
		if err != nil {
			log.WithError(err).Fatal("failed to generate key")
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.WithError(err).Fatal("failed to save key")
		}
		fmt.Printf("Validator address: %s\nSaved to: %s\n", w.Address(), *keyPath)
		return
	}

	if *genCerts != "" {
		paths, err := certgen.GenerateAll(*genCerts, cfg.NodeID, nil)
		if err != nil {
			log.WithError(err).Fatal("failed to generate certificates")
		}
		fmt.Printf("CA: %s\nCert: %s\nKey: %s\n", paths.CACert, paths.NodeCert, paths.NodeKey)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	closer, err := config.SetupLogging(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("failed to set up logging")
	}
	defer closer.Close()

	if err := run(cfg, *keyPath, password, log); err != nil {
		log.WithError(err).Fatal("node stopped")
	}
}

func run(cfg *config.Config, keyPath, password string, log *logrus.Entry) error {
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	interval, err := time.ParseDuration(cfg.BlockInterval)
	if err != nil {
		return fmt.Errorf("block_interval: %w", err)
	}

	privKey, err := wallet.LoadKey(keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// State, blocks and indexes share one DB under distinct key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}
	if bc.Tip() == nil {
		genesis, err := config.CreateGenesisBlock(cfg, state)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesis, nil); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.WithField("hash", genesis.Hash).Info("genesis block committed")
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool(cfg.Genesis.ChainID)
	exec := vm.NewExecutor(state, emitter, params)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		log.Info("mTLS enabled for p2p")
	}

	node := network.NewNode(cfg.NodeID, fmt.Sprintf(":%d", cfg.P2PPort), mempool, tlsCfg)
	syncer := network.NewSyncer(node, bc, poa)
	poa.OnProduce(node.BroadcastBlock)
	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()

	for _, sp := range cfg.SeedPeers {
		entry := log.WithFields(logrus.Fields{"peer": sp.ID, "addr": sp.Addr})
		if err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			entry.WithError(err).Warn("failed to connect to seed peer")
			continue
		}
		if peer := node.Peer(sp.ID); peer != nil {
			syncer.SyncWithPeer(peer)
		}
		entry.Info("connected to seed peer")
	}

	handler := rpc.NewHandler(bc, mempool, exec, idx, cfg.Genesis.ChainID)
	handler.OnAccept(node.BroadcastTx)
	server := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), handler, rpc.NewWSHub(emitter), rpc.ServerConfig{
		AuthToken: cfg.RPC.AuthToken,
		RateLimit: cfg.RPC.RateLimit,
		Burst:     cfg.RPC.Burst,
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer server.Stop()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(interval, done)
	}()
	log.WithFields(logrus.Fields{
		"validator": privKey.Public().String(),
		"program":   params.ProgramID.String(),
		"interval":  interval,
	}).Info("consensus running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	// Stop block production before the deferred server, p2p and DB closes.
	close(done)
	wg.Wait()
	return nil
}

func loadConfig(path string, log *logrus.Entry) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", path).Info("config file not found, using defaults")
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
