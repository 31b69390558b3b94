// Command leaseholdd runs a single leasehold chain node: it wires the
// state machine, transaction pool, delegate committee, peer transport and
// sync loop together and keeps them running until the process is asked
// to stop.
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Leasehold/leasehold/blocks"
	"github.com/Leasehold/leasehold/broadcaster"
	"github.com/Leasehold/leasehold/cache"
	"github.com/Leasehold/leasehold/chain"
	"github.com/Leasehold/leasehold/channelbus"
	"github.com/Leasehold/leasehold/config"
	"github.com/Leasehold/leasehold/crypto"
	"github.com/Leasehold/leasehold/eventbus"
	"github.com/Leasehold/leasehold/forger"
	"github.com/Leasehold/leasehold/loader"
	"github.com/Leasehold/leasehold/logger"
	"github.com/Leasehold/leasehold/netadapter"
	"github.com/Leasehold/leasehold/peers"
	"github.com/Leasehold/leasehold/rounds"
	"github.com/Leasehold/leasehold/sequence"
	"github.com/Leasehold/leasehold/slots"
	"github.com/Leasehold/leasehold/store"
	"github.com/Leasehold/leasehold/transport"
	"github.com/Leasehold/leasehold/txpool"
	"github.com/Leasehold/leasehold/types"
)

var log, _ = logger.Get(logger.SubsystemTags.CHN)

// sequenceCapacity/sequenceWarnThreshold bound the depth of the single
// authoritative-mutation queue before Add starts logging a backlog
// warning.
const (
	sequenceCapacity      = 256
	sequenceWarnThreshold = 128
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logger.InitLogRotators(cfg.LogFile(), cfg.ErrLogFile()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := run(cfg); err != nil {
		log.Errorf("leaseholdd exiting: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	params := config.MainNetParams

	sqlStore, err := store.New(cfg.DatabaseDSN, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	acctCache, err := cache.New(cache.Config{Next: sqlStore, Path: cfg.CacheDir()})
	if err != nil {
		return err
	}

	events := eventbus.New()
	channel := channelbus.New()

	sl := slots.New(&params)
	rd := rounds.New(&params, sl, acctCache, acctCache)

	// bl is wired in below, but the peer transport needs a Broadhash
	// source before it exists and the transaction pool needs the peer
	// transport's broadcaster before blocks.New can take the pool as its
	// Pool collaborator. Declare the pointer now and capture it by
	// reference so nothing here is called before bl is assigned.
	var bl *blocks.Blocks

	seq := sequence.New(sequenceCapacity, sequenceWarnThreshold)
	defer seq.Close()

	book := netadapter.NewPeerBook()
	pr := peers.New(&params, book)
	client := netadapter.NewClient(cfg.PeerID, cfg.AdvertiseAddr, params.ModuleAlias, func() string {
		return bl.Broadhash()
	}, book)

	bc := broadcaster.New(broadcaster.Config{
		Peers:             book,
		Transport:         client,
		BroadcastInterval: time.Duration(cfg.Broadcasts.BroadcastInterval) * time.Millisecond,
		ReleaseLimit:      cfg.Broadcasts.ReleaseLimit,
	})
	defer bc.Close()

	pool := txpool.New(txpool.Config{
		Params:         &params,
		Accounts:       acctCache,
		Events:         events,
		Broadcaster:    bc,
		MaxPerQueue:    cfg.Transactions.MaxTransactionsPerQueue,
		ExpiryInterval: params.ExpiryInterval,
	})
	defer pool.Close()

	bl = blocks.New(blocks.Config{
		Params: &params,
		Slots:  sl,
		Rounds: rd,
		Store:  acctCache,
		Pool:   pool,
		Events: events,
	})

	delegates := chain.NewDelegateResolver(bl, sl, rd)

	ld := loader.New(loader.Config{
		Blocks:    bl,
		Delegates: delegates,
		Pool:      pool,
		Transport: client,
		Sequence:  seq,
	})
	defer ld.Close()

	fg := forger.New(forger.Config{
		Params:           &params,
		Slots:            sl,
		Rounds:           rd,
		Blocks:           bl,
		Pool:             pool,
		Peers:            pr,
		Decryptor:        crypto.PassphraseDecryptor{},
		Sequence:         seq,
		ForcingConsensus: cfg.Forging.Force,
	})
	defer fg.Close()

	if err := fg.LoadDelegates(cfg.Forging.Delegates, cfg.Forging.DefaultPassword); err != nil {
		log.Warnf("loading configured delegates: %v", err)
	}

	tp := transport.New(transport.Config{
		Params:    &params,
		Blocks:    bl,
		Common:    acctCache,
		Delegates: delegates,
		Pool:      pool,
		Sync:      ld,
		Penalizer: book,
	})

	server := netadapter.NewServer(cfg.RPCListen, tp, book)

	c := chain.New(chain.Config{
		Params:      &params,
		Options:     cfg,
		Slots:       sl,
		Rounds:      rd,
		Sequence:    seq,
		Pool:        pool,
		Blocks:      bl,
		Peers:       pr,
		Broadcaster: bc,
		Loader:      ld,
		Forger:      fg,
		Transport:   tp,
		Delegates:   delegates,
		Events:      events,
		Channel:     channel,
		Wallets:     sqlStore,
		Queries:     sqlStore,
		Cache:       acctCache,
	})

	if err := c.Boot(genesisBlock()); err != nil {
		return err
	}
	c.Start()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			serverErr <- err
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var cause error
	select {
	case <-interrupt:
		log.Infof("received shutdown signal")
	case err := <-serverErr:
		cause = err
		log.Errorf("peer transport server stopped unexpectedly: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutting down peer transport server: %v", err)
	}

	c.Cleanup(cause)
	return cause
}

// genesisBlock builds the height-1 root block. Timestamp 0 is genesis
// itself, the instant config.Params.EpochTime anchors every later
// block's timestamp to; ApplyGenesisBlock skips signature verification
// for it, so GeneratorPublicKey is a zero key and there is no
// BlockSignature. Delegate registration and initial token distribution
// happen through ordinary post-genesis transactions, not a seeded
// payload here.
func genesisBlock() *types.Block {
	payloadHash, payloadLength, _ := types.ComputePayloadHash(nil)
	genesis := &types.Block{
		Height:             1,
		PreviousBlockID:    "",
		Timestamp:          0,
		GeneratorPublicKey: make(ed25519.PublicKey, ed25519.PublicKeySize),
		PayloadHash:        payloadHash,
		PayloadLength:      payloadLength,
	}
	id, err := genesis.ComputeID()
	if err != nil {
		panic(fmt.Sprintf("computing genesis block id: %v", err))
	}
	genesis.ID = id
	return genesis
}
