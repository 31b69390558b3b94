package config

import (
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultHomeDirName    = "leasehold"
	defaultLogFilename    = "leasehold.log"
	defaultErrLogFilename = "leasehold_err.log"
)

// LoadingSection controls the initial chain-load behavior.
type LoadingSection struct {
	LoadPerIteration int  `long:"load-per-iteration" description:"Blocks per chain-load iteration (accepted but not read by the node)" default:"5000"`
	RebuildUpToRound int  `long:"rebuild-up-to-round" description:"Replay from genesis and exit once this round closes; 0 disables rebuild"`
	Rebuild          bool `long:"-"`
}

// SyncingSection toggles periodic peer synchronization.
type SyncingSection struct {
	Active bool `long:"syncing" description:"Enable periodic sync with peers" default:"true"`
}

// BroadcastsSection controls outbound batching of announcements. Active
// is only reported by getModuleOptions: sending and receiving of blocks
// and transactions do not check it, so Active=false disables neither.
type BroadcastsSection struct {
	Active            bool `long:"broadcasts" description:"Reported by getModuleOptions; sending and receiving do not depend on it" default:"true"`
	BroadcastInterval int  `long:"broadcast-interval" description:"Milliseconds between broadcast drains" default:"5000"`
	ReleaseLimit      int  `long:"broadcast-release-limit" description:"Max announcements released per drain" default:"25"`
}

// ForgingDelegate is one configured delegate's encrypted credential.
type ForgingDelegate struct {
	EncryptedPassphrase string `long:"encrypted-passphrase"`
	PublicKey           string `long:"public-key"`
}

// ForgingSection controls local block production.
type ForgingSection struct {
	Force           bool              `long:"forging-force" description:"Skip the consensus check before forging"`
	Delegates       []ForgingDelegate `no-flag:"true"`
	DefaultPassword string            `long:"forging-default-password" env:"LEASEHOLD_FORGING_PASSWORD"`
}

// TransactionsSection bounds the pool's per-queue capacity.
type TransactionsSection struct {
	MaxTransactionsPerQueue int `long:"max-transactions-per-queue" default:"1000"`
}

// Config is the set of process-level options. Config is constructed once
// at boot and passed by reference; nothing mutates it afterward.
type Config struct {
	HomeDir       string `long:"datadir" description:"Data directory"`
	LogDir        string `long:"logdir" description:"Directory to log output to"`
	RPCListen     string `long:"rpclisten" description:"Address for the inbound peer RPC listener" default:"0.0.0.0:5600"`
	DatabaseDSN   string `long:"database-dsn" description:"DSN for the relational store" required:"true"`
	MigrationsDir string `long:"migrations-dir" description:"Directory of SQL schema migrations" default:"store/migrations"`
	PeerID        string `long:"peer-id" description:"Identifier this node advertises to peers" required:"true"`
	AdvertiseAddr string `long:"advertise-addr" description:"Base URL other peers use to dial this node back" required:"true"`

	Loading      LoadingSection
	Syncing      SyncingSection
	Broadcasts   BroadcastsSection
	Forging      ForgingSection
	Transactions TransactionsSection
}

// Parse parses process flags into a Config, applying the same validation
// style used by other node config files in this family of tools.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, errors.Wrap(err, "parsing command-line options")
	}

	if cfg.HomeDir == "" {
		cfg.HomeDir = filepath.Join(".", defaultHomeDirName)
	}
	if cfg.LogDir == "" {
		cfg.LogDir = cfg.HomeDir
	}
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("database-dsn is required")
	}
	cfg.Loading.Rebuild = cfg.Loading.RebuildUpToRound > 0

	return cfg, nil
}

// LogFile returns the path of the primary rotating log file.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

// ErrLogFile returns the path of the error-only rotating log file.
func (c *Config) ErrLogFile() string {
	return filepath.Join(c.LogDir, defaultErrLogFilename)
}

// CacheDir returns the directory the embedded read cache's leveldb
// instance is stored under.
func (c *Config) CacheDir() string {
	return filepath.Join(c.HomeDir, "cache")
}
