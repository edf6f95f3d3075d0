// Package ledgerctx assembles every ledger component from a single
// environment-driven Config, the way a long-running service or CLI
// command wires its dependencies once at startup.
package ledgerctx

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tessrax/ledger/epoch"
	"github.com/tessrax/ledger/index"
	"github.com/tessrax/ledger/keys"
	"github.com/tessrax/ledger/ledgerlog"
	"github.com/tessrax/ledger/merkle"
	"github.com/tessrax/ledger/receipt"
	"github.com/tessrax/ledger/token"
)

// Config is read entirely from environment variables so the CLI and any
// future service wrapper share one startup path.
type Config struct {
	LedgerPath        string
	IndexPath         string
	IndexBackend      string
	MerkleStatePath   string
	EpochStatePath    string
	EpochSnapshotDir  string
	SigningKeysDir    string
	TokenStatePath    string
	TokenWindow       time.Duration
	RequiredApprovers []string
	GovernanceToken   string
	KeyID             string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadConfig reads Config fields from the environment, defaulting every
// path to somewhere under "./data" so a fresh checkout runs with zero
// configuration.
func LoadConfig() Config {
	windowSeconds := token.DefaultWindow
	if raw := os.Getenv("TOKEN_WINDOW_SECONDS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			windowSeconds = time.Duration(n) * time.Second
		}
	}

	var approvers []string
	if raw := os.Getenv("REQUIRED_APPROVERS"); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				approvers = append(approvers, a)
			}
		}
	}

	return Config{
		LedgerPath:        getenv("LEDGER_PATH", "./data/ledger.jsonl"),
		IndexPath:         getenv("INDEX_PATH", "./data/index.db"),
		IndexBackend:      getenv("INDEX_BACKEND", "sqlite"),
		MerkleStatePath:   getenv("MERKLE_STATE_PATH", "./data/merkle_state.json"),
		EpochStatePath:    getenv("EPOCH_STATE_PATH", "./data/epoch_state.json"),
		EpochSnapshotDir:  getenv("EPOCH_SNAPSHOT_DIR", "./data/epoch_snapshots"),
		SigningKeysDir:    getenv("SIGNING_KEYS_DIR", "./data/signing_keys"),
		TokenStatePath:    getenv("TOKEN_STATE_PATH", "./data/token_state.json"),
		TokenWindow:       windowSeconds,
		RequiredApprovers: approvers,
		GovernanceToken:   os.Getenv("GOVERNANCE_TOKEN"),
		KeyID:             os.Getenv("KEY_ID"),
	}
}

// Context bundles every live component a CLI command or service needs.
type Context struct {
	Config Config
	Logger *zap.Logger
	Keys   *keys.Registry
	Tokens *token.Guard
	Merkle *merkle.Accumulator
	Epoch  *epoch.Manager
	Log    *ledgerlog.Writer
	Index  index.Backend
	Engine *receipt.Engine
}

// Build wires every component named by cfg under a shared clock and
// logger, in the dependency order each one needs: keys and the token
// guard have no dependencies, the accumulator and epoch manager are
// independent of each other, and the receipt engine is assembled last
// since it holds a reference to all of them.
func Build(cfg Config, clock func() time.Time, logger *zap.Logger) (*Context, error) {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	keyReg := keys.New(cfg.SigningKeysDir, clock)
	tokenGuard := token.New(cfg.TokenStatePath, cfg.TokenWindow, clock)

	acc, err := merkle.Open(cfg.MerkleStatePath, clock)
	if err != nil {
		return nil, err
	}

	epochMgr := epoch.New(cfg.EpochStatePath, cfg.EpochSnapshotDir)

	idx, err := index.Open(cfg.IndexBackend, cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	if err := idx.EnsureSchema(); err != nil {
		return nil, err
	}

	logWriter := ledgerlog.New(cfg.LedgerPath)

	engine := &receipt.Engine{
		Keys:   keyReg,
		Tokens: tokenGuard,
		Merkle: acc,
		Epoch:  epochMgr,
		Log:    logWriter,
		Index:  idx,
		Clock:  clock,
		Logger: logger,
	}

	return &Context{
		Config: cfg,
		Logger: logger,
		Keys:   keyReg,
		Tokens: tokenGuard,
		Merkle: acc,
		Epoch:  epochMgr,
		Log:    logWriter,
		Index:  idx,
		Engine: engine,
	}, nil
}

// Close releases any resource Build opened that needs explicit closing.
func (c *Context) Close() error {
	if c.Index != nil {
		return c.Index.Close()
	}
	return nil
}
