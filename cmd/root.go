package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/examdrill/internal/bank"
	"github.com/abhisek/examdrill/internal/config"
	"github.com/abhisek/examdrill/internal/logging"
	"github.com/abhisek/examdrill/internal/remote"
	"github.com/abhisek/examdrill/internal/sessionstore"
	"github.com/abhisek/examdrill/internal/store"
)

// flushTimeout bounds how long exit waits for queued remote mirrors.
const flushTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "examdrill",
	Short: "Timed exam practice in the terminal",
	Long: `examdrill runs timed past papers and adaptive drills from a question bank.

Progress is saved locally after every answer and, when a record service is
configured, mirrored to it so an attempt can be resumed on another machine.
Without a subcommand it resumes the attempt in progress or starts a new paper.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStartOrResume(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to config file (default: ./examdrill.yaml or ~/.config/examdrill/examdrill.yaml)")
	pf.String("db", "", "Path to SQLite database file (overrides EXAMDRILL_DB env var)")
	pf.String("owner", "", "Learner the sessions belong to")
	pf.String("bank", "", "Path to the question bank YAML file")
	pf.String("remote", "", "Base URL of the session record service")

	rootCmd.AddCommand(drillCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(weightsCmd)
	rootCmd.AddCommand(discardCmd)
	rootCmd.AddCommand(versionCmd)
}

// env holds the services a command runs against.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *store.Store
	cache    *store.SessionCache
	sessions *sessionstore.Store

	client   *remote.Client
	closeLog func()
}

// openEnv loads configuration and opens the stores. Logs go to console as
// well as the configured file; pass a nil console while the TUI owns the
// terminal.
func openEnv(cmd *cobra.Command, console io.Writer) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logging.New(cfg.Log, console)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	e := &env{cfg: cfg, log: log, closeLog: closeLog}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	e.db, err = store.Open(dbPath)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	e.cache = e.db.Sessions(nil)

	opts := []sessionstore.Option{sessionstore.WithLogger(log)}
	if cfg.RemoteEnabled() {
		e.client, err = remote.NewClient(cfg.Remote, log)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("remote client: %w", err)
		}
		opts = append(opts, sessionstore.WithRemote(e.client))
	}
	e.sessions = sessionstore.New(e.cache, opts...)

	if n, err := e.cache.PruneEnded(cmd.Context(), cfg.KeepEnded); err != nil {
		log.Warn("pruning ended sessions failed", zap.Error(err))
	} else if n > 0 {
		log.Debug("pruned ended sessions", zap.Int64("count", n))
	}
	return e, nil
}

// Close waits briefly for remote mirrors and releases everything.
func (e *env) Close() {
	if e.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := e.sessions.Flush(ctx); err != nil {
			e.log.Warn("remote mirrors still pending at exit", zap.Error(err))
		}
		cancel()
		e.sessions.Close()
	}
	if e.client != nil {
		_ = e.client.Close()
	}
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.closeLog != nil {
		e.closeLog()
	}
}

// loadBank reads the configured question bank.
func (e *env) loadBank() (*bank.Bank, error) {
	if e.cfg.Bank == "" {
		return nil, fmt.Errorf("no question bank: pass --bank or set bank in examdrill.yaml")
	}
	return bank.Load(e.cfg.Bank)
}

// resolveDBPath returns the database path from config (--db flag or
// EXAMDRILL_DB), falling back to the default XDG path.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DB != "" {
		return cfg.DB, store.EnsureDir(cfg.DB)
	}
	return store.DefaultDBPath()
}
