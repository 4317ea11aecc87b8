package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonathan/cv-tailor/internal/coldstore"
	"github.com/jonathan/cv-tailor/internal/config"
	"github.com/jonathan/cv-tailor/internal/db"
	"github.com/jonathan/cv-tailor/internal/jobref"
	"github.com/jonathan/cv-tailor/internal/rendering"
	"github.com/jonathan/cv-tailor/internal/schemas"
	"github.com/jonathan/cv-tailor/internal/server"
	"github.com/jonathan/cv-tailor/internal/server/ratelimit"
	"github.com/jonathan/cv-tailor/internal/session"
	"github.com/jonathan/cv-tailor/internal/tools"
	toolschemas "github.com/jonathan/cv-tailor/schemas"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tool-call HTTP server",
	Long:  `Start an HTTP server that exposes the session tools, session views and PDF downloads.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	logger := slog.Default()

	st, err := openStorage(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	dispatcher, err := newDispatcher(cfg, st.store, logger)
	if err != nil {
		return err
	}

	tokens, err := server.NewTokenService(cfg.Tokens.Secret, cfg.Tokens.TTL())
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	srv, err := server.New(server.Config{Port: cfg.Port}, dispatcher, tokens,
		ratelimit.NewLimiter(cfg.RateLimiter()), logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}

// newDispatcher wires the tool dispatcher to its collaborators.
func newDispatcher(cfg *config.Config, store *session.Store, logger *slog.Logger) (*tools.Dispatcher, error) {
	reg, err := schemas.LoadRegistry(toolschemas.FS)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool schemas: %w", err)
	}
	return tools.New(tools.Deps{
		Store:    store,
		Schemas:  reg,
		Renderer: rendering.NewChromeRenderer(cfg.ChromePath, logger),
		Jobs:     jobref.NewResolver(jobref.DefaultFetchOptions(), logger),
		Logger:   logger,
	}, tools.Config{
		MaxPackChars:    cfg.MaxPackChars,
		GenerateTimeout: cfg.GenerateTimeout.Std(),
		Limits:          cfg.Limits(),
	})
}

// storage is an opened session store plus the handles it owns.
type storage struct {
	store   *session.Store
	closers []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStorage opens the configured hot tier and the Badger cold tier.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st := &storage{}

	var hot session.HotStore
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pg, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pg.Close)
		if _, err := pg.Migrate(ctx); err != nil {
			st.close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		hot = pg
	case config.BackendSQLite:
		lite, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = lite.Close() })
		hot = lite
	default:
		hot = session.NewMemoryHotStore()
	}

	coldCfg := coldstore.InMemoryConfig()
	if cfg.BlobPath != "" {
		coldCfg = coldstore.DefaultConfig(cfg.BlobPath)
	}
	coldCfg.Logger = logger
	cold, err := coldstore.OpenBadger(coldCfg)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	st.closers = append(st.closers, func() { _ = cold.Close() })

	opts := session.DefaultOptions()
	opts.MaxAttempts = cfg.StorageMaxRetries
	opts.Logger = logger
	st.store = session.NewStore(hot, cold, opts)

	logger.Info("storage ready", "backend", cfg.StorageBackend, "blob_path", cfg.BlobPath)
	return st, nil
}
