// Package servecmder provides the serve command for running the history API
// server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marketstead/chatstream/api"
	"github.com/marketstead/chatstream/pkg/config"
	"github.com/marketstead/chatstream/pkg/logger"
	"github.com/marketstead/chatstream/pkg/storage"
	"github.com/marketstead/chatstream/pkg/storage/inmemory"
	"github.com/marketstead/chatstream/pkg/storage/postgres"
	"github.com/marketstead/chatstream/pkg/storage/sqlite"
)

// serveFlags is the flag registry for the serve command.
var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for API server to listen on",
	},
	config.FlagStorageBackend: {
		Name:        "storage-backend",
		ViperKey:    "storage.backend",
		Description: "Turn store: memory, sqlite, or postgres",
	},
	config.FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to SQLite database",
	},
	config.FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "storage.postgres_dsn",
		Description: "Postgres connection string",
	},
}

type ServeCommander struct {
	listen         string
	storageBackend string
	sqlitePath     string
	postgresDSN    string
	debug          bool

	logger *slog.Logger
}

const serveLongDesc string = `Run the Chatstream history API server.

The server exposes persisted conversations over HTTP:
  GET /ping
  GET /conversations/:user/:topic/history?limit=N`

const serveShortDesc string = "Run the history API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, []string{
				config.FlagAPIListen,
				config.FlagStorageBackend,
				config.FlagSQLite,
				config.FlagPostgresDSN,
			})

			cmder.listen = v.GetString("api.listen")
			cmder.storageBackend = v.GetString("storage.backend")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageBackend, &cmder.storageBackend)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
	)

	store, err := c.newStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	server := api.NewServer(api.Config{
		ListenAddr: c.listen,
	}, store, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

func (c *ServeCommander) newStore(ctx context.Context) (storage.Store, error) {
	switch c.storageBackend {
	case "sqlite":
		if c.sqlitePath == "" {
			c.logger.Info("no SQLite path configured, using in-memory storage")
			return inmemory.NewStore(), nil
		}
		store, err := sqlite.NewStore(c.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("opening SQLite store: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", c.sqlitePath)
		return store, nil

	case "postgres":
		store, err := postgres.NewStore(ctx, c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening Postgres store: %w", err)
		}
		c.logger.Info("using Postgres storage")
		return store, nil

	case "memory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q (available: memory, sqlite, postgres)", c.storageBackend)
	}
}
