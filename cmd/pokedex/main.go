// Package main is the entry point for the Pokédex API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ASHISH26940/pokedex/internal/config"
	"github.com/ASHISH26940/pokedex/internal/logging"
	"github.com/ASHISH26940/pokedex/internal/persistence"
	"github.com/ASHISH26940/pokedex/internal/server"
	"github.com/ASHISH26940/pokedex/internal/store"
)

type flags struct {
	configFile string
	port       int
	dataFile   string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "pokedex",
		Short:         "REST API over a JSON pokedex document",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	root.PersistentFlags().StringVar(&f.configFile, "config", "config.toml", "Path to config file (ignored if missing)")
	root.PersistentFlags().IntVar(&f.port, "port", 0, "Listen port (overrides config and PORT)")
	root.PersistentFlags().StringVar(&f.dataFile, "data-file", "", "Path to the JSON document (overrides config)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(&cobra.Command{
		Use:   "regions",
		Short: "Print every region and its pokemon count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			st, err := store.Open(persistence.NewFile(cfg.DataFile), logging.Nop())
			if err != nil {
				return err
			}
			for _, id := range st.ListRegions() {
				region, err := st.GetRegion(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", region.ID, len(region.Pokemons))
			}
			return nil
		},
	})
	return root
}

// loadConfig layers defaults, the TOML file, the environment and flags, in
// that order.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg := config.New()
	if err := cfg.LoadOptional(f.configFile); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if f.dataFile != "" {
		cfg.DataFile = f.dataFile
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	file := persistence.NewFile(cfg.DataFile)
	logger.Info("loading document", zap.String("path", file.Path()))
	st, err := store.Open(file, logger)
	if err != nil {
		return err
	}

	handler := server.New(st, server.Options{
		APIPrefix:   cfg.APIPrefix,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
	}
	logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("api", cfg.APIPrefix))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
