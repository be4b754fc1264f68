package rolodex

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-rolodex/pkg/config"
	"github.com/soundprediction/go-rolodex/pkg/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Rolodex HTTP server",
	Long: `Start the Rolodex HTTP server to provide REST API access to the
relationship engine.

The server provides endpoints for:
- Resolving people and organizations
- Running sync batches and receiving provider webhooks
- Relationship strength and connection queries
- Domain candidate review
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")

	// Database flags
	serverCmd.Flags().String("db-driver", "memory", "Database driver (memory, neo4j)")
	serverCmd.Flags().String("db-uri", "bolt://localhost:7687", "Database URI")
	serverCmd.Flags().String("db-username", "neo4j", "Database username")
	serverCmd.Flags().String("db-password", "password", "Database password")
	serverCmd.Flags().String("db-database", "neo4j", "Database name")

	// Cache and archive flags
	serverCmd.Flags().String("cache-driver", "memory", "Snapshot cache driver (memory, badger)")
	serverCmd.Flags().String("cache-path", "./data/snapshots", "Snapshot cache path")
	serverCmd.Flags().Bool("archive-enabled", false, "Enable the DuckDB sync archive")
	serverCmd.Flags().String("archive-path", "./data/archive.duckdb", "Archive database path")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	overrideConfigWithFlags(cmd, cfg)

	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	engine, err := initializeEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close(context.Background())

	srv := server.New(cfg, engine)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Database flags
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-uri") {
		cfg.Database.URI, _ = cmd.Flags().GetString("db-uri")
	}
	if cmd.Flags().Changed("db-username") {
		cfg.Database.Username, _ = cmd.Flags().GetString("db-username")
	}
	if cmd.Flags().Changed("db-password") {
		cfg.Database.Password, _ = cmd.Flags().GetString("db-password")
	}
	if cmd.Flags().Changed("db-database") {
		cfg.Database.Database, _ = cmd.Flags().GetString("db-database")
	}

	// Cache and archive flags
	if cmd.Flags().Changed("cache-driver") {
		cfg.Cache.Driver, _ = cmd.Flags().GetString("cache-driver")
	}
	if cmd.Flags().Changed("cache-path") {
		cfg.Cache.Path, _ = cmd.Flags().GetString("cache-path")
	}
	if cmd.Flags().Changed("archive-enabled") {
		cfg.Archive.Enabled, _ = cmd.Flags().GetBool("archive-enabled")
	}
	if cmd.Flags().Changed("archive-path") {
		cfg.Archive.Path, _ = cmd.Flags().GetString("archive-path")
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	if cfg.Database.Driver == "neo4j" && cfg.Database.URI == "" {
		return fmt.Errorf("database URI is required")
	}

	return nil
}
