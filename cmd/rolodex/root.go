// Package rolodex implements the command-line interface for the
// relationship engine.
package rolodex

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	rolodexpkg "github.com/soundprediction/go-rolodex"
	"github.com/soundprediction/go-rolodex/pkg/archive"
	"github.com/soundprediction/go-rolodex/pkg/cache"
	"github.com/soundprediction/go-rolodex/pkg/config"
	"github.com/soundprediction/go-rolodex/pkg/enrich"
	"github.com/soundprediction/go-rolodex/pkg/logger"
	"github.com/soundprediction/go-rolodex/pkg/store"
	"github.com/soundprediction/go-rolodex/pkg/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "rolodex",
	Short: "Relationship intelligence engine",
	Long: `Rolodex resolves people and organizations from communication streams
into a deduplicated entity graph, and scores how strong each relationship
currently is.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logLevel maps the configured level name onto slog.
func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initializeEngine builds the store, caches and collaborators from the
// configuration and returns a ready client.
func initializeEngine(cfg *config.Config) (*rolodexpkg.Client, error) {
	log := logger.NewDefaultLogger(logLevel(cfg.Log.Level))

	var db store.Store
	switch cfg.Database.Driver {
	case "neo4j":
		neo, err := store.NewNeo4jStore(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open neo4j store: %w", err)
		}
		db = neo
	case "memory", "":
		db = store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	var snapshots cache.Cache
	switch cfg.Cache.Driver {
	case "badger":
		badgerCache, err := cache.NewBadgerCache(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot cache: %w", err)
		}
		snapshots = badgerCache
	default:
		snapshots = cache.NewMemoryCache()
	}

	clientConfig := &rolodexpkg.Config{
		Snapshots:    snapshots,
		SyncMaxItems: cfg.Sync.MaxItems,
		SyncLookback: time.Duration(cfg.Sync.LookbackDays) * 24 * time.Hour,
		Logger:       log,
	}

	if cfg.Archive.Enabled {
		duckArchive, err := archive.NewDuckDBArchive(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		clientConfig.Archive = duckArchive

		// Error-level records also land in the archive database.
		handler, err := telemetry.NewDuckDBHandler(log.Handler(), duckArchive.DB())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		log = slog.New(handler)
		clientConfig.Logger = log
	}

	if cfg.Enrichment.Enabled && cfg.Enrichment.APIKey != "" {
		clientConfig.Enricher = enrich.NewOpenAIProvider(cfg.Enrichment.APIKey, cfg.Enrichment.BaseURL, cfg.Enrichment.Model, log)
	}

	return rolodexpkg.NewClient(db, clientConfig), nil
}
