package ali

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/lgessler/ali/pkg/publish"
	"github.com/lgessler/ali/pkg/store"
	storesurreal "github.com/lgessler/ali/pkg/store/surrealdb"
	"github.com/lgessler/ali/pkg/tsv"
)

// Config holds application configuration.
type Config struct {
	// SurrealDB connection
	SurrealDBURL  string
	SurrealDBNS   string
	SurrealDBDB   string
	SurrealDBUser string
	SurrealDBPass string

	// Server configuration
	ServerPort string

	// JWTSecret signs session tokens. Must be set to something non-default
	// outside of local development.
	JWTSecret string

	// ImportBaseURL is the default base for TSV imports when a request does
	// not carry its own URL.
	ImportBaseURL string
}

// App holds the application state: the store, the publication hub and the
// TSV importer, plus a logger injected at construction. The collection
// handle is never package-level state; everything that touches storage goes
// through the injected store.
type App struct {
	store    store.Store
	config   *Config
	log      zerolog.Logger
	hub      *publish.Hub
	importer *tsv.Importer
}

// New connects to SurrealDB and assembles the application.
func New(ctx context.Context, config *Config, log zerolog.Logger) (*App, error) {
	st, err := storesurreal.New(ctx,
		config.SurrealDBURL,
		config.SurrealDBNS,
		config.SurrealDBDB,
		config.SurrealDBUser,
		config.SurrealDBPass,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}
	log.Info().Str("url", config.SurrealDBURL).Str("ns", config.SurrealDBNS).Str("db", config.SurrealDBDB).Msg("connected to SurrealDB")

	return NewWithStore(st, config, log), nil
}

// NewWithStore assembles the application around an existing store. Tests
// use this to substitute a fake.
func NewWithStore(st store.Store, config *Config, log zerolog.Logger) *App {
	return &App{
		store:    st,
		config:   config,
		log:      log,
		hub:      publish.NewHub(log),
		importer: tsv.NewImporter(config.ImportBaseURL, &http.Client{Timeout: tsv.DefaultTimeout}),
	}
}

// Close closes the application and its resources.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Store returns the underlying store (useful for testing).
func (a *App) Store() store.Store {
	return a.store
}

// getEnv retrieves an environment variable with a fallback default. Empty
// values count as unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
