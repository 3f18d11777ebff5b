// Command recall is the local hybrid search engine over connected work
// tools. It wires the adapters to the core services and hands control
// to the CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/recall-labs/recall-cli/internal/adapters/driven/config/file"
	"github.com/recall-labs/recall-cli/internal/adapters/driven/embedding/ollama"
	"github.com/recall-labs/recall-cli/internal/adapters/driven/embedding/openai"
	"github.com/recall-labs/recall-cli/internal/adapters/driven/rerank"
	"github.com/recall-labs/recall-cli/internal/adapters/driven/storage/postgres"
	"github.com/recall-labs/recall-cli/internal/adapters/driven/storage/sqlite"
	"github.com/recall-labs/recall-cli/internal/adapters/driving/cli"
	"github.com/recall-labs/recall-cli/internal/connectors/gmail"
	"github.com/recall-labs/recall-cli/internal/connectors/linear"
	"github.com/recall-labs/recall-cli/internal/connectors/notion"
	"github.com/recall-labs/recall-cli/internal/connectors/slack"
	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
	"github.com/recall-labs/recall-cli/internal/core/services"
	"github.com/recall-labs/recall-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "recall: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	dataDir, err := resolveDataDir()
	if err != nil {
		return err
	}

	config, err := file.NewConfigStore(dataDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store := sqlite.NewStore(dataDir)
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer store.Close()

	embedder := buildEmbedder(config)
	backend, cleanup, err := buildBackend(ctx, config, store, embedder)
	if err != nil {
		return err
	}
	defer cleanup()

	searchSvc := services.NewSearchService(backend, buildReranker(config), buildRecencyBooster(config))

	orchestrator := services.NewSyncOrchestrator(store, embedder, buildConnectors(config))
	if channels := config.GetStringSlice(file.ChannelsKey(string(domain.SourceSlack))); channels != nil {
		orchestrator.SetChannelFilter(&domain.ChannelFilter{
			Source:  domain.SourceSlack,
			Allowed: channels,
		})
	}

	return cli.Execute(version, cli.Services{
		Search: searchSvc,
		Sync:   orchestrator,
		Store:  store,
		Config: config,
	})
}

// resolveDataDir returns the data directory, creating it if needed.
// RECALL_DATA_DIR overrides the default ~/.recall.
func resolveDataDir() (string, error) {
	dir := os.Getenv("RECALL_DATA_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".recall")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return dir, nil
}

// buildEmbedder returns the embedding service, or nil when none is
// configured. Without an embedder, search degrades to lexical-only
// and sync stores documents without vectors.
func buildEmbedder(config driven.ConfigStore) driven.EmbeddingService {
	if config.GetString(file.KeyEmbeddingProvider) == "ollama" {
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL: config.GetString(file.KeyOllamaURL),
		})
	}

	apiKey := config.GetString(file.KeyOpenAIKey)
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		logger.Warn("no embedding API key configured, semantic search disabled")
		return nil
	}

	embedder, err := openai.NewEmbeddingService(openai.Config{APIKey: apiKey})
	if err != nil {
		logger.Warn("embedding service unavailable: %v", err)
		return nil
	}
	return embedder
}

// buildBackend picks the search backend: the remote relational backend
// when a DSN is configured, the local hybrid searcher otherwise.
func buildBackend(
	ctx context.Context,
	config driven.ConfigStore,
	store driven.DocumentStore,
	embedder driven.EmbeddingService,
) (driven.SearchBackend, func(), error) {
	dsn := config.GetString(file.KeyRemoteDSN)
	if dsn == "" {
		return services.NewHybridSearcher(store, embedder), func() {}, nil
	}

	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to remote backend: %w", err)
	}
	return postgres.NewBackend(pool, embedder), pool.Close, nil
}

// buildReranker returns the rerank client, or nil when no proxy URL is
// configured.
func buildReranker(config driven.ConfigStore) driven.Reranker {
	url := config.GetString(file.KeyRerankURL)
	if url == "" {
		return nil
	}

	client, err := rerank.NewClient(rerank.Config{
		URL:    url,
		APIKey: config.GetString(file.KeyRerankAPIKey),
	})
	if err != nil {
		logger.Warn("reranker unavailable: %v", err)
		return nil
	}
	return client
}

// buildRecencyBooster applies per-source config overrides on top of the
// default decay profiles.
func buildRecencyBooster(config driven.ConfigStore) *services.RecencyBooster {
	profiles := services.DefaultRecencyProfiles()
	for source, profile := range profiles {
		if v := config.GetFloat(file.RecencyHalfLifeKey(string(source))); v > 0 {
			profile.HalfLifeDays = v
		}
		if v := config.GetFloat(file.RecencyWeightKey(string(source))); v > 0 {
			profile.Weight = v
		}
		profiles[source] = profile
	}
	return services.NewRecencyBooster(profiles)
}

// buildConnectors creates a connector per source that has credentials.
// Sources without credentials still get a connector so that status
// reports "not connected" instead of "unsupported".
func buildConnectors(config driven.ConfigStore) []driven.Connector {
	return []driven.Connector{
		slack.New(slack.Config{Token: config.GetString(file.KeySlackToken)}),
		notion.New(notion.Config{
			Token:       config.GetString(file.KeyNotionToken),
			WorkspaceID: config.GetString(file.KeyWorkspaceID),
		}),
		linear.New(linear.Config{APIKey: config.GetString(file.KeyLinearAPIKey)}),
		gmail.New(gmail.Config{AccessToken: config.GetString(file.KeyGmailAccessToken)}),
	}
}
