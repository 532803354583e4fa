// Package app wires adapters and application services into one graph shared
// by the server and the CLI.
package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bwmarrin/snowflake"
	goredis "github.com/redis/go-redis/v9"

	openaiadapter "github.com/ericfisherdev/gitactivity/internal/adapter/driven/openai"
	redisadapter "github.com/ericfisherdev/gitactivity/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/gitactivity/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/gitactivity/internal/application"
	"github.com/ericfisherdev/gitactivity/internal/config"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

// App holds the opened database and every service built on it.
type App struct {
	DB         *sqliteadapter.DB
	Node       *snowflake.Node
	Activity   *application.ActivityService
	Attention  *application.AttentionService
	Caches     *application.CacheService
	Automation *application.AutomationService
	Mentions   *application.MentionService

	redis *goredis.Client
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Build opens the database, runs migrations and wires all services. Redis and
// the OpenAI classifier are optional and only connected when configured.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}

	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	slog.Info("database opened", "path", cfg.DBPath)

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("migrations complete", "schema_version", version)

	a := &App{DB: db, Node: node}

	activityStore := sqliteadapter.NewActivityRepo(db)
	rawStore := sqliteadapter.NewRawRepo(db)
	syncStore := sqliteadapter.NewSyncConfigRepo(db)
	statusStore := sqliteadapter.NewStatusHistoryRepo(db)
	stateStore := sqliteadapter.NewCacheStateRepo(db)
	derivedStore := sqliteadapter.NewDerivedCacheRepo(db)
	mentionStore := sqliteadapter.NewMentionRepo(db)
	lockStore := sqliteadapter.NewJobLockRepo(db)

	resolver := application.NewStatusResolver(rawStore, statusStore)
	a.Attention = application.NewAttentionService(rawStore, syncStore, mentionStore, resolver)

	if cfg.HasRedis() {
		client, err := redisadapter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.redis = client
		a.Attention.WithCache(redisadapter.NewAttentionCache(client), cfg.AttentionCacheTTL)
		slog.Info("attention cache enabled", "ttl", cfg.AttentionCacheTTL)
	}

	var classifier driven.MentionClassifier
	if cfg.HasClassifier() {
		classifier = openaiadapter.NewClassifierWithBaseURL(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		slog.Info("mention classifier enabled", "model", cfg.OpenAIModel)
	}

	secret, err := tokenSecret(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Caches = application.NewCacheService(syncStore, stateStore, derivedStore)
	a.Automation = application.NewAutomationService(
		syncStore, statusStore, stateStore, lockStore, node, lockHolder(node),
	)
	a.Activity = application.NewActivityService(
		activityStore, derivedStore, syncStore, resolver, a.Attention, a.Caches, a.Automation,
		application.NewTokenSigner(secret, cfg.TokenTTL),
		application.ActivityServiceOptions{
			QueryTimeout:      cfg.QueryTimeout,
			DefaultThresholds: cfg.Thresholds,
		},
	)
	a.Mentions = application.NewMentionService(a.Attention, activityStore, mentionStore, classifier)

	return a, nil
}

// Close releases the Redis client and the database.
func (a *App) Close() error {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Error("error closing redis client", "error", err)
		}
	}
	return a.DB.Close()
}

// tokenSecret returns the configured signing secret, or a random one that
// lives as long as the process.
func tokenSecret(cfg *config.Config) ([]byte, error) {
	if cfg.TokenSecret != "" {
		return []byte(cfg.TokenSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	slog.Warn("ACTIVITY_TOKEN_SECRET not set, prefetch tokens will not survive a restart")
	return secret, nil
}

// lockHolder names this process in the shared job lock.
func lockHolder(node *snowflake.Node) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), node.Generate())
}
