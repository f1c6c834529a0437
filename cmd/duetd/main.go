// Command duetd serves the duetmatch conversation service over HTTP: a JSON
// session API, a websocket event stream per session and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/duetmatch"
	"github.com/hupe1980/duetmatch/config"
	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/gateway"
	"github.com/hupe1980/duetmatch/gateway/anthropic"
	"github.com/hupe1980/duetmatch/gateway/openai"
	"github.com/hupe1980/duetmatch/logging"
	"github.com/hupe1980/duetmatch/metrics"
	"github.com/hupe1980/duetmatch/server"
	"github.com/hupe1980/duetmatch/storage/memory"
	redisstore "github.com/hupe1980/duetmatch/storage/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "duetd:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "path to YAML config (empty uses built-in defaults)")
	flag.Parse()

	var cfg config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	logger := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	metrics.Register()

	gw := buildGateway(cfg, logger)

	store, profiles, cleanup, err := buildStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	hub := server.NewHub(func(o *server.HubOptions) { o.Logger = logger })

	svc := duetmatch.New(func(o *duetmatch.Options) {
		o.Gateway = gw
		o.Store = store
		o.Profiles = profiles
		o.Sink = hub
		o.Logger = logger
		o.TotalDuration = time.Duration(cfg.Conversation.TotalSec) * time.Second
		o.WrapThreshold = time.Duration(cfg.Conversation.WrapThresholdSec) * time.Second
		o.TurnInterval = time.Duration(cfg.Conversation.TurnIntervalSec) * time.Second
	})

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      server.New(svc, hub, func(o *server.Options) { o.Logger = logger }).Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("duetd listening", "addr", httpSrv.Addr, "storage", cfg.Storage.Driver)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	svc.Shutdown()
	hub.Close()
	return nil
}

// buildGateway wires the configured providers into one gateway. With no
// credentials configured the gateway still serves deterministic local
// embeddings, and personas degrade to scripted filler lines.
func buildGateway(cfg config.Config, logger logging.Logger) *gateway.Gateway {
	var providers []gateway.Provider
	var embedders []gateway.Embedder

	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		client := openaisdk.NewClient(option.WithAPIKey(key))
		p := openai.NewProviderFromClient(&client, func(o *openai.Options) {
			if cfg.Providers.OpenAI.Model != "" {
				o.Model = cfg.Providers.OpenAI.Model
			}
			if cfg.Providers.OpenAI.EmbeddingModel != "" {
				o.EmbeddingModel = cfg.Providers.OpenAI.EmbeddingModel
			}
		})
		providers = append(providers, p)
		embedders = append(embedders, p)
	}
	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		providers = append(providers, anthropic.NewProvider(func(o *anthropic.Options) {
			o.APIKey = key
			if cfg.Providers.Anthropic.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Providers.Anthropic.Model)
			}
		}))
	}

	return gateway.New(func(o *gateway.Options) {
		o.Providers = providers
		o.Embedders = embedders
		o.MaxAttempts = cfg.Gateway.MaxAttempts
		o.InitialBackoff = time.Duration(cfg.Gateway.InitialBackoffSec) * time.Second
		o.WindowLimit = cfg.Gateway.WindowLimit
		o.Window = time.Duration(cfg.Gateway.WindowSec) * time.Second
		o.LocalDims = cfg.Gateway.LocalEmbeddingDim
		o.Logger = logger
	})
}

// buildStorage selects the persistence backend and seeds the built-in demo
// profiles so the service is usable out of the box.
func buildStorage(cfg config.Config, logger logging.Logger) (core.Store, core.ProfileStore, func(), error) {
	if cfg.Storage.Driver != "redis" {
		return memory.NewStore(), memory.NewProfileStore(core.SeedProfiles()...), func() {}, nil
	}

	store, err := redisstore.NewStore(redisstore.Config{
		Addrs:      cfg.Storage.Addrs,
		Username:   cfg.Storage.Username,
		Password:   cfg.Storage.Password,
		DB:         cfg.Storage.DB,
		KeyPrefix:  cfg.Storage.KeyPrefix,
		SessionTTL: time.Duration(cfg.Storage.SessionTTLSec) * time.Second,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.WaitForReady(context.Background(), 10*time.Second); err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	for _, profile := range core.SeedProfiles() {
		if err := store.PutProfile(context.Background(), profile); err != nil {
			logger.Warn("seed profile not persisted", "user", profile.UserID, "error", err)
		}
	}
	return store, store, store.Close, nil
}
