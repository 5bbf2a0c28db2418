package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/didagent/internal/application"
	"github.com/turtacn/didagent/internal/config"
	"github.com/turtacn/didagent/internal/domain/repository"
	"github.com/turtacn/didagent/internal/domain/service"
	"github.com/turtacn/didagent/internal/infrastructure/crypto"
	"github.com/turtacn/didagent/internal/infrastructure/datanode"
	"github.com/turtacn/didagent/internal/infrastructure/kms"
	"github.com/turtacn/didagent/internal/infrastructure/monitoring"
	"github.com/turtacn/didagent/internal/infrastructure/persistence/pebbledb"
	"github.com/turtacn/didagent/internal/infrastructure/persistence/sqlite"
	"github.com/turtacn/didagent/internal/infrastructure/resolver"
	agenthttp "github.com/turtacn/didagent/internal/interfaces/http"
	"github.com/turtacn/didagent/internal/interfaces/http/handlers"
	"github.com/turtacn/didagent/pkg/constants"
	"github.com/turtacn/didagent/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("DIDAGENT_CONFIG"), "path to the config file")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	ctx := context.Background()

	// Config file edits are picked up for observability settings; anything
	// structural still needs a restart.
	loader.Watch(func(updated *config.Config) {
		appLogger.Info(ctx, "Configuration reloaded",
			logger.String("log_level", updated.Log.Level))
	})

	tracing, err := monitoring.NewTracingManager(monitoring.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn(context.Background(), "Tracer shutdown failed", logger.Error(err))
		}
	}()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	db, err := pebbledb.Open(cfg.Store.Path)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open store", err)
	}
	defer db.Close()

	keyRepo, err := keyMetadataStore(cfg, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open key metadata store", err)
	}
	privateRepo, err := privateKeyStore(cfg, db, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open private key store", err)
	}

	registry := crypto.NewRegistry()
	localKMS := kms.NewLocalKMS(string(constants.KmsNameLocal), keyRepo, privateRepo, registry, appLogger)

	keyManager, err := application.NewKeyManager(pebbledb.NewRoutingStore(db), metrics, appLogger, localKMS)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to create key manager", err)
	}
	signingKey, err := keyManager.EnsureDefaultSigningKey(ctx, cfg.Agent.Tenant)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to provision default signing key", err)
	}
	agentDID, err := resolver.CreateDIDKey(signingKey.Pair.PublicKey.Material)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to derive agent identity", err)
	}
	appLogger.Info(ctx, "Agent identity ready", logger.String("did", agentDID))

	didResolver := resolver.New(cfg.Resolver.URL, cfg.Resolver.CacheTTL, metrics, appLogger)
	localNode := datanode.NewLocalNode(db, appLogger)

	tokens := func(ctx context.Context, audience string) (string, error) {
		return datanode.BearerToken(ctx, keyManager, cfg.Agent.Tenant,
			service.KeyRef{Alias: application.DefaultSigningKeyAlias}, agentDID, audience)
	}
	remotes := func(endpoint string) service.DataNode {
		return datanode.NewRemoteNode(endpoint, tokens, appLogger)
	}

	syncEngine := application.NewSyncEngine(application.SyncEngineDeps{
		Tenant:   cfg.Agent.Tenant,
		Repo:     pebbledb.NewSyncStore(db),
		Local:    localNode,
		Resolver: didResolver,
		Remotes:  remotes,
		Metrics:  metrics,
		Tracing:  tracing,
		Logger:   appLogger,
	})
	identityService := application.NewIdentityService(cfg.Agent.Tenant, keyManager, syncEngine, didResolver, appLogger)

	router := agenthttp.NewRouter(agenthttp.RouterDeps{
		Config: &cfg.Server,
		Logger: appLogger,
		HealthHandler: handlers.NewHealthHandler(map[string]handlers.CheckFunc{
			"store": func(ctx context.Context) error {
				_, err := keyRepo.List(ctx, cfg.Agent.Tenant)
				return err
			},
		}, appLogger),
		KeyHandler:      handlers.NewKeyHandler(keyManager, cfg.Agent.Tenant, appLogger),
		IdentityHandler: handlers.NewIdentityHandler(identityService, appLogger),
		SyncHandler:     handlers.NewSyncHandler(syncEngine, appLogger),
		NodeHandler:     handlers.NewNodeHandler(localNode, cfg.Server.NodeAuth, appLogger),
	})

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		return router.Start()
	})

	if cfg.Sync.Enabled {
		syncErrs, err := syncEngine.Start(cfg.Sync.Interval)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to start sync engine", err)
		}
		group.Go(func() error {
			select {
			case err, ok := <-syncErrs:
				if ok {
					return err
				}
				return nil
			case <-groupCtx.Done():
				return nil
			}
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		syncEngine.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return router.Stop(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		appLogger.Error(context.Background(), "Agent exited with error", err)
		os.Exit(1)
	}
	appLogger.Info(context.Background(), "Agent stopped")
}

// keyMetadataStore selects the configured key metadata backend.
func keyMetadataStore(cfg *config.Config, db *pebbledb.DB) (repository.KeyMetadataRepository, error) {
	if cfg.Store.Backend == "sqlite" {
		return sqlite.NewKeyStore(cfg.Store.SQLiteDSN)
	}
	return pebbledb.NewKeyStore(db), nil
}

// privateKeyStore keeps private material in Vault when enabled, otherwise
// alongside the metadata in pebble.
func privateKeyStore(cfg *config.Config, db *pebbledb.DB, log logger.Logger) (repository.PrivateKeyRepository, error) {
	if cfg.Vault.Enabled {
		return kms.NewVaultKeyStore(kms.VaultConfig{
			Address: cfg.Vault.Address,
			Token:   cfg.Vault.Token,
			Mount:   cfg.Vault.Mount,
			Prefix:  cfg.Vault.Prefix,
		}, log)
	}
	return pebbledb.NewPrivateKeyStore(db), nil
}
