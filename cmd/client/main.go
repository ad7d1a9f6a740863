package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hollowfen/pasture/pkg/auth"
	"github.com/hollowfen/pasture/pkg/game/types"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/persistence"
	"github.com/hollowfen/pasture/pkg/storage"
	pasturesync "github.com/hollowfen/pasture/pkg/sync"
	"github.com/hollowfen/pasture/pkg/version"
	"github.com/hollowfen/pasture/pkg/workers"
)

func main() {
	logLevel := flag.String("log-level", "", "Log level (overrides PASTURE_LOG_LEVEL)")
	flag.Parse()

	env, err := persistence.LoadEnv()
	if err != nil {
		panic(fmt.Sprintf("Failed to load environment: %v", err))
	}
	level := env.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	parsedLogLevel, err := log.ParseLogLevel(level)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)

	log.Info("Starting pasture client version %s", version.Get())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewSQLiteStore(ctx, storage.NewSQLiteStoreOptions{
		Path: env.SavePath,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to open save database: %v", err))
	}
	defer store.Close(ctx)

	gateway := auth.NewGateway(auth.NewGatewayOptions{
		APIKey: env.FirebaseAPIKey,
		Store:  store,
	})
	manager := persistence.NewManager(persistence.NewManagerOptions{
		Store:   store,
		Gateway: gateway,
	})

	state, err := manager.LoadGame(ctx)
	if err != nil {
		panic(fmt.Sprintf("Failed to load game: %v", err))
	}
	if state == nil {
		state = manager.NewGame()
		log.Info("No save found, starting a new game")
	}
	log.Info("Loaded game: %d coins, %d cows", state.Coins, len(state.Cows))

	syncTrigger := make(chan struct{}, 1)
	if env.SyncURL != "" {
		if err := manager.InitializeSync(ctx, persistence.SyncOptions{BaseURL: env.SyncURL}); err != nil {
			if auth.IsNotConfigured(err) {
				log.Info("Sync not configured, running offline-only")
			} else {
				log.Warn("Failed to initialize sync: %v", err)
			}
		} else {
			unsubscribe := manager.OnSyncStateChange(func(s pasturesync.State) {
				log.Info("Sync state: %s", s.Status)
			})
			defer unsubscribe()

			syncWorker := workers.NewSyncWorker(workers.NewSyncWorkerOptions{
				Syncer:      manager,
				TriggerChan: syncTrigger,
				Interval:    env.SyncInterval,
			})
			go syncWorker.Start(ctx)
			syncTrigger <- struct{}{}
		}
	}

	saveRequests := make(chan workers.SaveRequest, 16)
	autosaveWorker := workers.NewAutosaveWorker(workers.NewAutosaveWorkerOptions{
		Store:           store,
		Provider:        manager,
		SaveRequestChan: saveRequests,
		Interval:        env.AutosaveInterval,
		MinSaveInterval: env.MinSaveInterval,
	})
	go autosaveWorker.Start(ctx)

	// Headless play time accounting until the real game loop hooks in.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				manager.Mutate(func(state *types.SavedGameState) {
					state.PlayTimeMillis += 1000
				})
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down, saving game")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := autosaveWorker.Flush(shutdownCtx); err != nil {
		log.Error("Failed to save on shutdown: %v", err)
	}
}
