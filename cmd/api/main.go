package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mireilabs/velora/backend/internal/config"
	"github.com/mireilabs/velora/backend/internal/handler"
	"github.com/mireilabs/velora/backend/internal/model/persona"
	"github.com/mireilabs/velora/backend/internal/service/ai"
	"github.com/mireilabs/velora/backend/internal/service/audio"
	"github.com/mireilabs/velora/backend/internal/service/billing"
	"github.com/mireilabs/velora/backend/internal/service/chat"
	"github.com/mireilabs/velora/backend/internal/service/knowledge"
	"github.com/mireilabs/velora/backend/internal/service/memory"
	"github.com/mireilabs/velora/backend/internal/service/relationship"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	sessions := chat.NewSessions(personaStore)

	// Storage backends: Redis when configured, in-memory otherwise.
	var (
		ledger  billing.Ledger
		history chat.HistorySink
	)
	accounts := billing.Accounts(nil)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis unreachable at %s: %v", cfg.Redis.Addr, err)
		}
		redisLedger := billing.NewRedisLedger(client)
		ledger, accounts = redisLedger, redisLedger
		history = chat.NewRedisHistory(client)
		log.Printf("using redis at %s for credits and history", cfg.Redis.Addr)
	} else {
		memLedger := billing.NewMemoryLedger()
		ledger, accounts = memLedger, memLedger
		history = chat.NewMemoryHistory(500)
		log.Println("REDIS_ADDR not set, using in-memory credits and history")
	}

	gate := billing.NewGate(ledger, cfg.Billing)
	memories := memory.NewMemoryStore()
	relStore := relationship.NewMemoryStore()
	relService := relationship.NewService(relStore, relationship.DefaultScoringPolicy())
	updater := relationship.NewUpdater(relService)
	clips := audio.NewClipStore()

	audioService := audio.NewService(cfg.Audio)
	if cfg.Audio.Enabled() {
		log.Println("audio providers configured, voice turns enabled")
	} else {
		log.Println("audio providers not configured, voice turns will fail fast")
	}

	aiService, err := ai.NewService(ctx, memories, cfg.AI, cfg.Chat.HistoryWindow)
	if err != nil {
		log.Fatalf("failed to initialize reply generator: %v", err)
	}
	log.Println("reply generator initialized")

	retriever := knowledge.NewRetriever(cfg.Knowledge, nil)
	if retriever != nil {
		log.Println("knowledge retrieval enabled")
	}

	orch := chat.NewOrchestrator(chat.OrchestratorDeps{
		Sessions:      sessions,
		Personas:      personaStore,
		Gate:          gate,
		Speech:        audioService,
		Clips:         clips,
		Generator:     aiService,
		History:       history,
		Memories:      memories,
		Relationships: relService,
		Updater:       updater,
		Retriever:     retriever,
		MaxWorkers:    cfg.Chat.MaxWorkers,
		FlushTimeout:  cfg.Chat.FlushTimeout,
		HistoryWindow: cfg.Chat.HistoryWindow,
	})
	buffer := chat.NewBuffer(cfg.Chat.DebounceWindow, cfg.Chat.IdleEviction, cfg.Chat.DisconnectGrace, orch.HandleBatch)

	// Janitor: evict buffers for conversations gone idle or disconnected.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := buffer.Sweep(); n > 0 {
					log.Printf("[buffer] evicted %d idle conversations", n)
				}
			}
		}
	}()

	router := handler.NewRouter(handler.Deps{
		Personas:      personaStore,
		Sessions:      sessions,
		History:       history,
		Relationships: relService,
		Clips:         clips,
		Accounts:      accounts,
		Buffer:        buffer,
		Orchestrator:  orch,
	})

	startServer(ctx, cfg.Server, router)

	// Let in-flight turns and queued relationship updates settle before
	// the process exits.
	orch.Wait()
	updater.Wait()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Velora backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
