package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/susu3304/warikan/internal/activity"
	"github.com/susu3304/warikan/internal/api"
	"github.com/susu3304/warikan/internal/bot"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/db/memory"
	"github.com/susu3304/warikan/internal/db/mongo"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/token"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to the store and run migrations
	store, closeStore, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()
	log.Printf("Using %s store", cfg.StoreDriver)

	cur := cfg.Currency()

	// Activity feed
	dispatcher := activity.NewDispatcher(activity.DefaultQueueSize)
	dispatcher.Add("log", activity.LogRecorder{})
	if len(cfg.KafkaBrokers) > 0 {
		publisher := activity.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		dispatcher.Add("kafka", publisher)
	}

	engine := ledger.NewEngine(store, token.NewSigner(cfg.ConfirmationSecret), ledger.WithEventSink(dispatcher))

	// Discord bot is optional; without a token only the API runs
	var discordBot *bot.Bot
	if cfg.DiscordToken != "" {
		discordBot, err = bot.New(cfg.DiscordToken, engine, cur)
		if err != nil {
			log.Fatalf("Failed to create discord bot: %v", err)
		}
		dispatcher.Add("discord", discordBot.Notifier())
	}
	dispatcher.Start()

	// Initialize API server
	apiServer := api.New(cfg, engine, token.NewSigner(cfg.JWTSecret), cur)

	if discordBot != nil {
		if err := discordBot.Start(); err != nil {
			log.Fatalf("Failed to start discord bot: %v", err)
		}
	}

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("API shutdown: %v", err)
	}
	if discordBot != nil {
		if err := discordBot.Stop(); err != nil {
			log.Printf("Discord shutdown: %v", err)
		}
	}
	if err := dispatcher.Stop(ctx); err != nil {
		log.Printf("Activity dispatcher shutdown: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (ledger.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunMigrations(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return database, database.Close, nil

	case config.DriverMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close(ctx)
			return nil, nil, fmt.Errorf("create indexes: %w", err)
		}
		closeFn := func() {
			if err := store.Close(context.Background()); err != nil {
				log.Printf("mongo: close: %v", err)
			}
		}
		return store, closeFn, nil

	default:
		return memory.New(), func() {}, nil
	}
}
