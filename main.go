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

	firebase "firebase.google.com/go/v4"
	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/joho/godotenv"

	"nutriLensAPI/internal/config"
	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/internal/logger"
	"nutriLensAPI/internal/metrics"
	"nutriLensAPI/internal/notification"
	"nutriLensAPI/middleware"
	"nutriLensAPI/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found")
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	clerk.SetKey(cfg.ClerkSecretKey)
	logger.Info("Clerk initialized successfully")

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	firebaseOpts := docstore.FirebaseOptions{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredentialsFile,
		EncodedJSON:     cfg.FirebaseServiceAccount,
	}

	var app *firebase.App
	if cfg.StoreBackend == config.BackendFirestore || cfg.PushEnabled {
		app, err = docstore.NewFirebaseApp(startCtx, firebaseOpts)
		if err != nil {
			if cfg.StoreBackend == config.BackendFirestore {
				log.Fatal("Failed to initialize Firebase: ", err)
			}
			logger.Warn("Firebase unavailable, push notifications disabled: %v", err)
		}
	}

	store, err := openStore(startCtx, cfg, app)
	if err != nil {
		log.Fatal("Failed to open document store: ", err)
	}
	defer func() {
		logger.Info("Closing document store...")
		store.Close()
	}()
	logger.Success("Document store ready (%s)", cfg.StoreBackend)

	clock := daykey.SystemClock{Location: cfg.Location}
	userService := services.NewUserService(store, clock)
	ledgerService := services.NewLedgerService(store, clock)
	streakService := services.NewStreakService(store, ledgerService, userService, clock)
	mealService := services.NewMealService(store, ledgerService, streakService)

	var pushProvider services.PushNotificationProvider
	if cfg.PushEnabled && app != nil {
		fcmService, err := notification.NewFCMService(startCtx, app)
		if err != nil {
			logger.Warn("Could not initialize FCM: %v", err)
		} else {
			pushProvider = fcmService
			logger.Info("FCM Push Provider initialized successfully")
		}
	}
	dispatcher := services.NewMilestoneDispatcher(userService, pushProvider, 3)
	defer dispatcher.Stop()
	streakService.SetMilestoneNotifier(dispatcher)

	metrics.Register()
	middleware.InitPrometheus()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go limiter.Cleanup(bgCtx)

	router := newRouter(routerDeps{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		verify:  middleware.ClerkVerifier,
		users:   userService,
		ledger:  ledgerService,
		streaks: streakService,
		meals:   mealService,
		clock:   clock,
	})

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Error starting server: ", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Got signal: %v", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}

	logger.Info("Server shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, app *firebase.App) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		return docstore.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.BackendMemory:
		logger.Warn("Using the in-memory store: data is lost on restart")
		return docstore.NewMemory(), nil
	default:
		return docstore.NewFirestore(ctx, app)
	}
}
