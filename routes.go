package main

import (
	"net/http"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nutriLensAPI/handlers"
	"nutriLensAPI/internal/config"
	"nutriLensAPI/internal/daykey"
	"nutriLensAPI/internal/docstore"
	"nutriLensAPI/middleware"
	"nutriLensAPI/services"
)

type routerDeps struct {
	cfg     *config.Config
	store   docstore.Store
	limiter *middleware.RateLimiter
	verify  middleware.TokenVerifier
	users   *services.UserService
	ledger  *services.LedgerService
	streaks *services.StreakService
	meals   *services.MealService
	clock   daykey.Clock
}

func newRouter(d routerDeps) http.Handler {
	sessionDeps := services.SessionDeps{Users: d.users, Ledger: d.ledger, Streaks: d.streaks, Clock: d.clock}

	userHandler := handlers.NewUserHandler(d.users)
	nutritionHandler := handlers.NewNutritionHandler(d.users, d.ledger, d.streaks)
	streakHandler := handlers.NewStreakHandler(d.streaks)
	mealHandler := handlers.NewMealHandler(d.meals)
	sessionHandler := handlers.NewSessionHandler(sessionDeps)
	notificationHandler := handlers.NewNotificationHandler(d.users)
	webhookHandler := handlers.NewWebhookHandler(d.users, d.streaks, d.cfg.ClerkWebhookSecret)
	healthHandler := handlers.NewHealthHandler(d.store, string(d.cfg.StoreBackend))

	requireAuth := middleware.ClerkAuth(d.verify)

	r := mux.NewRouter()

	// Websocket sessions skip the rate limiter; they are long lived.
	r.Handle("/api/v1/session/ws", requireAuth(http.HandlerFunc(sessionHandler.Connect))).Methods("GET")

	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(d.limiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)
	standardRouter.Use(middleware.RequestLogger)

	standardRouter.Handle("/metrics", middleware.BasicAuth(d.cfg.MetricsUser, d.cfg.MetricsPass)(promhttp.Handler()))
	standardRouter.HandleFunc("/health", healthHandler.Health).Methods("GET")
	standardRouter.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/nutrition/calculate", nutritionHandler.Calculate).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(requireAuth)

	protected.HandleFunc("/session", sessionHandler.GetSession).Methods("GET")

	protected.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	protected.HandleFunc("/user/setup", userHandler.CompleteSetup).Methods("POST")

	protected.HandleFunc("/nutrition", nutritionHandler.AddNutrition).Methods("POST")
	protected.HandleFunc("/nutrition/today", nutritionHandler.GetToday).Methods("GET")
	protected.HandleFunc("/nutrition/today", nutritionHandler.ResetToday).Methods("DELETE")
	protected.HandleFunc("/nutrition/target", nutritionHandler.UpdateTarget).Methods("PUT")
	protected.HandleFunc("/nutrition/target/adjust", nutritionHandler.AdjustTarget).Methods("POST")

	protected.HandleFunc("/streak", streakHandler.GetStreak).Methods("GET")
	protected.HandleFunc("/streak/refresh", streakHandler.Refresh).Methods("POST")

	protected.HandleFunc("/meals", mealHandler.LogMeal).Methods("POST")
	protected.HandleFunc("/meals/today", mealHandler.TodayMeals).Methods("GET")
	protected.HandleFunc("/meals/history", mealHandler.History).Methods("GET")

	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)
	return corsHandler(r)
}
