package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mariannseck-design/mon-khatma/internal/dispatch"
	"github.com/mariannseck-design/mon-khatma/internal/handlers"
	"github.com/mariannseck-design/mon-khatma/internal/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	// Redis Configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDBStr := os.Getenv("REDIS_DB")
	redisDB := 0
	if redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// Initialize Redis store (token cache, fired markers, delivery log)
	redisStore := store.NewRedisStore(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// PostgreSQL Configuration
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pgStore, err := store.NewPostgresStore(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	// Run database migrations
	ctx := context.Background()
	if err := pgStore.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// VAPID keys: from env, or generate a fresh pair
	vapidPrivateKey := os.Getenv("VAPID_PRIVATE_KEY")
	vapidPublicKey := os.Getenv("VAPID_PUBLIC_KEY")
	if vapidPrivateKey == "" || vapidPublicKey == "" {
		log.Println("VAPID keys not found in environment. Generating new keys...")
		privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			log.Fatal("Failed to generate VAPID keys:", err)
		}
		vapidPrivateKey = privateKey
		vapidPublicKey = publicKey
		log.Printf("Generated VAPID Keys:\nVAPID_PRIVATE_KEY=%s\nVAPID_PUBLIC_KEY=%s\n(Add these to your .env file to persist them — rotating keys invalidates every existing subscription)", privateKey, publicKey)
	}

	subject := os.Getenv("VAPID_SUBJECT")
	if subject == "" {
		subject = "mailto:admin@example.com"
	}

	mode := dispatch.Mode(os.Getenv("DISPATCH_MODE"))
	if mode != dispatch.ModeCatchup {
		mode = dispatch.ModeWindow
	}

	dispatcher := dispatch.New(pgStore, redisStore, dispatch.Config{
		VAPIDPublicKey:  vapidPublicKey,
		VAPIDPrivateKey: vapidPrivateKey,
		Subject:         subject,
		Mode:            mode,
	})

	h := handlers.NewHandler(pgStore, redisStore, dispatcher, vapidPublicKey)

	// Auth
	http.HandleFunc("/api/register", h.RegisterHandler)
	http.HandleFunc("/api/login", h.LoginHandler)
	http.HandleFunc("/api/logout", h.LogoutHandler)

	// Push
	http.HandleFunc("/api/push/key", h.GetVAPIDKeyHandler)
	http.HandleFunc("/api/push/subscribe", h.SubscribePushHandler)
	http.HandleFunc("/api/push/unsubscribe", h.UnsubscribePushHandler)
	http.HandleFunc("/api/push/log", handlers.AuthMiddleware(h.DeliveryLogHandler))
	http.HandleFunc("/api/push/dispatch", h.DispatchHandler)

	// Reminders
	http.HandleFunc("/api/reminders", handlers.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetRemindersHandler(w, r)
		case http.MethodPost:
			h.CreateReminderHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	http.HandleFunc("/api/reminders/", handlers.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			h.UpdateReminderHandler(w, r)
		case http.MethodDelete:
			h.DeleteReminderHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	// Metrics
	http.Handle("/metrics", promhttp.Handler())

	// Serve static files (PWA assets)
	fs := http.FileServer(http.Dir("web/static"))
	http.Handle("/static/", http.StripPrefix("/static/", fs))

	// In-process dispatch trigger, roughly once per minute
	interval := time.Minute
	if s := os.Getenv("DISPATCH_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			interval = d
		}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			result, err := dispatcher.Run(ctx)
			if err != nil {
				log.Printf("Dispatch run failed: %v", err)
				continue
			}
			if result.Sent > 0 || len(result.Errors) > 0 {
				log.Printf("Dispatch run: sent=%d errors=%d", result.Sent, len(result.Errors))
				for _, e := range result.Errors {
					log.Println("  dispatch error:", e)
				}
			}
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Println("Listening on :" + port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}
