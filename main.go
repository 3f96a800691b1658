package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vidshare/auth"
	"vidshare/categories"
	"vidshare/db"
	"vidshare/httputil"
	"vidshare/likes"
	"vidshare/popular"
	"vidshare/ratelimit"
	"vidshare/recommend"
	"vidshare/users"
	"vidshare/videos"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Port           string
	DBPath         string
	DatabaseURL    string // postgres:// DSN; empty means embedded SQLite
	JWTSecret      string
	AllowedOrigins []string
	MetadataURL    string
	SummarizerURL  string
}

func loadConfig() Config {
	return Config{
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "/data/vidshare.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", "supersecretkey"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		MetadataURL:    getEnv("VIDEO_METADATA_URL", ""),
		SummarizerURL:  getEnv("SUMMARIZER_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openDatabase(cfg Config) (*db.CompatDB, error) {
	if cfg.DatabaseURL != "" {
		raw, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		raw.SetMaxOpenConns(10)
		if err := db.RunMigrations(raw, db.DialectPostgres); err != nil {
			raw.Close()
			return nil, err
		}
		return db.NewCompatDB(raw, db.DialectPostgres), nil
	}

	raw, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, err
	}
	// Single connection: prevents concurrent write conflicts
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)
	raw.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := raw.Exec(pragma); err != nil {
			raw.Close()
			return nil, err
		}
	}
	if err := db.RunMigrations(raw, db.DialectSQLite); err != nil {
		raw.Close()
		return nil, err
	}
	return db.NewCompatDB(raw, db.DialectSQLite), nil
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func newRouter(cfg Config, database *db.CompatDB) chi.Router {
	authH := &auth.Handler{DB: database, JWTSecret: cfg.JWTSecret}
	userH := &users.Handler{DB: database}
	catH := &categories.Handler{DB: database}
	videoH := &videos.Handler{DB: database}
	likeH := &likes.Handler{DB: database, Ledger: &likes.Ledger{DB: database}}
	recH := &recommend.Handler{DB: database}
	popH := &popular.Handler{MetadataURL: cfg.MetadataURL, SummarizerURL: cfg.SummarizerURL}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Credential endpoints, rate limited per IP.
	authLimiter := ratelimit.New(10, time.Minute)
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(authLimiter))
		r.Post("/api/token", authH.HandleToken)
		r.Post("/api/token/refresh", authH.HandleRefresh)
		r.Post("/api/register", authH.HandleRegister)
	})

	// Public reads; an optional token upgrades visibility for staff.
	r.Get("/videos", authH.OptionalAuth(videoH.HandleList))
	r.Get("/videos/{id}", authH.OptionalAuth(videoH.HandleGet))
	r.Get("/categories", catH.HandleList)
	r.Get("/categories/{id}", catH.HandleGet)
	r.Get("/api/popular-videos", popH.HandleGetPopular)

	// Authenticated writes.
	r.Group(func(r chi.Router) {
		r.Use(authH.RequireCapability(auth.CapWrite))
		r.Post("/videos", videoH.HandleCreate)
		r.Put("/videos/{id}", videoH.HandleUpdate)
		r.Patch("/videos/{id}", videoH.HandleUpdate)
		r.Delete("/videos/{id}", videoH.HandleDelete)
		r.Post("/videos/{id}/like", likeH.HandleLike)
		r.Delete("/videos/{id}/unlike", likeH.HandleUnlike)
		r.Post("/categories", catH.HandleCreate)
		r.Put("/categories/{id}", catH.HandleUpdate)
		r.Delete("/categories/{id}", catH.HandleDelete)
		r.Get("/api/user", userH.HandleGetProfile)
		r.Get("/api/liked-videos", likeH.HandleLikedVideos)
		r.Get("/api/user-videos", videoH.HandleUserVideos)
		r.Post("/api/change-password", authH.HandleChangePassword)
		r.Get("/api/recommend-videos", recH.HandleRecommend)
	})

	// Moderation.
	r.Group(func(r chi.Router) {
		r.Use(authH.RequireCapability(auth.CapModerate))
		r.Get("/api/users", userH.HandleList)
		r.Patch("/api/users/{id}/toggle-admin", userH.HandleToggleStaff)
		r.Patch("/api/users/{id}/toggle-active", userH.HandleToggleActive)
		r.Patch("/videos/{id}/moderate", videoH.HandleModerate)
		r.Post("/api/reconcile-likes", likeH.HandleReconcile)
	})

	return r
}

func main() {
	cfg := loadConfig()

	database, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: newRouter(cfg, database)}

	go func() {
		log.Printf("vidshare API listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Println("server shut down")
}
