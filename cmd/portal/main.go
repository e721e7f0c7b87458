package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"medicore-client/internal/api"
	"medicore-client/internal/bus"
	"medicore-client/internal/dashboard"
	"medicore-client/internal/guard"
	"medicore-client/internal/notify"
	"medicore-client/internal/session"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	backendURL := env("BACKEND_URL", "http://localhost:4000")
	listenAddr := env("LISTEN_ADDR", "127.0.0.1:8080")

	client, err := api.New(backendURL, logger)
	if err != nil {
		logger.Fatal("api client", zap.Error(err))
	}

	cache, closeCache := buildCache(logger)
	defer closeCache()

	eventBus := bus.New(logger)
	notifier := notify.NewLog(logger)

	store := session.NewStore(client, cache, eventBus, logger)
	defer store.Close()
	store.Init(context.Background())
	store.FetchCurrentUser(context.Background())
	store.StartRevalidation(session.DefaultRevalidateEvery)

	ctrl := dashboard.New(client, store, eventBus, notifier, logger)
	ctrl.Bind()
	defer ctrl.Close()

	routeGuard := guard.New(store, notifier)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: router(client, store, ctrl, routeGuard, eventBus, logger),
	}
	go func() {
		logger.Info("portal listening", zap.String("addr", listenAddr), zap.String("backend", backendURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http", zap.Error(err))
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}

func router(client *api.Client, store *session.Store, ctrl *dashboard.Controller, g *guard.Guard, eventBus *bus.Bus, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowCredentials: true,
	}))

	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		var creds api.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := store.Login(r.Context(), creds); err != nil {
			writeErr(w, http.StatusUnauthorized, api.UserMessage(err, "login failed"))
			return
		}
		writeJSON(w, map[string]any{"user": store.Snapshot().User})
	})

	r.Get("/logout", func(w http.ResponseWriter, r *http.Request) {
		store.Logout(r.Context())
		writeJSON(w, map[string]string{"message": "logged out"})
	})

	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		st := store.Snapshot()
		writeJSON(w, map[string]any{
			"user":            st.User,
			"isAuthenticated": st.IsAuthenticated,
			"loading":         st.Loading,
			"error":           st.Err,
		})
	})

	r.Post("/refetch", func(w http.ResponseWriter, r *http.Request) {
		store.Refetch(r.Context())
		writeJSON(w, map[string]any{"isAuthenticated": store.Snapshot().IsAuthenticated})
	})

	r.Post("/register", func(w http.ResponseWriter, r *http.Request) {
		var reg api.Registration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		msg, err := client.Register(r.Context(), reg)
		if err != nil {
			writeErr(w, http.StatusBadRequest, api.UserMessage(err, "registration failed"))
			return
		}
		writeJSON(w, map[string]string{"message": msg})
	})

	r.Get("/doctors", func(w http.ResponseWriter, r *http.Request) {
		docs, err := client.Doctors(r.Context())
		if err != nil {
			writeErr(w, http.StatusBadGateway, "failed to fetch doctors")
			return
		}
		writeJSON(w, map[string]any{"doctors": docs})
	})

	r.Post("/messages", func(w http.ResponseWriter, r *http.Request) {
		var m api.Message
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		msg, err := client.SendMessage(r.Context(), m)
		if err != nil {
			writeErr(w, http.StatusBadRequest, api.UserMessage(err, "failed to send message"))
			return
		}
		writeJSON(w, map[string]string{"message": msg})
	})

	// everything under /dashboard requires a live session
	r.Route("/dashboard", func(r chi.Router) {
		r.Use(g.Middleware("/login"))

		r.Get("/appointments", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{
				"appointments": ctrl.Appointments(),
				"refreshing":   ctrl.Refreshing(),
				"loaded":       ctrl.Loaded(),
			})
		})

		r.Post("/appointments/refresh", func(w http.ResponseWriter, r *http.Request) {
			if err := ctrl.Refresh(r.Context()); err == dashboard.ErrRefreshInFlight {
				writeErr(w, http.StatusConflict, "refresh already in flight")
				return
			}
			writeJSON(w, map[string]any{"appointments": ctrl.Appointments()})
		})

		r.Delete("/appointments/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := ctrl.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
				writeErr(w, http.StatusBadGateway, api.UserMessage(err, "failed to delete appointment"))
				return
			}
			writeJSON(w, map[string]any{"appointments": ctrl.Appointments()})
		})

		r.Post("/appointments", func(w http.ResponseWriter, r *http.Request) {
			var b api.Booking
			if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
				writeErr(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if err := client.BookAppointment(r.Context(), b); err != nil {
				writeErr(w, http.StatusBadRequest, api.UserMessage(err, "failed to book appointment"))
				return
			}
			eventBus.Publish(bus.AppointmentCreated)
			writeJSON(w, map[string]string{"message": "appointment booked"})
		})
	})

	return r
}

func buildCache(logger *zap.Logger) (session.Cache, func()) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rc := session.NewRedisCache(addr, os.Getenv("REDIS_PASSWORD"))
		logger.Info("session cache in redis", zap.String("addr", addr))
		return rc, func() { rc.Close() }
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return session.NewFileCache(filepath.Join(dir, "medicore", "session.json")), func() {}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
