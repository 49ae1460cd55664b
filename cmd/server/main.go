package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/procertify/studio/backend-go/internal/asset"
	"github.com/procertify/studio/backend-go/internal/auth"
	"github.com/procertify/studio/backend-go/internal/collab"
	"github.com/procertify/studio/backend-go/internal/config"
	"github.com/procertify/studio/backend-go/internal/db"
	"github.com/procertify/studio/backend-go/internal/document"
	"github.com/procertify/studio/backend-go/internal/export"
	mw "github.com/procertify/studio/backend-go/internal/middleware"
	"github.com/procertify/studio/backend-go/internal/project"
	"github.com/procertify/studio/backend-go/internal/qr"
)

// The playground project is open to anonymous users and never persisted.
const playgroundProjectID = "proj_playground"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	queries := db.New(pool)

	authService := auth.NewService(queries, cfg.JWTSecret)
	authHandler := auth.NewHandler(authService)

	projectService := project.NewService(queries)
	projectHandler := project.NewHandler(projectService)

	docLoader := func(ctx context.Context, projectID string) (*document.Project, error) {
		if projectID == playgroundProjectID {
			return document.NewSampleProject(playgroundProjectID), nil
		}
		return projectService.LoadDocument(ctx, projectID)
	}
	docSaver := func(ctx context.Context, projectID string, doc *document.Project) error {
		if projectID == playgroundProjectID {
			return nil
		}
		return projectService.SaveDocument(ctx, projectID, doc)
	}

	hub := collab.NewHub(docLoader, docSaver, cfg.SaveInterval)
	go hub.Run()

	assetHandler := asset.NewHandler(cfg.AssetDir)

	qrRenderer := qr.NewRenderer(cfg.QRSize)
	qrHandler := qr.NewHandler(qrRenderer)

	exportRenderer := export.NewRenderer(qrRenderer, &export.SourceLoader{AssetDir: assetHandler.Dir()}, cfg.ExportMaxPixels)
	exportHandler := export.NewHandler(exportRenderer, projectService)

	// Rendering and password hashing are the expensive endpoints.
	authLimiter := mw.NewLimiter(10, time.Minute)
	exportLimiter := mw.NewLimiter(30, time.Minute)
	go sweepLimiters(ctx, authLimiter, exportLimiter)

	r := mux.NewRouter()

	r.Use(mw.Recovery)
	r.Use(mw.Logger)

	authRoutes := r.PathPrefix("/auth").Subrouter()
	authRoutes.Use(mw.Throttle(authLimiter))
	authRoutes.HandleFunc("/register", authHandler.Register).Methods("POST", "OPTIONS")
	authRoutes.HandleFunc("/login", authHandler.Login).Methods("POST", "OPTIONS")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"database unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Public endpoints, used by the playground and authenticated users alike.
	r.HandleFunc("/playground", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(document.NewSampleProject(playgroundProjectID))
	}).Methods("GET")
	r.HandleFunc("/assets/upload", assetHandler.Upload).Methods("POST", "OPTIONS")
	r.HandleFunc("/assets/signature", assetHandler.Signature).Methods("POST", "OPTIONS")
	r.HandleFunc("/assets/{assetId}", assetHandler.Remove).Methods("DELETE", "OPTIONS")
	r.PathPrefix("/assets/").Handler(assetHandler.Serve()).Methods("GET")
	r.HandleFunc("/qr", qrHandler.PNG).Methods("GET")

	exportRoutes := r.PathPrefix("/export").Subrouter()
	exportRoutes.Use(mw.Throttle(exportLimiter))
	exportRoutes.HandleFunc("/png", exportHandler.ExportPNG).Methods("POST", "OPTIONS")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authService.AuthMiddleware)

	api.HandleFunc("/me", authHandler.Me).Methods("GET")
	api.HandleFunc("/projects", projectHandler.List).Methods("GET")
	api.HandleFunc("/projects", projectHandler.Create).Methods("POST")
	api.HandleFunc("/projects/{projectId}", projectHandler.Get).Methods("GET")
	api.HandleFunc("/projects/{projectId}", projectHandler.Update).Methods("PATCH")
	api.HandleFunc("/projects/{projectId}", projectHandler.Delete).Methods("DELETE")
	api.HandleFunc("/projects/{projectId}/invite", projectHandler.Invite).Methods("POST")
	api.HandleFunc("/projects/{projectId}/members", projectHandler.ListMembers).Methods("GET")
	api.HandleFunc("/projects/{projectId}/members/{userId}", projectHandler.RemoveMember).Methods("DELETE")
	api.HandleFunc("/projects/{projectId}/snapshots/latest", projectHandler.GetLatestSnapshot).Methods("GET")
	api.Handle("/projects/{projectId}/export/{side}",
		mw.Throttle(exportLimiter)(http.HandlerFunc(exportHandler.ExportProject))).Methods("GET")

	r.HandleFunc("/ws/project/{projectId}", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, hub, authService, projectService, cfg.OriginPatterns())
	})

	// Preflights are answered before route matching.
	handler := mw.CORS(cfg.Origins())(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		// Save every dirty room before the pool closes.
		hub.Stop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func sweepLimiters(ctx context.Context, limiters ...*mw.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, l := range limiters {
				l.Sweep()
			}
		case <-ctx.Done():
			return
		}
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request, hub *collab.Hub, authSvc *auth.Service, projects *project.Service, originPatterns []string) {
	projectID := mux.Vars(r)["projectId"]

	var userID, displayName string

	if projectID == playgroundProjectID {
		userID = "anon-" + uuid.New().String()[:8]
		displayName = "Misafir"
	} else {
		// Browsers cannot set headers on websocket requests, so the token
		// may also come from the query string.
		token := auth.TokenFromRequest(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		var err error
		userID, err = authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if err := projects.CheckAccess(r.Context(), projectID, userID); err != nil {
			switch {
			case errors.Is(err, project.ErrNotFound):
				http.Error(w, "project not found", http.StatusNotFound)
			case errors.Is(err, project.ErrNotMember):
				http.Error(w, "not a project member", http.StatusForbidden)
			default:
				slog.Error("check project access", "error", err, "project", projectID)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		user, err := authSvc.GetUser(r.Context(), userID)
		if err != nil {
			http.Error(w, "user not found", http.StatusInternalServerError)
			return
		}
		displayName = user.DisplayName
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := collab.NewClient(hub, conn, userID, displayName, projectID, uuid.New().String())
	if !hub.Register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
