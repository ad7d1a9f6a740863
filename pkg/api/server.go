package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hollowfen/pasture/pkg/api/handlers"
	"github.com/hollowfen/pasture/pkg/api/middleware"
	authproviders "github.com/hollowfen/pasture/pkg/auth/providers"
	"github.com/hollowfen/pasture/pkg/log"
	"github.com/hollowfen/pasture/pkg/repositories"
	"github.com/hollowfen/pasture/pkg/repositories/models"
)

const writeTimeout = 10 * time.Second

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
	hub    *NotificationHub
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Repository   repositories.Repository
}

// NewAPIServer creates a new http.Server for handling save sync requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	hub := NewNotificationHub()
	return &APIServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", opts.Port),
			Handler: NewRouter(opts.AuthProvider, opts.Repository, hub),
		},
		tls: opts.TLS,
		hub: hub,
	}
}

// NewRouter builds the route table. Everything under /api requires a
// verified bearer token.
func NewRouter(authProvider authproviders.AuthProvider, repository repositories.Repository, hub *NotificationHub) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", handlers.HandleHealthz()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.NewAuthMiddleware(authProvider, repository))
	apiRouter.HandleFunc("/save", handlers.HandleGetSave(repository)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/save", handlers.HandleUpsertSave(repository, hub)).Methods(http.MethodPut)
	apiRouter.HandleFunc("/save", handlers.HandleDeleteSave(repository)).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/save/info", handlers.HandleGetSaveInfo(repository)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		hub.HandleSubscribe(r.Context(), w, r, user.UserID)
	}).Methods(http.MethodGet)

	return router
}

// Hub returns the notification hub serving /api/notifications.
func (s *APIServer) Hub() *NotificationHub {
	return s.hub
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
