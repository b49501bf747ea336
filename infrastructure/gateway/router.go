// Package gateway exposes the chat service to browsers: server-sent events and a
// WebSocket for the event stream, plain JSON endpoints for sending and paging.
package gateway

import (
	"live-chat/services"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodySize = 8 * 1024

type Handler struct {
	log         *slog.Logger
	chatService services.IChatService
}

func NewHandler(log *slog.Logger, chatService services.IChatService) *Handler {
	return &Handler{log: log, chatService: chatService}
}

// NewRouter wires every gateway route. An empty allowedOrigins list allows any origin.
func NewRouter(log *slog.Logger, chatService services.IChatService, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	h := NewHandler(log, chatService)

	r := chi.NewRouter()
	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	r.Route("/channels/{id}", func(r chi.Router) {
		r.Get("/events", h.Events)
		r.Get("/ws", h.WebSocket)
		r.Get("/messages", h.History)
		r.With(maxBody(maxBodySize)).Post("/messages", h.PostMessage)
	})
	return r
}

func maxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
