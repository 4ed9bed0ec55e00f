package devserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server bundles the stub backend's service, hub and router.
type Server struct {
	Svc *ChatService
	Hub *Hub

	handler *Handler
}

// New creates a Server and starts the hub's event loop.
func New() *Server {
	svc := NewChatService()
	hub := NewHub()
	go hub.Run()
	return &Server{
		Svc:     svc,
		Hub:     hub,
		handler: NewHandler(svc, hub),
	}
}

// Router assembles the chi router with the standard middleware stack and CORS
// settings suitable for a browser client on localhost.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.handler.ListConversations)
			r.Post("/", s.handler.CreateConversation)
			r.Delete("/{id}", s.handler.DeleteConversation)
			r.Get("/{id}/messages", s.handler.GetMessages)
			r.Post("/{id}/messages", s.handler.SendMessage)
			r.Put("/{id}/messages/{messageID}", s.handler.EditMessage)
			r.Delete("/{id}/messages/{messageID}", s.handler.DeleteMessage)
		})
	})

	r.Get("/ws/conversations/{id}", s.handler.ServeWS)

	return r
}

// healthCheck handles GET /health for monitoring and readiness probes.
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"message": "sajilokaam dev messaging server is running",
	})
}
