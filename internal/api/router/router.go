package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ChelochoX/tuvendedor-back-sub000/internal/channels/whatsapp"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/http/handlers"
	httpmiddleware "github.com/ChelochoX/tuvendedor-back-sub000/internal/http/middleware"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/webchat"
	"github.com/ChelochoX/tuvendedor-back-sub000/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	WhatsAppAdapter    *whatsapp.Adapter
	WebchatHandler     *webchat.Handler
	AdminConversations *handlers.AdminConversationsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)

		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		if cfg.WhatsAppAdapter != nil {
			public.Route("/webhooks/whatsapp", func(r chi.Router) {
				r.Get("/", cfg.WhatsAppAdapter.HandleVerification)
				r.Post("/", cfg.WhatsAppAdapter.HandleWebhook)
			})
		}

		if cfg.WebchatHandler != nil {
			public.Route("/webchat", func(r chi.Router) {
				r.Get("/ws", cfg.WebchatHandler.HandleWebSocket)
				r.Post("/messages", cfg.WebchatHandler.HandleMessage)
			})
		}
	})

	// Admin endpoints behind JWT auth
	if cfg.AdminConversations != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

			admin.Route("/conversations", func(r chi.Router) {
				r.Get("/", cfg.AdminConversations.ListConversations)
				r.Get("/{conversationID}", cfg.AdminConversations.GetConversation)
				r.Get("/{conversationID}/export", cfg.AdminConversations.ExportTranscript)
			})
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
