package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ugc-maroc-backend/internal/cache"
	"ugc-maroc-backend/internal/config"
	"ugc-maroc-backend/internal/flags"
	"ugc-maroc-backend/internal/handlers"
	"ugc-maroc-backend/internal/ratelimit"
	"ugc-maroc-backend/internal/sessioncache"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers, the edge-tier services and configuration.
type RouterDependencies struct {
	AuthHandler         *handlers.AuthHandler
	ConversationHandler *handlers.ConversationHandlers
	WSHandler           *handlers.WSHandlers
	FlagHandler         *handlers.FlagHandlers

	Flags      *flags.Service
	Limiter    *ratelimit.Limiter
	Cache      *cache.Cache
	Principals *sessioncache.Principals

	Config *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
// Middleware order on API routes: feature-flag gate, then rate limiter, then
// JWT auth, then the per-route response cache.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// --- CORS Configuration ---
	// Adjust AllowedOrigins for your frontend deployment(s)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*.vercel.app"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/v1", func(r chi.Router) {
		if deps.Flags != nil {
			r.Use(deps.Flags.Require("api"))
		}
		if deps.Limiter != nil {
			r.Use(deps.Limiter.Middleware)
		}

		// --- Public Routes (No JWT Required) ---
		if deps.AuthHandler != nil {
			r.Post("/auth/signup", deps.AuthHandler.HandleSignup)
			r.Post("/auth/login", deps.AuthHandler.HandleLogin)
		} else {
			panic("AuthHandler dependency is nil in router setup")
		}

		// --- Websocket Route ---
		// Authenticated inside the handler: browsers cannot set an
		// Authorization header on the upgrade request, so the token arrives
		// as ?token=.
		if deps.WSHandler != nil {
			r.Get("/conversations/{conversationID}/ws", deps.WSHandler.HandleConversationSocket)
		} else {
			log.Println("WARN: WSHandler dependency is nil, skipping websocket route.")
		}

		// --- Authenticated Routes (JWT Required) ---
		r.Group(func(r chi.Router) {
			r.Use(JwtAuthMiddleware(deps.Config.JWTSecret, deps.Principals))

			if deps.ConversationHandler != nil {
				r.Post("/conversations", deps.ConversationHandler.HandleCreateConversation)
				if deps.Cache != nil {
					// Inbox listings tolerate short staleness.
					r.With(deps.Cache.Middleware(cache.TTLVolatile)).
						Get("/conversations", deps.ConversationHandler.HandleListConversations)
				} else {
					r.Get("/conversations", deps.ConversationHandler.HandleListConversations)
				}
				r.Get("/conversations/{conversationID}/messages", deps.ConversationHandler.HandleGetMessages)
				r.Post("/conversations/{conversationID}/send", deps.ConversationHandler.HandleSendMessage)
				r.Post("/conversations/{conversationID}/read", deps.ConversationHandler.HandleMarkRead)
			} else {
				log.Println("WARN: ConversationHandler dependency is nil, skipping /v1/conversations routes.")
			}

			if deps.FlagHandler != nil {
				r.Get("/admin/flags", deps.FlagHandler.HandleListFlags)
				r.Get("/admin/flags/{name}", deps.FlagHandler.HandleGetFlag)
				r.Put("/admin/flags/{name}", deps.FlagHandler.HandleSetFlag)
			} else {
				log.Println("WARN: FlagHandler dependency is nil, skipping /v1/admin/flags routes.")
			}
		})
	})

	return r
}
