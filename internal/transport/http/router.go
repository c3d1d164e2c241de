package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"jazzfeed/internal/handler"
	"jazzfeed/internal/httputil"
	authmw "jazzfeed/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	UserHandler    *handler.UserHandler
	FollowHandler  *handler.FollowHandler
	FeedHandler    *handler.FeedHandler
	PostHandler    *handler.PostHandler
	CommentHandler *handler.CommentHandler
	MediaHandler   *handler.MediaHandler
	Verifier       authmw.TokenVerifier
	RateLimiter    *authmw.RateLimiter // optional
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Every other route needs a verified uid.
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.Verifier))
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Get("/feed", cfg.FeedHandler.GetFeed)
		r.Get("/feed/stream", cfg.FeedHandler.Stream)

		r.Route("/posts", func(r chi.Router) {
			r.Post("/", cfg.PostHandler.Create)
			r.Get("/{id}", cfg.PostHandler.GetByID)
			r.Post("/{id}/like", cfg.PostHandler.ToggleLike)
			r.Get("/{id}/comments", cfg.CommentHandler.List)
			r.Post("/{id}/comments", cfg.CommentHandler.Create)
		})

		r.Route("/users/{uid}", func(r chi.Router) {
			r.Get("/", cfg.UserHandler.GetProfile)
			r.Get("/followers", cfg.UserHandler.GetFollowers)
			r.Get("/following", cfg.UserHandler.GetFollowing)
			r.Post("/follow", cfg.FollowHandler.Follow)
			r.Delete("/follow", cfg.FollowHandler.Unfollow)
		})

		r.Route("/me", func(r chi.Router) {
			r.Post("/signup", cfg.UserHandler.Signup)
			r.Put("/profile", cfg.UserHandler.UpdateProfile)
			r.Get("/requests", cfg.UserHandler.ListRequests)
			r.Post("/requests/{uid}/accept", cfg.FollowHandler.Accept)
			r.Post("/requests/{uid}/decline", cfg.FollowHandler.Decline)
		})

		// Media endpoints (direct-to-R2 uploads)
		r.Post("/media/posts/presign", cfg.MediaHandler.PresignPostUpload)
	})

	return r
}
