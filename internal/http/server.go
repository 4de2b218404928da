package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/config"
	"storefront/internal/security/password"
	storepkg "storefront/internal/store"
)

type contextKey string

const contextKeyUserID contextKey = "user_id"

type Server struct {
	cfg       config.Config
	store     storepkg.Store
	passwords *password.Hasher
	logger    *slog.Logger
	now       func() time.Time
}

func NewServer(cfg config.Config, store storepkg.Store, passwords *password.Hasher, logger *slog.Logger) *Server {
	if passwords == nil {
		passwords = password.New(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 8
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		passwords: passwords,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           600,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/login", s.handleLogin)

		api.Get("/products", s.handleListProducts)
		api.Get("/products/{id}", s.handleGetProduct)

		api.Group(func(protected chi.Router) {
			protected.Use(s.requireUser)

			protected.Post("/products", s.handleCreateProduct)
			protected.Put("/products/{id}", s.handleUpdateProduct)
			protected.Delete("/products/{id}", s.handleDeleteProduct)

			protected.Get("/cart", s.handleGetCart)
			protected.Post("/cart", s.handleAddToCart)
			protected.Put("/cart", s.handleUpdateCart)
			protected.Delete("/cart", s.handleRemoveFromCart)
			protected.Post("/cart/clear", s.handleClearCart)

			protected.Get("/orders", s.handleListOrders)
			protected.Post("/orders", s.handlePlaceOrder)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *Server) signUserToken(userID, email string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.SessionTTL)
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		sub, err := parsed.Claims.GetSubject()
		if err != nil || sub == "" {
			writeError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		// Tokens outlive a restarted in-memory store.
		if _, err := s.store.UserByID(r.Context(), sub); err != nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyUserID, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyUserID).(string)
	return id
}

// writeStoreError maps store sentinels onto status codes. Anything else is
// logged and reported as a 500.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, storepkg.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, storepkg.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	default:
		s.logger.Error("store call failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
