package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/glebk/skillswap/internal/auth"
	"github.com/glebk/skillswap/internal/config"
	"github.com/glebk/skillswap/internal/domain"
	"github.com/glebk/skillswap/internal/service"
)

type Server struct {
	cfg      *config.Config
	sessions *service.SessionService
	accounts *service.AccountService
	metrics  http.Handler
	log      logrus.FieldLogger
}

func NewServer(cfg *config.Config, sessions *service.SessionService, accounts *service.AccountService, metrics http.Handler, log logrus.FieldLogger) *Server {
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		accounts: accounts,
		metrics:  metrics,
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/accounts", s.handleOpenAccount)
		r.Get("/me/balance", s.handleBalance)
		r.Get("/me/transactions", s.handleTransactions)
		r.Put("/me/telegram", s.handleLinkTelegram)
		r.Get("/me/sessions", s.handleListSessions)

		r.Post("/sessions", s.handleBookSession)
		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Get("/progress", s.handleProgress)
			r.Post("/approve", s.handleApprove)
			r.Post("/reject", s.handleReject)
			r.Post("/check-in", s.handleCheckIn)
			r.Post("/confirm", s.handleConfirm)
			r.Post("/cancel", s.handleCancel)
			r.Post("/dispute", s.handleDispute)
		})

		r.With(s.requireAdmin).Post("/admin/sessions/{sessionId}/resolve", s.handleResolve)
	})

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, string(domain.CodeForbidden), "administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(started).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// Errors

type errorResponse struct {
	Error    string            `json:"error"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeNotParticipant, domain.CodeForbidden, domain.CodeOutOfCheckInWindow:
		return http.StatusForbidden
	case domain.CodeInvalidTransition, domain.CodeInsufficientCredits:
		return http.StatusConflict
	case domain.CodeInvalidSessionTerms, domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeConcurrentModification:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError renders a domain error with its code and metadata.
// Anything else is an internal error and its text is not exposed.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	status := statusFor(derr.Code)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"path": r.URL.Path,
			"code": derr.Code,
		}).Error("request failed")
	}
	writeJSON(w, status, errorResponse{
		Error:    string(derr.Code),
		Message:  derr.Error(),
		Metadata: derr.Metadata,
	})
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, out interface{}) error {
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeInvalidRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "invalid request body: "+err.Error())
}
