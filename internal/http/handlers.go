package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glebk/skillswap/internal/domain"
	"github.com/glebk/skillswap/internal/service"
)

// Accounts

type accountResponse struct {
	UserID         string         `json:"user_id"`
	Available      domain.Credits `json:"available"`
	Held           domain.Credits `json:"held"`
	Total          domain.Credits `json:"total"`
	TelegramLinked bool           `json:"telegram_linked"`
}

func mapAccount(account *domain.Account) accountResponse {
	return accountResponse{
		UserID:         account.UserID,
		Available:      account.Available,
		Held:           account.Held,
		Total:          account.Total(),
		TelegramLinked: account.TelegramChatID != 0,
	}
}

type transactionResponse struct {
	ID         string                 `json:"id"`
	Type       domain.TransactionType `json:"type"`
	SessionID  string                 `json:"session_id,omitempty"`
	FromUserID string                 `json:"from_user_id,omitempty"`
	ToUserID   string                 `json:"to_user_id,omitempty"`
	Amount     domain.Credits         `json:"amount"`
	CreatedAt  time.Time              `json:"created_at"`
}

// linkTelegramRequest carries the code the bot hands out on /start
type linkTelegramRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	account, created, err := s.accounts.OpenAccount(r.Context(), claims.Subject)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, mapAccount(account))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	account, err := s.accounts.Balance(r.Context(), claims.Subject)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(account))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, string(domain.CodeInvalidInput), "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	txs, err := s.accounts.History(r.Context(), claims.Subject, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, transactionResponse{
			ID:         tx.ID,
			Type:       tx.Type,
			SessionID:  tx.SessionID,
			FromUserID: tx.FromUserID,
			ToUserID:   tx.ToUserID,
			Amount:     tx.Amount,
			CreatedAt:  tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req linkTelegramRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w, err)
		return
	}
	if err := s.accounts.LinkTelegram(r.Context(), claims.Subject, req.Code); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sessions

type sessionResponse struct {
	ID                string               `json:"id"`
	TeacherID         string               `json:"teacher_id"`
	StudentID         string               `json:"student_id"`
	SkillReference    string               `json:"skill_reference"`
	DurationHours     float64              `json:"duration_hours"`
	CreditAmount      domain.Credits       `json:"credit_amount"`
	Mode              domain.Mode          `json:"mode"`
	ScheduledAt       *time.Time           `json:"scheduled_at,omitempty"`
	Status            domain.SessionStatus `json:"status"`
	TeacherCheckedIn  bool                 `json:"teacher_checked_in"`
	StudentCheckedIn  bool                 `json:"student_checked_in"`
	TeacherConfirmed  bool                 `json:"teacher_confirmed"`
	StudentConfirmed  bool                 `json:"student_confirmed"`
	StartedAt         *time.Time           `json:"started_at,omitempty"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
	CreditHeld        bool                 `json:"credit_held"`
	RejectionReason   string               `json:"rejection_reason,omitempty"`
	CancelReason      string               `json:"cancel_reason,omitempty"`
	CancelledBy       string               `json:"cancelled_by,omitempty"`
	DisputeReason     string               `json:"dispute_reason,omitempty"`
	DisputeOpenedBy   string               `json:"dispute_opened_by,omitempty"`
	DisputeOpenedAt   *time.Time           `json:"dispute_opened_at,omitempty"`
	DisputeResolution domain.Resolution    `json:"dispute_resolution,omitempty"`
	DisputeResolvedBy string               `json:"dispute_resolved_by,omitempty"`
	DisputeResolvedAt *time.Time           `json:"dispute_resolved_at,omitempty"`
	Version           int64                `json:"version"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func mapSession(session *domain.Session) sessionResponse {
	return sessionResponse{
		ID:                session.ID,
		TeacherID:         session.TeacherID,
		StudentID:         session.StudentID,
		SkillReference:    session.SkillReference,
		DurationHours:     session.DurationHours,
		CreditAmount:      session.CreditAmount,
		Mode:              session.Mode,
		ScheduledAt:       session.ScheduledAt,
		Status:            session.Status,
		TeacherCheckedIn:  session.TeacherCheckedIn,
		StudentCheckedIn:  session.StudentCheckedIn,
		TeacherConfirmed:  session.TeacherConfirmed,
		StudentConfirmed:  session.StudentConfirmed,
		StartedAt:         session.StartedAt,
		CompletedAt:       session.CompletedAt,
		CreditHeld:        session.CreditHeld,
		RejectionReason:   session.RejectionReason,
		CancelReason:      session.CancelReason,
		CancelledBy:       session.CancelledBy,
		DisputeReason:     session.DisputeReason,
		DisputeOpenedBy:   session.DisputeOpenedBy,
		DisputeOpenedAt:   session.DisputeOpenedAt,
		DisputeResolution: session.DisputeResolution,
		DisputeResolvedBy: session.DisputeResolvedBy,
		DisputeResolvedAt: session.DisputeResolvedAt,
		Version:           session.Version,
		CreatedAt:         session.CreatedAt,
		UpdatedAt:         session.UpdatedAt,
	}
}

type progressResponse struct {
	SessionID      string               `json:"session_id"`
	Status         domain.SessionStatus `json:"status"`
	Started        bool                 `json:"started"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
	PlannedSeconds float64              `json:"planned_seconds"`
	Percent        float64              `json:"percent"`
	Overtime       bool                 `json:"overtime"`
	OvertimeBy     float64              `json:"overtime_seconds"`
}

type bookSessionRequest struct {
	TeacherID      string         `json:"teacher_id"`
	SkillReference string         `json:"skill_reference"`
	DurationHours  float64        `json:"duration_hours"`
	CreditAmount   domain.Credits `json:"credit_amount"`
	Mode           domain.Mode    `json:"mode"`
	ScheduledAt    *time.Time     `json:"scheduled_at"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Resolution domain.Resolution `json:"resolution"`
}

func (s *Server) handleBookSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req bookSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w, err)
		return
	}

	session, err := s.sessions.BookSession(r.Context(), domain.Terms{
		TeacherID:      req.TeacherID,
		StudentID:      claims.Subject,
		SkillReference: req.SkillReference,
		DurationHours:  req.DurationHours,
		CreditAmount:   req.CreditAmount,
		Mode:           req.Mode,
		ScheduledAt:    req.ScheduledAt,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapSession(session))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	sessions, err := s.sessions.ListForUser(r.Context(), claims.Subject)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, mapSession(session))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionId")

	var (
		session *domain.Session
		err     error
	)
	if claims.IsAdmin() {
		session, err = s.sessions.Get(r.Context(), sessionID)
	} else {
		session, err = s.sessions.GetForActor(r.Context(), sessionID, claims.Subject)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSession(session))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	progress, err := s.sessions.Progress(r.Context(), chi.URLParam(r, "sessionId"), claims.Subject)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProgress(progress))
}

func mapProgress(p *service.SessionProgress) progressResponse {
	return progressResponse{
		SessionID:      p.Session.ID,
		Status:         p.Session.Status,
		Started:        p.Progress.Started,
		ElapsedSeconds: p.Progress.Elapsed.Seconds(),
		PlannedSeconds: p.Progress.Planned.Seconds(),
		Percent:        p.Progress.Percent,
		Overtime:       p.Progress.Overtime,
		OvertimeBy:     p.Progress.OvertimeBy.Seconds(),
	}
}

type sessionAction func(r *http.Request, sessionID, actorID string) (*domain.Session, error)

// runAction executes a participant action on the session named in the URL.
func (s *Server) runAction(action sessionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		session, err := action(r, chi.URLParam(r, "sessionId"), claims.Subject)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSession(session))
	}
}

// withReason reads the optional {"reason": ...} body before running fn.
func (s *Server) withReason(fn func(r *http.Request, sessionID, actorID, reason string) (*domain.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		if err := decodeOptionalJSON(r, &req); err != nil {
			writeInvalidRequest(w, err)
			return
		}
		s.runAction(func(r *http.Request, sessionID, actorID string) (*domain.Session, error) {
			return fn(r, sessionID, actorID, req.Reason)
		})(w, r)
	}
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.runAction(func(r *http.Request, sessionID, actorID string) (*domain.Session, error) {
		return s.sessions.Approve(r.Context(), sessionID, actorID)
	})(w, r)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	s.runAction(func(r *http.Request, sessionID, actorID string) (*domain.Session, error) {
		return s.sessions.CheckIn(r.Context(), sessionID, actorID)
	})(w, r)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.runAction(func(r *http.Request, sessionID, actorID string) (*domain.Session, error) {
		return s.sessions.ConfirmCompletion(r.Context(), sessionID, actorID)
	})(w, r)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.withReason(func(r *http.Request, sessionID, actorID, reason string) (*domain.Session, error) {
		return s.sessions.Reject(r.Context(), sessionID, actorID, reason)
	})(w, r)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.withReason(func(r *http.Request, sessionID, actorID, reason string) (*domain.Session, error) {
		return s.sessions.Cancel(r.Context(), sessionID, actorID, reason)
	})(w, r)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	s.withReason(func(r *http.Request, sessionID, actorID, reason string) (*domain.Session, error) {
		return s.sessions.Dispute(r.Context(), sessionID, actorID, reason)
	})(w, r)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w, err)
		return
	}
	session, err := s.sessions.AdminResolve(r.Context(), chi.URLParam(r, "sessionId"), claims.Subject, req.Resolution)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSession(session))
}
