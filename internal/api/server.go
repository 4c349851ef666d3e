// Package api exposes the membership wizard and the application intake
// endpoint over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	apperrors "davel-library/internal/common/errors"
	"davel-library/internal/common/logger"
	"davel-library/internal/common/observability"
	"davel-library/internal/membership/draft"
	"davel-library/internal/membership/intake"
	"davel-library/internal/membership/schema"
	"davel-library/internal/membership/submission"
	"davel-library/internal/membership/wizard"
	"davel-library/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionHeader carries the wizard session id on requests and responses.
const SessionHeader = "X-Session-ID"

const maxBodyBytes = 1 << 20

// Intake is the application endpoint backend. *intake.Service satisfies it.
type Intake interface {
	Create(ctx context.Context, raw []byte) (*intake.Output, error)
	Get(ctx context.Context, id string) (*models.Application, error)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	router   chi.Router
	sessions *SessionManager
	intake   Intake
	checks   map[string]ReadinessCheck
	logger   logger.Logger
}

// NewServer builds the router. intake may be nil when this process only
// serves the wizard.
func NewServer(sessions *SessionManager, in Intake, checks map[string]ReadinessCheck, obs *observability.Observability, log logger.Logger) *Server {
	s := &Server{
		sessions: sessions,
		intake:   in,
		checks:   checks,
		logger:   log,
	}

	r := chi.NewRouter()
	r.Use(RequestLogging(log))
	r.Use(RequestMetrics(obs))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/wizard/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.withSession(s.handleView))
			r.Patch("/fields", s.withSession(s.handleSetFields))
			r.Put("/attachments/{slot}", s.withSession(s.handleAttach))
			r.Delete("/attachments/{slot}", s.withSession(s.handleClearAttachments))
			r.Post("/next", s.withSession(s.handleNext))
			r.Post("/back", s.withSession(s.handleBack))
			r.Post("/save", s.withSession(s.handleSave))
			r.Post("/load", s.withSession(s.handleLoad))
			r.Post("/submit", s.withSession(s.handleSubmit))
			r.Get("/toasts", s.withSession(s.handleToasts))
		})
	})

	if in != nil {
		r.Post("/api/membership/applications", s.handleIntakeCreate)
		r.Get("/api/membership/applications/{applicationID}", s.handleIntakeGet)
	}

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ==========================
// Helpers
// ==========================

type errorResponse struct {
	Error  string              `json:"error"`
	Field  string              `json:"field,omitempty"`
	Errors []schema.FieldError `json:"errors,omitempty"`
	View   *wizard.View        `json:"view,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
		if errors.Is(err, ErrInvalidSessionID) {
			writeError(w, http.StatusNotFound, "Unknown session")
			return
		}
		if err != nil {
			s.logger.Error("failed to open wizard session", map[string]interface{}{"error": err.Error()})
			writeError(w, http.StatusInternalServerError, "Could not open application session")
			return
		}
		w.Header().Set(SessionHeader, sess.id)
		h(w, r, sess)
	}
}

type sessionResponse struct {
	SessionID string      `json:"sessionId"`
	View      wizard.View `json:"view"`
}

// ==========================
// Health
// ==========================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	writeJSON(w, status, map[string]interface{}{"ready": status == http.StatusOK, "checks": results})
}

// ==========================
// Wizard
// ==========================

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var (
		sess *session
		err  error
	)
	if id := r.Header.Get(SessionHeader); id != "" {
		sess, err = s.sessions.Get(r.Context(), id)
	} else {
		sess, err = s.sessions.Create(r.Context())
	}
	if errors.Is(err, ErrInvalidSessionID) {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}
	if err != nil {
		s.logger.Error("failed to create wizard session", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Could not open application session")
		return
	}
	w.Header().Set(SessionHeader, sess.id)
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: sess.id, View: sess.wizard.View()})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, sess *session) {
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.id, View: sess.wizard.View()})
}

// handleSetFields applies a JSON object of field values. A value that cannot
// be applied rejects the whole object.
func (s *Server) handleSetFields(w http.ResponseWriter, r *http.Request, sess *session) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}

	if err := sess.wizard.SetFields(fields); err != nil {
		var fErr *wizard.FieldUpdateError
		field := ""
		if errors.As(err, &fErr) {
			field = fErr.Field
		}
		s.writeWizardError(w, err, field)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.id, View: sess.wizard.View()})
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request, sess *session) {
	slot, err := models.ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown document slot")
		return
	}
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	var refs []models.FileRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON array of file references")
		return
	}
	if err := sess.wizard.Attach(slot, refs...); err != nil {
		s.writeWizardError(w, err, string(slot))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.id, View: sess.wizard.View()})
}

func (s *Server) handleClearAttachments(w http.ResponseWriter, r *http.Request, sess *session) {
	slot, err := models.ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown document slot")
		return
	}
	if err := sess.wizard.ClearAttachments(slot); err != nil {
		s.writeWizardError(w, err, string(slot))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.id, View: sess.wizard.View()})
}

type advanceResponse struct {
	Advanced     bool                `json:"advanced"`
	FirstInvalid string              `json:"firstInvalid,omitempty"`
	Errors       []schema.FieldError `json:"errors,omitempty"`
	View         wizard.View         `json:"view"`
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request, sess *session) {
	out, err := sess.wizard.Advance()
	if err != nil {
		s.writeWizardError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{
		Advanced:     out.Advanced,
		FirstInvalid: out.FirstInvalid(),
		Errors:       out.Errors,
		View:         sess.wizard.View(),
	})
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request, sess *session) {
	if _, err := sess.wizard.Retreat(); err != nil {
		s.writeWizardError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.id, View: sess.wizard.View()})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, sess *session) {
	if err := sess.wizard.SaveProgress(r.Context()); err != nil {
		s.writeWizardError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.id, View: sess.wizard.View()})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request, sess *session) {
	if err := sess.wizard.LoadProgress(r.Context()); err != nil {
		s.writeWizardError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.id, View: sess.wizard.View()})
}

type submitResponse struct {
	ApplicationID string      `json:"applicationId,omitempty"`
	Status        string      `json:"status,omitempty"`
	View          wizard.View `json:"view"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, sess *session) {
	result, err := sess.wizard.Submit(r.Context())
	if err != nil {
		s.writeWizardError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		ApplicationID: result.ApplicationID,
		Status:        result.Status,
		View:          sess.wizard.View(),
	})
}

func (s *Server) handleToasts(w http.ResponseWriter, r *http.Request, sess *session) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"toasts": sess.toasts.Drain()})
}

func (s *Server) writeWizardError(w http.ResponseWriter, err error, field string) {
	var vErr *submission.ValidationFailedError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "Please correct the highlighted fields",
			Field:  vErr.FirstInvalid(),
			Errors: vErr.Errors,
		})
		return
	case errors.Is(err, wizard.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, "Submission already in progress")
		return
	case errors.Is(err, wizard.ErrReadOnlyField):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Field cannot be changed", Field: field})
		return
	case errors.Is(err, draft.ErrNoDraft):
		writeError(w, http.StatusNotFound, "No saved application")
		return
	}

	stdErr, ok := apperrors.AsStandardError(err)
	if !ok {
		s.logger.Error("unexpected wizard error", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	switch stdErr.Code {
	case apperrors.ErrCodeInvalidInput:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: stdErr.Details, Field: field})
	case apperrors.ErrCodeSubmissionFailed:
		writeError(w, http.StatusBadGateway, stdErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, stdErr.Message)
	}
}

// ==========================
// Intake
// ==========================

func (s *Server) handleIntakeCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	out, err := s.intake.Create(r.Context(), raw)
	if err != nil {
		s.writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleIntakeGet(w http.ResponseWriter, r *http.Request) {
	app, err := s.intake.Get(r.Context(), chi.URLParam(r, "applicationID"))
	if err != nil {
		s.writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) writeIntakeError(w http.ResponseWriter, err error) {
	stdErr, ok := apperrors.AsStandardError(err)
	if !ok {
		s.logger.Error("unexpected intake error", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	switch stdErr.Code {
	case apperrors.ErrCodeApplicationValidationFailed, apperrors.ErrCodeInvalidInput:
		writeError(w, http.StatusBadRequest, stdErr.Details)
	case apperrors.ErrCodeDuplicateApplication:
		writeError(w, http.StatusBadRequest, stdErr.Message)
	case apperrors.ErrCodeApplicationNotFound:
		writeError(w, http.StatusNotFound, stdErr.Message)
	default:
		s.logger.Error("intake request failed", map[string]interface{}{
			"code":    string(stdErr.Code),
			"details": stdErr.Details,
		})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
