// Package intake is the membership application endpoint's backend: it
// re-validates submitted payloads, stores them and starts the review
// process.
package intake

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "davel-library/internal/common/errors"
	"davel-library/internal/common/logger"
	"davel-library/internal/common/metrics"
	"davel-library/internal/common/validation"
	"davel-library/internal/membership/schema"
	"davel-library/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// ProcessStarter starts a workflow instance. *camunda.Client satisfies it.
type ProcessStarter interface {
	StartProcess(ctx context.Context, processID string, variables interface{}) (int64, error)
}

type Config struct {
	ProcessID string
}

// Output is the body returned for an accepted application.
type Output struct {
	ApplicationID      string `json:"applicationId"`
	Status             string `json:"status"`
	CreatedAt          string `json:"createdAt"`
	ProcessInstanceKey int64  `json:"processInstanceKey,omitempty"`
}

type Service struct {
	db        *sql.DB
	starter   ProcessStarter
	processID string
	logger    logger.Logger
}

// NewService wires the intake backend. starter may be nil, in which case
// no process is started.
func NewService(cfg Config, db *sql.DB, starter ProcessStarter, log logger.Logger) *Service {
	return &Service{
		db:        db,
		starter:   starter,
		processID: cfg.ProcessID,
		logger:    log.WithFields(map[string]interface{}{"component": "intake"}),
	}
}

// Validate checks raw against the payload schema and decodes it. Errors are
// returned in form order.
func (s *Service) Validate(raw []byte) (*models.ApplicationPayload, []validation.ValidationError, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil || probe == nil {
		return nil, nil, apperrors.NewInvalidInputError("request body must be a JSON object")
	}

	result, err := validation.Validate(schema.PayloadSchema(), json.RawMessage(raw))
	if err != nil {
		return nil, nil, apperrors.NewInvalidInputError(err.Error())
	}
	if !result.Valid {
		errs := append([]validation.ValidationError{}, result.Errors...)
		sort.SliceStable(errs, func(i, j int) bool {
			return schema.FieldOrder(rootField(errs[i].Field)) < schema.FieldOrder(rootField(errs[j].Field))
		})
		return nil, errs, nil
	}

	var payload models.ApplicationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &payload, nil, nil
}

func rootField(field string) string {
	if i := strings.IndexByte(field, '.'); i >= 0 {
		return field[:i]
	}
	return field
}

// Create validates and stores an application. Rejections are returned as
// *StandardError values whose Details or Message can be shown to the
// applicant.
func (s *Service) Create(ctx context.Context, raw []byte) (*Output, error) {
	payload, verrs, err := s.Validate(raw)
	if err != nil {
		metrics.IntakeApplications.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if len(verrs) > 0 {
		metrics.IntakeApplications.WithLabelValues("invalid").Inc()
		first := verrs[0]
		return nil, apperrors.NewApplicationValidationFailedError(fmt.Sprintf("%s: %s", first.Field, first.Message)).
			WithMetadata("errors", verrs)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM membership_applications
			WHERE LOWER(email) = LOWER($1)
		)`, payload.Email).Scan(&exists)
	if err != nil {
		metrics.IntakeApplications.WithLabelValues("error").Inc()
		return nil, apperrors.NewQueryExecutionFailedError("duplicate_check", err)
	}
	if exists {
		metrics.IntakeApplications.WithLabelValues("duplicate").Inc()
		return nil, apperrors.NewDuplicateApplicationError(payload.Email)
	}

	appID := uuid.New().String()
	createdAt := time.Now().UTC().Format(time.RFC3339)

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		metrics.IntakeApplications.WithLabelValues("error").Inc()
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO membership_applications (
			id, email, first_name, last_name, phone,
			application_fee, subscribe_newsletter, payload, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		appID,
		payload.Email,
		payload.FirstName,
		payload.LastName,
		payload.Phone,
		payload.ApplicationFee,
		payload.SubscribeNewsletter,
		payloadJSON,
		models.StatusPending,
		createdAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			metrics.IntakeApplications.WithLabelValues("duplicate").Inc()
			return nil, apperrors.NewDuplicateApplicationError(payload.Email)
		}
		metrics.IntakeApplications.WithLabelValues("error").Inc()
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}

	s.audit(ctx, appID, payload, createdAt)

	out := &Output{
		ApplicationID: appID,
		Status:        models.StatusPending,
		CreatedAt:     createdAt,
	}

	if s.starter != nil && s.processID != "" {
		key, err := s.starter.StartProcess(ctx, s.processID, processVariables(appID, payload))
		if err != nil {
			s.logger.Warn("failed to start membership process", map[string]interface{}{
				"applicationId": appID,
				"processId":     s.processID,
				"error":         err.Error(),
			})
		} else {
			out.ProcessInstanceKey = key
		}
	}

	metrics.IntakeApplications.WithLabelValues("accepted").Inc()
	s.logger.Info("membership application created", map[string]interface{}{
		"applicationId":      appID,
		"processInstanceKey": out.ProcessInstanceKey,
	})
	return out, nil
}

func (s *Service) audit(ctx context.Context, appID string, payload *models.ApplicationPayload, createdAt string) {
	details, err := json.Marshal(map[string]interface{}{
		"email":          payload.Email,
		"applicationFee": payload.ApplicationFee,
		"documents":      payload.IdentityDocument != nil && payload.ProofOfAddress != nil,
	})
	if err != nil {
		details = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"membership_application_created",
		"membership_application",
		appID,
		details,
		createdAt,
	)
	if err != nil {
		s.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":         err.Error(),
			"applicationId": appID,
		})
	}
}

func processVariables(appID string, p *models.ApplicationPayload) map[string]interface{} {
	return map[string]interface{}{
		"applicationId":       appID,
		"email":               p.Email,
		"firstName":           p.FirstName,
		"phone":               p.Phone,
		"subscribeNewsletter": p.SubscribeNewsletter,
		"documentsUploaded":   p.IdentityDocument != nil && p.ProofOfAddress != nil,
		"hasAdditionalDocs":   p.AdditionalDocuments != nil,
	}
}

// Get returns a stored application.
func (s *Service) Get(ctx context.Context, id string) (*models.Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewApplicationNotFoundError(id)
	}

	var (
		app                  models.Application
		payloadJSON          []byte
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, phone, application_fee,
		       status, payload, created_at, updated_at
		FROM membership_applications
		WHERE id = $1`, id).Scan(
		&app.ID, &app.Email, &app.FirstName, &app.LastName, &app.Phone, &app.ApplicationFee,
		&app.Status, &payloadJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewApplicationNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}
	if err := json.Unmarshal(payloadJSON, &app.Payload); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_application", fmt.Errorf("decode payload: %w", err))
	}
	app.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	app.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	return &app, nil
}
