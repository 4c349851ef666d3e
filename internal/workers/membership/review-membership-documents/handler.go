// internal/workers/membership/review-membership-documents/handler.go
package reviewmembershipdocuments

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "davel-library/internal/common/errors"
	"davel-library/internal/common/logger"
	"davel-library/internal/common/metrics"
	"davel-library/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "review-membership-documents"
)

type Handler struct {
	config       *Config
	db           *sql.DB
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if _, err := uuid.Parse(input.ApplicationID); err != nil {
		return nil, apperrors.NewInvalidInputError("applicationId must be a UUID")
	}

	status := models.StatusDocumentsMissing
	if input.DocumentsUploaded {
		status = models.StatusDocumentsPending
	}
	reviewedAt := time.Now().UTC()

	res, err := h.db.ExecContext(ctx, `
		UPDATE membership_applications
		SET status = $1, updated_at = $2
		WHERE id = $3`,
		status, reviewedAt, input.ApplicationID,
	)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("status_update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, apperrors.NewApplicationNotFoundError(input.ApplicationID)
	}

	// Audit entry is best-effort.
	details, _ := json.Marshal(map[string]interface{}{
		"status":            status,
		"hasAdditionalDocs": input.HasAdditionalDocs,
	})
	if _, err := h.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"documents_reviewed", "membership_application", input.ApplicationID, details, reviewedAt,
	); err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":         err,
			"applicationId": input.ApplicationID,
		})
	}

	h.logger.Info("documents reviewed", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"status":        status,
	})

	return &Output{
		ApplicationID:     input.ApplicationID,
		Status:            status,
		DocumentsComplete: input.DocumentsUploaded,
		ReviewedAt:        reviewedAt.Format(time.RFC3339),
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
