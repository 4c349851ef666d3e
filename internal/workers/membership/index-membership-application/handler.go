// internal/workers/membership/index-membership-application/handler.go
package indexmembershipapplication

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "davel-library/internal/common/errors"
	"davel-library/internal/common/logger"
	"davel-library/internal/common/metrics"
	"davel-library/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

const (
	TaskType = "index-membership-application"
)

type Handler struct {
	config       *Config
	db           *sql.DB
	es           *elasticsearch.Client
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, db *sql.DB, es *elasticsearch.Client, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		es:           es,
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

	doc, err := h.loadDocument(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}
	indexedAt := time.Now().UTC()
	doc.IndexedAt = indexedAt.Format(time.RFC3339)

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal search document: %w", err)
	}

	res, err := h.es.Index(
		h.config.IndexName,
		bytes.NewReader(body),
		h.es.Index.WithContext(ctx),
		h.es.Index.WithDocumentID(input.ApplicationID),
	)
	if err != nil {
		return nil, apperrors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewIndexFailedError(h.config.IndexName, errors.New(res.String()))
	}

	var ir indexResponse
	if err := json.NewDecoder(res.Body).Decode(&ir); err != nil {
		h.logger.Warn("unreadable index response", map[string]interface{}{"error": err})
	}

	h.logger.Info("application indexed", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"indexName":     h.config.IndexName,
		"result":        ir.Result,
	})

	return &Output{
		ApplicationID: input.ApplicationID,
		IndexName:     h.config.IndexName,
		Result:        ir.Result,
		IndexedAt:     doc.IndexedAt,
	}, nil
}

func (h *Handler) loadDocument(ctx context.Context, applicationID string) (*SearchDocument, error) {
	var (
		status    string
		fee       int
		raw       []byte
		createdAt time.Time
	)
	err := h.db.QueryRowContext(ctx, `
		SELECT status, application_fee, payload, created_at
		FROM membership_applications
		WHERE id = $1`, applicationID,
	).Scan(&status, &fee, &raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("application_lookup", err)
	}

	var p models.ApplicationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("stored payload is not valid JSON: %v", err))
	}

	genres := p.PreferredGenres
	if genres == nil {
		genres = []string{}
	}
	return &SearchDocument{
		ApplicationID:       applicationID,
		FullName:            p.FirstName + " " + p.LastName,
		Email:               p.Email,
		City:                p.City,
		Country:             p.Country,
		PreferredGenres:     genres,
		ReadingFrequency:    string(p.ReadingFrequency),
		AccessibilityNeeds:  p.AccessibilityNeeds,
		SubscribeNewsletter: p.SubscribeNewsletter,
		ApplicationFee:      fee,
		Status:              status,
		CreatedAt:           createdAt.UTC().Format(time.RFC3339),
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
