// internal/workers/membership/send-membership-confirmation/handler.go
package sendmembershipconfirmation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	awsclients "davel-library/internal/common/aws"
	apperrors "davel-library/internal/common/errors"
	"davel-library/internal/common/logger"
	"davel-library/internal/common/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-membership-confirmation"
)

const (
	emailSubject = "Your library membership application"
	emailBody    = "Hello %s,\n\nThank you for applying for a library membership. " +
		"Your application %s has been received and is being reviewed. " +
		"We will email you when your library card is ready.\n\nThe Library Team"
	smsBody = "Library: application %s received. Check your email for next steps."
)

type Handler struct {
	config       *Config
	db           *sql.DB
	logger       logger.Logger
	sesClient    awsclients.SESService
	snsClient    awsclients.SNSService
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, db *sql.DB, clients *awsclients.Clients, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		logger:       log,
		sesClient:    clients.SES,
		snsClient:    clients.SNS,
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

	a, err := h.getApplicant(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	output := &Output{
		NotificationID: uuid.New().String(),
		Status:         StatusDisabled,
		Channels:       []string{},
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	}

	if h.config.EmailEnabled && a.Email != "" {
		body := fmt.Sprintf(emailBody, a.FirstName, input.ApplicationID)
		if err := h.sendEmail(ctx, a.Email, emailSubject, body); err != nil {
			h.logger.Error("email send failed", map[string]interface{}{
				"error":         err,
				"applicationId": input.ApplicationID,
			})
			return nil, apperrors.NewNotificationSendFailedError(ChannelEmail, err)
		}
		output.Channels = append(output.Channels, ChannelEmail)
	}

	// SMS is a courtesy copy; the email is what the applicant was promised.
	if h.config.SMSEnabled && a.Phone != "" {
		if err := h.sendSMS(ctx, a.Phone, fmt.Sprintf(smsBody, input.ApplicationID)); err != nil {
			h.logger.Warn("SMS send failed", map[string]interface{}{
				"error":         err,
				"applicationId": input.ApplicationID,
			})
			if len(output.Channels) == 0 {
				output.Status = StatusFailed
			}
		} else {
			output.Channels = append(output.Channels, ChannelSMS)
		}
	}

	if len(output.Channels) > 0 {
		output.Status = StatusSent
	}
	return output, nil
}

func (h *Handler) getApplicant(ctx context.Context, applicationID string) (*applicant, error) {
	const query = `SELECT first_name, email, phone FROM membership_applications WHERE id = $1`

	var a applicant
	err := h.db.QueryRowContext(ctx, query, applicationID).Scan(&a.FirstName, &a.Email, &a.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("applicant_lookup", err)
	}
	return &a, nil
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) sendSMS(ctx context.Context, to, message string) error {
	_, err := h.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
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
