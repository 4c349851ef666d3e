// Package submission turns a completed draft into a POST to the membership
// endpoint and interprets the response.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "davel-library/internal/common/errors"
	"davel-library/internal/common/logger"
	"davel-library/internal/membership/documents"
	"davel-library/internal/membership/schema"
	"davel-library/internal/models"
)

// GenericFailureMessage is shown when the server gives no error text.
const GenericFailureMessage = "Failed to submit application. Please try again."

const maxResponseBody = 1 << 20

// Doer sends HTTP requests. *commonhttp.Client and *http.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ValidationFailedError is returned when the draft does not pass the full
// form check. No request is sent.
type ValidationFailedError struct {
	Errors []schema.FieldError
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Error())
	}
	return "application is incomplete: " + strings.Join(msgs, "; ")
}

// FirstInvalid names the first failing field in form order.
func (e *ValidationFailedError) FirstInvalid() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Field
}

// Result describes an accepted submission.
type Result struct {
	StatusCode    int
	ApplicationID string
	Status        string
	SubmittedAt   time.Time
}

type acceptedBody struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
}

type Pipeline struct {
	endpoint string
	client   Doer
	logger   logger.Logger
}

func NewPipeline(endpoint string, client Doer, log logger.Logger) *Pipeline {
	return &Pipeline{endpoint: endpoint, client: client, logger: log}
}

// BuildPayload copies the draft and replaces every document slot with nil
// or the uploaded sentinel.
func BuildPayload(d *models.Draft, a *models.Attachments) models.ApplicationPayload {
	if a == nil {
		a = &models.Attachments{}
	}
	return models.ApplicationPayload{
		Draft:               *d.Clone(),
		IdentityDocument:    documents.Placeholder(a.IdentityDocument),
		ProofOfAddress:      documents.Placeholder(a.ProofOfAddress),
		AdditionalDocuments: documents.Placeholder(a.AdditionalDocuments),
	}
}

// Check re-validates every step and the document gate.
func Check(d *models.Draft, a *models.Attachments) []schema.FieldError {
	errs := schema.ValidateAll(d, a)
	if len(errs) > 0 {
		return errs
	}
	for _, slot := range documents.Missing(a) {
		errs = append(errs, schema.FieldError{
			Field:   string(slot),
			Code:    schema.CodeMinItemsViolation,
			Message: "Required documents are missing",
		})
	}
	return errs
}

// Submit validates the draft and POSTs it once. A rejected or failed call
// returns a *StandardError with code SUBMISSION_FAILED whose Message is safe
// to show the applicant.
func (p *Pipeline) Submit(ctx context.Context, d *models.Draft, a *models.Attachments) (*Result, error) {
	if errs := Check(d, a); len(errs) > 0 {
		return nil, &ValidationFailedError{Errors: errs}
	}

	body, err := json.Marshal(BuildPayload(d, a))
	if err != nil {
		return nil, apperrors.NewSubmissionFailedError(GenericFailureMessage, fmt.Errorf("encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewSubmissionFailedError(GenericFailureMessage, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("Submission request failed", map[string]interface{}{
			"endpoint": p.endpoint,
			"error":    err.Error(),
		})
		return nil, apperrors.NewSubmissionFailedError(GenericFailureMessage, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := GenericFailureMessage
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		p.logger.Warn("Submission rejected", map[string]interface{}{
			"status_code": resp.StatusCode,
			"message":     msg,
		})
		return nil, apperrors.NewSubmissionFailedError(msg, fmt.Errorf("endpoint returned %d", resp.StatusCode)).
			WithMetadata("statusCode", resp.StatusCode)
	}

	result := &Result{StatusCode: resp.StatusCode, SubmittedAt: time.Now().UTC()}
	var ab acceptedBody
	if json.Unmarshal(respBody, &ab) == nil {
		result.ApplicationID = ab.ApplicationID
		result.Status = ab.Status
	}

	p.logger.Info("Application submitted", map[string]interface{}{
		"status_code":    resp.StatusCode,
		"application_id": result.ApplicationID,
		"duration_ms":    time.Since(start).Milliseconds(),
	})
	return result, nil
}

// UserMessage returns the text to show for a Submit error.
func UserMessage(err error) string {
	if stdErr, ok := apperrors.AsStandardError(err); ok && stdErr.Message != "" {
		return stdErr.Message
	}
	return GenericFailureMessage
}
