// Package wizard composes the membership application form: field state,
// step navigation, draft persistence and submission.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "davel-library/internal/common/errors"
	"davel-library/internal/common/metrics"
	"davel-library/internal/membership/documents"
	"davel-library/internal/membership/draft"
	"davel-library/internal/membership/schema"
	"davel-library/internal/membership/steps"
	"davel-library/internal/membership/submission"
	"davel-library/internal/models"
)

var (
	ErrSubmitInProgress = errors.New("SUBMIT_IN_PROGRESS")
	ErrReadOnlyField    = errors.New("READ_ONLY_FIELD")
)

// Wizard holds one applicant's in-progress application. Methods are safe
// for concurrent use; Submit releases the lock while the request is in
// flight and rejects mutations until it returns.
type Wizard struct {
	mu sync.Mutex

	opts        Options
	draft       *models.Draft
	attachments *models.Attachments
	steps       *steps.Controller
	errors      map[string]schema.FieldError
	submitting  bool
	lastSaved   time.Time
}

type formValidator struct {
	w *Wizard
}

func (v formValidator) ValidateFields(fields ...string) []schema.FieldError {
	return schema.ValidateFields(v.w.draft, v.w.attachments, fields...)
}

func (v formValidator) HasRequiredDocuments() bool {
	return documents.HasRequiredDocuments(v.w.attachments)
}

// New creates a wizard and restores the saved draft if one exists. A
// missing draft is silent; an unreadable one shows a destructive toast and
// leaves the form empty at step 1.
func New(ctx context.Context, opts Options) (*Wizard, error) {
	if opts.Persistence == nil {
		return nil, fmt.Errorf("wizard: persistence is required")
	}
	if opts.Submitter == nil {
		return nil, fmt.Errorf("wizard: submitter is required")
	}
	opts.applyDefaults()

	w := &Wizard{
		opts:        opts,
		draft:       models.NewDraft(opts.Fee()),
		attachments: &models.Attachments{},
		errors:      make(map[string]schema.FieldError),
	}
	w.steps = steps.NewController(formValidator{w: w})

	snap, err := opts.Persistence.Load(ctx, w.draft)
	switch {
	case err == nil:
		w.restore(snap)
		w.opts.Logger.Info("Draft restored", map[string]interface{}{
			"key":      opts.Persistence.Key(),
			"step":     snap.Step,
			"restored": len(snap.Restored),
		})
	case errors.Is(err, draft.ErrNoDraft):
	default:
		w.opts.Notifier.Notify(toastLoadFailed)
	}
	return w, nil
}

func (w *Wizard) restore(snap *draft.Snapshot) {
	w.draft = snap.Draft
	w.attachments = &models.Attachments{}
	w.errors = make(map[string]schema.FieldError)
	w.lastSaved = snap.LastSaved
	w.steps.SetCurrent(snap.Step)
}

// SetField decodes raw onto the named draft field. A field that currently
// shows an inline error is re-validated.
func (w *Wizard) SetField(field string, raw json.RawMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmitInProgress
	}
	if err := applyField(w.draft, field, raw); err != nil {
		return err
	}
	w.revalidate(field)
	return nil
}

// FieldUpdateError names the field that stopped a batch update.
type FieldUpdateError struct {
	Field string
	Err   error
}

func (e *FieldUpdateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldUpdateError) Unwrap() error {
	return e.Err
}

// SetFields applies several field values at once, in form order. Either
// every value is applied or none is.
func (w *Wizard) SetFields(fields map[string]json.RawMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmitInProgress
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		if ri, rj := fieldRank(names[i]), fieldRank(names[j]); ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})

	next := w.draft.Clone()
	for _, name := range names {
		if err := applyField(next, name, fields[name]); err != nil {
			return &FieldUpdateError{Field: name, Err: err}
		}
	}
	w.draft = next
	for _, name := range names {
		w.revalidate(name)
	}
	return nil
}

func applyField(d *models.Draft, field string, raw json.RawMessage) error {
	if field == models.FieldApplicationFee {
		return fmt.Errorf("%w: %s", ErrReadOnlyField, field)
	}
	if err := d.Apply(field, raw); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	return nil
}

func fieldRank(name string) int {
	for i, f := range models.DraftFields {
		if f == name {
			return i
		}
	}
	return len(models.DraftFields)
}

// Set assigns a Go value to a field.
func (w *Wizard) Set(field string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	return w.SetField(field, raw)
}

// Attach replaces the file refs held in slot.
func (w *Wizard) Attach(slot models.Slot, refs ...models.FileRef) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmitInProgress
	}
	if err := w.attachments.Set(slot, refs); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	w.revalidate(string(slot))
	return nil
}

func (w *Wizard) ClearAttachments(slot models.Slot) error {
	return w.Attach(slot)
}

func (w *Wizard) revalidate(field string) {
	if _, shown := w.errors[field]; !shown {
		return
	}
	if fe := schema.ValidateField(w.draft, w.attachments, field); fe != nil {
		w.errors[field] = *fe
	} else {
		delete(w.errors, field)
	}
}

// Advance moves to the next step when the current one validates. Failing
// fields become inline errors.
func (w *Wizard) Advance() (steps.Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return steps.Outcome{}, ErrSubmitInProgress
	}

	current := w.steps.Current()
	out := w.steps.Advance()
	for _, f := range current.Fields() {
		delete(w.errors, f)
	}
	for _, fe := range out.Errors {
		w.errors[fe.Field] = fe
	}

	switch {
	case out.Advanced:
		metrics.WizardStepTransitions.WithLabelValues("forward", metrics.ResultSuccess).Inc()
	case len(out.Errors) > 0:
		metrics.WizardStepTransitions.WithLabelValues("forward", metrics.ResultRejected).Inc()
	}
	return out, nil
}

// Retreat moves back one step. No validation runs.
func (w *Wizard) Retreat() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return false, ErrSubmitInProgress
	}
	moved := w.steps.Retreat()
	if moved {
		metrics.WizardStepTransitions.WithLabelValues("back", metrics.ResultSuccess).Inc()
	}
	return moved, nil
}

// SaveProgress writes the draft and current step to the slot.
func (w *Wizard) SaveProgress(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmitInProgress
	}

	savedAt, err := w.opts.Persistence.Save(ctx, w.draft, int(w.steps.Current()))
	if err != nil {
		w.opts.Notifier.Notify(toastSaveFailed)
		return apperrors.NewDraftWriteFailedError(err)
	}
	w.lastSaved = savedAt
	w.opts.Notifier.Notify(toastSaved)
	return nil
}

// LoadProgress replaces the form with the saved draft. On any failure the
// form is left as it was.
func (w *Wizard) LoadProgress(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submitting {
		return ErrSubmitInProgress
	}

	snap, err := w.opts.Persistence.Load(ctx, models.NewDraft(w.draft.ApplicationFee))
	switch {
	case err == nil:
		w.restore(snap)
		w.opts.Notifier.Notify(toastLoaded)
		return nil
	case errors.Is(err, draft.ErrNoDraft):
		w.opts.Notifier.Notify(toastNothingSaved)
		return err
	default:
		w.opts.Notifier.Notify(toastLoadFailed)
		return apperrors.NewDraftReadFailedError(err)
	}
}

// Submit re-validates the whole form and sends it. Validation failures
// become inline errors and no request is made. On success the slot is
// cleared and the form resets; on failure nothing changes.
func (w *Wizard) Submit(ctx context.Context) (*submission.Result, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	if errs := submission.Check(w.draft, w.attachments); len(errs) > 0 {
		w.errors = make(map[string]schema.FieldError, len(errs))
		for _, fe := range errs {
			w.errors[fe.Field] = fe
		}
		w.mu.Unlock()
		metrics.WizardSubmissions.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, &submission.ValidationFailedError{Errors: errs}
	}
	w.submitting = true
	d, a := w.draft.Clone(), w.attachments.Clone()
	w.mu.Unlock()

	result, err := w.opts.Submitter.Submit(ctx, d, a)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if err != nil {
		var vErr *submission.ValidationFailedError
		if errors.As(err, &vErr) {
			for _, fe := range vErr.Errors {
				w.errors[fe.Field] = fe
			}
			metrics.WizardSubmissions.WithLabelValues(metrics.ResultRejected).Inc()
			return nil, err
		}
		metrics.WizardSubmissions.WithLabelValues(metrics.ResultFailure).Inc()
		w.opts.Notifier.Notify(toastSubmitFailed(submission.UserMessage(err)))
		return nil, err
	}

	if err := w.opts.Persistence.Clear(ctx); err != nil {
		w.opts.Logger.Warn("Failed to clear submitted draft", map[string]interface{}{
			"key":   w.opts.Persistence.Key(),
			"error": err.Error(),
		})
	}

	w.draft = models.NewDraft(w.opts.Fee())
	w.attachments = &models.Attachments{}
	w.errors = make(map[string]schema.FieldError)
	w.lastSaved = time.Time{}
	w.steps.Reset()

	metrics.WizardSubmissions.WithLabelValues(metrics.ResultSuccess).Inc()
	w.opts.Logger.Info("Membership application submitted", map[string]interface{}{
		"application_id": result.ApplicationID,
		"status_code":    result.StatusCode,
	})

	notifier := w.opts.Notifier
	notifier.Notify(toastSubmitted)
	w.opts.Schedule(w.opts.ConfirmationDelay, func() {
		notifier.Notify(toastCheckEmail)
	})
	return result, nil
}

// Draft returns a copy of the current form values.
func (w *Wizard) Draft() *models.Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Clone()
}

func (w *Wizard) CurrentStep() steps.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps.Current()
}
