package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"davel-library/internal/common/logger"
	"davel-library/internal/common/metrics"
	"davel-library/internal/models"
)

// Metadata keys stored beside the draft fields.
const (
	KeyLastSaved   = "lastSaved"
	KeyCurrentStep = "currentStep"
)

const DefaultKey = "membershipApplication"

var (
	ErrNoDraft      = errors.New("DRAFT_NOT_FOUND")
	ErrCorruptDraft = errors.New("DRAFT_CORRUPT")
	ErrReadFailed   = errors.New("DRAFT_READ_FAILED")
	ErrWriteFailed  = errors.New("DRAFT_WRITE_FAILED")
)

// Snapshot is a restored draft.
type Snapshot struct {
	Draft     *models.Draft
	Step      int
	LastSaved time.Time
	// Restored lists the fields that were decoded from the slot.
	Restored []string
	// Skipped lists stored fields whose values could not be applied.
	Skipped []string
}

// Persistence reads and writes one named draft slot.
type Persistence struct {
	store  Store
	key    string
	now    func() time.Time
	logger logger.Logger
}

type Option func(*Persistence)

// WithClock overrides the timestamp source for lastSaved.
func WithClock(now func() time.Time) Option {
	return func(p *Persistence) { p.now = now }
}

func New(store Store, key string, log logger.Logger, opts ...Option) *Persistence {
	if key == "" {
		key = DefaultKey
	}
	p := &Persistence{store: store, key: key, now: time.Now, logger: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Persistence) Key() string {
	return p.key
}

// Save overwrites the slot with every draft field plus lastSaved and
// currentStep. It returns the timestamp written.
func (p *Persistence) Save(ctx context.Context, d *models.Draft, step int) (time.Time, error) {
	savedAt := p.now().UTC().Truncate(time.Second)

	values := d.Values()
	values[KeyLastSaved] = savedAt.Format(time.RFC3339)
	values[KeyCurrentStep] = step

	data, err := json.Marshal(values)
	if err != nil {
		metrics.WizardDraftOperations.WithLabelValues("save", metrics.ResultFailure).Inc()
		return time.Time{}, fmt.Errorf("%w: encode: %v", ErrWriteFailed, err)
	}

	if err := p.store.Set(ctx, p.key, string(data)); err != nil {
		metrics.WizardDraftOperations.WithLabelValues("save", metrics.ResultFailure).Inc()
		p.logger.Error("Failed to save draft", map[string]interface{}{
			"key":   p.key,
			"error": err.Error(),
		})
		return time.Time{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	metrics.WizardDraftOperations.WithLabelValues("save", metrics.ResultSuccess).Inc()
	p.logger.Debug("Draft saved", map[string]interface{}{
		"key":  p.key,
		"step": step,
	})
	return savedAt, nil
}

// Load restores the slot onto a copy of base. Fields are decoded one at a
// time; unknown keys are ignored and values of the wrong type are skipped,
// so an older or newer draft shape restores partially. The step falls back
// to 1 when it is missing or out of range.
func (p *Persistence) Load(ctx context.Context, base *models.Draft) (*Snapshot, error) {
	raw, err := p.store.Get(ctx, p.key)
	if errors.Is(err, ErrNotFound) {
		metrics.WizardDraftOperations.WithLabelValues("load", "absent").Inc()
		return nil, ErrNoDraft
	}
	if err != nil {
		metrics.WizardDraftOperations.WithLabelValues("load", metrics.ResultFailure).Inc()
		p.logger.Error("Failed to read draft", map[string]interface{}{
			"key":   p.key,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	var stored map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &stored); err != nil || stored == nil {
		metrics.WizardDraftOperations.WithLabelValues("load", metrics.ResultFailure).Inc()
		p.logger.Warn("Stored draft is malformed", map[string]interface{}{
			"key": p.key,
		})
		return nil, fmt.Errorf("%w: slot %s is not a JSON object", ErrCorruptDraft, p.key)
	}

	snap := &Snapshot{Draft: base.Clone(), Step: 1}

	for _, field := range models.DraftFields {
		value, ok := stored[field]
		if !ok {
			continue
		}
		if err := snap.Draft.Apply(field, value); err != nil {
			snap.Skipped = append(snap.Skipped, field)
			continue
		}
		snap.Restored = append(snap.Restored, field)
	}

	if v, ok := stored[KeyCurrentStep]; ok {
		var step int
		if err := json.Unmarshal(v, &step); err == nil && step >= 1 && step <= 6 {
			snap.Step = step
		}
	}
	if v, ok := stored[KeyLastSaved]; ok {
		var ts string
		if err := json.Unmarshal(v, &ts); err == nil {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				snap.LastSaved = parsed
			}
		}
	}

	metrics.WizardDraftOperations.WithLabelValues("load", metrics.ResultSuccess).Inc()
	if len(snap.Skipped) > 0 {
		p.logger.Warn("Draft restored partially", map[string]interface{}{
			"key":     p.key,
			"skipped": snap.Skipped,
		})
	}
	return snap, nil
}

// Clear removes the slot. Clearing an absent slot is not an error.
func (p *Persistence) Clear(ctx context.Context) error {
	if err := p.store.Delete(ctx, p.key); err != nil {
		metrics.WizardDraftOperations.WithLabelValues("clear", metrics.ResultFailure).Inc()
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	metrics.WizardDraftOperations.WithLabelValues("clear", metrics.ResultSuccess).Inc()
	return nil
}
