package wizard

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"davel-library/internal/common/logger"
	"davel-library/internal/membership/draft"
	"davel-library/internal/membership/submission"
	"davel-library/internal/models"
)

// Notifier receives user-facing toasts.
type Notifier interface {
	Notify(t models.Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(models.Toast)

func (f NotifierFunc) Notify(t models.Toast) { f(t) }

// Submitter sends a completed application. *submission.Pipeline satisfies it.
type Submitter interface {
	Submit(ctx context.Context, d *models.Draft, a *models.Attachments) (*submission.Result, error)
}

// FeeGenerator produces the application fee for a new draft.
type FeeGenerator func() int

// RandomFee draws uniformly from [lo, hi).
func RandomFee(lo, hi int) FeeGenerator {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() int {
		if hi <= lo {
			return lo
		}
		mu.Lock()
		defer mu.Unlock()
		return lo + rng.Intn(hi-lo)
	}
}

// FixedFee always returns fee.
func FixedFee(fee int) FeeGenerator {
	return func() int { return fee }
}

// Scheduler runs fn once after d.
type Scheduler func(d time.Duration, fn func())

func afterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

const DefaultConfirmationDelay = 2 * time.Second

type Options struct {
	Persistence       *draft.Persistence
	Submitter         Submitter
	Notifier          Notifier
	Fee               FeeGenerator
	ConfirmationDelay time.Duration
	Schedule          Scheduler
	Logger            logger.Logger
}

func (o *Options) applyDefaults() {
	if o.Notifier == nil {
		o.Notifier = NotifierFunc(func(models.Toast) {})
	}
	if o.Fee == nil {
		o.Fee = RandomFee(10, 60)
	}
	if o.ConfirmationDelay <= 0 {
		o.ConfirmationDelay = DefaultConfirmationDelay
	}
	if o.Schedule == nil {
		o.Schedule = afterFunc
	}
	if o.Logger == nil {
		o.Logger = logger.NewNoOpLogger()
	}
}
