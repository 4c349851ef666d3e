// Package steps implements the six-step linear navigation of the
// membership wizard.
package steps

import (
	"fmt"
	"math"

	"davel-library/internal/membership/schema"
	"davel-library/internal/models"
)

type Step int

const (
	StepPersonal Step = iota + 1
	StepContact
	StepAddress
	StepPreferences
	StepDocuments
	StepConsent
)

const (
	FirstStep  = StepPersonal
	LastStep   = StepConsent
	TotalSteps = int(LastStep)
)

type definition struct {
	title  string
	fields []string
}

var definitions = map[Step]definition{
	StepPersonal: {
		title:  "Personal Information",
		fields: []string{models.FieldFirstName, models.FieldLastName, models.FieldDateOfBirth, models.FieldGender},
	},
	StepContact: {
		title:  "Contact Details",
		fields: []string{models.FieldEmail, models.FieldPhone},
	},
	StepAddress: {
		title:  "Address",
		fields: []string{models.FieldStreet, models.FieldCity, models.FieldState, models.FieldZipCode, models.FieldCountry},
	},
	StepPreferences: {
		title:  "Reading Preferences",
		fields: []string{models.FieldPreferredGenres, models.FieldReadingFrequency},
	},
	StepDocuments: {
		title:  "Documents",
		fields: []string{models.FieldIdentityDocument, models.FieldProofOfAddress},
	},
	StepConsent: {
		title:  "Terms & Consent",
		fields: []string{models.FieldAgreeToTerms},
	},
}

func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

func (s Step) Title() string {
	return definitions[s].title
}

// Fields returns the field group that must validate before leaving s.
func (s Step) Fields() []string {
	return append([]string{}, definitions[s].fields...)
}

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return fmt.Sprintf("%d/%d %s", int(s), TotalSteps, s.Title())
}

// Clamp maps any integer onto a valid step.
func Clamp(n int) Step {
	switch {
	case n < int(FirstStep):
		return FirstStep
	case n > int(LastStep):
		return LastStep
	default:
		return Step(n)
	}
}

// Validator evaluates field rules against the current form state.
type Validator interface {
	ValidateFields(fields ...string) []schema.FieldError
	HasRequiredDocuments() bool
}

// Outcome reports an Advance attempt.
type Outcome struct {
	Advanced bool
	Errors   []schema.FieldError
}

// FirstInvalid names the first failing field, or "" when none failed.
func (o Outcome) FirstInvalid() string {
	if len(o.Errors) == 0 {
		return ""
	}
	return o.Errors[0].Field
}

// Controller tracks the current step. It is not safe for concurrent use.
type Controller struct {
	current   Step
	validator Validator
}

func NewController(v Validator) *Controller {
	return &Controller{current: FirstStep, validator: v}
}

func (c *Controller) Current() Step {
	return c.current
}

// Check returns the failing fields of step in field-group order. The
// documents step is also checked against the attachment gate.
func (c *Controller) Check(step Step) []schema.FieldError {
	errs := c.validator.ValidateFields(step.Fields()...)
	if step == StepDocuments && len(errs) == 0 && !c.validator.HasRequiredDocuments() {
		errs = append(errs, schema.FieldError{
			Field:   models.FieldIdentityDocument,
			Code:    schema.CodeMinItemsViolation,
			Message: "Required documents are missing",
		})
	}
	return errs
}

func (c *Controller) CanAdvance(step Step) bool {
	return len(c.Check(step)) == 0
}

// Advance moves forward one step when the current step validates and is
// not the last. Otherwise the step is unchanged.
func (c *Controller) Advance() Outcome {
	errs := c.Check(c.current)
	if len(errs) > 0 {
		return Outcome{Errors: errs}
	}
	if c.current >= LastStep {
		return Outcome{}
	}
	c.current++
	return Outcome{Advanced: true}
}

// Retreat moves back one step without validation.
func (c *Controller) Retreat() bool {
	if c.current <= FirstStep {
		return false
	}
	c.current--
	return true
}

// ProgressPercent is current/total as a rounded percentage.
func (c *Controller) ProgressPercent() int {
	return int(math.Round(float64(c.current) / float64(TotalSteps) * 100))
}

func (c *Controller) Reset() {
	c.current = FirstStep
}

// SetCurrent jumps to n, clamped into range, and returns the step set.
func (c *Controller) SetCurrent(n int) Step {
	c.current = Clamp(n)
	return c.current
}
