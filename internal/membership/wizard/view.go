package wizard

import (
	"time"

	"davel-library/internal/membership/documents"
	"davel-library/internal/membership/schema"
	"davel-library/internal/membership/steps"
	"davel-library/internal/models"
)

// View is the render model for the current wizard state.
type View struct {
	Step        int                          `json:"step"`
	TotalSteps  int                          `json:"totalSteps"`
	Title       string                       `json:"title"`
	Progress    int                          `json:"progress"`
	Fields      []string                     `json:"fields"`
	Values      map[string]interface{}       `json:"values"`
	Attachments map[string][]models.FileRef  `json:"attachments"`
	Errors      map[string]schema.FieldError `json:"errors"`
	Submitting  bool                         `json:"submitting"`
	CanGoBack   bool                         `json:"canGoBack"`
	IsLastStep  bool                         `json:"isLastStep"`
	SubmitLabel string                       `json:"submitLabel,omitempty"`
	LastSaved   *time.Time                   `json:"lastSaved,omitempty"`
	Options     map[string]interface{}       `json:"options,omitempty"`
}

func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.steps.Current()
	v := View{
		Step:        int(current),
		TotalSteps:  steps.TotalSteps,
		Title:       current.Title(),
		Progress:    w.steps.ProgressPercent(),
		Fields:      current.Fields(),
		Values:      w.draft.Values(),
		Attachments: make(map[string][]models.FileRef, len(models.Slots)),
		Errors:      make(map[string]schema.FieldError, len(w.errors)),
		Submitting:  w.submitting,
		CanGoBack:   current > steps.FirstStep,
		IsLastStep:  current == steps.LastStep,
	}
	for _, slot := range models.Slots {
		v.Attachments[string(slot)] = append([]models.FileRef{}, w.attachments.Get(slot)...)
	}
	for k, fe := range w.errors {
		v.Errors[k] = fe
	}
	if !w.lastSaved.IsZero() {
		ts := w.lastSaved
		v.LastSaved = &ts
	}
	if v.IsLastStep {
		v.SubmitLabel = "Submit Application"
		if w.submitting {
			v.SubmitLabel = "Submitting…"
		}
	}

	switch current {
	case steps.StepPersonal:
		v.Options = map[string]interface{}{"gender": models.Genders}
	case steps.StepPreferences:
		v.Options = map[string]interface{}{
			"preferredGenres":  schema.Genres,
			"readingFrequency": models.ReadingFrequencies,
		}
	case steps.StepDocuments:
		v.Options = map[string]interface{}{
			"acceptedFormats": documents.AcceptedFormats,
			"maxFileSize":     documents.MaxFileSizeHint,
			"missing":         documents.Missing(w.attachments),
		}
	}
	return v
}
