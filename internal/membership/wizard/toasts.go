package wizard

import "davel-library/internal/models"

var (
	toastSaved = models.Toast{
		Title:       "Progress Saved",
		Description: "Your application progress has been saved.",
	}
	toastSaveFailed = models.Toast{
		Title:       "Save Failed",
		Description: "Could not save your progress. Please try again.",
		Variant:     models.ToastDestructive,
	}
	toastLoaded = models.Toast{
		Title:       "Progress Loaded",
		Description: "Your saved application has been restored. Please re-attach any documents.",
	}
	toastNothingSaved = models.Toast{
		Title:       "No Saved Progress",
		Description: "There is no saved application to load.",
	}
	toastLoadFailed = models.Toast{
		Title:       "Load Failed",
		Description: "Your saved application could not be read.",
		Variant:     models.ToastDestructive,
	}
	toastSubmitted = models.Toast{
		Title:       "Application Submitted!",
		Description: "Your membership application has been submitted successfully.",
	}
	toastCheckEmail = models.Toast{
		Title:       "Check your email",
		Description: "We've sent a confirmation with the next steps for your membership.",
	}
)

func toastSubmitFailed(message string) models.Toast {
	return models.Toast{
		Title:       "Submission Failed",
		Description: message,
		Variant:     models.ToastDestructive,
	}
}
