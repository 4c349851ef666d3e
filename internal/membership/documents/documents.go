// Package documents gates submission on the required document slots.
package documents

import (
	"davel-library/internal/membership/schema"
	"davel-library/internal/models"
)

// UploadedSentinel replaces a non-empty document slot in submitted payloads.
const UploadedSentinel = schema.DocumentsUploaded

// Hints shown next to the upload controls. They are not enforced here.
var AcceptedFormats = []string{"application/pdf", "image/jpeg", "image/png"}

const MaxFileSizeHint int64 = 5 * 1024 * 1024

// RequiredSlots must each hold at least one file before submission.
var RequiredSlots = []models.Slot{models.SlotIdentityDocument, models.SlotProofOfAddress}

// HasRequiredDocuments reports whether every required slot has a file.
func HasRequiredDocuments(a *models.Attachments) bool {
	return len(Missing(a)) == 0
}

// Missing returns the required slots that are empty, in form order.
func Missing(a *models.Attachments) []models.Slot {
	if a == nil {
		return append([]models.Slot{}, RequiredSlots...)
	}
	var missing []models.Slot
	for _, slot := range RequiredSlots {
		if len(a.Get(slot)) == 0 {
			missing = append(missing, slot)
		}
	}
	return missing
}

// Placeholder maps a slot's refs to the payload value: nil when empty,
// otherwise the uploaded sentinel.
func Placeholder(refs []models.FileRef) *string {
	if len(refs) == 0 {
		return nil
	}
	s := UploadedSentinel
	return &s
}
