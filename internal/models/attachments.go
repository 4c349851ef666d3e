// internal/models/attachments.go
package models

import "fmt"

// FileRef is an opaque handle to a file the applicant picked. It never
// carries file content.
type FileRef struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Slot names a document field.
type Slot string

const (
	SlotIdentityDocument    Slot = FieldIdentityDocument
	SlotProofOfAddress      Slot = FieldProofOfAddress
	SlotAdditionalDocuments Slot = FieldAdditionalDocuments
)

var Slots = []Slot{SlotIdentityDocument, SlotProofOfAddress, SlotAdditionalDocuments}

// Attachments holds the file references for each document slot. It lives
// beside the Draft and is never persisted with it.
type Attachments struct {
	IdentityDocument    []FileRef `json:"identityDocument"`
	ProofOfAddress      []FileRef `json:"proofOfAddress"`
	AdditionalDocuments []FileRef `json:"additionalDocuments"`
}

func ParseSlot(name string) (Slot, error) {
	for _, s := range Slots {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownField, name)
}

func (a *Attachments) Get(slot Slot) []FileRef {
	switch slot {
	case SlotIdentityDocument:
		return a.IdentityDocument
	case SlotProofOfAddress:
		return a.ProofOfAddress
	case SlotAdditionalDocuments:
		return a.AdditionalDocuments
	}
	return nil
}

// Set replaces the refs held in slot.
func (a *Attachments) Set(slot Slot, refs []FileRef) error {
	cp := append([]FileRef{}, refs...)
	switch slot {
	case SlotIdentityDocument:
		a.IdentityDocument = cp
	case SlotProofOfAddress:
		a.ProofOfAddress = cp
	case SlotAdditionalDocuments:
		a.AdditionalDocuments = cp
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, slot)
	}
	return nil
}

func (a *Attachments) Clone() *Attachments {
	return &Attachments{
		IdentityDocument:    append([]FileRef{}, a.IdentityDocument...),
		ProofOfAddress:      append([]FileRef{}, a.ProofOfAddress...),
		AdditionalDocuments: append([]FileRef{}, a.AdditionalDocuments...),
	}
}
