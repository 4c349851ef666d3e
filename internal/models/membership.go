// internal/models/membership.go
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Draft field names. These are the JSON keys used in storage and payloads.
const (
	FieldFirstName   = "firstName"
	FieldLastName    = "lastName"
	FieldDateOfBirth = "dateOfBirth"
	FieldGender      = "gender"

	FieldEmail          = "email"
	FieldPhone          = "phone"
	FieldAlternatePhone = "alternatePhone"

	FieldStreet  = "street"
	FieldCity    = "city"
	FieldState   = "state"
	FieldZipCode = "zipCode"
	FieldCountry = "country"

	FieldAccessibilityNeeds   = "accessibilityNeeds"
	FieldAccessibilityDetails = "accessibilityDetails"
	FieldPreferredGenres      = "preferredGenres"
	FieldReadingFrequency     = "readingFrequency"

	FieldIdentityDocument    = "identityDocument"
	FieldProofOfAddress      = "proofOfAddress"
	FieldAdditionalDocuments = "additionalDocuments"

	FieldAgreeToTerms        = "agreeToTerms"
	FieldSubscribeNewsletter = "subscribeNewsletter"

	FieldApplicationFee = "applicationFee"
)

// DraftFields lists every serializable draft field in form order. Document
// fields are not part of the draft; see Attachments.
var DraftFields = []string{
	FieldFirstName, FieldLastName, FieldDateOfBirth, FieldGender,
	FieldEmail, FieldPhone, FieldAlternatePhone,
	FieldStreet, FieldCity, FieldState, FieldZipCode, FieldCountry,
	FieldAccessibilityNeeds, FieldAccessibilityDetails, FieldPreferredGenres, FieldReadingFrequency,
	FieldAgreeToTerms, FieldSubscribeNewsletter,
	FieldApplicationFee,
}

type Gender string

const (
	GenderMale           Gender = "male"
	GenderFemale         Gender = "female"
	GenderOther          Gender = "other"
	GenderPreferNotToSay Gender = "prefer-not-to-say"
)

var Genders = []Gender{GenderMale, GenderFemale, GenderOther, GenderPreferNotToSay}

type ReadingFrequency string

const (
	ReadingDaily        ReadingFrequency = "daily"
	ReadingWeekly       ReadingFrequency = "weekly"
	ReadingMonthly      ReadingFrequency = "monthly"
	ReadingOccasionally ReadingFrequency = "occasionally"
)

var ReadingFrequencies = []ReadingFrequency{ReadingDaily, ReadingWeekly, ReadingMonthly, ReadingOccasionally}

var ErrUnknownField = errors.New("unknown field")

// Draft is the in-progress membership application.
type Draft struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      Gender `json:"gender"`

	Email          string `json:"email"`
	Phone          string `json:"phone"`
	AlternatePhone string `json:"alternatePhone"`

	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`

	AccessibilityNeeds   bool             `json:"accessibilityNeeds"`
	AccessibilityDetails string           `json:"accessibilityDetails"`
	PreferredGenres      []string         `json:"preferredGenres"`
	ReadingFrequency     ReadingFrequency `json:"readingFrequency"`

	AgreeToTerms        bool `json:"agreeToTerms"`
	SubscribeNewsletter bool `json:"subscribeNewsletter"`

	ApplicationFee int `json:"applicationFee"`
}

// NewDraft returns a draft with form defaults and the given fee.
func NewDraft(fee int) *Draft {
	return &Draft{
		PreferredGenres:     []string{},
		SubscribeNewsletter: true,
		ApplicationFee:      fee,
	}
}

// Apply decodes raw onto the named field. On error the field is unchanged.
func (d *Draft) Apply(field string, raw json.RawMessage) error {
	target, err := d.fieldPtr(field)
	if err != nil {
		return err
	}
	if err := decodeInto(target, raw); err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	return nil
}

// Set assigns a Go value to the named field by way of its JSON encoding.
func (d *Draft) Set(field string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	return d.Apply(field, raw)
}

func (d *Draft) fieldPtr(field string) (interface{}, error) {
	switch field {
	case FieldFirstName:
		return &d.FirstName, nil
	case FieldLastName:
		return &d.LastName, nil
	case FieldDateOfBirth:
		return &d.DateOfBirth, nil
	case FieldGender:
		return &d.Gender, nil
	case FieldEmail:
		return &d.Email, nil
	case FieldPhone:
		return &d.Phone, nil
	case FieldAlternatePhone:
		return &d.AlternatePhone, nil
	case FieldStreet:
		return &d.Street, nil
	case FieldCity:
		return &d.City, nil
	case FieldState:
		return &d.State, nil
	case FieldZipCode:
		return &d.ZipCode, nil
	case FieldCountry:
		return &d.Country, nil
	case FieldAccessibilityNeeds:
		return &d.AccessibilityNeeds, nil
	case FieldAccessibilityDetails:
		return &d.AccessibilityDetails, nil
	case FieldPreferredGenres:
		return &d.PreferredGenres, nil
	case FieldReadingFrequency:
		return &d.ReadingFrequency, nil
	case FieldAgreeToTerms:
		return &d.AgreeToTerms, nil
	case FieldSubscribeNewsletter:
		return &d.SubscribeNewsletter, nil
	case FieldApplicationFee:
		return &d.ApplicationFee, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}

// decodeInto unmarshals into a scratch value first so a type mismatch never
// leaves the target half-written. null is rejected.
func decodeInto(target interface{}, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("null value")
	}
	switch p := target.(type) {
	case *string:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*p = v
	case *Gender:
		var v Gender
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*p = v
	case *ReadingFrequency:
		var v ReadingFrequency
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*p = v
	case *bool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*p = v
	case *int:
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*p = v
	case *[]string:
		var v []string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*p = v
	default:
		return fmt.Errorf("unsupported field type %T", target)
	}
	return nil
}

// Clone returns a deep copy.
func (d *Draft) Clone() *Draft {
	c := *d
	c.PreferredGenres = append([]string{}, d.PreferredGenres...)
	return &c
}

// Values returns the draft as a field-name keyed map.
func (d *Draft) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(DraftFields))
	raw, _ := json.Marshal(d)
	_ = json.Unmarshal(raw, &out)
	return out
}

// Application statuses tracked by the backend.
const (
	StatusPending          = "pending"
	StatusDocumentsPending = "documents_pending"
	StatusDocumentsMissing = "documents_missing"
)
