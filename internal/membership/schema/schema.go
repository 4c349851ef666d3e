// Package schema holds the field rules for the membership application.
package schema

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"davel-library/internal/common/validation"
	"davel-library/internal/models"
)

// Error codes carried by FieldError.
const (
	CodeMissingRequired    = "MISSING_REQUIRED"
	CodeMinLengthViolation = "MIN_LENGTH_VIOLATION"
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeInvalidEnumValue   = "INVALID_ENUM_VALUE"
	CodeMinItemsViolation  = "MIN_ITEMS_VIOLATION"
	CodeMustBeTrue         = "MUST_BE_TRUE"
	CodeMinimumViolation   = "MINIMUM_VIOLATION"
)

const (
	MinNameLength  = 2
	MinPhoneLength = 10
)

// Genres is the fixed catalog of selectable genres.
var Genres = []string{
	"Fiction",
	"Non-Fiction",
	"Mystery",
	"Romance",
	"Science Fiction",
	"Fantasy",
	"Biography",
	"History",
	"Self-Help",
	"Technology",
	"Art",
	"Poetry",
	"Drama",
	"Children's Books",
	"Young Adult",
}

const zipPattern = `^[A-Za-z0-9 -]+$`

var zipRegexp = regexp.MustCompile(zipPattern)

// FieldError describes one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidatedFields lists every field that has a rule, in form order.
var ValidatedFields = []string{
	models.FieldFirstName, models.FieldLastName, models.FieldDateOfBirth, models.FieldGender,
	models.FieldEmail, models.FieldPhone,
	models.FieldStreet, models.FieldCity, models.FieldState, models.FieldZipCode, models.FieldCountry,
	models.FieldPreferredGenres, models.FieldReadingFrequency,
	models.FieldIdentityDocument, models.FieldProofOfAddress,
	models.FieldAgreeToTerms,
	models.FieldApplicationFee,
}

// ValidateField checks one field. It returns nil when the field passes or
// has no rule. attachments may be nil, which reads as no files.
func ValidateField(d *models.Draft, attachments *models.Attachments, field string) *FieldError {
	if attachments == nil {
		attachments = &models.Attachments{}
	}

	switch field {
	case models.FieldFirstName:
		return minLength(field, d.FirstName, MinNameLength, "First name")
	case models.FieldLastName:
		return minLength(field, d.LastName, MinNameLength, "Last name")
	case models.FieldDateOfBirth:
		return required(field, d.DateOfBirth, "Date of birth")
	case models.FieldGender:
		if !containsGender(d.Gender) {
			return &FieldError{Field: field, Code: CodeInvalidEnumValue, Message: "Please select a gender"}
		}
	case models.FieldEmail:
		if !validation.ValidateEmail(d.Email) {
			return &FieldError{Field: field, Code: CodeInvalidFormat, Message: "Please enter a valid email address"}
		}
	case models.FieldPhone:
		if utf8.RuneCountInString(d.Phone) < MinPhoneLength {
			return &FieldError{Field: field, Code: CodeMinLengthViolation,
				Message: fmt.Sprintf("Phone number must be at least %d characters", MinPhoneLength)}
		}
	case models.FieldStreet:
		return required(field, d.Street, "Street address")
	case models.FieldCity:
		return required(field, d.City, "City")
	case models.FieldState:
		return required(field, d.State, "State")
	case models.FieldCountry:
		return required(field, d.Country, "Country")
	case models.FieldZipCode:
		if d.ZipCode == "" {
			return required(field, d.ZipCode, "ZIP code")
		}
		if !zipRegexp.MatchString(d.ZipCode) {
			return &FieldError{Field: field, Code: CodeInvalidFormat,
				Message: "ZIP code may only contain letters, digits, spaces and hyphens"}
		}
	case models.FieldPreferredGenres:
		if len(d.PreferredGenres) == 0 {
			return &FieldError{Field: field, Code: CodeMinItemsViolation, Message: "Please select at least one genre"}
		}
		for _, g := range d.PreferredGenres {
			if !IsGenre(g) {
				return &FieldError{Field: field, Code: CodeInvalidEnumValue, Message: fmt.Sprintf("Unknown genre: %s", g)}
			}
		}
	case models.FieldReadingFrequency:
		if !containsFrequency(d.ReadingFrequency) {
			return &FieldError{Field: field, Code: CodeInvalidEnumValue, Message: "Please select how often you read"}
		}
	case models.FieldIdentityDocument:
		if len(attachments.IdentityDocument) == 0 {
			return &FieldError{Field: field, Code: CodeMinItemsViolation, Message: "Identity document is required"}
		}
	case models.FieldProofOfAddress:
		if len(attachments.ProofOfAddress) == 0 {
			return &FieldError{Field: field, Code: CodeMinItemsViolation, Message: "Proof of address is required"}
		}
	case models.FieldAgreeToTerms:
		if !d.AgreeToTerms {
			return &FieldError{Field: field, Code: CodeMustBeTrue, Message: "You must agree to the terms and conditions"}
		}
	case models.FieldApplicationFee:
		if d.ApplicationFee < 0 {
			return &FieldError{Field: field, Code: CodeMinimumViolation, Message: "Application fee cannot be negative"}
		}
	}
	return nil
}

// ValidateFields checks fields in the order given and returns the failures
// in that order.
func ValidateFields(d *models.Draft, attachments *models.Attachments, fields ...string) []FieldError {
	var errs []FieldError
	for _, f := range fields {
		if fe := ValidateField(d, attachments, f); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs
}

// ValidateAll checks every rule in form order.
func ValidateAll(d *models.Draft, attachments *models.Attachments) []FieldError {
	return ValidateFields(d, attachments, ValidatedFields...)
}

func IsGenre(name string) bool {
	for _, g := range Genres {
		if g == name {
			return true
		}
	}
	return false
}

func minLength(field, value string, n int, label string) *FieldError {
	if utf8.RuneCountInString(value) < n {
		return &FieldError{Field: field, Code: CodeMinLengthViolation,
			Message: fmt.Sprintf("%s must be at least %d characters", label, n)}
	}
	return nil
}

func required(field, value, label string) *FieldError {
	if value == "" {
		return &FieldError{Field: field, Code: CodeMissingRequired, Message: label + " is required"}
	}
	return nil
}

func containsGender(g models.Gender) bool {
	for _, v := range models.Genders {
		if v == g {
			return true
		}
	}
	return false
}

func containsFrequency(f models.ReadingFrequency) bool {
	for _, v := range models.ReadingFrequencies {
		if v == f {
			return true
		}
	}
	return false
}
