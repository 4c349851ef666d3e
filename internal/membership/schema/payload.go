package schema

import (
	"davel-library/internal/common/validation"
	"davel-library/internal/models"
)

// DocumentsUploaded is the only value a required document field may carry
// in a submitted payload.
const DocumentsUploaded = "Documents uploaded"

// PayloadSchema is the JSON Schema the intake endpoint applies to submitted
// applications. It mirrors the field rules above.
func PayloadSchema() validation.JSONSchema {
	nonEmpty := validation.Property{Type: "string", MinLength: validation.IntPtr(1)}

	genres := make([]interface{}, len(Genres))
	for i, g := range Genres {
		genres[i] = g
	}
	genders := make([]interface{}, len(models.Genders))
	for i, g := range models.Genders {
		genders[i] = string(g)
	}
	frequencies := make([]interface{}, len(models.ReadingFrequencies))
	for i, f := range models.ReadingFrequencies {
		frequencies[i] = string(f)
	}

	return validation.JSONSchema{
		Type: "object",
		Required: []string{
			models.FieldFirstName, models.FieldLastName, models.FieldDateOfBirth, models.FieldGender,
			models.FieldEmail, models.FieldPhone,
			models.FieldStreet, models.FieldCity, models.FieldState, models.FieldZipCode, models.FieldCountry,
			models.FieldPreferredGenres, models.FieldReadingFrequency,
			models.FieldIdentityDocument, models.FieldProofOfAddress,
			models.FieldAgreeToTerms, models.FieldApplicationFee,
		},
		Properties: map[string]validation.Property{
			models.FieldFirstName:   {Type: "string", MinLength: validation.IntPtr(MinNameLength)},
			models.FieldLastName:    {Type: "string", MinLength: validation.IntPtr(MinNameLength)},
			models.FieldDateOfBirth: nonEmpty,
			models.FieldGender:      {Type: "string", Enum: genders},

			models.FieldEmail:          {Type: "string", Pattern: validation.StringPtr(validation.EmailPattern)},
			models.FieldPhone:          {Type: "string", MinLength: validation.IntPtr(MinPhoneLength)},
			models.FieldAlternatePhone: {Type: "string"},

			models.FieldStreet:  nonEmpty,
			models.FieldCity:    nonEmpty,
			models.FieldState:   nonEmpty,
			models.FieldZipCode: {Type: "string", Pattern: validation.StringPtr(zipPattern)},
			models.FieldCountry: nonEmpty,

			models.FieldAccessibilityNeeds:   {Type: "boolean"},
			models.FieldAccessibilityDetails: {Type: "string"},
			models.FieldPreferredGenres: {
				Type:     "array",
				MinItems: validation.IntPtr(1),
				Items:    &validation.Property{Type: "string", Enum: genres},
			},
			models.FieldReadingFrequency: {Type: "string", Enum: frequencies},

			models.FieldIdentityDocument:    {Enum: []interface{}{DocumentsUploaded}},
			models.FieldProofOfAddress:      {Enum: []interface{}{DocumentsUploaded}},
			models.FieldAdditionalDocuments: {Enum: []interface{}{DocumentsUploaded, nil}},

			models.FieldAgreeToTerms:        {Type: "boolean", Const: true},
			models.FieldSubscribeNewsletter: {Type: "boolean"},
			models.FieldApplicationFee:      {Type: "integer", Minimum: validation.FloatPtr(0)},
		},
		AdditionalProperties: false,
	}
}

// FieldOrder ranks a payload field by its position in the form, for stable
// error reporting. Unknown fields sort last.
func FieldOrder(field string) int {
	for i, f := range ValidatedFields {
		if f == field {
			return i
		}
	}
	return len(ValidatedFields)
}
