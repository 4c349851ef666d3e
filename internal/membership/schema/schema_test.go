package schema

import (
	"encoding/json"
	"testing"

	"davel-library/internal/common/validation"
	"davel-library/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func validDraft() *models.Draft {
	d := models.NewDraft(25)
	d.FirstName = "Jane"
	d.LastName = "Doe"
	d.DateOfBirth = "1990-01-01"
	d.Gender = models.GenderFemale
	d.Email = "jane.doe@example.com"
	d.Phone = "555-123-4567"
	d.Street = "12 Library Lane"
	d.City = "Springfield"
	d.State = "IL"
	d.ZipCode = "62704"
	d.Country = "USA"
	d.PreferredGenres = []string{"Fiction", "History"}
	d.ReadingFrequency = models.ReadingWeekly
	d.AgreeToTerms = true
	return d
}

func validAttachments() *models.Attachments {
	return &models.Attachments{
		IdentityDocument: []models.FileRef{{Name: "id.pdf", Size: 2048, ContentType: "application/pdf"}},
		ProofOfAddress:   []models.FileRef{{Name: "bill.png", Size: 4096, ContentType: "image/png"}},
	}
}

// ==========================
// Field Rule Tests
// ==========================

func TestValidateAll_ValidDraft(t *testing.T) {
	assert.Empty(t, ValidateAll(validDraft(), validAttachments()))
}

func TestValidateField(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(d *models.Draft, a *models.Attachments)
		code   string
	}{
		{"first name too short", models.FieldFirstName, func(d *models.Draft, _ *models.Attachments) { d.FirstName = "J" }, CodeMinLengthViolation},
		{"first name empty", models.FieldFirstName, func(d *models.Draft, _ *models.Attachments) { d.FirstName = "" }, CodeMinLengthViolation},
		{"last name too short", models.FieldLastName, func(d *models.Draft, _ *models.Attachments) { d.LastName = "D" }, CodeMinLengthViolation},
		{"dob empty", models.FieldDateOfBirth, func(d *models.Draft, _ *models.Attachments) { d.DateOfBirth = "" }, CodeMissingRequired},
		{"gender unset", models.FieldGender, func(d *models.Draft, _ *models.Attachments) { d.Gender = "" }, CodeInvalidEnumValue},
		{"gender unknown", models.FieldGender, func(d *models.Draft, _ *models.Attachments) { d.Gender = "robot" }, CodeInvalidEnumValue},
		{"email malformed", models.FieldEmail, func(d *models.Draft, _ *models.Attachments) { d.Email = "jane@" }, CodeInvalidFormat},
		{"phone short", models.FieldPhone, func(d *models.Draft, _ *models.Attachments) { d.Phone = "555-1234" }, CodeMinLengthViolation},
		{"street empty", models.FieldStreet, func(d *models.Draft, _ *models.Attachments) { d.Street = "" }, CodeMissingRequired},
		{"city empty", models.FieldCity, func(d *models.Draft, _ *models.Attachments) { d.City = "" }, CodeMissingRequired},
		{"state empty", models.FieldState, func(d *models.Draft, _ *models.Attachments) { d.State = "" }, CodeMissingRequired},
		{"country empty", models.FieldCountry, func(d *models.Draft, _ *models.Attachments) { d.Country = "" }, CodeMissingRequired},
		{"zip empty", models.FieldZipCode, func(d *models.Draft, _ *models.Attachments) { d.ZipCode = "" }, CodeMissingRequired},
		{"zip bad chars", models.FieldZipCode, func(d *models.Draft, _ *models.Attachments) { d.ZipCode = "627#04" }, CodeInvalidFormat},
		{"genres empty", models.FieldPreferredGenres, func(d *models.Draft, _ *models.Attachments) { d.PreferredGenres = nil }, CodeMinItemsViolation},
		{"genre outside catalog", models.FieldPreferredGenres, func(d *models.Draft, _ *models.Attachments) { d.PreferredGenres = []string{"Fiction", "Cookbooks"} }, CodeInvalidEnumValue},
		{"frequency unset", models.FieldReadingFrequency, func(d *models.Draft, _ *models.Attachments) { d.ReadingFrequency = "" }, CodeInvalidEnumValue},
		{"identity missing", models.FieldIdentityDocument, func(_ *models.Draft, a *models.Attachments) { a.IdentityDocument = nil }, CodeMinItemsViolation},
		{"proof missing", models.FieldProofOfAddress, func(_ *models.Draft, a *models.Attachments) { a.ProofOfAddress = nil }, CodeMinItemsViolation},
		{"terms not agreed", models.FieldAgreeToTerms, func(d *models.Draft, _ *models.Attachments) { d.AgreeToTerms = false }, CodeMustBeTrue},
		{"negative fee", models.FieldApplicationFee, func(d *models.Draft, _ *models.Attachments) { d.ApplicationFee = -1 }, CodeMinimumViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, a := validDraft(), validAttachments()
			tt.mutate(d, a)

			fe := ValidateField(d, a, tt.field)
			require.NotNil(t, fe)
			assert.Equal(t, tt.field, fe.Field)
			assert.Equal(t, tt.code, fe.Code)
			assert.NotEmpty(t, fe.Message)
		})
	}
}

func TestValidateField_Lenient(t *testing.T) {
	d := validDraft()
	d.FirstName = "Zoë"
	d.ZipCode = "SW1A 1AA"
	d.Phone = "(555) 123 4567"
	d.DateOfBirth = "2025-12-31"
	d.AlternatePhone = "x"

	assert.Empty(t, ValidateAll(d, validAttachments()))
	assert.Nil(t, ValidateField(d, nil, models.FieldAdditionalDocuments))
	assert.Nil(t, ValidateField(d, nil, models.FieldAlternatePhone))
	assert.Nil(t, ValidateField(d, nil, "noSuchField"))
}

func TestValidateFields_PreservesOrder(t *testing.T) {
	d := models.NewDraft(10)
	errs := ValidateFields(d, nil, models.FieldGender, models.FieldFirstName, models.FieldDateOfBirth)
	require.Len(t, errs, 3)
	assert.Equal(t, models.FieldGender, errs[0].Field)
	assert.Equal(t, models.FieldFirstName, errs[1].Field)
	assert.Equal(t, models.FieldDateOfBirth, errs[2].Field)
}

func TestValidateAll_NilAttachments(t *testing.T) {
	errs := ValidateAll(validDraft(), nil)
	require.Len(t, errs, 2)
	assert.Equal(t, models.FieldIdentityDocument, errs[0].Field)
	assert.Equal(t, models.FieldProofOfAddress, errs[1].Field)
}

func TestGenresCatalog(t *testing.T) {
	assert.Len(t, Genres, 15)
	assert.True(t, IsGenre("Children's Books"))
	assert.False(t, IsGenre("fiction"))
}

// ==========================
// Payload Schema Tests
// ==========================

func validPayload() models.ApplicationPayload {
	uploaded := DocumentsUploaded
	return models.ApplicationPayload{
		Draft:            *validDraft(),
		IdentityDocument: &uploaded,
		ProofOfAddress:   &uploaded,
	}
}

func TestPayloadSchema_AcceptsValidPayload(t *testing.T) {
	result, err := validation.Validate(PayloadSchema(), validPayload())
	require.NoError(t, err)
	assert.True(t, result.Valid, "errors: %v", result.GetErrorMessages())
}

func TestPayloadSchema_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
		field  string
	}{
		{"short name", func(m map[string]interface{}) { m["firstName"] = "J" }, "firstName"},
		{"missing identity", func(m map[string]interface{}) { m["identityDocument"] = nil }, "identityDocument"},
		{"raw file object", func(m map[string]interface{}) { m["proofOfAddress"] = map[string]interface{}{"name": "bill.png"} }, "proofOfAddress"},
		{"terms false", func(m map[string]interface{}) { m["agreeToTerms"] = false }, "agreeToTerms"},
		{"unknown genre", func(m map[string]interface{}) { m["preferredGenres"] = []string{"Cookbooks"} }, "preferredGenres"},
		{"negative fee", func(m map[string]interface{}) { m["applicationFee"] = -5 }, "applicationFee"},
		{"extra field", func(m map[string]interface{}) { m["creditCard"] = "4111" }, "creditCard"},
		{"missing email", func(m map[string]interface{}) { delete(m, "email") }, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(validPayload())
			require.NoError(t, err)
			var m map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &m))
			tt.mutate(m)

			result, err := validation.Validate(PayloadSchema(), m)
			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.NotEmpty(t, result.GetErrorsForField(tt.field), "errors: %v", result.GetErrorMessages())
		})
	}
}

func TestFieldOrder(t *testing.T) {
	assert.Less(t, FieldOrder(models.FieldFirstName), FieldOrder(models.FieldEmail))
	assert.Less(t, FieldOrder(models.FieldEmail), FieldOrder(models.FieldAgreeToTerms))
	assert.Equal(t, len(ValidatedFields), FieldOrder("creditCard"))
}
