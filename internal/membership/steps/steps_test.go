package steps

import (
	"math/rand"
	"testing"

	"davel-library/internal/membership/documents"
	"davel-library/internal/membership/schema"
	"davel-library/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type formValidator struct {
	draft       *models.Draft
	attachments *models.Attachments
}

func (f *formValidator) ValidateFields(fields ...string) []schema.FieldError {
	return schema.ValidateFields(f.draft, f.attachments, fields...)
}

func (f *formValidator) HasRequiredDocuments() bool {
	return documents.HasRequiredDocuments(f.attachments)
}

type MockValidator struct {
	ValidateFieldsFunc       func(fields ...string) []schema.FieldError
	HasRequiredDocumentsFunc func() bool
}

func (m *MockValidator) ValidateFields(fields ...string) []schema.FieldError {
	if m.ValidateFieldsFunc != nil {
		return m.ValidateFieldsFunc(fields...)
	}
	return nil
}

func (m *MockValidator) HasRequiredDocuments() bool {
	if m.HasRequiredDocumentsFunc != nil {
		return m.HasRequiredDocumentsFunc()
	}
	return true
}

func completeForm() *formValidator {
	d := models.NewDraft(20)
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
	d.PreferredGenres = []string{"Fiction"}
	d.ReadingFrequency = models.ReadingMonthly
	d.AgreeToTerms = true
	return &formValidator{
		draft: d,
		attachments: &models.Attachments{
			IdentityDocument: []models.FileRef{{Name: "id.pdf"}},
			ProofOfAddress:   []models.FileRef{{Name: "bill.pdf"}},
		},
	}
}

// ==========================
// Step Definition Tests
// ==========================

func TestStepFieldGroups(t *testing.T) {
	assert.Equal(t, []string{"firstName", "lastName", "dateOfBirth", "gender"}, StepPersonal.Fields())
	assert.Equal(t, []string{"email", "phone"}, StepContact.Fields())
	assert.Equal(t, []string{"street", "city", "state", "zipCode", "country"}, StepAddress.Fields())
	assert.Equal(t, []string{"preferredGenres", "readingFrequency"}, StepPreferences.Fields())
	assert.Equal(t, []string{"identityDocument", "proofOfAddress"}, StepDocuments.Fields())
	assert.Equal(t, []string{"agreeToTerms"}, StepConsent.Fields())
	assert.Equal(t, 6, TotalSteps)
}

func TestStep_FieldsReturnsCopy(t *testing.T) {
	f := StepContact.Fields()
	f[0] = "mutated"
	assert.Equal(t, "email", StepContact.Fields()[0])
}

func TestStep_String(t *testing.T) {
	assert.Equal(t, "1/6 Personal Information", StepPersonal.String())
	assert.Equal(t, "Step(9)", Step(9).String())
	assert.False(t, Step(0).Valid())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, StepPersonal, Clamp(-3))
	assert.Equal(t, StepPersonal, Clamp(0))
	assert.Equal(t, StepPreferences, Clamp(4))
	assert.Equal(t, StepConsent, Clamp(99))
}

// ==========================
// Controller Tests
// ==========================

func TestAdvance_EmptyDraftFailsOnFirstName(t *testing.T) {
	c := NewController(&formValidator{draft: models.NewDraft(10)})

	out := c.Advance()

	assert.False(t, out.Advanced)
	assert.Equal(t, StepPersonal, c.Current())
	assert.Equal(t, models.FieldFirstName, out.FirstInvalid())
}

func TestAdvance_PersonalStepValid(t *testing.T) {
	d := models.NewDraft(10)
	d.FirstName = "Jane"
	d.LastName = "Doe"
	d.DateOfBirth = "1990-01-01"
	d.Gender = models.GenderFemale
	c := NewController(&formValidator{draft: d})

	out := c.Advance()

	assert.True(t, out.Advanced)
	assert.Empty(t, out.FirstInvalid())
	assert.Equal(t, StepContact, c.Current())
}

func TestAdvance_WalksAllStepsAndStopsAtLast(t *testing.T) {
	c := NewController(completeForm())

	for want := StepContact; want <= StepConsent; want++ {
		out := c.Advance()
		require.True(t, out.Advanced)
		assert.Equal(t, want, c.Current())
	}

	out := c.Advance()
	assert.False(t, out.Advanced)
	assert.Empty(t, out.Errors)
	assert.Equal(t, StepConsent, c.Current())
}

func TestAdvance_DocumentsGate(t *testing.T) {
	v := &MockValidator{HasRequiredDocumentsFunc: func() bool { return false }}
	c := NewController(v)
	c.SetCurrent(int(StepDocuments))

	out := c.Advance()

	assert.False(t, out.Advanced)
	assert.Equal(t, models.FieldIdentityDocument, out.FirstInvalid())
	assert.Equal(t, StepDocuments, c.Current())
}

func TestAdvance_ValidatesOnlyCurrentGroup(t *testing.T) {
	var seen [][]string
	v := &MockValidator{ValidateFieldsFunc: func(fields ...string) []schema.FieldError {
		seen = append(seen, fields)
		return nil
	}}
	c := NewController(v)
	c.SetCurrent(int(StepAddress))

	c.Advance()

	require.Len(t, seen, 1)
	assert.Equal(t, StepAddress.Fields(), seen[0])
}

func TestRetreat(t *testing.T) {
	c := NewController(&MockValidator{})
	assert.False(t, c.Retreat())
	assert.Equal(t, StepPersonal, c.Current())

	c.SetCurrent(3)
	assert.True(t, c.Retreat())
	assert.Equal(t, StepContact, c.Current())
}

func TestProgressPercent(t *testing.T) {
	c := NewController(&MockValidator{})
	want := map[int]int{1: 17, 2: 33, 3: 50, 4: 67, 5: 83, 6: 100}
	for step, pct := range want {
		c.SetCurrent(step)
		assert.Equal(t, pct, c.ProgressPercent(), "step %d", step)
	}
}

func TestResetAndSetCurrent(t *testing.T) {
	c := NewController(&MockValidator{})
	assert.Equal(t, StepConsent, c.SetCurrent(12))
	c.Reset()
	assert.Equal(t, StepPersonal, c.Current())
}

// ==========================
// Property Tests
// ==========================

func TestController_StepStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := NewController(&MockValidator{})

	for i := 0; i < 500; i++ {
		if rng.Intn(2) == 0 {
			c.Advance()
		} else {
			c.Retreat()
		}
		require.True(t, c.Current().Valid())
	}
}

func TestAdvance_IffStepFieldsValid(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	breakers := map[string]func(f *formValidator){
		models.FieldFirstName:        func(f *formValidator) { f.draft.FirstName = "J" },
		models.FieldLastName:         func(f *formValidator) { f.draft.LastName = "" },
		models.FieldDateOfBirth:      func(f *formValidator) { f.draft.DateOfBirth = "" },
		models.FieldGender:           func(f *formValidator) { f.draft.Gender = "unknown" },
		models.FieldEmail:            func(f *formValidator) { f.draft.Email = "nope" },
		models.FieldPhone:            func(f *formValidator) { f.draft.Phone = "123" },
		models.FieldStreet:           func(f *formValidator) { f.draft.Street = "" },
		models.FieldCity:             func(f *formValidator) { f.draft.City = "" },
		models.FieldState:            func(f *formValidator) { f.draft.State = "" },
		models.FieldZipCode:          func(f *formValidator) { f.draft.ZipCode = "62_04" },
		models.FieldCountry:          func(f *formValidator) { f.draft.Country = "" },
		models.FieldPreferredGenres:  func(f *formValidator) { f.draft.PreferredGenres = []string{} },
		models.FieldReadingFrequency: func(f *formValidator) { f.draft.ReadingFrequency = "hourly" },
		models.FieldIdentityDocument: func(f *formValidator) { f.attachments.IdentityDocument = nil },
		models.FieldProofOfAddress:   func(f *formValidator) { f.attachments.ProofOfAddress = nil },
		models.FieldAgreeToTerms:     func(f *formValidator) { f.draft.AgreeToTerms = false },
	}
	fields := make([]string, 0, len(breakers))
	for _, s := range []Step{StepPersonal, StepContact, StepAddress, StepPreferences, StepDocuments, StepConsent} {
		fields = append(fields, s.Fields()...)
	}

	for i := 0; i < 300; i++ {
		form := completeForm()
		broken := map[string]bool{}
		for _, f := range fields {
			if rng.Intn(4) == 0 {
				breakers[f](form)
				broken[f] = true
			}
		}

		step := Step(rng.Intn(TotalSteps) + 1)
		c := NewController(form)
		c.SetCurrent(int(step))

		wantOK := true
		for _, f := range step.Fields() {
			if broken[f] {
				wantOK = false
			}
		}

		out := c.Advance()
		if step == StepConsent {
			assert.Equal(t, wantOK, len(out.Errors) == 0, "iteration %d", i)
			continue
		}
		assert.Equal(t, wantOK, out.Advanced, "iteration %d step %d broken %v", i, step, broken)
		if !wantOK {
			assert.True(t, broken[out.FirstInvalid()])
			assert.Equal(t, step, c.Current())
		}
	}
}
