package intake

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "davel-library/internal/common/errors"
	"davel-library/internal/common/logger"
	"davel-library/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type MockProcessStarter struct {
	StartProcessFunc func(ctx context.Context, processID string, variables interface{}) (int64, error)
}

func (m *MockProcessStarter) StartProcess(ctx context.Context, processID string, variables interface{}) (int64, error) {
	if m.StartProcessFunc != nil {
		return m.StartProcessFunc(ctx, processID, variables)
	}
	return 0, nil
}

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"firstName":            "Jane",
		"lastName":             "Doe",
		"dateOfBirth":          "1990-01-01",
		"gender":               "female",
		"email":                "jane.doe@example.com",
		"phone":                "555-123-4567",
		"alternatePhone":       "",
		"street":               "12 Library Lane",
		"city":                 "Springfield",
		"state":                "IL",
		"zipCode":              "62704",
		"country":              "USA",
		"accessibilityNeeds":   false,
		"accessibilityDetails": "",
		"preferredGenres":      []string{"Fiction", "History"},
		"readingFrequency":     "weekly",
		"identityDocument":     "Documents uploaded",
		"proofOfAddress":       "Documents uploaded",
		"additionalDocuments":  nil,
		"agreeToTerms":         true,
		"subscribeNewsletter":  true,
		"applicationFee":       25,
	}
}

func body(t *testing.T, m map[string]interface{}) []byte {
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return raw
}

func expectInsert(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`INSERT INTO membership_applications`).
		WithArgs(
			sqlmock.AnyArg(), // id
			"jane.doe@example.com",
			"Jane",
			"Doe",
			"555-123-4567",
			25,
			true,
			sqlmock.AnyArg(), // payload JSON
			"pending",
			sqlmock.AnyArg(), // created_at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

// ==========================
// Create Tests
// ==========================

func TestCreate_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("jane.doe@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectInsert(mock)
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("membership_application_created", "membership_application", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	var gotVars map[string]interface{}
	starter := &MockProcessStarter{StartProcessFunc: func(ctx context.Context, processID string, variables interface{}) (int64, error) {
		assert.Equal(t, "membership-application", processID)
		gotVars = variables.(map[string]interface{})
		return 2251799813685249, nil
	}}

	svc := NewService(Config{ProcessID: "membership-application"}, db, starter, logger.NewTestLogger(t))
	out, err := svc.Create(context.Background(), body(t, validPayload()))

	require.NoError(t, err)
	assert.NotEmpty(t, out.ApplicationID)
	assert.Equal(t, "pending", out.Status)
	assert.Equal(t, int64(2251799813685249), out.ProcessInstanceKey)
	_, err = time.Parse(time.RFC3339, out.CreatedAt)
	assert.NoError(t, err)

	assert.Equal(t, out.ApplicationID, gotVars["applicationId"])
	assert.Equal(t, true, gotVars["documentsUploaded"])
	assert.Equal(t, false, gotVars["hasAdditionalDocs"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_AuditAndProcessFailuresAreNonFatal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectInsert(mock)
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(errors.New("audit table locked"))

	starter := &MockProcessStarter{StartProcessFunc: func(ctx context.Context, processID string, variables interface{}) (int64, error) {
		return 0, errors.New("broker unavailable")
	}}

	svc := NewService(Config{ProcessID: "membership-application"}, db, starter, logger.NewTestLogger(t))
	out, err := svc.Create(context.Background(), body(t, validPayload()))

	require.NoError(t, err)
	assert.Zero(t, out.ProcessInstanceKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_NilStarter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectInsert(mock)
	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnResult(sqlmock.NewResult(1, 1))

	svc := NewService(Config{ProcessID: "membership-application"}, db, nil, logger.NewNoOpLogger())
	_, err = svc.Create(context.Background(), body(t, validPayload()))
	require.NoError(t, err)
}

func TestCreate_DuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("jane.doe@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	svc := NewService(Config{}, db, nil, logger.NewTestLogger(t))
	_, err = svc.Create(context.Background(), body(t, validPayload()))

	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDuplicateApplication, stdErr.Code)
	assert.Equal(t, "Email already registered", stdErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UniqueViolationRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO membership_applications`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	svc := NewService(Config{}, db, nil, logger.NewTestLogger(t))
	_, err = svc.Create(context.Background(), body(t, validPayload()))

	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDuplicateApplication, stdErr.Code)
}

func TestCreate_DatabaseErrors(t *testing.T) {
	t.Run("duplicate check fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("connection refused"))

		svc := NewService(Config{}, db, nil, logger.NewTestLogger(t))
		_, err = svc.Create(context.Background(), body(t, validPayload()))

		stdErr, ok := apperrors.AsStandardError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, stdErr.Code)
		assert.True(t, stdErr.Retryable)
	})

	t.Run("insert fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`INSERT INTO membership_applications`).WillReturnError(errors.New("disk full"))

		svc := NewService(Config{}, db, nil, logger.NewTestLogger(t))
		_, err = svc.Create(context.Background(), body(t, validPayload()))

		stdErr, ok := apperrors.AsStandardError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeDatabaseInsertFailed, stdErr.Code)
	})
}

func TestCreate_ValidationRejectsBeforeDatabase(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
		field  string
	}{
		{"terms not agreed", func(m map[string]interface{}) { m["agreeToTerms"] = false }, "agreeToTerms"},
		{"raw file object", func(m map[string]interface{}) {
			m["identityDocument"] = map[string]interface{}{"name": "passport.pdf", "size": 1024}
		}, "identityDocument"},
		{"missing proof", func(m map[string]interface{}) { m["proofOfAddress"] = nil }, "proofOfAddress"},
		{"bad email", func(m map[string]interface{}) { m["email"] = "jane@" }, "email"},
		{"first and last bad", func(m map[string]interface{}) {
			m["agreeToTerms"] = false
			m["firstName"] = "J"
		}, "firstName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			m := validPayload()
			tt.mutate(m)

			svc := NewService(Config{}, db, nil, logger.NewTestLogger(t))
			_, err = svc.Create(context.Background(), body(t, m))

			stdErr, ok := apperrors.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeApplicationValidationFailed, stdErr.Code)
			assert.Contains(t, stdErr.Details, tt.field)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreate_MalformedBody(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(Config{}, db, nil, logger.NewNoOpLogger())
	for _, raw := range []string{`{"firstName":`, `[]`, `null`} {
		_, err := svc.Create(context.Background(), []byte(raw))
		stdErr, ok := apperrors.AsStandardError(err)
		require.True(t, ok, raw)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, stdErr.Code)
	}
}

func TestValidate_DecodesPayload(t *testing.T) {
	svc := NewService(Config{}, nil, nil, logger.NewNoOpLogger())
	payload, verrs, err := svc.Validate(body(t, validPayload()))

	require.NoError(t, err)
	assert.Empty(t, verrs)
	assert.Equal(t, "Jane", payload.FirstName)
	assert.Equal(t, models.GenderFemale, payload.Gender)
	require.NotNil(t, payload.IdentityDocument)
	assert.Nil(t, payload.AdditionalDocuments)
}

// ==========================
// Get Tests
// ==========================

func TestGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := "0b7e4f7c-52a6-4c55-9b0e-1a3d3f6b2c11"
	created := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, email`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "first_name", "last_name", "phone", "application_fee",
			"status", "payload", "created_at", "updated_at",
		}).AddRow(id, "jane.doe@example.com", "Jane", "Doe", "555-123-4567", 25,
			"pending", []byte(`{"firstName":"Jane","identityDocument":"Documents uploaded"}`), created, created))

	svc := NewService(Config{}, db, nil, logger.NewNoOpLogger())
	app, err := svc.Get(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, "Jane", app.Payload.FirstName)
	assert.Equal(t, "2024-03-09T14:30:00Z", app.CreatedAt)
	assert.Equal(t, 25, app.ApplicationFee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(Config{}, db, nil, logger.NewNoOpLogger())

	_, err = svc.Get(context.Background(), "not-a-uuid")
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeApplicationNotFound, stdErr.Code)

	id := "0b7e4f7c-52a6-4c55-9b0e-1a3d3f6b2c11"
	mock.ExpectQuery(`SELECT id, email`).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = svc.Get(context.Background(), id)
	stdErr, ok = apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeApplicationNotFound, stdErr.Code)
}
