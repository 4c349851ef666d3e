package draft

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"davel-library/internal/common/logger"
	"davel-library/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type MockStore struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key, value string) error
	DeleteFunc func(ctx context.Context, key string) error
}

func (m *MockStore) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", ErrNotFound
}

func (m *MockStore) Set(ctx context.Context, key, value string) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

var fixedNow = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func newPersistence(t *testing.T, store Store) *Persistence {
	return New(store, "", logger.NewTestLogger(t), WithClock(func() time.Time { return fixedNow }))
}

func sampleDraft() *models.Draft {
	d := models.NewDraft(37)
	d.FirstName = "Jane"
	d.LastName = "Doe"
	d.DateOfBirth = "1990-01-01"
	d.Gender = models.GenderFemale
	d.Email = "jane.doe@example.com"
	d.Phone = "555-123-4567"
	d.AlternatePhone = "555-000-1111"
	d.Street = "12 Library Lane"
	d.City = "Springfield"
	d.State = "IL"
	d.ZipCode = "62704"
	d.Country = "USA"
	d.AccessibilityNeeds = true
	d.AccessibilityDetails = "Large print"
	d.PreferredGenres = []string{"Fiction", "History"}
	d.ReadingFrequency = models.ReadingWeekly
	d.AgreeToTerms = true
	d.SubscribeNewsletter = false
	return d
}

// ==========================
// Store Tests
// ==========================

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	assert.Equal(t, 0, s.Len())
}

func TestRedisStore_Miniredis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, time.Hour)

	_, err := s.Get(ctx, "membershipApplication:abc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "membershipApplication:abc", `{"firstName":"Jane"}`))
	v, err := s.Get(ctx, "membershipApplication:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"firstName":"Jane"}`, v)
	assert.Equal(t, time.Hour, mr.TTL("membershipApplication:abc"))

	mr.FastForward(2 * time.Hour)
	_, err = s.Get(ctx, "membershipApplication:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_NoExpiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, 0)
	require.NoError(t, s.Set(ctx, "k", "v"))
	assert.Equal(t, time.Duration(0), mr.TTL("k"))

	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	s := NewRedisStore(client, 0)

	mock.ExpectGet("k").SetErr(errors.New("connection refused"))
	_, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection refused")

	mock.ExpectSet("k", "v", 0).SetErr(errors.New("OOM command not allowed"))
	assert.Error(t, s.Set(ctx, "k", "v"))

	mock.ExpectDel("k").SetErr(errors.New("READONLY"))
	assert.Error(t, s.Delete(ctx, "k"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Persistence Tests
// ==========================

func TestSave_WritesFieldsAndMetadata(t *testing.T) {
	store := NewMemoryStore()
	p := newPersistence(t, store)

	savedAt, err := p.Save(context.Background(), sampleDraft(), 4)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, savedAt)

	raw, err := store.Get(context.Background(), DefaultKey)
	require.NoError(t, err)

	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "2024-03-09T14:30:00Z", stored[KeyLastSaved])
	assert.EqualValues(t, 4, stored[KeyCurrentStep])
	assert.Len(t, stored, len(models.DraftFields)+2)
	assert.NotContains(t, stored, models.FieldIdentityDocument)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newPersistence(t, NewMemoryStore())
	d := sampleDraft()

	_, err := p.Save(ctx, d, 4)
	require.NoError(t, err)

	snap, err := p.Load(ctx, models.NewDraft(11))
	require.NoError(t, err)
	assert.Equal(t, d, snap.Draft)
	assert.Equal(t, 4, snap.Step)
	assert.Equal(t, fixedNow, snap.LastSaved)
	assert.Equal(t, models.DraftFields, snap.Restored)
	assert.Empty(t, snap.Skipped)
	assert.Equal(t, []string{"Fiction", "History"}, snap.Draft.PreferredGenres)
	assert.Equal(t, 37, snap.Draft.ApplicationFee)
}

func TestSave_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := newPersistence(t, store)
	d := sampleDraft()

	_, err := p.Save(ctx, d, 2)
	require.NoError(t, err)
	first, _ := store.Get(ctx, DefaultKey)

	_, err = p.Save(ctx, d, 2)
	require.NoError(t, err)
	second, _ := store.Get(ctx, DefaultKey)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.Len())
}

func TestLoad_Absent(t *testing.T) {
	p := newPersistence(t, NewMemoryStore())
	_, err := p.Load(context.Background(), models.NewDraft(10))
	assert.ErrorIs(t, err, ErrNoDraft)
}

func TestLoad_Corrupt(t *testing.T) {
	for _, raw := range []string{`{not json`, `[1,2,3]`, `null`, `"text"`} {
		t.Run(raw, func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Set(context.Background(), DefaultKey, raw))
			p := newPersistence(t, store)

			snap, err := p.Load(context.Background(), models.NewDraft(10))
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, ErrCorruptDraft)
		})
	}
}

func TestLoad_ReadFailure(t *testing.T) {
	store := &MockStore{GetFunc: func(ctx context.Context, key string) (string, error) {
		return "", errors.New("disk unavailable")
	}}
	p := newPersistence(t, store)

	_, err := p.Load(context.Background(), models.NewDraft(10))
	assert.ErrorIs(t, err, ErrReadFailed)
}

func TestLoad_PartialRestore(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), DefaultKey, `{
		"firstName": "Jane",
		"lastName": 42,
		"preferredGenres": ["Poetry"],
		"legacyField": "ignored",
		"currentStep": 9
	}`))
	p := newPersistence(t, store)

	snap, err := p.Load(context.Background(), models.NewDraft(15))
	require.NoError(t, err)
	assert.Equal(t, "Jane", snap.Draft.FirstName)
	assert.Empty(t, snap.Draft.LastName)
	assert.Equal(t, []string{"Poetry"}, snap.Draft.PreferredGenres)
	assert.Equal(t, 15, snap.Draft.ApplicationFee)
	assert.True(t, snap.Draft.SubscribeNewsletter)
	assert.Equal(t, 1, snap.Step)
	assert.True(t, snap.LastSaved.IsZero())
	assert.Equal(t, []string{models.FieldFirstName, models.FieldPreferredGenres}, snap.Restored)
	assert.Equal(t, []string{models.FieldLastName}, snap.Skipped)
}

func TestLoad_DoesNotMutateBase(t *testing.T) {
	ctx := context.Background()
	p := newPersistence(t, NewMemoryStore())
	_, err := p.Save(ctx, sampleDraft(), 3)
	require.NoError(t, err)

	base := models.NewDraft(10)
	_, err = p.Load(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, base.FirstName)
}

func TestSave_WriteFailure(t *testing.T) {
	store := &MockStore{SetFunc: func(ctx context.Context, key, value string) error {
		return errors.New("quota exceeded")
	}}
	p := newPersistence(t, store)

	_, err := p.Save(context.Background(), sampleDraft(), 1)
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := New(store, "membershipApplication:s1", logger.NewNoOpLogger())

	_, err := p.Save(ctx, sampleDraft(), 5)
	require.NoError(t, err)
	require.NoError(t, p.Clear(ctx))

	_, err = p.Load(ctx, models.NewDraft(10))
	assert.ErrorIs(t, err, ErrNoDraft)
	assert.NoError(t, p.Clear(ctx))
	assert.Equal(t, "membershipApplication:s1", p.Key())
}

func TestPersistence_RedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := newPersistence(t, NewRedisStore(client, 0))
	d := sampleDraft()

	_, err := p.Save(ctx, d, 6)
	require.NoError(t, err)
	snap, err := p.Load(ctx, models.NewDraft(1))
	require.NoError(t, err)
	assert.Equal(t, d, snap.Draft)
	assert.Equal(t, 6, snap.Step)
}
