package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refbot/backend/internal/crypto"
	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/repository"
)

type fakeAttrStore struct {
	users  map[int64]*model.User
	grades []model.Grade
	edges  map[int64]int64 // referred -> referrer
}

func newFakeAttrStore() *fakeAttrStore {
	return &fakeAttrStore{
		users: make(map[int64]*model.User),
		edges: make(map[int64]int64),
	}
}

func (s *fakeAttrStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeAttrStore) GetUserByEmail(_ context.Context, encEmail string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email != nil && *u.Email == encEmail {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeAttrStore) GetUserByEmailAndPhone(_ context.Context, encEmail, encPhone string) (*model.User, error) {
	for _, u := range s.users {
		if u.Email != nil && *u.Email == encEmail && u.Phone != nil && *u.Phone == encPhone {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *fakeAttrStore) LinkReferral(_ context.Context, referrerID, referredID int64) error {
	referred, ok := s.users[referredID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if referred.ReferrerID != nil {
		return repository.ErrAlreadyLinked
	}
	referred.ReferrerID = &referrerID
	referred.IsVerified = true
	s.edges[referredID] = referrerID
	return nil
}

func (s *fakeAttrStore) CountActiveReferrals(_ context.Context, referrerID int64) (int, error) {
	count := 0
	for _, r := range s.edges {
		if r == referrerID {
			count++
		}
	}
	return count, nil
}

func (s *fakeAttrStore) ListGrades(_ context.Context) ([]model.Grade, error) {
	return s.grades, nil
}

type notification struct {
	userID  int64
	gradeID int64
	count   int
}

type fakeNotifier struct {
	gradeAchieved     []notification
	referralConfirmed []notification
}

func (n *fakeNotifier) NotifyGradeAchieved(_ context.Context, userID int64, grade model.Grade) error {
	n.gradeAchieved = append(n.gradeAchieved, notification{userID: userID, gradeID: grade.ID})
	return nil
}

func (n *fakeNotifier) NotifyReferralConfirmed(_ context.Context, userID int64, count int) error {
	n.referralConfirmed = append(n.referralConfirmed, notification{userID: userID, count: count})
	return nil
}

type attrFixture struct {
	store    *fakeAttrStore
	vault    *TokenVault
	cipher   *crypto.Cipher
	notifier *fakeNotifier
	svc      *AttributionService
}

func newAttrFixture(t *testing.T) *attrFixture {
	t.Helper()
	cipher := crypto.New("test-key")
	store := newFakeAttrStore()
	vault := NewTokenVault(newFakeTokenStore(), cipher)
	notifier := &fakeNotifier{}
	return &attrFixture{
		store:    store,
		vault:    vault,
		cipher:   cipher,
		notifier: notifier,
		svc:      NewAttributionService(store, vault, cipher, notifier),
	}
}

func (f *attrFixture) addUser(id int64, email, phone string, subscribed bool) *model.User {
	u := &model.User{ID: id, IsSubscribed: subscribed, IsActive: true}
	if email != "" {
		enc := f.cipher.Encrypt(NormalizeEmail(email))
		u.Email = &enc
	}
	if phone != "" {
		enc := f.cipher.Encrypt(NormalizePhone(phone))
		u.Phone = &enc
	}
	f.store.users[id] = u
	return u
}

func TestImportGradeCrossing(t *testing.T) {
	f := newAttrFixture(t)
	f.store.grades = []model.Grade{
		{ID: 1, ReferralThreshold: 5, Rewards: `["Рюкзак"]`},
		{ID: 2, ReferralThreshold: 10, Rewards: `["Мерч"]`},
	}

	referrer := f.addUser(100, "ref@example.com", "+79001112233", true)
	for i := int64(1); i <= 4; i++ {
		f.addUser(i, "", "", true)
		f.store.edges[i] = referrer.ID
	}
	f.addUser(200, "student@example.com", "", true)

	summary := f.svc.Import(context.Background(), []ImportRow{
		{Line: 2, StudentEmail: "student@example.com", ReferrerPrimary: "ref@example.com", ReferrerSecondary: "+79001112233"},
	})

	assert.Equal(t, 1, summary.Linked)
	assert.Empty(t, summary.Errors)
	require.Len(t, f.notifier.gradeAchieved, 1)
	assert.Equal(t, referrer.ID, f.notifier.gradeAchieved[0].userID)
	assert.Equal(t, int64(1), f.notifier.gradeAchieved[0].gradeID)
	assert.Empty(t, f.notifier.referralConfirmed, "crossing replaces the plain confirmation")

	count, _ := f.store.CountActiveReferrals(context.Background(), referrer.ID)
	assert.Equal(t, 5, count)
}

func TestResolveReferrerByTokens(t *testing.T) {
	f := newAttrFixture(t)
	referrer := f.addUser(100, "ref@example.com", "+79001112233", true)

	ctx := context.Background()
	emailTok, err := f.vault.GetOrCreateToken(ctx, *referrer.Email, model.ValueTypeEmail)
	require.NoError(t, err)
	phoneTok, err := f.vault.GetOrCreateToken(ctx, *referrer.Phone, model.ValueTypePhone)
	require.NoError(t, err)

	got, err := f.svc.ResolveReferrer(ctx, ImportRow{ReferrerPrimary: emailTok, ReferrerSecondary: phoneTok})
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, got.ID)
}

func TestResolveReferrerByNumericID(t *testing.T) {
	f := newAttrFixture(t)
	referrer := f.addUser(123456, "", "", true)

	got, err := f.svc.ResolveReferrer(context.Background(), ImportRow{ReferrerPrimary: "123456"})
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, got.ID)
}

func TestResolveReferrerByEmailOnly(t *testing.T) {
	f := newAttrFixture(t)
	referrer := f.addUser(100, "ref@example.com", "", true)

	got, err := f.svc.ResolveReferrer(context.Background(), ImportRow{ReferrerPrimary: "Ref@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, referrer.ID, got.ID)
}

func TestResolveReferrerNotFound(t *testing.T) {
	f := newAttrFixture(t)

	_, err := f.svc.ResolveReferrer(context.Background(), ImportRow{ReferrerPrimary: "nobody@example.com"})
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestImportDeferredUntilSubscribed(t *testing.T) {
	f := newAttrFixture(t)
	f.addUser(100, "ref@example.com", "", true)
	student := f.addUser(200, "student@example.com", "", false)

	rows := []ImportRow{{Line: 2, StudentEmail: "student@example.com", ReferrerPrimary: "ref@example.com"}}

	summary := f.svc.Import(context.Background(), rows)
	assert.Equal(t, 1, summary.Deferred)
	assert.Nil(t, student.ReferrerID, "no edge before the gate")

	student.IsSubscribed = true
	summary = f.svc.Import(context.Background(), rows)
	assert.Equal(t, 1, summary.Linked)

	summary = f.svc.Import(context.Background(), rows)
	assert.Equal(t, 1, summary.AlreadyLinked, "re-import of a linked row is a no-op")
	assert.Len(t, f.store.edges, 1, "exactly one edge after three passes")
}

func TestImportStudentNotFound(t *testing.T) {
	f := newAttrFixture(t)
	f.addUser(100, "ref@example.com", "", true)

	summary := f.svc.Import(context.Background(), []ImportRow{
		{Line: 2, StudentEmail: "ghost@example.com", ReferrerPrimary: "ref@example.com"},
	})
	assert.Equal(t, 1, summary.StudentNotFound)
}

func TestImportSelfReferral(t *testing.T) {
	f := newAttrFixture(t)
	f.addUser(100, "same@example.com", "", true)

	summary := f.svc.Import(context.Background(), []ImportRow{
		{Line: 2, StudentEmail: "same@example.com", ReferrerPrimary: "same@example.com"},
	})
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "строка 2")
}

func TestMapColumnsAliases(t *testing.T) {
	cols, err := MapColumns([]string{"E-Mail", "UTM Campaign", "utm_content"})
	require.NoError(t, err)
	assert.Equal(t, 0, cols["email"])
	assert.Equal(t, 1, cols["referrer_primary"])
	assert.Equal(t, 2, cols["referrer_secondary"])
}

func TestMapColumnsMissingRequired(t *testing.T) {
	_, err := MapColumns([]string{"utm_campaign", "utm_content"})
	assert.ErrorIs(t, err, ErrMissingColumns)

	_, err = MapColumns([]string{"email", "utm_content"})
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestParseImportCSV(t *testing.T) {
	data := "\uFEFFemail,utm_campaign,utm_content\nstudent@example.com,abc12345,def67890\nother@example.com,ref@example.com,\n"

	rows, err := ParseImportCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "student@example.com", rows[0].StudentEmail)
	assert.Equal(t, "abc12345", rows[0].ReferrerPrimary)
	assert.Equal(t, "def67890", rows[0].ReferrerSecondary)
	assert.Empty(t, rows[1].ReferrerSecondary)
}

func TestParseImportCSVMissingColumns(t *testing.T) {
	_, err := ParseImportCSV(strings.NewReader("name,phone\nx,y\n"))
	assert.ErrorIs(t, err, ErrMissingColumns)
}
