package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refbot/backend/internal/model"
)

func ladder() []model.Grade {
	return []model.Grade{
		{ID: 1, ReferralThreshold: 3, Rewards: `["Стикерпак"]`},
		{ID: 2, ReferralThreshold: 5, Rewards: `["Мерч"]`},
		{ID: 3, ReferralThreshold: 10, Rewards: `["Консультация"]`},
	}
}

func TestAchieved(t *testing.T) {
	assert.Empty(t, Achieved(ladder(), 0))
	assert.Empty(t, Achieved(ladder(), 2))

	got := Achieved(ladder(), 5)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)

	assert.Len(t, Achieved(ladder(), 100), 3)
}

func TestNext(t *testing.T) {
	next := Next(ladder(), 0)
	require.NotNil(t, next)
	assert.Equal(t, 3, next.ReferralThreshold)

	next = Next(ladder(), 3)
	require.NotNil(t, next)
	assert.Equal(t, 5, next.ReferralThreshold)

	assert.Nil(t, Next(ladder(), 10), "ladder exhausted")
}

func TestNewlyCrossedExactMatch(t *testing.T) {
	assert.Empty(t, NewlyCrossed(ladder(), 4), "between thresholds nothing fires")

	got := NewlyCrossed(ladder(), 5)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestNewlyCrossedSharedThreshold(t *testing.T) {
	grades := append(ladder(), model.Grade{ID: 4, ReferralThreshold: 5, Rewards: `["Бонус"]`})

	got := NewlyCrossed(grades, 5)
	require.Len(t, got, 2, "grades sharing a threshold fire together")
}

func TestNewlyCrossedSubsetOfAchieved(t *testing.T) {
	for count := 0; count <= 12; count++ {
		achieved := map[int64]bool{}
		for _, g := range Achieved(ladder(), count) {
			achieved[g.ID] = true
		}
		for _, g := range NewlyCrossed(ladder(), count) {
			assert.True(t, achieved[g.ID], "crossed grade must be achieved at count %d", count)
		}
	}
}

type fakeGradeStore struct {
	grades []model.Grade
	claims []model.GradeClaim
	counts map[int64]int
	nextID int64
}

func newFakeGradeStore(grades []model.Grade) *fakeGradeStore {
	return &fakeGradeStore{grades: grades, counts: make(map[int64]int), nextID: 100}
}

func (s *fakeGradeStore) ListGrades(context.Context) ([]model.Grade, error) {
	return s.grades, nil
}

func (s *fakeGradeStore) GetGrade(_ context.Context, id int64) (*model.Grade, error) {
	for i := range s.grades {
		if s.grades[i].ID == id {
			return &s.grades[i], nil
		}
	}
	return nil, ErrGradeNotFound
}

func (s *fakeGradeStore) CreateGrade(_ context.Context, g *model.Grade) error {
	s.nextID++
	g.ID = s.nextID
	s.grades = append(s.grades, *g)
	return nil
}

func (s *fakeGradeStore) UpdateGrade(context.Context, *model.Grade) error { return nil }

func (s *fakeGradeStore) DeleteGrade(context.Context, int64) error { return nil }

func (s *fakeGradeStore) CountActiveReferrals(_ context.Context, referrerID int64) (int, error) {
	return s.counts[referrerID], nil
}

func (s *fakeGradeStore) UsersForGrade(context.Context, int) ([]model.ReferrerCount, error) {
	return nil, nil
}

func (s *fakeGradeStore) HasGradeClaim(_ context.Context, userID, gradeID int64) (bool, error) {
	for _, c := range s.claims {
		if c.UserID == userID && c.GradeID == gradeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeGradeStore) CreateGradeClaim(_ context.Context, claim *model.GradeClaim) error {
	s.claims = append(s.claims, *claim)
	return nil
}

func (s *fakeGradeStore) GetUserGradeClaims(_ context.Context, userID int64) ([]model.GradeClaim, error) {
	var out []model.GradeClaim
	for _, c := range s.claims {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestClaimExactlyOnce(t *testing.T) {
	store := newFakeGradeStore(ladder())
	svc := NewGradeService(store)
	ctx := context.Background()

	require.NoError(t, svc.Claim(ctx, 1, 2, 99))

	err := svc.Claim(ctx, 1, 2, 99)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	// the second attempt must not add a ledger row
	require.Len(t, store.claims, 1)
	assert.Equal(t, int64(99), store.claims[0].IssuedByAdmin)

	claimed, err := svc.HasClaim(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimDistinctGradesIndependent(t *testing.T) {
	store := newFakeGradeStore(ladder())
	svc := NewGradeService(store)
	ctx := context.Background()

	require.NoError(t, svc.Claim(ctx, 1, 1, 99))
	require.NoError(t, svc.Claim(ctx, 1, 2, 99))
	require.NoError(t, svc.Claim(ctx, 2, 1, 99))
	assert.Len(t, store.claims, 3)
}

func TestAchievedByUser(t *testing.T) {
	store := newFakeGradeStore(ladder())
	store.counts[1] = 5
	svc := NewGradeService(store)

	grades, count, err := svc.AchievedByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	require.Len(t, grades, 2)
}

func TestCreateGradeRejectsNegativeThreshold(t *testing.T) {
	svc := NewGradeService(newFakeGradeStore(nil))

	_, err := svc.CreateGrade(context.Background(), -1, []string{"Мерч"})
	assert.Error(t, err)
}
