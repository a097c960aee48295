package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeCardStore struct {
	cards    map[uint]model.Flashcard
	saveErrs []error
	saves    int
}

func newFakeCardStore(cards ...model.Flashcard) *fakeCardStore {
	s := &fakeCardStore{cards: make(map[uint]model.Flashcard)}
	for _, c := range cards {
		s.cards[c.ID] = c
	}
	return s
}

func (s *fakeCardStore) FindByID(id uint) (*model.Flashcard, error) {
	c, ok := s.cards[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (s *fakeCardStore) Save(card *model.Flashcard) error {
	s.saves++
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	s.cards[card.ID] = *card
	return nil
}

func (s *fakeCardStore) ListDue(userID uint, now time.Time, limit int) ([]model.Flashcard, error) {
	var due []model.Flashcard
	for _, c := range s.cards {
		if c.UserID == userID && !c.NextReview.After(now) {
			due = append(due, c)
		}
	}
	return due, nil
}

func testSRSService(store *fakeCardStore) *SRSService {
	svc := NewSRSService(store, nil, time.Hour)
	svc.now = func() time.Time { return srsNow }
	return svc
}

func srsCard(id, userID uint) model.Flashcard {
	c := model.Flashcard{UserID: userID, Ease: 2.5}
	c.ID = id
	return c
}

func TestRecordReviewAdvancesCard(t *testing.T) {
	store := newFakeCardStore(srsCard(1, 7))
	svc := testSRSService(store)

	card, err := svc.RecordReview(context.Background(), 7, 1, ReviewRequest{Quality: QualityGood})
	require.NoError(t, err)
	assert.Equal(t, 1, card.ReviewCount)
	assert.Equal(t, 1440.0, card.IntervalMinutes)

	stored := store.cards[1]
	assert.Equal(t, 1, stored.ReviewCount)
}

func TestRecordReviewInvalidQuality(t *testing.T) {
	store := newFakeCardStore(srsCard(1, 7))
	svc := testSRSService(store)

	_, err := svc.RecordReview(context.Background(), 7, 1, ReviewRequest{Quality: Quality(9)})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))
	assert.Equal(t, 0, store.saves)
}

func TestRecordReviewWrongOwner(t *testing.T) {
	store := newFakeCardStore(srsCard(1, 7))
	svc := testSRSService(store)

	_, err := svc.RecordReview(context.Background(), 8, 1, ReviewRequest{Quality: QualityGood})
	assert.ErrorIs(t, err, util.ErrCardNotFound)
}

func TestRecordReviewSequenceGuard(t *testing.T) {
	store := newFakeCardStore(srsCard(1, 7))
	svc := testSRSService(store)

	seq := 0
	_, err := svc.RecordReview(context.Background(), 7, 1, ReviewRequest{Quality: QualityGood, Sequence: &seq})
	require.NoError(t, err)

	// 同一序号重放：卡片已推进到 reviewCount=1，拒绝
	_, err = svc.RecordReview(context.Background(), 7, 1, ReviewRequest{Quality: QualityGood, Sequence: &seq})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))

	stored := store.cards[1]
	assert.Equal(t, 1, stored.ReviewCount)
}

func TestRecordReviewRetriesOnceThenFails(t *testing.T) {
	store := newFakeCardStore(srsCard(1, 7))
	store.saveErrs = []error{errors.New("db down"), errors.New("db still down")}
	svc := testSRSService(store)

	_, err := svc.RecordReview(context.Background(), 7, 1, ReviewRequest{Quality: QualityGood})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindPersistence))
	assert.Equal(t, 2, store.saves)

	// 失败的提交不改变卡片状态
	stored := store.cards[1]
	assert.Equal(t, 0, stored.ReviewCount)
}

func TestRecordReviewRetrySucceeds(t *testing.T) {
	store := newFakeCardStore(srsCard(1, 7))
	store.saveErrs = []error{errors.New("transient")}
	svc := testSRSService(store)

	card, err := svc.RecordReview(context.Background(), 7, 1, ReviewRequest{Quality: QualityGood})
	require.NoError(t, err)
	assert.Equal(t, 1, card.ReviewCount)
	assert.Equal(t, 2, store.saves)
}

func TestDueCards(t *testing.T) {
	due := srsCard(1, 7)
	due.NextReview = srsNow.Add(-time.Minute)
	notDue := srsCard(2, 7)
	notDue.NextReview = srsNow.Add(time.Hour)
	other := srsCard(3, 8)
	other.NextReview = srsNow.Add(-time.Minute)

	store := newFakeCardStore(due, notDue, other)
	svc := testSRSService(store)

	cards, err := svc.DueCards(7, 10)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, uint(1), cards[0].ID)
}
