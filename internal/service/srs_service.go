package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/util"
	"certlearn_backend/pkg/logger"
	"certlearn_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CardStore Flashcard 的读写，调度状态只经由本服务变更
type CardStore interface {
	FindByID(id uint) (*model.Flashcard, error)
	Save(card *model.Flashcard) error
	ListDue(userID uint, now time.Time, limit int) ([]model.Flashcard, error)
}

// SRSService 间隔复习调度的有状态外壳：加载卡片、复习幂等防护、落库。
// 间隔计算本身是纯函数 ScheduleReview。
type SRSService struct {
	Cards CardStore
	// Redis 为 nil 时退化为 sequence 校验
	Redis    *redis.Client
	TokenTTL time.Duration

	now func() time.Time

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewSRSService(cards CardStore, rdb *redis.Client, tokenTTL time.Duration) *SRSService {
	return &SRSService{
		Cards:    cards,
		Redis:    rdb,
		TokenTTL: tokenTTL,
		now:      time.Now,
		locks:    make(map[uint]*sync.Mutex),
	}
}

func (s *SRSService) cardLock(cardID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[cardID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[cardID] = l
	}
	return l
}

// ReviewRequest 一次复习提交
type ReviewRequest struct {
	Quality Quality `json:"quality"`
	// ReviewToken 客户端生成的幂等 token，防止重复提交同一次复习
	ReviewToken string `json:"reviewToken"`
	// Sequence 可选的序号校验：须等于提交前的 reviewCount
	Sequence *int `json:"sequence,omitempty"`
}

// RecordReview 记录一次复习并推进调度状态。
// 同一 token 的重复提交被拒绝；每次成功调用 reviewCount 恰好加一。
func (s *SRSService) RecordReview(ctx context.Context, userID, cardID uint, req ReviewRequest) (*model.Flashcard, error) {
	if !req.Quality.Valid() {
		return nil, util.NewValidationError("quality must be between 0 (again) and 3 (easy)")
	}

	if req.ReviewToken != "" && s.Redis != nil {
		key := fmt.Sprintf("srs:review:%d:%s", cardID, req.ReviewToken)
		ok, err := s.Redis.SetNX(ctx, key, 1, s.TokenTTL).Result()
		if err != nil {
			// Redis 故障不阻断复习，降级为 sequence 校验
			logger.Log.Warn("review token reservation failed, falling back to sequence check",
				zap.Error(err))
		} else if !ok {
			return nil, util.NewValidationError("duplicate review submission for token %s", req.ReviewToken)
		}
	}

	lock := s.cardLock(cardID)
	lock.Lock()
	defer lock.Unlock()

	card, err := s.Cards.FindByID(cardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCardNotFound
		}
		return nil, err
	}
	if card.UserID != userID {
		return nil, util.ErrCardNotFound
	}

	if req.Sequence != nil && *req.Sequence != card.ReviewCount {
		return nil, util.NewValidationError("stale review: expected sequence %d, got %d", card.ReviewCount, *req.Sequence)
	}

	updated := ScheduleReview(*card, req.Quality, s.now())
	updated.ID = card.ID
	updated.CreatedAt = card.CreatedAt

	err = util.RetryOnce(util.PersistRetryBackoff, func() error {
		return s.Cards.Save(&updated)
	})
	if err != nil {
		return nil, util.NewPersistenceError("failed to persist review", err)
	}

	monitoring.ReviewsRecorded.WithLabelValues(req.Quality.String()).Inc()
	return &updated, nil
}

// DueCards 返回到期待复习的卡片
func (s *SRSService) DueCards(userID uint, limit int) ([]model.Flashcard, error) {
	return s.Cards.ListDue(userID, s.now(), limit)
}
