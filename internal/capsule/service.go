// Package capsule はタイムカプセルの作成・一覧・削除のドメインロジックを提供する。
package capsule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/timecapsule/internal/metrics"
	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/repository"
	"github.com/hitoshi/timecapsule/internal/security"
)

const (
	// MaxMessageLength はメッセージの最大文字数（トリム後）。
	MaxMessageLength = 1000
	// MinDeliveryLead は作成時点から配信日までの最短期間。
	MinDeliveryLead = 24 * time.Hour
	// DefaultFreeLimit は無料プランで保持できるカプセル数。
	DefaultFreeLimit = 10
)

// UserFinder はユーザー取得のインターフェース。プレミアム判定に使う。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// View は閲覧者に返すカプセルの状態。
// ロック中はRemainingに開封までの残り時間が入り、本文は返さない。
type View struct {
	Capsule   *model.TimeCapsule
	Unlocked  bool
	Remaining *model.TimeRemaining
}

// Service はタイムカプセルのサービス層。
type Service struct {
	capsules  repository.CapsuleRepository
	users     UserFinder
	sanitizer security.ContentSanitizerService
	metrics   metrics.MetricsCollector
	freeLimit int
	now       func() time.Time
}

// Option はServiceのオプション。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithFreeLimit は無料プランの上限数を変更する。
func WithFreeLimit(limit int) Option {
	return func(s *Service) {
		s.freeLimit = limit
	}
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	capsules repository.CapsuleRepository,
	users UserFinder,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	opts ...Option,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	s := &Service{
		capsules:  capsules,
		users:     users,
		sanitizer: sanitizer,
		metrics:   collector,
		freeLimit: DefaultFreeLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List はユーザーのカプセルを配信日の昇順で返す。
// 開封判定は呼び出し時刻で行い、is_deliveredは参照しない。
func (s *Service) List(ctx context.Context, userID string) ([]View, error) {
	capsules, err := s.capsules.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カプセル一覧の取得に失敗しました: %w", err)
	}

	now := s.now()
	views := make([]View, 0, len(capsules))
	for _, c := range capsules {
		views = append(views, View{
			Capsule:   c,
			Unlocked:  c.IsUnlocked(now),
			Remaining: c.RemainingUntilUnlock(now),
		})
	}
	return views, nil
}

// Create はカプセルを作成する。
// 入力の問題はフィールド単位の詳細付きVALIDATION_FAILEDで返す。
// 無料プランの上限に達している場合はFREE_LIMIT_REACHEDを返す。
func (s *Service) Create(ctx context.Context, userID, message, deliveryDate string) (*model.TimeCapsule, error) {
	now := s.now()

	cleaned, date, details := s.validate(message, deliveryDate, now)
	if len(details) > 0 {
		return nil, model.NewValidationError(details)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if !user.HasPremiumAccess(now) {
		count, err := s.capsules.CountByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("カプセル数の取得に失敗しました: %w", err)
		}
		if count >= s.freeLimit {
			return nil, model.NewFreeLimitReachedError(s.freeLimit)
		}
	}

	capsule := &model.TimeCapsule{
		ID:           model.NewID(),
		UserID:       userID,
		Message:      cleaned,
		DeliveryDate: date.UTC(),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if err := s.capsules.Create(ctx, capsule); err != nil {
		return nil, fmt.Errorf("カプセルの作成に失敗しました: %w", err)
	}

	s.metrics.RecordCapsuleCreated()
	slog.Info("capsule created",
		slog.String("user_id", userID),
		slog.String("capsule_id", capsule.ID),
	)

	return capsule, nil
}

// validate はメッセージと配信日を検証し、サニタイズ済みメッセージと配信日を返す。
func (s *Service) validate(message, deliveryDate string, now time.Time) (string, time.Time, []model.FieldError) {
	var details []model.FieldError

	trimmed := strings.TrimSpace(message)
	cleaned := ""
	switch {
	case trimmed == "":
		details = append(details, model.FieldError{Field: "message", Message: "message is required"})
	case utf8.RuneCountInString(trimmed) > MaxMessageLength:
		details = append(details, model.FieldError{
			Field:   "message",
			Message: fmt.Sprintf("message must be at most %d characters", MaxMessageLength),
		})
	default:
		cleaned = s.sanitizer.Sanitize(trimmed)
		if cleaned == "" {
			details = append(details, model.FieldError{Field: "message", Message: "message must contain text"})
		}
	}

	var date time.Time
	if strings.TrimSpace(deliveryDate) == "" {
		details = append(details, model.FieldError{Field: "deliveryDate", Message: "deliveryDate is required"})
	} else if parsed, err := time.Parse(time.RFC3339, deliveryDate); err != nil {
		details = append(details, model.FieldError{Field: "deliveryDate", Message: "deliveryDate must be an RFC 3339 timestamp"})
	} else if parsed.Before(now.Add(MinDeliveryLead)) {
		details = append(details, model.FieldError{Field: "deliveryDate", Message: "deliveryDate must be at least 24 hours in the future"})
	} else {
		date = parsed
	}

	return cleaned, date, details
}

// Delete は所有者が一致するカプセルを削除する。
// IDの形式が不正な場合はINVALID_CAPSULE_ID、該当がない場合はCAPSULE_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, userID, capsuleID string) error {
	capsuleID = model.NormalizeID(capsuleID)
	if !model.IsValidID(capsuleID) {
		return model.NewInvalidCapsuleIDError()
	}

	deleted, err := s.capsules.DeleteByIDAndUserID(ctx, capsuleID, userID)
	if err != nil {
		return fmt.Errorf("カプセルの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewCapsuleNotFoundError()
	}

	s.metrics.RecordCapsuleDeleted()
	slog.Info("capsule deleted",
		slog.String("user_id", userID),
		slog.String("capsule_id", capsuleID),
	)
	return nil
}
