// Package payment はStripeによるプレミアム購入のドメインロジックを提供する。
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/timecapsule/internal/metrics"
	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/repository"
)

// Config は決済機能の設定。
type Config struct {
	PublishableKey string
	PriceID        string
	PriceCents     int64
	Currency       string
	// PremiumMonths はプレミアムの有効月数。0は無期限。
	PremiumMonths int
	// Missing は未設定の必須環境変数名。空でなければ決済APIは503を返す。
	Missing []string
}

// PublicConfig はクライアントに公開する決済設定。
type PublicConfig struct {
	PublishableKey string
	PriceID        string
	Configured     bool
	Missing        []string
}

// Service は決済のサービス層。
type Service struct {
	payments repository.PaymentRepository
	gateway  Gateway
	metrics  metrics.MetricsCollector
	config   Config
	now      func() time.Time
}

// Option はServiceのオプション。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService はServiceを生成する。
// gatewayがnilの場合、またはconfig.Missingが空でない場合は決済APIを無効として扱う。
func NewService(
	payments repository.PaymentRepository,
	gateway Gateway,
	collector metrics.MetricsCollector,
	config Config,
	opts ...Option,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	s := &Service{
		payments: payments,
		gateway:  gateway,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured は決済APIが利用可能かを返す。
func (s *Service) Configured() bool {
	return s.gateway != nil && len(s.config.Missing) == 0
}

// PublicConfig はクライアント向けの決済設定と設定状況を返す。
func (s *Service) PublicConfig() PublicConfig {
	missing := s.config.Missing
	if missing == nil {
		missing = []string{}
	}
	return PublicConfig{
		PublishableKey: s.config.PublishableKey,
		PriceID:        s.config.PriceID,
		Configured:     s.Configured(),
		Missing:        missing,
	}
}

// CreateIntent はプレミアム購入用のPaymentIntentを作成し、決済記録を保存する。
func (s *Service) CreateIntent(ctx context.Context, userID string) (*Intent, error) {
	if !s.Configured() {
		return nil, model.NewPaymentsNotConfiguredError()
	}

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentParams{
		Amount:   s.config.PriceCents,
		Currency: s.config.Currency,
		UserID:   userID,
	})
	if err != nil {
		s.metrics.RecordPayment("error")
		return nil, providerError("create payment intent", userID, err)
	}

	now := s.now().UTC()
	payment := &model.Payment{
		ID:                    model.NewID(),
		UserID:                userID,
		StripePaymentIntentID: intent.ID,
		Amount:                intent.Amount,
		Currency:              intent.Currency,
		Status:                intent.Status,
		PremiumMonths:         s.config.PremiumMonths,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("決済記録の作成に失敗しました: %w", err)
	}

	s.metrics.RecordPayment(intent.Status)
	slog.Info("payment intent created",
		slog.String("user_id", userID),
		slog.String("payment_intent_id", intent.ID),
	)

	return intent, nil
}

// Confirm はPaymentIntentの状態をゲートウェイから再取得し、決済記録に反映する。
// succeededの場合はユーザーをプレミアムにする。確定済みの決済に対しては何もしない。
// 他ユーザーの決済は見つからないものとして扱う。
func (s *Service) Confirm(ctx context.Context, userID, intentID string) (*model.Payment, error) {
	if !s.Configured() {
		return nil, model.NewPaymentsNotConfiguredError()
	}

	payment, err := s.payments.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("決済記録の取得に失敗しました: %w", err)
	}
	if payment == nil || payment.UserID != userID {
		return nil, model.NewPaymentNotFoundError()
	}

	if payment.Status == model.PaymentStatusSucceeded {
		return payment, nil
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, providerError("retrieve payment intent", userID, err)
	}
	if intent.UserID != "" && intent.UserID != userID {
		slog.Warn("payment intent owner mismatch",
			slog.String("user_id", userID),
			slog.String("payment_intent_id", intentID),
		)
		return nil, model.NewPaymentNotFoundError()
	}

	switch {
	case intent.Status == model.PaymentStatusSucceeded:
		if err := s.payments.MarkSucceeded(ctx, payment, s.premiumExpiry()); err != nil {
			return nil, fmt.Errorf("プレミアム付与に失敗しました: %w", err)
		}
		slog.Info("premium granted",
			slog.String("user_id", userID),
			slog.String("payment_intent_id", intentID),
		)
	case intent.Status != payment.Status:
		if err := s.payments.UpdateStatus(ctx, payment.ID, intent.Status); err != nil {
			return nil, fmt.Errorf("決済ステータスの更新に失敗しました: %w", err)
		}
	}

	payment.Status = intent.Status
	payment.UpdatedAt = s.now().UTC()
	s.metrics.RecordPayment(intent.Status)
	return payment, nil
}

// providerError はゲートウェイのエラーをログに残し、詳細を含まないPROVIDER_ERRORに変換する。
func providerError(op, userID string, err error) error {
	slog.Error("payment gateway request failed",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	return model.NewPaymentProviderError("stripe")
}

// premiumExpiry はプレミアムの有効期限を返す。無期限の場合はnil。
func (s *Service) premiumExpiry() *time.Time {
	if s.config.PremiumMonths <= 0 {
		return nil
	}
	t := s.now().UTC().AddDate(0, s.config.PremiumMonths, 0)
	return &t
}

// List はユーザーの決済履歴を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Payment, error) {
	payments, err := s.payments.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("決済履歴の取得に失敗しました: %w", err)
	}
	return payments, nil
}
