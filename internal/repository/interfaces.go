// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/timecapsule/internal/model"
)

// ErrEmailConflict はメールアドレスが別ユーザーで使用済みであることを表す。
var ErrEmailConflict = errors.New("email already registered to another user")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// UpsertByProvider は(provider, providerId)でユーザーを作成または更新する。
	// 既存ユーザーはemail, name, pictureのみ更新し、プレミアム状態は維持する。
	// 新規ユーザーはisPremium=falseで作成する。
	UpsertByProvider(ctx context.Context, profile *model.OAuthProfile) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// UpdateProfile は名前とメールアドレスを更新する。見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error)

	// UpdatePremiumStatus はプレミアム状態と有効期限を更新する。
	UpdatePremiumStatus(ctx context.Context, id string, isPremium bool, expiresAt *time.Time) error

	// ListAll は全ユーザーを作成日時の降順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するtime_capsules、payments、user_settingsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// CapsuleRepository はタイムカプセルの永続化インターフェース。
type CapsuleRepository interface {
	// Create はカプセルを作成する。
	Create(ctx context.Context, capsule *model.TimeCapsule) error

	// ListByUserID はユーザーのカプセルを配信日の昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.TimeCapsule, error)

	// CountByUserID はユーザーのカプセル数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// DeleteByIDAndUserID は所有者が一致するカプセルを削除する。
	// 削除対象が存在しない場合はfalseを返す。
	DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error)
}

// PaymentRepository は決済記録の永続化インターフェース。
type PaymentRepository interface {
	// Create は決済記録を作成する。
	Create(ctx context.Context, payment *model.Payment) error

	// FindByIntentID はStripe PaymentIntent IDで決済記録を取得する。見つからない場合はnilを返す。
	FindByIntentID(ctx context.Context, intentID string) (*model.Payment, error)

	// UpdateStatus は決済ステータスを更新する。
	UpdateStatus(ctx context.Context, id, status string) error

	// MarkSucceeded は決済ステータスをsucceededにし、ユーザーをプレミアムにする。
	// 2つの更新は同一トランザクションで行う。
	MarkSucceeded(ctx context.Context, payment *model.Payment, premiumExpiresAt *time.Time) error

	// ListByUserID はユーザーの決済記録を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Payment, error)
}

// SettingsRepository はユーザー設定の永続化インターフェース。
type SettingsRepository interface {
	// GetOrCreate はユーザー設定を取得する。存在しない場合はデフォルト値で作成する。
	GetOrCreate(ctx context.Context, userID string) (*model.UserSettings, error)

	// Update はnil以外のフィールドのみ更新し、更新後の設定を返す。
	Update(ctx context.Context, userID string, update model.SettingsUpdate) (*model.UserSettings, error)
}
