// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/repository"
	"github.com/hitoshi/timecapsule/internal/security"
)

// Service はユーザー管理のサービス層。
// プロフィール、設定、退会、管理者向け一覧を提供する。
type Service struct {
	userRepo     repository.UserRepository
	settingsRepo repository.SettingsRepository
	sanitizer    security.ContentSanitizerService
	adminEmail   string
}

// NewService はServiceの新しいインスタンスを生成する。
// adminEmailが空の場合、管理者APIは誰にも許可されない。
func NewService(
	userRepo repository.UserRepository,
	settingsRepo repository.SettingsRepository,
	sanitizer security.ContentSanitizerService,
	adminEmail string,
) *Service {
	return &Service{
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		sanitizer:    sanitizer,
		adminEmail:   strings.ToLower(strings.TrimSpace(adminEmail)),
	}
}

// Get はユーザーを取得する。見つからない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// GetForCaller は呼び出し元自身のユーザー情報のみを返す。
// 対象IDが空なら400、呼び出し元と異なれば403、存在しなければ404。
func (s *Service) GetForCaller(ctx context.Context, callerID, targetID string) (*model.User, error) {
	if targetID == "" {
		return nil, model.NewValidationError([]model.FieldError{
			{Field: "id", Message: "id is required"},
		})
	}
	if targetID != callerID {
		return nil, model.NewForbiddenError()
	}
	return s.Get(ctx, targetID)
}

// UpdateProfile は名前とメールアドレスを更新する。
// メールアドレスは小文字に正規化し、別ユーザーが使用中ならEMAIL_ALREADY_REGISTEREDを返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	update.Name = s.sanitizer.Sanitize(update.Name)
	update.Email = strings.ToLower(strings.TrimSpace(update.Email))
	if update.Name == "" {
		return nil, model.NewValidationError([]model.FieldError{
			{Field: "name", Message: "name must contain text"},
		})
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, update)
	if err != nil {
		if errors.Is(err, repository.ErrEmailConflict) {
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("profile updated", slog.String("user_id", userID))
	return user, nil
}

// IsAdmin はユーザーが管理者かを返す。メールアドレスは大文字小文字を区別しない。
func (s *Service) IsAdmin(user *model.User) bool {
	return s.adminEmail != "" && strings.EqualFold(user.Email, s.adminEmail)
}

// ListAll は管理者に全ユーザーを返す。管理者以外はFORBIDDEN。
// 判定にはトークンではなく保存済みのメールアドレスを使う。
func (s *Service) ListAll(ctx context.Context, callerID string) ([]*model.User, error) {
	caller, err := s.Get(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !s.IsAdmin(caller) {
		slog.Warn("admin access denied", slog.String("user_id", callerID))
		return nil, model.NewForbiddenError()
	}

	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// GetSettings はユーザー設定を返す。未作成の場合はデフォルト値で作成する。
func (s *Service) GetSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	settings, err := s.settingsRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	return settings, nil
}

// UpdateSettings は指定されたフィールドのみ設定を更新する。
func (s *Service) UpdateSettings(ctx context.Context, userID string, update model.SettingsUpdate) (*model.UserSettings, error) {
	// 行が存在しない場合に備えて先に作成しておく
	if _, err := s.settingsRepo.GetOrCreate(ctx, userID); err != nil {
		return nil, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}

	settings, err := s.settingsRepo.Update(ctx, userID, update)
	if err != nil {
		return nil, fmt.Errorf("設定の更新に失敗しました: %w", err)
	}
	return settings, nil
}

// Withdraw はユーザーの退会処理を実行する。
// カプセル・決済記録・設定はユーザーと同じトランザクションで削除される（UserRepository.DeleteByID）。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)
	return nil
}
