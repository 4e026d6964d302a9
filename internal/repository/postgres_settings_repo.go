package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/timecapsule/internal/model"
)

const settingsColumns = `id, user_id, email_notifications, theme, language, timezone, created_at, updated_at`

// PostgresSettingsRepo はPostgreSQLを使用したユーザー設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

func scanSettings(row rowScanner) (*model.UserSettings, error) {
	s := &model.UserSettings{}
	if err := row.Scan(
		&s.ID, &s.UserID, &s.EmailNotifications, &s.Theme,
		&s.Language, &s.Timezone, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return s, nil
}

// GetOrCreate はユーザー設定を取得する。存在しない場合はデフォルト値で作成する。
// UNIQUE(user_id)制約により同時に呼ばれても1レコードに収束する。
func (r *PostgresSettingsRepo) GetOrCreate(ctx context.Context, userID string) (*model.UserSettings, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (id, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (user_id) DO NOTHING`,
		model.NewID(), userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の作成に失敗しました: %w", err)
	}

	s, err := scanSettings(r.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM user_settings WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	return s, nil
}

// Update はnil以外のフィールドのみ更新し、更新後の設定を返す。
func (r *PostgresSettingsRepo) Update(ctx context.Context, userID string, update model.SettingsUpdate) (*model.UserSettings, error) {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	s, err := scanSettings(r.db.QueryRowContext(ctx,
		`UPDATE user_settings
		 SET email_notifications = COALESCE($2, email_notifications),
		     theme = COALESCE($3, theme),
		     language = COALESCE($4, language),
		     timezone = COALESCE($5, timezone),
		     updated_at = $6
		 WHERE user_id = $1
		 RETURNING `+settingsColumns,
		userID, update.EmailNotifications, update.Theme, update.Language, update.Timezone, time.Now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の更新に失敗しました: %w", err)
	}
	return s, nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
