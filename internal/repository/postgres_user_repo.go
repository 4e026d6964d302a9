package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/timecapsule/internal/model"
)

const userColumns = `id, email, name, picture, provider, provider_id, is_premium, premium_expires_at, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var picture sql.NullString
	var premiumExpiresAt sql.NullTime

	if err := row.Scan(
		&user.ID, &user.Email, &user.Name, &picture,
		&user.Provider, &user.ProviderID,
		&user.IsPremium, &premiumExpiresAt,
		&user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if picture.Valid {
		user.Picture = &picture.String
	}
	if premiumExpiresAt.Valid {
		user.PremiumExpiresAt = &premiumExpiresAt.Time
	}
	return user, nil
}

// UpsertByProvider は(provider, provider_id)の一意制約を利用したINSERT ON CONFLICTで
// ユーザーを作成または更新する。同じプロフィールで何度呼び出しても結果は1レコードになる。
func (r *PostgresUserRepo) UpsertByProvider(ctx context.Context, profile *model.OAuthProfile) (*model.User, error) {
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, picture, provider, provider_id, is_premium, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, $7, $7)
		 ON CONFLICT (provider, provider_id) DO UPDATE
		 SET email = EXCLUDED.email,
		     name = EXCLUDED.name,
		     picture = EXCLUDED.picture,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		model.NewID(), profile.Email, profile.Name, profile.Picture,
		profile.Provider, profile.ProviderID, now,
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return nil, ErrEmailConflict
		}
		return nil, fmt.Errorf("ユーザーのUPSERTに失敗しました: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// UpdateProfile は名前とメールアドレスを更新する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET name = $2, email = $3, updated_at = $4
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, update.Name, update.Email, time.Now().UTC(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return nil, ErrEmailConflict
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return user, nil
}

// UpdatePremiumStatus はプレミアム状態と有効期限を更新する。
func (r *PostgresUserRepo) UpdatePremiumStatus(ctx context.Context, id string, isPremium bool, expiresAt *time.Time) error {
	return updatePremiumStatus(ctx, r.db, id, isPremium, expiresAt)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updatePremiumStatus(ctx context.Context, db execer, id string, isPremium bool, expiresAt *time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET is_premium = $2, premium_expires_at = $3, updated_at = $4 WHERE id = $1`,
		id, isPremium, expiresAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("プレミアム状態の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// ListAll は全ユーザーを作成日時の降順で返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザーのスキャンに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}
	return users, nil
}

// withdrawStatements はユーザー削除時に実行する文。最後の文でユーザー本体を削除する。
// 外部キーのCASCADEでも消えるが、子テーブルから順に明示的に削除する。
var withdrawStatements = []string{
	`DELETE FROM time_capsules WHERE user_id = $1`,
	`DELETE FROM payments WHERE user_id = $1`,
	`DELETE FROM user_settings WHERE user_id = $1`,
	`DELETE FROM users WHERE id = $1`,
}

// DeleteByID はユーザーと関連するカプセル・決済記録・設定を1つのトランザクションで削除する。
// ユーザーが存在しない場合は何も削除せずエラーを返す。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var result sql.Result
	for _, stmt := range withdrawStatements {
		if result, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
