package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/timecapsule/internal/model"
)

// PostgresCapsuleRepo はPostgreSQLを使用したタイムカプセルリポジトリ。
type PostgresCapsuleRepo struct {
	db *sql.DB
}

// NewPostgresCapsuleRepo はPostgresCapsuleRepoを生成する。
func NewPostgresCapsuleRepo(db *sql.DB) *PostgresCapsuleRepo {
	return &PostgresCapsuleRepo{db: db}
}

// Create はカプセルを作成する。
func (r *PostgresCapsuleRepo) Create(ctx context.Context, capsule *model.TimeCapsule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO time_capsules (id, user_id, message, delivery_date, is_delivered, delivered_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		capsule.ID, capsule.UserID, capsule.Message, capsule.DeliveryDate,
		capsule.IsDelivered, capsule.DeliveredAt, capsule.CreatedAt, capsule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("カプセルの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのカプセルを配信日の昇順で返す。
func (r *PostgresCapsuleRepo) ListByUserID(ctx context.Context, userID string) ([]*model.TimeCapsule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, message, delivery_date, is_delivered, delivered_at, created_at, updated_at
		 FROM time_capsules WHERE user_id = $1
		 ORDER BY delivery_date ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("カプセル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var capsules []*model.TimeCapsule
	for rows.Next() {
		c := &model.TimeCapsule{}
		var deliveredAt sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Message, &c.DeliveryDate,
			&c.IsDelivered, &deliveredAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("カプセルのスキャンに失敗しました: %w", err)
		}
		if deliveredAt.Valid {
			c.DeliveredAt = &deliveredAt.Time
		}
		capsules = append(capsules, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カプセル一覧の走査に失敗しました: %w", err)
	}
	return capsules, nil
}

// CountByUserID はユーザーのカプセル数を返す。
func (r *PostgresCapsuleRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM time_capsules WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("カプセル数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// DeleteByIDAndUserID は所有者が一致するカプセルを削除する。
// 他ユーザーのカプセルは削除されず、存在しない場合と同じくfalseを返す。
func (r *PostgresCapsuleRepo) DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM time_capsules WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("カプセルの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ CapsuleRepository = (*PostgresCapsuleRepo)(nil)
