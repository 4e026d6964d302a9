package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/timecapsule/internal/model"
)

const paymentColumns = `id, user_id, stripe_payment_intent_id, amount, currency, status, premium_months, created_at, updated_at`

// PostgresPaymentRepo はPostgreSQLを使用した決済記録リポジトリ。
type PostgresPaymentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db *sql.DB) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(
		&p.ID, &p.UserID, &p.StripePaymentIntentID, &p.Amount, &p.Currency,
		&p.Status, &p.PremiumMonths, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return p, nil
}

// Create は決済記録を作成する。
func (r *PostgresPaymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		payment.ID, payment.UserID, payment.StripePaymentIntentID, payment.Amount, payment.Currency,
		payment.Status, payment.PremiumMonths, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("決済記録の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByIntentID はStripe PaymentIntent IDで決済記録を取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentRepo) FindByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE stripe_payment_intent_id = $1`,
		intentID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("決済記録の取得に失敗しました: %w", err)
	}
	return p, nil
}

// UpdateStatus は決済ステータスを更新する。
func (r *PostgresPaymentRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("決済ステータスの更新に失敗しました: %w", err)
	}
	return nil
}

// MarkSucceeded は決済ステータスとユーザーのプレミアム状態を同一トランザクションで更新する。
func (r *PostgresPaymentRepo) MarkSucceeded(ctx context.Context, payment *model.Payment, premiumExpiresAt *time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`,
		payment.ID, model.PaymentStatusSucceeded, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("決済ステータスの更新に失敗しました: %w", err)
	}

	if err := updatePremiumStatus(ctx, tx, payment.UserID, true, premiumExpiresAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの決済記録を作成日時の降順で返す。
func (r *PostgresPaymentRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("決済履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var payments []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("決済記録のスキャンに失敗しました: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("決済履歴の走査に失敗しました: %w", err)
	}
	return payments, nil
}

// compile-time interface check
var _ PaymentRepository = (*PostgresPaymentRepo)(nil)
