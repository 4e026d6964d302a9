package model

import "time"

// PaymentStatusSucceeded はStripe PaymentIntentの決済完了ステータス。
const PaymentStatusSucceeded = "succeeded"

// Payment はプレミアム購入の決済記録を表す。
// StripePaymentIntentIDは一意。
type Payment struct {
	ID                    string
	UserID                string
	StripePaymentIntentID string
	Amount                int64 // 最小通貨単位（USDならセント）
	Currency              string
	Status                string
	PremiumMonths         int // 0は無期限
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
