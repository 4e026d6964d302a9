package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// ProductName はPaymentIntentのmetadataに記録する商品識別子。
const ProductName = "timecapsule_premium"

// Intent は決済ゲートウェイのPaymentIntentを正規化したもの。
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       string
	UserID       string
}

// CreateIntentParams はPaymentIntent作成時のパラメータ。
type CreateIntentParams struct {
	Amount   int64
	Currency string
	UserID   string
}

// Gateway は決済ゲートウェイのインターフェース。
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
}

// StripeGateway はStripe APIを使用したGateway実装。
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway はシークレットキーからStripeGatewayを生成する。
func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, nil)}
}

// NewStripeGatewayWithBackends はバックエンドを差し替えたStripeGatewayを生成する。
// テストでローカルのHTTPサーバーに向ける際に使う。
func NewStripeGatewayWithBackends(secretKey string, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, backends)}
}

// CreateIntent はPaymentIntentを作成する。
func (g *StripeGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	p := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.Amount),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	p.Context = ctx
	p.AddMetadata("userId", params.UserID)
	p.AddMetadata("product", ProductName)

	pi, err := g.api.PaymentIntents.New(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return toIntent(pi), nil
}

// GetIntent はPaymentIntentを取得する。
func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	p := &stripe.PaymentIntentParams{}
	p.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, p)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		UserID:       pi.Metadata["userId"],
	}
}

// compile-time interface check
var _ Gateway = (*StripeGateway)(nil)
