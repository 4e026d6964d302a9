package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/repository"
)

// --- モック ---

type mockGateway struct {
	createFn func(ctx context.Context, params CreateIntentParams) (*Intent, error)
	getFn    func(ctx context.Context, intentID string) (*Intent, error)
	getCalls int
}

func (m *mockGateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	return m.createFn(ctx, params)
}

func (m *mockGateway) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	m.getCalls++
	return m.getFn(ctx, intentID)
}

type mockPaymentRepo struct {
	created         []*model.Payment
	payment         *model.Payment
	statusUpdates   []string
	succeededCalls  int
	succeededExpiry *time.Time
}

func (m *mockPaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	m.created = append(m.created, p)
	return nil
}

func (m *mockPaymentRepo) FindByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	if m.payment != nil && m.payment.StripePaymentIntentID == intentID {
		return m.payment, nil
	}
	return nil, nil
}

func (m *mockPaymentRepo) UpdateStatus(ctx context.Context, id, status string) error {
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *mockPaymentRepo) MarkSucceeded(ctx context.Context, p *model.Payment, expiresAt *time.Time) error {
	m.succeededCalls++
	m.succeededExpiry = expiresAt
	return nil
}

func (m *mockPaymentRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Payment, error) {
	return []*model.Payment{{ID: "p2", UserID: userID}, {ID: "p1", UserID: userID}}, nil
}

var _ repository.PaymentRepository = (*mockPaymentRepo)(nil)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		PublishableKey: "pk_test_123",
		PriceID:        "price_123",
		PriceCents:     999,
		Currency:       "usd",
	}
}

func newTestService(repo *mockPaymentRepo, gw Gateway, cfg Config) *Service {
	return NewService(repo, gw, nil, cfg, WithClock(func() time.Time { return fixedNow }))
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != code {
		t.Fatalf("error = %v, want %s", err, code)
	}
}

// --- テスト ---

func TestCreateIntent_PersistsPayment(t *testing.T) {
	var gotParams CreateIntentParams
	gw := &mockGateway{
		createFn: func(ctx context.Context, params CreateIntentParams) (*Intent, error) {
			gotParams = params
			return &Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: params.Amount, Currency: params.Currency, Status: "requires_payment_method"}, nil
		},
	}
	repo := &mockPaymentRepo{}
	svc := newTestService(repo, gw, testConfig())

	intent, err := svc.CreateIntent(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CreateIntent() error = %v", err)
	}

	if gotParams != (CreateIntentParams{Amount: 999, Currency: "usd", UserID: "u1"}) {
		t.Errorf("params = %+v", gotParams)
	}
	if intent.ClientSecret != "pi_1_secret" {
		t.Errorf("ClientSecret = %q", intent.ClientSecret)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d payments, want 1", len(repo.created))
	}
	p := repo.created[0]
	if p.UserID != "u1" || p.StripePaymentIntentID != "pi_1" || p.Amount != 999 || p.Status != "requires_payment_method" {
		t.Errorf("payment = %+v", p)
	}
	if !model.IsValidID(p.ID) {
		t.Errorf("payment ID = %q", p.ID)
	}
}

func TestCreateIntent_NotConfigured(t *testing.T) {
	tests := []struct {
		name string
		gw   Gateway
		cfg  Config
	}{
		{"gatewayなし", nil, testConfig()},
		{"環境変数不足", &mockGateway{}, Config{Missing: []string{"STRIPE_SECRET_KEY"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockPaymentRepo{}, tt.gw, tt.cfg)
			_, err := svc.CreateIntent(context.Background(), "u1")
			assertAPIErrorCode(t, err, model.ErrCodePaymentsNotConfigured)

			_, err = svc.Confirm(context.Background(), "u1", "pi_1")
			assertAPIErrorCode(t, err, model.ErrCodePaymentsNotConfigured)
		})
	}
}

func TestCreateIntent_GatewayError(t *testing.T) {
	gw := &mockGateway{
		createFn: func(ctx context.Context, params CreateIntentParams) (*Intent, error) {
			return nil, errors.New("stripe down")
		},
	}
	repo := &mockPaymentRepo{}
	svc := newTestService(repo, gw, testConfig())

	_, err := svc.CreateIntent(context.Background(), "u1")
	assertAPIErrorCode(t, err, model.ErrCodeProviderError)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Category != "payment" {
		t.Errorf("Category = %q, want payment", apiErr.Category)
	}
	if len(repo.created) != 0 {
		t.Error("payment should not be stored")
	}
}

func TestConfirm_Succeeded_GrantsPremium(t *testing.T) {
	tests := []struct {
		name       string
		months     int
		wantExpiry *time.Time
	}{
		{"無期限", 0, nil},
		{"12ヶ月", 12, func() *time.Time { t := fixedNow.AddDate(1, 0, 0); return &t }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPaymentRepo{
				payment: &model.Payment{ID: "p1", UserID: "u1", StripePaymentIntentID: "pi_1", Status: "requires_payment_method"},
			}
			gw := &mockGateway{
				getFn: func(ctx context.Context, id string) (*Intent, error) {
					return &Intent{ID: id, Status: "succeeded", UserID: "u1"}, nil
				},
			}
			cfg := testConfig()
			cfg.PremiumMonths = tt.months
			svc := newTestService(repo, gw, cfg)

			p, err := svc.Confirm(context.Background(), "u1", "pi_1")
			if err != nil {
				t.Fatalf("Confirm() error = %v", err)
			}
			if p.Status != "succeeded" {
				t.Errorf("Status = %q, want succeeded", p.Status)
			}
			if repo.succeededCalls != 1 {
				t.Errorf("MarkSucceeded calls = %d, want 1", repo.succeededCalls)
			}
			switch {
			case tt.wantExpiry == nil && repo.succeededExpiry != nil:
				t.Errorf("expiry = %v, want nil", repo.succeededExpiry)
			case tt.wantExpiry != nil && (repo.succeededExpiry == nil || !repo.succeededExpiry.Equal(*tt.wantExpiry)):
				t.Errorf("expiry = %v, want %v", repo.succeededExpiry, tt.wantExpiry)
			}
		})
	}
}

func TestConfirm_Idempotent(t *testing.T) {
	repo := &mockPaymentRepo{
		payment: &model.Payment{ID: "p1", UserID: "u1", StripePaymentIntentID: "pi_1", Status: "succeeded"},
	}
	gw := &mockGateway{}
	svc := newTestService(repo, gw, testConfig())

	for i := 0; i < 2; i++ {
		if _, err := svc.Confirm(context.Background(), "u1", "pi_1"); err != nil {
			t.Fatalf("Confirm() error = %v", err)
		}
	}
	if gw.getCalls != 0 || repo.succeededCalls != 0 {
		t.Errorf("getCalls = %d, succeededCalls = %d, want 0", gw.getCalls, repo.succeededCalls)
	}
}

func TestConfirm_Pending_UpdatesStatus(t *testing.T) {
	repo := &mockPaymentRepo{
		payment: &model.Payment{ID: "p1", UserID: "u1", StripePaymentIntentID: "pi_1", Status: "requires_payment_method"},
	}
	gw := &mockGateway{
		getFn: func(ctx context.Context, id string) (*Intent, error) {
			return &Intent{ID: id, Status: "processing"}, nil
		},
	}
	svc := newTestService(repo, gw, testConfig())

	p, err := svc.Confirm(context.Background(), "u1", "pi_1")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if p.Status != "processing" {
		t.Errorf("Status = %q", p.Status)
	}
	if len(repo.statusUpdates) != 1 || repo.statusUpdates[0] != "processing" {
		t.Errorf("statusUpdates = %v", repo.statusUpdates)
	}
	if repo.succeededCalls != 0 {
		t.Error("premium should not be granted")
	}
}

func TestConfirm_GatewayError_IsProviderError(t *testing.T) {
	repo := &mockPaymentRepo{
		payment: &model.Payment{ID: "p1", UserID: "u1", StripePaymentIntentID: "pi_1", Status: "requires_payment_method"},
	}
	gw := &mockGateway{
		getFn: func(ctx context.Context, id string) (*Intent, error) {
			return nil, errors.New("stripe: rate_limit")
		},
	}
	svc := newTestService(repo, gw, testConfig())

	_, err := svc.Confirm(context.Background(), "u1", "pi_1")
	assertAPIErrorCode(t, err, model.ErrCodeProviderError)
	if len(repo.statusUpdates) != 0 || repo.succeededCalls != 0 {
		t.Error("payment should not change when the gateway fails")
	}
}

func TestConfirm_NotFound(t *testing.T) {
	tests := []struct {
		name        string
		payment     *model.Payment
		intentOwner string
	}{
		{"決済記録なし", nil, "u1"},
		{"他ユーザーの決済記録", &model.Payment{ID: "p1", UserID: "u2", StripePaymentIntentID: "pi_1"}, "u2"},
		{"intentの所有者不一致", &model.Payment{ID: "p1", UserID: "u1", StripePaymentIntentID: "pi_1"}, "u2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPaymentRepo{payment: tt.payment}
			gw := &mockGateway{
				getFn: func(ctx context.Context, id string) (*Intent, error) {
					return &Intent{ID: id, Status: "succeeded", UserID: tt.intentOwner}, nil
				},
			}
			svc := newTestService(repo, gw, testConfig())

			_, err := svc.Confirm(context.Background(), "u1", "pi_1")
			assertAPIErrorCode(t, err, model.ErrCodePaymentNotFound)
			if repo.succeededCalls != 0 {
				t.Error("premium should not be granted")
			}
		})
	}
}

func TestPublicConfig(t *testing.T) {
	svc := newTestService(&mockPaymentRepo{}, &mockGateway{}, testConfig())
	pc := svc.PublicConfig()
	if !pc.Configured || pc.PublishableKey != "pk_test_123" || pc.PriceID != "price_123" || len(pc.Missing) != 0 {
		t.Errorf("PublicConfig() = %+v", pc)
	}

	svc = newTestService(&mockPaymentRepo{}, nil, Config{Missing: []string{"STRIPE_SECRET_KEY"}})
	pc = svc.PublicConfig()
	if pc.Configured || len(pc.Missing) != 1 {
		t.Errorf("PublicConfig() = %+v", pc)
	}
}

func TestList(t *testing.T) {
	svc := newTestService(&mockPaymentRepo{}, nil, testConfig())
	payments, err := svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(payments) != 2 || payments[0].ID != "p2" {
		t.Errorf("payments = %+v", payments)
	}
}
