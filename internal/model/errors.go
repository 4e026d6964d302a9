package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, capsule, payment, system
	Action   string       // ユーザー向け対処方法
	Details  []FieldError // バリデーションエラー時のフィールド単位の詳細
}

// FieldError はフィールド単位のバリデーションエラー。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed       = "VALIDATION_FAILED"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeUnsupportedProvider    = "UNSUPPORTED_PROVIDER"
	ErrCodeInvalidCapsuleID       = "INVALID_CAPSULE_ID"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeInvalidOrExpiredToken  = "INVALID_OR_EXPIRED_TOKEN"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeCapsuleNotFound        = "CAPSULE_NOT_FOUND"
	ErrCodePaymentNotFound        = "PAYMENT_NOT_FOUND"
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeFreeLimitReached       = "FREE_LIMIT_REACHED"
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeProviderError          = "PROVIDER_ERROR"
	ErrCodeIncompleteProfile      = "INCOMPLETE_PROFILE"
	ErrCodeAuthenticationFailed   = "AUTHENTICATION_FAILED"
	ErrCodePaymentsNotConfigured  = "PAYMENTS_NOT_CONFIGURED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewValidationError はフィールド単位の詳細付きバリデーションエラーを生成する。
func NewValidationError(details []FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "Validation failed",
		Category: "validation",
		Action:   "Fix the highlighted fields and try again.",
		Details:  details,
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Request body could not be parsed",
		Category: "validation",
		Action:   "Send a well-formed JSON body.",
	}
}

// NewInvalidStateError はOAuthのstateパラメータが不正な場合のエラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "Invalid state parameter",
		Category: "auth",
		Action:   "Start the sign-in flow again.",
	}
}

// NewUnsupportedProviderError は未対応または未設定のOAuthプロバイダーのエラーを生成する。
func NewUnsupportedProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedProvider,
		Message:  fmt.Sprintf("Unsupported OAuth provider: %s", provider),
		Category: "auth",
		Action:   "Sign in with Google or GitHub.",
	}
}

// NewInvalidCapsuleIDError はカプセルIDの形式が不正な場合のエラーを生成する。
func NewInvalidCapsuleIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCapsuleID,
		Message:  "Invalid capsule ID format",
		Category: "validation",
		Action:   "Capsule IDs are 24 hexadecimal characters.",
	}
}

// NewUnauthorizedError は認証情報が存在しない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "Sign in to continue.",
	}
}

// NewInvalidOrExpiredTokenError はセッショントークンの検証に失敗した場合のエラーを生成する。
func NewInvalidOrExpiredTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrExpiredToken,
		Message:  "Invalid or expired token",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewForbiddenError は認証済みだが権限がない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Forbidden",
		Category: "auth",
		Action:   "You can only access your own data.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewCapsuleNotFoundError はカプセルが見つからないか所有者が異なる場合のエラーを生成する。
func NewCapsuleNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCapsuleNotFound,
		Message:  "Capsule not found or unauthorized",
		Category: "capsule",
		Action:   "Refresh your capsule list.",
	}
}

// NewPaymentNotFoundError は決済記録が見つからない場合のエラーを生成する。
func NewPaymentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePaymentNotFound,
		Message:  "Payment not found",
		Category: "payment",
		Action:   "Start the upgrade again.",
	}
}

// NewEmailAlreadyRegisteredError はメールアドレスが別アカウントで使用済みの場合のエラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "This email address is already used by another account",
		Category: "auth",
		Action:   "Sign in with the provider you used originally.",
	}
}

// NewFreeLimitReachedError は無料プランのカプセル上限に達した場合のエラーを生成する。
func NewFreeLimitReachedError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeFreeLimitReached,
		Message:  fmt.Sprintf("You've reached the limit of %d free messages", limit),
		Category: "capsule",
		Action:   "Upgrade to premium for unlimited messages.",
	}
}

// NewProviderError はOAuthプロバイダーがエラーを返した場合のエラーを生成する。
func NewProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  fmt.Sprintf("%s OAuth failed", provider),
		Category: "auth",
		Action:   "Start the sign-in flow again.",
	}
}

// NewPaymentProviderError はStripeなど決済プロバイダーの呼び出しが失敗した場合のエラーを生成する。
func NewPaymentProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  fmt.Sprintf("%s payment request failed", provider),
		Category: "payment",
		Action:   "Please try again later.",
	}
}

// NewIncompleteProfileError はプロバイダーからメールアドレスまたは名前を取得できない場合のエラーを生成する。
func NewIncompleteProfileError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeIncompleteProfile,
		Message:  fmt.Sprintf("Could not retrieve email or name from %s", provider),
		Category: "auth",
		Action:   "Make sure your account has a verified email address and a name.",
	}
}

// NewAuthenticationFailedError はOAuth処理が予期せず失敗した場合のエラーを生成する。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  "Authentication failed",
		Category: "auth",
		Action:   "Please try again.",
	}
}

// NewPaymentsNotConfiguredError は決済機能が未設定の場合のエラーを生成する。
func NewPaymentsNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodePaymentsNotConfigured,
		Message:  "Payments are not configured",
		Category: "payment",
		Action:   "Please try again later.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーの汎用レスポンスを生成する。
// 詳細はログのみに記録し、呼び出し元には返さない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal error",
		Category: "system",
		Action:   "Please try again later.",
	}
}
