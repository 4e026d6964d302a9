// Package model はドメインモデルを定義する。
package model

import "time"

// OAuthプロバイダー識別子
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// User はOAuthプロバイダー経由で登録されたサービス利用ユーザーを表す。
// (Provider, ProviderID) の組とEmailはそれぞれ一意。
type User struct {
	ID               string
	Email            string
	Name             string
	Picture          *string
	Provider         string
	ProviderID       string
	IsPremium        bool
	PremiumExpiresAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasPremiumAccess は指定時刻においてプレミアム機能が利用可能かを返す。
// 有効期限が未設定の場合は無期限として扱う。
func (u *User) HasPremiumAccess(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	if u.PremiumExpiresAt != nil && u.PremiumExpiresAt.Before(now) {
		return false
	}
	return true
}

// OAuthProfile はOAuthプロバイダーから取得し正規化したユーザー情報。
// ストレージに触れる前に全プロバイダーがこの形に揃える。
type OAuthProfile struct {
	ProviderID string
	Email      string
	Name       string
	Picture    *string
	Provider   string
}

// ProfileUpdate はユーザー自身によるプロフィール更新内容。
type ProfileUpdate struct {
	Name  string
	Email string
}

// UserSettings はユーザーごとの表示・通知設定。
type UserSettings struct {
	ID                 string
	UserID             string
	EmailNotifications bool
	Theme              string
	Language           string
	Timezone           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SettingsUpdate は設定の部分更新。nilのフィールドは変更しない。
type SettingsUpdate struct {
	EmailNotifications *bool
	Theme              *string
	Language           *string
	Timezone           *string
}
