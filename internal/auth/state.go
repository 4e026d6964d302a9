package auth

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// OAuthState はプロバイダーのstateパラメータで往復させる値。
type OAuthState struct {
	Nonce    string `json:"nonce"`
	Provider string `json:"provider"`
}

// NewState はランダムなnonceを持つstateを生成する。
func NewState(provider string) OAuthState {
	return OAuthState{Nonce: uuid.NewString(), Provider: provider}
}

// Encode はstateをJSON化しパーセントエンコードする。
func (s OAuthState) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	return url.QueryEscape(string(b)), nil
}

// DecodeState はパーセントエンコードされたstateを復号する。
// 復号できない場合やproviderが空の場合はErrInvalidStateを返す。
func DecodeState(raw string) (*OAuthState, error) {
	if raw == "" {
		return nil, ErrInvalidState
	}

	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	var s OAuthState
	if err := json.Unmarshal([]byte(decoded), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if s.Provider == "" {
		return nil, fmt.Errorf("%w: provider is missing", ErrInvalidState)
	}

	return &s, nil
}
