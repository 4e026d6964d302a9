package model

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// NewID は24文字の16進文字列IDを生成する。
// UUIDv7の先頭12バイト（タイムスタンプ48bit + 乱数）を使うため、生成順にほぼ整列する。
func NewID() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return hex.EncodeToString(u[:12])
}

// NormalizeID はIDを保存形式（小文字の16進）にそろえる。
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// IsValidID はIDが24文字の16進文字列かを判定する。大文字も受け付けるので、検索前にNormalizeIDを通すこと。
func IsValidID(id string) bool {
	return idPattern.MatchString(id)
}
