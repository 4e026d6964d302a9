// Package security はユーザー入力テキストの無害化を提供する。
//
// ContentSanitizerService はカプセル本文やプロフィール名からHTMLを取り除き、
// プレーンテキストとして保存・返却できる形にする。
// bluemondayのStrictPolicyで全タグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize は全てのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// script, styleなどの要素は中身ごと除去される。
	// 実体参照はデコードして返すため、"a < b" のような本文は保持される。
	// 入力中の実体参照もデコードされるので "&lt;b&gt;" は "<b>" になる。
	// タグとして解釈できる部分はテキストでも消えるため "a<b and c>d" は "ad" になる。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは & < > " ' をエスケープして返すので元の文字に戻す
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
