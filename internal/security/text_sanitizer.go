// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は公開フォームから受け取った自由入力テキストからマークアップを除去する。
// 申請データは管理画面やCRMにそのまま表示されるため、保存前にプレーンテキスト化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// script, styleタグは内容ごと除去される。
	// 文字参照はポリシー適用前に展開するため、エスケープされたタグも除去される。
	// 出力の文字参照も元の文字に戻すため、"A & B" はそのまま保存される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyはスレッドセーフに使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses は多重エスケープされた入力に対する適用回数の上限。
const maxSanitizePasses = 8

// Sanitize は全てのHTMLタグを除去したテキストを返す。
// 出力が変化しなくなるまでポリシーを繰り返し適用する。
func (s *textSanitizer) Sanitize(raw string) string {
	out := strings.TrimSpace(raw)
	for range maxSanitizePasses {
		next := s.sanitizeOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func (s *textSanitizer) sanitizeOnce(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(html.UnescapeString(text))))
}
