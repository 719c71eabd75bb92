package auth

import (
	"strings"

	"github.com/samber/lo"
)

// loginMethodPriority は登録プラットフォームからログイン方法を決める優先順位。
// 先頭から順に一致したものを採用する。
var loginMethodPriority = []struct {
	platforms []string
	label     string
}{
	{[]string{"REGISTERED_PLATFORM_EMAIL"}, "email"},
	{[]string{"REGISTERED_PLATFORM_GOOGLE"}, "google"},
	{[]string{"REGISTERED_PLATFORM_APPLE"}, "apple"},
	{[]string{"REGISTERED_PLATFORM_MICROSOFT", "REGISTERED_PLATFORM_AZURE"}, "microsoft"},
	{[]string{"REGISTERED_PLATFORM_GITHUB"}, "github"},
}

// DeriveLoginMethod はログイン方法の表示ラベルを決定する。
// fallbackが空でなければそれをそのまま返す。
// それ以外は優先順位に従って登録プラットフォームからラベルを選び、
// いずれにも一致しなければ先頭プラットフォームの小文字表記を返す。
// プラットフォームがなければnilを返す。
func DeriveLoginMethod(platforms []string, fallback string) *string {
	if fallback != "" {
		return &fallback
	}

	registered := lo.Compact(platforms)
	if len(registered) == 0 {
		return nil
	}

	for _, p := range loginMethodPriority {
		if lo.Some(registered, p.platforms) {
			label := p.label
			return &label
		}
	}

	first := strings.ToLower(registered[0])
	return &first
}
