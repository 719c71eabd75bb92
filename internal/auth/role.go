package auth

import "github.com/hitoshi/onboarding/internal/model"

// AssignRole はUPSERT時に書き込むロールを決定する。
// 明示的に指定されたロールはそのまま使用する。
// 未指定かつOpenIDがオーナーIDと一致する場合はadminを返す。
// それ以外は未指定のまま返し、既存ユーザーのロールを変更しない。
func AssignRole(openID, ownerOpenID string, requested model.Field[model.Role]) model.Field[model.Role] {
	if requested.Set {
		return requested
	}
	if ownerOpenID != "" && openID == ownerOpenID {
		return model.SetTo(model.RoleAdmin)
	}
	return requested
}
