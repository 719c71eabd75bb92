package auth

import "testing"

func TestDeriveLoginMethod(t *testing.T) {
	tests := []struct {
		name      string
		platforms []string
		fallback  string
		want      *string
	}{
		{"email outranks google", []string{"REGISTERED_PLATFORM_GOOGLE", "REGISTERED_PLATFORM_EMAIL"}, "", strPtr("email")},
		{"empty platforms", []string{}, "", nil},
		{"nil platforms", nil, "", nil},
		{"fallback wins", []string{"REGISTERED_PLATFORM_EMAIL"}, "sso", strPtr("sso")},
		{"fallback without platforms", nil, "sso", strPtr("sso")},
		{"google", []string{"REGISTERED_PLATFORM_GOOGLE"}, "", strPtr("google")},
		{"apple outranks github", []string{"REGISTERED_PLATFORM_GITHUB", "REGISTERED_PLATFORM_APPLE"}, "", strPtr("apple")},
		{"azure is microsoft", []string{"REGISTERED_PLATFORM_AZURE"}, "", strPtr("microsoft")},
		{"microsoft", []string{"REGISTERED_PLATFORM_MICROSOFT", "REGISTERED_PLATFORM_GITHUB"}, "", strPtr("microsoft")},
		{"github", []string{"REGISTERED_PLATFORM_GITHUB"}, "", strPtr("github")},
		{"unknown uses first lowercased", []string{"REGISTERED_PLATFORM_LINE", "REGISTERED_PLATFORM_X"}, "", strPtr("registered_platform_line")},
		{"blank entries ignored", []string{"", "WeChat"}, "", strPtr("wechat")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveLoginMethod(tt.platforms, tt.fallback)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %q, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("got nil, want %q", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("got %q, want %q", *got, *tt.want)
			}
		})
	}
}

func strPtr(s string) *string {
	return &s
}
