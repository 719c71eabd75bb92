package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hitoshi/onboarding/internal/model"
	"github.com/hitoshi/onboarding/internal/notify"
)

// OnboardingServiceInterface はオンボーディングRPCが必要とするサービスインターフェース。
type OnboardingServiceInterface interface {
	Submit(ctx context.Context, in model.NewSubmission) (int64, error)
	List(ctx context.Context) ([]*model.Submission, error)
	Approve(ctx context.Context, id int64, reviewer *model.User) (string, error)
	Reject(ctx context.Context, id int64, reviewer *model.User) error
}

// OwnerNotifierInterface はオーナー通知RPCが必要とするインターフェース。
type OwnerNotifierInterface interface {
	NotifyOwner(ctx context.Context, p notify.Payload) (bool, error)
}

// userResponse はauth.meのレスポンス。
type userResponse struct {
	ID           int64      `json:"id"`
	OpenID       string     `json:"openId"`
	Name         *string    `json:"name"`
	Email        *string    `json:"email"`
	LoginMethod  *string    `json:"loginMethod"`
	Role         model.Role `json:"role"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastSignedIn time.Time  `json:"lastSignedIn"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:           u.ID,
		OpenID:       u.OpenID,
		Name:         u.Name,
		Email:        u.Email,
		LoginMethod:  u.LoginMethod,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastSignedIn: u.LastSignedIn,
	}
}

// submissionResponse はonboarding.listの要素。
type submissionResponse struct {
	ID             int64                  `json:"id"`
	CompanyName    string                 `json:"companyName"`
	CompanyPhone   string                 `json:"companyPhone"`
	CompanyEmail   string                 `json:"companyEmail"`
	CompanyWebsite *string                `json:"companyWebsite"`
	CompanyAddress string                 `json:"companyAddress"`
	City           string                 `json:"city"`
	State          string                 `json:"state"`
	PostalCode     string                 `json:"postalCode"`
	Country        string                 `json:"country"`
	OwnerFirstName string                 `json:"ownerFirstName"`
	OwnerLastName  string                 `json:"ownerLastName"`
	OwnerEmail     string                 `json:"ownerEmail"`
	OwnerPhone     string                 `json:"ownerPhone"`
	BusinessHours  *string                `json:"businessHours"`
	Status         model.SubmissionStatus `json:"status"`
	GHLLocationID  *string                `json:"ghlLocationId"`
	AdminNotes     *string                `json:"adminNotes"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
	ReviewedAt     *time.Time             `json:"reviewedAt"`
	ReviewedBy     *int64                 `json:"reviewedBy"`
}

func toSubmissionResponse(s *model.Submission) submissionResponse {
	return submissionResponse{
		ID:             s.ID,
		CompanyName:    s.CompanyName,
		CompanyPhone:   s.CompanyPhone,
		CompanyEmail:   s.CompanyEmail,
		CompanyWebsite: s.CompanyWebsite,
		CompanyAddress: s.CompanyAddress,
		City:           s.City,
		State:          s.State,
		PostalCode:     s.PostalCode,
		Country:        s.Country,
		OwnerFirstName: s.OwnerFirstName,
		OwnerLastName:  s.OwnerLastName,
		OwnerEmail:     s.OwnerEmail,
		OwnerPhone:     s.OwnerPhone,
		BusinessHours:  s.BusinessHours,
		Status:         s.Status,
		GHLLocationID:  s.GHLLocationID,
		AdminNotes:     s.AdminNotes,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		ReviewedAt:     s.ReviewedAt,
		ReviewedBy:     s.ReviewedBy,
	}
}

type healthInput struct {
	Timestamp *float64 `json:"timestamp" validate:"required,gte=0"`
}

type notifyOwnerInput struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type submissionIDInput struct {
	SubmissionID *int64 `json:"submissionId" validate:"required"`
}

// newProcedures はプロシージャ表を構築する。
func newProcedures(onboarding OnboardingServiceInterface, notifier OwnerNotifierInterface) map[string]procedure {
	return map[string]procedure{
		"system.health": {
			typ:    procedureQuery,
			access: accessPublic,
			resolve: func(call *rpcCall, raw json.RawMessage) (any, error) {
				var in healthInput
				if err := decodeInput(raw, &in); err != nil {
					return nil, err
				}
				return map[string]bool{"ok": true}, nil
			},
		},

		"system.notifyOwner": {
			typ:    procedureMutation,
			access: accessAdmin,
			resolve: func(call *rpcCall, raw json.RawMessage) (any, error) {
				var in notifyOwnerInput
				if err := decodeInput(raw, &in); err != nil {
					return nil, err
				}
				delivered, err := notifier.NotifyOwner(call.ctx, notify.Payload{Title: in.Title, Content: in.Content})
				if err != nil {
					return nil, err
				}
				return map[string]bool{"success": delivered}, nil
			},
		},

		"auth.me": {
			typ:    procedureQuery,
			access: accessPublic,
			resolve: func(call *rpcCall, _ json.RawMessage) (any, error) {
				return toUserResponse(call.user), nil
			},
		},

		"auth.logout": {
			typ:    procedureMutation,
			access: accessPublic,
			resolve: func(call *rpcCall, _ json.RawMessage) (any, error) {
				clearSessionCookie(call.w, call.r)
				return map[string]bool{"success": true}, nil
			},
		},

		"onboarding.submit": {
			typ:    procedureMutation,
			access: accessPublic,
			resolve: func(call *rpcCall, raw json.RawMessage) (any, error) {
				var in model.NewSubmission
				if err := decodeJSON(raw, &in); err != nil {
					return nil, err
				}
				id, err := onboarding.Submit(call.ctx, in)
				if err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "submissionId": id}, nil
			},
		},

		"onboarding.list": {
			typ:    procedureQuery,
			access: accessProtected,
			resolve: func(call *rpcCall, _ json.RawMessage) (any, error) {
				submissions, err := onboarding.List(call.ctx)
				if err != nil {
					return nil, err
				}
				results := make([]submissionResponse, len(submissions))
				for i, s := range submissions {
					results[i] = toSubmissionResponse(s)
				}
				return results, nil
			},
		},

		"onboarding.approve": {
			typ:    procedureMutation,
			access: accessProtected,
			resolve: func(call *rpcCall, raw json.RawMessage) (any, error) {
				var in submissionIDInput
				if err := decodeInput(raw, &in); err != nil {
					return nil, err
				}
				locationID, err := onboarding.Approve(call.ctx, *in.SubmissionID, call.user)
				if err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "locationId": locationID}, nil
			},
		},

		"onboarding.reject": {
			typ:    procedureMutation,
			access: accessProtected,
			resolve: func(call *rpcCall, raw json.RawMessage) (any, error) {
				var in submissionIDInput
				if err := decodeInput(raw, &in); err != nil {
					return nil, err
				}
				if err := onboarding.Reject(call.ctx, *in.SubmissionID, call.user); err != nil {
					return nil, err
				}
				return map[string]bool{"success": true}, nil
			},
		},
	}
}
