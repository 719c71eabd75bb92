package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/onboarding/internal/middleware"
	"github.com/hitoshi/onboarding/internal/model"
)

// newTestRPCRouter は指定のプロシージャ表をマウントしたルーターを返す。
func newTestRPCRouter(procedures map[string]procedure, user *model.User) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user != nil {
				req = req.WithContext(middleware.ContextWithUser(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Handle("/api/trpc/{procedure}", newRPCHandler(procedures))
	return r
}

type rpcTestError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Data    struct {
		Code       string `json:"code"`
		HTTPStatus int    `json:"httpStatus"`
		Path       string `json:"path"`
	} `json:"data"`
}

type rpcTestResponse struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *rpcTestError `json:"error"`
}

func echoProcedures() map[string]procedure {
	echo := func(call *rpcCall, raw json.RawMessage) (any, error) {
		var v any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
		}
		return map[string]any{"echo": v}, nil
	}
	return map[string]procedure{
		"test.query":    {typ: procedureQuery, access: accessPublic, resolve: echo},
		"test.mutation": {typ: procedureMutation, access: accessPublic, resolve: echo},
		"test.private":  {typ: procedureQuery, access: accessProtected, resolve: echo},
		"test.admin":    {typ: procedureMutation, access: accessAdmin, resolve: echo},
		"test.fail": {typ: procedureQuery, access: accessPublic, resolve: func(call *rpcCall, raw json.RawMessage) (any, error) {
			return nil, fmt.Errorf("wrapped: %w", errors.New("database exploded"))
		}},
	}
}

func doRPC(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, rpcTestResponse) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp rpcTestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
	return w, resp
}

func TestRPCHandler_QueryWithInput(t *testing.T) {
	h := newTestRPCRouter(echoProcedures(), nil)

	input := url.QueryEscape(`{"x":1}`)
	w, resp := doRPC(t, h, http.MethodGet, "/api/trpc/test.query?input="+input, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp.Result == nil {
		t.Fatal("expected result")
	}
	if got := string(resp.Result.Data); got != `{"echo":{"x":1}}` {
		t.Errorf("data = %s, want %s", got, `{"echo":{"x":1}}`)
	}
}

func TestRPCHandler_JSONEnvelope_IsUnwrappedAndRewrapped(t *testing.T) {
	h := newTestRPCRouter(echoProcedures(), nil)

	w, resp := doRPC(t, h, http.MethodPost, "/api/trpc/test.mutation", `{"json":{"x":2},"meta":{"values":{}}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := string(resp.Result.Data); got != `{"json":{"echo":{"x":2}}}` {
		t.Errorf("data = %s, want %s", got, `{"json":{"echo":{"x":2}}}`)
	}
}

func TestRPCHandler_Errors(t *testing.T) {
	admin := &model.User{ID: 1, OpenID: "owner", Role: model.RoleAdmin}
	member := &model.User{ID: 2, OpenID: "member", Role: model.RoleUser}

	tests := []struct {
		name        string
		user        *model.User
		method      string
		target      string
		body        string
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"unknown procedure", nil, http.MethodGet, "/api/trpc/test.nope", "", 404, "NOT_FOUND", `No procedure found on path "test.nope"`},
		{"mutation via GET", nil, http.MethodGet, "/api/trpc/test.mutation", "", 405, "METHOD_NOT_SUPPORTED", ""},
		{"query via POST", nil, http.MethodPost, "/api/trpc/test.query", "{}", 405, "METHOD_NOT_SUPPORTED", ""},
		{"protected anonymous", nil, http.MethodGet, "/api/trpc/test.private", "", 401, "UNAUTHORIZED", model.UnauthenticatedMessage},
		{"admin anonymous", nil, http.MethodPost, "/api/trpc/test.admin", "{}", 401, "UNAUTHORIZED", model.UnauthenticatedMessage},
		{"admin as member", member, http.MethodPost, "/api/trpc/test.admin", "{}", 403, "FORBIDDEN", model.NotAdminMessage},
		{"invalid json", nil, http.MethodPost, "/api/trpc/test.mutation", "{", 400, "PARSE_ERROR", ""},
		{"internal error hidden", admin, http.MethodGet, "/api/trpc/test.fail", "", 500, "INTERNAL_SERVER_ERROR", "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRPCRouter(echoProcedures(), tt.user)
			w, resp := doRPC(t, h, tt.method, tt.target, tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp.Error == nil {
				t.Fatalf("expected error, got %s", w.Body.String())
			}
			if resp.Error.Data.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Data.Code, tt.wantCode)
			}
			if resp.Error.Data.HTTPStatus != tt.wantStatus {
				t.Errorf("httpStatus = %d, want %d", resp.Error.Data.HTTPStatus, tt.wantStatus)
			}
			if tt.wantMessage != "" && resp.Error.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", resp.Error.Message, tt.wantMessage)
			}
		})
	}
}

func TestRPCHandler_AdminAllowed(t *testing.T) {
	admin := &model.User{ID: 1, OpenID: "owner", Role: model.RoleAdmin}
	h := newTestRPCRouter(echoProcedures(), admin)

	w, resp := doRPC(t, h, http.MethodPost, "/api/trpc/test.admin", `{"ok":true}`)
	if w.Code != http.StatusOK || resp.Result == nil {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRPCHandler_Batch(t *testing.T) {
	h := newTestRPCRouter(echoProcedures(), nil)

	input := url.QueryEscape(`{"0":{"a":1},"1":{"b":2}}`)
	req := httptest.NewRequest(http.MethodGet, "/api/trpc/test.query,test.query?batch=1&input="+input, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp []rpcTestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode batch response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("len = %d, want 2", len(resp))
	}
	if got := string(resp[0].Result.Data); got != `{"echo":{"a":1}}` {
		t.Errorf("resp[0] = %s", got)
	}
	if got := string(resp[1].Result.Data); got != `{"echo":{"b":2}}` {
		t.Errorf("resp[1] = %s", got)
	}
}

func TestRPCHandler_Batch_MixedStatus(t *testing.T) {
	h := newTestRPCRouter(echoProcedures(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/trpc/test.query,test.private?batch=1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusMultiStatus)
	}

	var resp []rpcTestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode batch response: %v", err)
	}
	if resp[0].Result == nil {
		t.Error("resp[0] should succeed")
	}
	if resp[1].Error == nil || resp[1].Error.Data.Code != "UNAUTHORIZED" {
		t.Errorf("resp[1] should be UNAUTHORIZED, got %+v", resp[1])
	}
}

func TestToRPCError_Mapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{"validation", model.NewValidationError("city: is required"), rpcCodeBadRequest, "city: is required"},
		{"auth sentinel", fmt.Errorf("%w: invalid session cookie", model.ErrAuth), rpcCodeUnauthorized, model.UnauthenticatedMessage},
		{"unauthenticated", model.NewUnauthenticatedError(), rpcCodeUnauthorized, model.UnauthenticatedMessage},
		{"forbidden", model.NewNotAdminError(), rpcCodeForbidden, model.NotAdminMessage},
		{"not found", model.NewSubmissionNotFoundError(42), rpcCodeNotFound, "Submission not found: 42"},
		{"conflict", model.NewAlreadyApprovedError(), rpcCodeConflict, "Submission already approved"},
		{"upstream", &model.UpstreamError{Service: "GHL", StatusCode: 422, Body: "bad"}, rpcCodeInternalServerError, "Internal server error"},
		{"configuration", model.NewConfigurationError("GHL_AGENCY_ID is not configured"), rpcCodeInternalServerError, "Internal server error"},
		{"unavailable", fmt.Errorf("%w: database", model.ErrUnavailable), rpcCodeInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toRPCError(tt.err, "test.path")
			if got.code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.code, tt.wantCode)
			}
			if got.message != tt.wantMessage {
				t.Errorf("message = %q, want %q", got.message, tt.wantMessage)
			}
		})
	}
}

func TestUnwrapEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		want        string
		wantWrapped bool
	}{
		{"empty", "", "", false},
		{"plain object", `{"a":1}`, `{"a":1}`, false},
		{"json only", `{"json":{"a":1}}`, `{"a":1}`, true},
		{"json and meta", `{"json":5,"meta":{}}`, `5`, true},
		{"json with other field", `{"json":1,"other":2}`, `{"json":1,"other":2}`, false},
		{"array", `[1,2]`, `[1,2]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, wrapped := unwrapEnvelope(json.RawMessage(tt.raw))
			if string(got) != tt.want {
				t.Errorf("unwrapEnvelope() = %s, want %s", got, tt.want)
			}
			if wrapped != tt.wantWrapped {
				t.Errorf("wrapped = %v, want %v", wrapped, tt.wantWrapped)
			}
		})
	}
}

func TestDecodeInput_Validation(t *testing.T) {
	var in healthInput
	if err := decodeInput(json.RawMessage(`{"timestamp":-1}`), &in); !errors.Is(err, model.ErrValidation) {
		t.Errorf("negative timestamp: err = %v, want validation error", err)
	}

	in = healthInput{}
	err := decodeInput(nil, &in)
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("missing timestamp: err = %v, want validation error", err)
	}
	// フィールド名はJSONタグ名で報告される
	if err == nil || !strings.Contains(err.Error(), "timestamp: is required") {
		t.Errorf("missing timestamp: err = %v, want %q", err, "timestamp: is required")
	}

	in = healthInput{}
	if err := decodeInput(json.RawMessage(`{"timestamp":"now"}`), &in); !errors.Is(err, model.ErrValidation) {
		t.Errorf("string timestamp: err = %v, want validation error", err)
	}

	in = healthInput{}
	if err := decodeInput(json.RawMessage(`{"timestamp":0}`), &in); err != nil {
		t.Errorf("zero timestamp: err = %v, want nil", err)
	}
}
