package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/onboarding/internal/middleware"
	"github.com/hitoshi/onboarding/internal/model"
)

// maxRPCBodyBytes はRPCリクエストボディの上限。
const maxRPCBodyBytes = 1 << 20

// procedureType はRPCプロシージャの種別。
// queryはGET、mutationはPOSTで呼び出す。
type procedureType string

const (
	procedureQuery    procedureType = "query"
	procedureMutation procedureType = "mutation"
)

// accessLevel はプロシージャの認可レベル。
type accessLevel int

const (
	accessPublic accessLevel = iota
	accessProtected
	accessAdmin
)

// rpcCall は1回のプロシージャ呼び出しの文脈。
type rpcCall struct {
	ctx  context.Context
	user *model.User
	w    http.ResponseWriter
	r    *http.Request
}

// procedure はRPCプロシージャの定義。
type procedure struct {
	typ     procedureType
	access  accessLevel
	resolve func(call *rpcCall, input json.RawMessage) (any, error)
}

// RPC の機械可読エラーコード
const (
	rpcCodeParseError          = "PARSE_ERROR"
	rpcCodeBadRequest          = "BAD_REQUEST"
	rpcCodeUnauthorized        = "UNAUTHORIZED"
	rpcCodeForbidden           = "FORBIDDEN"
	rpcCodeNotFound            = "NOT_FOUND"
	rpcCodeMethodNotSupported  = "METHOD_NOT_SUPPORTED"
	rpcCodeConflict            = "CONFLICT"
	rpcCodeInternalServerError = "INTERNAL_SERVER_ERROR"
)

// rpcErrorCodes はエラーコードとJSON-RPC互換の数値コード・HTTPステータスの対応。
var rpcErrorCodes = map[string]struct {
	number int
	status int
}{
	rpcCodeParseError:          {-32700, http.StatusBadRequest},
	rpcCodeBadRequest:          {-32600, http.StatusBadRequest},
	rpcCodeUnauthorized:        {-32001, http.StatusUnauthorized},
	rpcCodeForbidden:           {-32003, http.StatusForbidden},
	rpcCodeNotFound:            {-32004, http.StatusNotFound},
	rpcCodeMethodNotSupported:  {-32005, http.StatusMethodNotAllowed},
	rpcCodeConflict:            {-32009, http.StatusConflict},
	rpcCodeInternalServerError: {-32603, http.StatusInternalServerError},
}

// rpcError はクライアントに返すRPCエラー。
type rpcError struct {
	code    string
	message string
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *rpcError) status() int {
	return rpcErrorCodes[e.code].status
}

type rpcErrorData struct {
	Code       string `json:"code"`
	HTTPStatus int    `json:"httpStatus"`
	Path       string `json:"path,omitempty"`
}

type rpcErrorShape struct {
	Message string       `json:"message"`
	Code    int          `json:"code"`
	Data    rpcErrorData `json:"data"`
}

// rpcResponse はRPCレスポンスの封筒。resultとerrorのどちらか一方のみを持つ。
type rpcResponse struct {
	Result *rpcResult `json:"result,omitempty"`
	Error  any        `json:"error,omitempty"`
}

type rpcResult struct {
	Data any `json:"data"`
}

// RPCHandler は /api/trpc/{procedure} 配下の型付きRPCを処理する。
// カンマ区切りのパスと ?batch=1 によるバッチ呼び出しにも対応する。
type RPCHandler struct {
	procedures map[string]procedure
}

// newRPCHandler はプロシージャ表からRPCHandlerを生成する。
func newRPCHandler(procedures map[string]procedure) *RPCHandler {
	return &RPCHandler{procedures: procedures}
}

// ServeHTTP はRPC呼び出しをディスパッチする。
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "procedure")
	batch := r.URL.Query().Get("batch") == "1"

	names := []string{path}
	if batch {
		names = strings.Split(path, ",")
	}

	inputs, err := readRPCInputs(r, batch, len(names))
	if err != nil {
		rpcErr := &rpcError{code: rpcCodeParseError, message: err.Error()}
		h.write(w, rpcErr.status(), h.errorResponse(rpcErr, path, false))
		return
	}

	call := &rpcCall{
		ctx:  r.Context(),
		user: middleware.UserFromContext(r.Context()),
		w:    w,
		r:    r,
	}

	responses := make([]rpcResponse, len(names))
	statuses := make([]int, len(names))
	for i, name := range names {
		responses[i], statuses[i] = h.invoke(call, name, inputs[i])
	}

	if !batch {
		h.write(w, statuses[0], responses[0])
		return
	}
	h.write(w, batchStatus(statuses), responses)
}

// invoke は1つのプロシージャを実行し、レスポンスとHTTPステータスを返す。
func (h *RPCHandler) invoke(call *rpcCall, name string, raw json.RawMessage) (rpcResponse, int) {
	input, wrapped := unwrapEnvelope(raw)

	proc, ok := h.procedures[name]
	if !ok {
		rpcErr := &rpcError{code: rpcCodeNotFound, message: fmt.Sprintf("No procedure found on path %q", name)}
		return h.errorResponse(rpcErr, name, wrapped), rpcErr.status()
	}

	if want := methodFor(proc.typ); call.r.Method != want {
		rpcErr := &rpcError{
			code:    rpcCodeMethodNotSupported,
			message: fmt.Sprintf("Unsupported %s-request to %s procedure at path %q", call.r.Method, proc.typ, name),
		}
		return h.errorResponse(rpcErr, name, wrapped), rpcErr.status()
	}

	if err := authorize(proc.access, call.user); err != nil {
		rpcErr := toRPCError(err, name)
		return h.errorResponse(rpcErr, name, wrapped), rpcErr.status()
	}

	data, err := proc.resolve(call, input)
	if err != nil {
		rpcErr := toRPCError(err, name)
		return h.errorResponse(rpcErr, name, wrapped), rpcErr.status()
	}

	if wrapped {
		data = map[string]any{"json": data}
	}
	return rpcResponse{Result: &rpcResult{Data: data}}, http.StatusOK
}

func (h *RPCHandler) errorResponse(rpcErr *rpcError, path string, wrapped bool) rpcResponse {
	shape := rpcErrorShape{
		Message: rpcErr.message,
		Code:    rpcErrorCodes[rpcErr.code].number,
		Data: rpcErrorData{
			Code:       rpcErr.code,
			HTTPStatus: rpcErr.status(),
			Path:       path,
		},
	}
	if wrapped {
		return rpcResponse{Error: map[string]any{"json": shape}}
	}
	return rpcResponse{Error: shape}
}

func (h *RPCHandler) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode rpc response", slog.String("error", err.Error()))
	}
}

// authorize はプロシージャの認可レベルに対してユーザーを検査する。
func authorize(level accessLevel, user *model.User) error {
	switch level {
	case accessProtected:
		if user == nil {
			return model.NewUnauthenticatedError()
		}
	case accessAdmin:
		if user == nil {
			return model.NewUnauthenticatedError()
		}
		if !user.IsAdmin() {
			return model.NewNotAdminError()
		}
	}
	return nil
}

// toRPCError はサービス層のエラーをRPCエラーに変換する。
// 内部エラーの詳細はログにのみ記録し、クライアントには一般的なメッセージを返す。
func toRPCError(err error, path string) *rpcError {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	message := err.Error()
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}

	switch {
	case errors.Is(err, model.ErrValidation):
		return &rpcError{code: rpcCodeBadRequest, message: message}
	case errors.Is(err, model.ErrAuth):
		if apiErr == nil {
			message = model.UnauthenticatedMessage
		}
		return &rpcError{code: rpcCodeUnauthorized, message: message}
	case errors.Is(err, model.ErrForbidden):
		return &rpcError{code: rpcCodeForbidden, message: message}
	case errors.Is(err, model.ErrNotFound):
		return &rpcError{code: rpcCodeNotFound, message: message}
	case errors.Is(err, model.ErrConflict):
		return &rpcError{code: rpcCodeConflict, message: message}
	}

	slog.Error("rpc procedure failed",
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
	return &rpcError{code: rpcCodeInternalServerError, message: "Internal server error"}
}

func methodFor(typ procedureType) string {
	if typ == procedureQuery {
		return http.MethodGet
	}
	return http.MethodPost
}

// batchStatus はバッチ内の全呼び出しが同じステータスならそれを、異なる場合は207を返す。
func batchStatus(statuses []int) int {
	for _, s := range statuses[1:] {
		if s != statuses[0] {
			return http.StatusMultiStatus
		}
	}
	return statuses[0]
}

// readRPCInputs はクエリ文字列（GET）またはボディ（POST）から入力を読み取る。
// バッチ呼び出しでは {"0": ..., "1": ...} 形式のオブジェクトを呼び出しごとに分解する。
func readRPCInputs(r *http.Request, batch bool, n int) ([]json.RawMessage, error) {
	var raw []byte
	if r.Method == http.MethodGet {
		raw = []byte(r.URL.Query().Get("input"))
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if len(body) > maxRPCBodyBytes {
			return nil, errors.New("request body too large")
		}
		raw = body
	}
	raw = bytes.TrimSpace(raw)

	inputs := make([]json.RawMessage, n)
	if len(raw) == 0 {
		return inputs, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("input is not valid JSON")
	}

	if !batch {
		inputs[0] = raw
		return inputs, nil
	}

	var byIndex map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byIndex); err != nil {
		return nil, errors.New("batch input must be an object keyed by call index")
	}
	for i := range inputs {
		inputs[i] = byIndex[strconv.Itoa(i)]
	}
	return inputs, nil
}

// unwrapEnvelope は {"json": ..., "meta": ...} 形式で包まれた入力を取り出す。
// 包まれていた場合はwrappedにtrueを返し、レスポンスも同じ形式で包む。
func unwrapEnvelope(raw json.RawMessage) (json.RawMessage, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return raw, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw, false
	}
	inner, ok := fields["json"]
	if !ok {
		return raw, false
	}
	for key := range fields {
		if key != "json" && key != "meta" {
			return raw, false
		}
	}
	return inner, true
}
