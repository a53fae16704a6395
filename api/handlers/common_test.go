package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/api"
	"github.com/BaSui01/flowstudio/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{name: "simple object", data: map[string]string{"message": "hello"}, wantStatus: http.StatusOK},
		{name: "array", data: []int{1, 2, 3}, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-123"))

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-123", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "name is required"), http.StatusBadRequest},
		{"not found", types.NewError(types.ErrNotFound, "workflow not found"), http.StatusNotFound},
		{"invalid operation", types.NewError(types.ErrInvalidOperation, "already finished"), http.StatusConflict},
		{"explicit status wins", types.NewError(types.ErrValidationFailed, "bad graph").WithHTTPStatus(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity},
		{"rate limited", types.NewError(types.ErrRateLimited, "too many requests"), http.StatusTooManyRequests},
		{"internal error", types.NewError(types.ErrInternalError, "database connection failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, nil, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteErr_PlainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErr(w, nil, assert.AnError, zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, assert.AnError.Error())
}

func TestDecodeJSONBody(t *testing.T) {
	logger := zap.NewNop()

	type payload struct {
		Name  string `json:"name" validate:"required"`
		Value int    `json:"value" validate:"gte=0"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid JSON", body: `{"name":"test","value":123}`},
		{name: "invalid JSON", body: `{"name":"test",}`, wantErr: "invalid JSON body"},
		{name: "unknown field", body: `{"name":"test","unknown":"field"}`, wantErr: "invalid JSON body"},
		{name: "empty body", body: ``, wantErr: "request body is empty"},
		{name: "missing required field", body: `{"value":1}`, wantErr: "name is required"},
		{name: "out of range", body: `{"name":"x","value":-1}`, wantErr: "value must be at least 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))

			var result payload
			err := DecodeJSONBody(w, r, &result, logger)

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "test", result.Name)
				assert.Equal(t, 123, result.Value)
				return
			}
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeResponse(t, w)
			assert.Contains(t, resp.Error.Message, tt.wantErr)
		})
	}
}

func TestValidateStruct_EditRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     api.EditRequest
		wantErr string
	}{
		{name: "remove node", req: api.EditRequest{Op: api.OpRemoveNode, NodeID: "a"}},
		{name: "unknown op", req: api.EditRequest{Op: "explode"}, wantErr: "op must be one of"},
		{name: "missing op", req: api.EditRequest{}, wantErr: "op is required"},
		{name: "remove node without id", req: api.EditRequest{Op: api.OpRemoveNode}, wantErr: "nodeId is required"},
		{name: "move without position", req: api.EditRequest{Op: api.OpMoveNode, NodeID: "a"}, wantErr: "position is required"},
		{name: "rename without names", req: api.EditRequest{Op: api.OpRenameVariable}, wantErr: "newName is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if tt.wantErr == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, types.ErrInvalidRequest, err.Code)
			assert.Contains(t, err.Message, tt.wantErr)
		})
	}
}

func TestValidateStruct_StartExecutionExclusive(t *testing.T) {
	err := ValidateStruct(&api.StartExecutionRequest{})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "workflowId or definition is required")

	err = ValidateStruct(&api.StartExecutionRequest{WorkflowID: "wf", Definition: newDefinition("wf")})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "cannot be combined")

	assert.Nil(t, ValidateStruct(&api.StartExecutionRequest{WorkflowID: "wf"}))
	assert.Nil(t, ValidateStruct(&api.StartExecutionRequest{Definition: newDefinition("wf")}))
}

func TestDecodeDefinition_JSONAndYAML(t *testing.T) {
	logger := zap.NewNop()

	jsonBody := `{"id":"wf-1","nodes":[{"id":"start","type":"start","position":{"x":0,"y":0}}],"edges":[],"metadata":{"name":"demo"}}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(jsonBody))
	r.Header.Set("Content-Type", "application/json")
	def, err := DecodeDefinition(httptest.NewRecorder(), r, logger)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", def.ID)
	require.Len(t, def.Nodes, 1)

	yamlBody := "id: wf-2\nmetadata:\n  name: demo\nnodes:\n  - id: start\n    type: start\n    position: {x: 0, y: 0}\nedges: []\n"
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(yamlBody))
	r.Header.Set("Content-Type", "application/yaml")
	def, err = DecodeDefinition(httptest.NewRecorder(), r, logger)
	require.NoError(t, err)
	assert.Equal(t, "wf-2", def.ID)
	require.Len(t, def.Nodes, 1)

	w := httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	_, err = DecodeDefinition(w, r, logger)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateContentType(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{"valid application/json", "application/json", true},
		{"valid with charset", "application/json; charset=utf-8", true},
		{"valid with uppercase charset", "application/json; charset=UTF-8", true},
		{"invalid text/plain", "text/plain", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, logger))
		})
	}
}
