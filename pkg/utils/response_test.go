package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, "conversation not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"conversation not found"}`, rec.Body.String())
}

func TestDecodeJSONLimit(t *testing.T) {
	var dst struct {
		Message string `json:"message"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, 1024, &dst))
	assert.Equal(t, "hi", dst.Message)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"`+strings.Repeat("x", 64)+`"}`))
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, 16, &dst))
}
