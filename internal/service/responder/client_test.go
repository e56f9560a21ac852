package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

func TestClient_Respond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/message", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req chat.ResponderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "track my order", req.Message)
		assert.Equal(t, "session_1", req.SessionID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chat.ResponderResult{
			Response:    "Your order...",
			Intent:      "order_status",
			Suggestions: []string{"Delivery status"},
			MessageID:   "m-1",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	res, err := c.Respond(context.Background(), chat.ResponderRequest{Message: "track my order", SessionID: "session_1"})
	require.NoError(t, err)
	assert.Equal(t, "Your order...", res.Response)
	assert.Equal(t, "order_status", res.Intent)
	assert.Equal(t, []string{"Delivery status"}, res.Suggestions)
	assert.False(t, res.ShouldEscalate)
	assert.Equal(t, "m-1", res.MessageID)
}

func TestClient_SendFeedback(t *testing.T) {
	var got chat.FeedbackRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/feedback", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).SendFeedback(context.Background(), chat.FeedbackRequest{
		MessageID: "m-1", IsPositive: true, SessionID: "session_1",
	})
	require.NoError(t, err)
	assert.Equal(t, chat.FeedbackRequest{MessageID: "m-1", IsPositive: true, SessionID: "session_1"}, got)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "json error body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"message is required"}`))
			},
			want: "400 message is required",
		},
		{
			name: "plain error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: "500 Internal Server Error",
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			want: "decoding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL).Respond(context.Background(), chat.ResponderRequest{Message: "hi", SessionID: "s"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrResponder)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL).Respond(ctx, chat.ResponderRequest{Message: "hi", SessionID: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrResponder)
}
