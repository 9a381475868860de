package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/shsh-practice/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestFetchHistoryFirstPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/challenges/linux%2F01/chat/history", r.URL.EscapedPath())
		assert.Equal(t, "u-7", r.URL.Query().Get("user_id"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.False(t, r.URL.Query().Has("cursor"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"2","role":"assistant","content":"hi","created_at":"2024-05-01T10:00:02Z"},{"id":"1","role":"user","content":"hello","created_at":"2024-05-01T10:00:01Z"}],"next":"abc"}`))
	})

	page, err := c.WithToken("tok").FetchHistory(context.Background(), domain.PageRequest{
		Key:      domain.ConversationKey{UserID: "u-7", ChallengeID: "linux/01"},
		PageSize: 20,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, page.Messages[0].Role)
	require.NotNil(t, page.Next)
	assert.Equal(t, "abc", *page.Next)
}

func TestFetchHistoryWithCursorAndNullNext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"messages":[],"next":null}`))
	})

	page, err := c.FetchHistory(context.Background(), domain.PageRequest{
		Key:    domain.ConversationKey{UserID: "u", ChallengeID: "c"},
		Cursor: "abc",
	})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Nil(t, page.Next)
}

func TestStatusErrorsMapToSentinels(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadGateway, ErrUpstream},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		})
		_, err := c.FetchHistory(context.Background(), domain.PageRequest{Key: domain.ConversationKey{UserID: "u", ChallengeID: "c"}})
		require.Error(t, err)
		assert.ErrorIs(t, err, tt.want)
		assert.ErrorIs(t, err, ErrUpstream)

		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, tt.status, se.StatusCode)
		assert.Equal(t, "nope", se.Message)
	}
}

func TestFetchHistoryHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchHistory(ctx, domain.PageRequest{Key: domain.ConversationKey{UserID: "u", ChallengeID: "c"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmitAnswer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/challenges/c-1/submit", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "flag", body["kind"])
		assert.Equal(t, "FLAG{x}", body["answer"])
		assert.EqualValues(t, 4200, body["elapsed_ms"])

		_, _ = w.Write([]byte(`{"correct":true,"score":87.5,"message":"well done"}`))
	})

	res, err := c.SubmitAnswer(context.Background(), domain.Submission{
		Key:       domain.ConversationKey{UserID: "u", ChallengeID: "c-1"},
		Kind:      domain.AnswerFlag,
		Answer:    "FLAG{x}",
		ElapsedMs: 4200,
	})
	require.NoError(t, err)
	assert.True(t, res.Correct)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 87.5, *res.Score, 1e-9)
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
	_, err = NewClient(ClientConfig{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}
