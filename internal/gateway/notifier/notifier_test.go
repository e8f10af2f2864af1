package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSendsMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("token", "42")
	tg.BaseURL = srv.URL
	require.NoError(t, tg.SendText(context.Background(), "hello"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "hello", got["text"])
}

func TestTelegramCircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := NewTelegram("token", "42")
	tg.BaseURL = srv.URL
	tg.Retries = 1
	for i := 0; i < 3; i++ {
		assert.Error(t, tg.SendText(context.Background(), "x"))
	}
	assert.ErrorIs(t, tg.SendText(context.Background(), "x"), ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTelegramRequiresConfig(t *testing.T) {
	assert.Error(t, NewTelegram("", "").SendText(context.Background(), "x"))
}

func TestMessageRender(t *testing.T) {
	msg := Message{
		Icon:  "!",
		Title: "Risk paused",
		Sections: []Section{
			{Title: "P&L", Lines: []string{"daily -600.00", " "}},
			{Title: "empty", Lines: []string{""}},
		},
		Footer:    "entries suppressed",
		Timestamp: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}
	out := msg.RenderMarkdown()
	assert.True(t, strings.HasPrefix(out, "! Risk paused"))
	assert.Contains(t, out, "- daily -600.00")
	assert.NotContains(t, out, "empty")
	assert.Contains(t, out, "at 2026-03-02 15:00:00 UTC")
}
