package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNote() Notification {
	return Notification{
		Command:     "backfill",
		RunID:       uuid.MustParse("6f1c1a53-4a47-4c5a-9d1f-1f0ec2f6d8a1"),
		FinishedAt:  time.Date(2025, 1, 14, 17, 5, 0, 0, time.UTC),
		Requests:    3,
		Written:     1,
		Failed:      2,
		FailedUnits: []string{"2025-01-12", "2025-01-13"},
		Err:         errors.New("status 502"),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	require.NoError(t, notifier.Notify(context.Background(), sampleNote()))

	assert.Equal(t, "chat", received["chat_id"])
	assert.Contains(t, received["text"], "backfill needs attention")
	assert.Contains(t, received["text"], "2025-01-12, 2025-01-13")
	assert.Contains(t, received["text"], "status 502")
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	assert.Error(t, notifier.Notify(context.Background(), sampleNote()))
}

func TestTelegramNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("secret-token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), sampleNote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.False(t, strings.Contains(err.Error(), "secret-token"))
}

func TestRenderMessageMinimal(t *testing.T) {
	msg := renderMessage(Notification{Command: "fetch"})
	assert.Equal(t, "[odds-collector] fetch needs attention\nRequests: 0, written: 0, failed: 0\n", msg)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
