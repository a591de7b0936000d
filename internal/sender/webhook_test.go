package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voltwatch-alert/internal/models"
	"voltwatch-alert/internal/notifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testContent() *notifier.RenderedContent {
	return &notifier.RenderedContent{
		Title:         "warning - low_battery",
		Body:          "办公室传感器 | 设备电量低: 15%",
		AlertEventID:  "event-1",
		DeviceID:      "dev-1",
		DeviceName:    "办公室传感器",
		ConditionType: models.ConditionLowBattery,
		Level:         models.LevelWarning,
		Message:       "设备电量低: 15%",
		Value:         15,
		Threshold:     20,
		TriggeredAt:   time.Now().UTC(),
	}
}

func TestWebhookSender_PostsJSON(t *testing.T) {
	var received notifier.RenderedContent
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		err := json.NewDecoder(r.Body).Decode(&received)
		assert.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewWebhookSender(zap.NewNop())
	err := s.Send(context.Background(), server.URL, testContent())

	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "event-1", received.AlertEventID)
	assert.Equal(t, models.ConditionLowBattery, received.ConditionType)
	assert.Equal(t, 15.0, received.Value)
}

func TestWebhookSender_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := NewWebhookSender(zap.NewNop())
	err := s.Send(context.Background(), server.URL, testContent())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSender_ConnectionRefused(t *testing.T) {
	s := NewWebhookSender(zap.NewNop())
	err := s.Send(context.Background(), "http://127.0.0.1:1/hook", testContent())

	assert.Error(t, err)
}

func TestWebhookSender_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s := NewWebhookSender(zap.NewNop())
	err := s.Send(ctx, server.URL, testContent())

	assert.Error(t, err)
}

func TestWebhookSender_MissingURL(t *testing.T) {
	s := NewWebhookSender(zap.NewNop())
	err := s.Send(context.Background(), "", testContent())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "webhook url is required")
}
