package mq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPublish(t *testing.T) {
	var got envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := PublishJSON(context.Background(), NewWebhook(srv.URL), TopicTaskChanged, map[string]string{"task_id": "t1"})
	require.NoError(t, err)
	assert.Equal(t, TopicTaskChanged, got.Topic)
	assert.JSONEq(t, `{"task_id":"t1"}`, string(got.Payload))
	assert.False(t, got.SentAt.IsZero())
}

func TestWebhookWrapsPlainText(t *testing.T) {
	var got envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL).Publish(context.Background(), TopicJobFinished, []byte("done")))
	assert.JSONEq(t, `"done"`, string(got.Payload))
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Publish(context.Background(), TopicJobFinished, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNew(t *testing.T) {
	assert.IsType(t, Noop{}, New(""))
	assert.IsType(t, &Webhook{}, New("http://localhost:9/hook"))
	assert.NoError(t, Noop{}.Publish(context.Background(), TopicTaskChanged, nil))
}
