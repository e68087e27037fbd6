// Package mq publishes monitor events to whoever is listening: nobody by
// default, or a webhook.
package mq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Topics published by taskmonitor.
const (
	TopicTaskChanged = "task.changed"
	TopicJobFinished = "job.finished"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }

// Webhook posts {"topic": ..., "payload": ...} to URL.
type Webhook struct {
	URL    string
	Client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

type envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

func (w *Webhook) Publish(ctx context.Context, topic string, payload []byte) error {
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return err
		}
		payload = quoted
	}
	body, err := json.Marshal(envelope{Topic: topic, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("publish %s: webhook returned %d", topic, resp.StatusCode)
	}
	return nil
}

// PublishJSON marshals v and publishes it.
func PublishJSON(ctx context.Context, p Publisher, topic string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, b)
}

// New returns a webhook publisher for url, or Noop when url is empty.
func New(url string) Publisher {
	if url == "" {
		return Noop{}
	}
	return NewWebhook(url)
}
