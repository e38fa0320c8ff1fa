// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookChannel delivers outbound messages to an HTTP endpoint. Text goes
// as JSON to <base>/message, documents as multipart to <base>/document,
// both carrying the channel id.
type WebhookChannel struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// WebhookConfig configures a WebhookChannel.
type WebhookConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewWebhookChannel creates a channel client.
func NewWebhookChannel(cfg WebhookConfig) (*WebhookChannel, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &WebhookChannel{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}, nil
}

// SendText implements Channel.
func (w *WebhookChannel) SendText(ctx context.Context, channelID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"channel": channelID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	return w.post(ctx, w.baseURL+"/message", "application/json", bytes.NewReader(payload))
}

// SendDocument implements Channel.
func (w *WebhookChannel) SendDocument(ctx context.Context, channelID, filename string, data []byte, contentType string) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("channel", channelID); err != nil {
		return err
	}
	if err := form.WriteField("contentType", contentType); err != nil {
		return err
	}
	part, err := form.CreateFormFile("document", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}
	return w.post(ctx, w.baseURL+"/document", form.FormDataContentType(), &body)
}

func (w *WebhookChannel) post(ctx context.Context, url, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
