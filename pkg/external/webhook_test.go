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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookChannel_SendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(WebhookConfig{BaseURL: server.URL, Token: "tok-1"})
	require.NoError(t, err)
	require.NoError(t, channel.SendText(context.Background(), "chan-42", "disk check finished"))

	assert.Equal(t, "/message", gotPath)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "chan-42", gotBody["channel"])
	assert.Equal(t, "disk check finished", gotBody["text"])
}

func TestWebhookChannel_SendDocument(t *testing.T) {
	var gotChannel, gotFilename string
	var gotData []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotChannel = r.FormValue("channel")
		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		gotData, _ = io.ReadAll(file)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(WebhookConfig{BaseURL: server.URL})
	require.NoError(t, err)
	require.NoError(t, channel.SendDocument(context.Background(),
		"chan-42", "graph.png", []byte{0x89, 0x50}, "image/png"))

	assert.Equal(t, "chan-42", gotChannel)
	assert.Equal(t, "graph.png", gotFilename)
	assert.Equal(t, []byte{0x89, 0x50}, gotData)
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(WebhookConfig{BaseURL: server.URL})
	require.NoError(t, err)
	err = channel.SendText(context.Background(), "chan-42", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewWebhookChannel_RequiresBaseURL(t *testing.T) {
	_, err := NewWebhookChannel(WebhookConfig{})
	assert.Error(t, err)
}
