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

// Package external carries answers out to an external chat channel and
// validates the image URLs forwarded with them.
package external

import (
	"context"
)

// Channel delivers orchestrator output to an external messaging system.
type Channel interface {
	// SendText posts a plain text message to the channel.
	SendText(ctx context.Context, channelID, text string) error

	// SendDocument posts a binary document (typically an image) with its
	// content type.
	SendDocument(ctx context.Context, channelID, filename string, data []byte, contentType string) error
}

// Binding resolves which external channel a session delivers to. Sessions
// without a binding produce no external output.
type Binding interface {
	ChannelFor(sessionID string) (channelID string, ok bool)
}

// StaticBinding is a fixed session → channel map.
type StaticBinding map[string]string

// ChannelFor implements Binding.
func (b StaticBinding) ChannelFor(sessionID string) (string, bool) {
	id, ok := b[sessionID]
	return id, ok
}
