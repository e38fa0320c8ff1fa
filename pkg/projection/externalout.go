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

package projection

import (
	"context"

	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/events"
	"github.com/chapo-dev/chapo/pkg/external"
)

// ExternalOutputProjection forwards completed answers to the external
// channel a session is bound to, and fetches up to three allow-listed image
// URLs found in the answer as documents.
type ExternalOutputProjection struct {
	binding external.Binding
	channel external.Channel
	fetcher *external.ImageFetcher
	logger  *zap.Logger
}

// NewExternalOutputProjection creates the external output projection.
func NewExternalOutputProjection(binding external.Binding, channel external.Channel, fetcher *external.ImageFetcher, logger *zap.Logger) *ExternalOutputProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExternalOutputProjection{binding: binding, channel: channel, fetcher: fetcher, logger: logger}
}

// Name implements events.Projection.
func (p *ExternalOutputProjection) Name() string { return "external-output" }

// Handle implements events.Projection.
func (p *ExternalOutputProjection) Handle(ctx context.Context, env events.Envelope) error {
	if env.Type != events.TypeCompleted {
		return nil
	}
	payload, ok := env.Payload.(events.Completed)
	if !ok || payload.Answer == "" {
		return nil
	}
	channelID, bound := p.binding.ChannelFor(env.SessionID)
	if !bound {
		return nil
	}

	if err := p.channel.SendText(ctx, channelID, payload.Answer); err != nil {
		return err
	}

	urls := external.ExtractImageURLs(payload.Answer)
	sent := 0
	for _, u := range urls {
		if sent == external.MaxImagesPerAnswer {
			break
		}
		if !p.fetcher.Allowed(u) {
			p.logger.Debug("skipping image outside allow-list",
				zap.String("session_id", env.SessionID), zap.String("url", u))
			continue
		}
		img, err := p.fetcher.Fetch(ctx, u)
		if err != nil {
			p.logger.Warn("image fetch failed",
				zap.String("session_id", env.SessionID), zap.String("url", u), zap.Error(err))
			continue
		}
		if err := p.channel.SendDocument(ctx, channelID, img.Filename, img.Data, img.ContentType); err != nil {
			p.logger.Warn("image delivery failed",
				zap.String("session_id", env.SessionID), zap.String("url", u), zap.Error(err))
			continue
		}
		sent++
	}
	return nil
}
