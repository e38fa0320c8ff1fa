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
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/events"
	"github.com/chapo-dev/chapo/pkg/storage"
)

// AuditProjection appends one record per visible domain event.
type AuditProjection struct {
	log    storage.AuditLog
	logger *zap.Logger
}

// NewAuditProjection creates the audit projection.
func NewAuditProjection(log storage.AuditLog, logger *zap.Logger) *AuditProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditProjection{log: log, logger: logger}
}

// Name implements events.Projection.
func (p *AuditProjection) Name() string { return "audit" }

// Handle implements events.Projection.
func (p *AuditProjection) Handle(ctx context.Context, env events.Envelope) error {
	if env.Visibility != events.VisibilityUI {
		return nil
	}
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	return p.log.AppendAudit(ctx, storage.AuditRecord{
		ID:        env.ID,
		SessionID: env.SessionID,
		EventType: string(env.Type),
		Payload:   payload,
		CreatedAt: env.OccurredAt,
	})
}
