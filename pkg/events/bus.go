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

package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Projection consumes envelopes from the bus and writes a derived
// representation (state, stream, external channel, markdown, audit).
type Projection interface {
	// Name identifies the projection in logs.
	Name() string

	// Handle processes one envelope. Errors are logged by the bus and do not
	// affect other projections.
	Handle(ctx context.Context, env Envelope) error
}

// Bus fans each envelope out to registered projections, sequentially in
// registration order. A projection failure is isolated: it is logged and the
// remaining projections still observe the event.
type Bus struct {
	mu          sync.RWMutex
	projections []Projection
	logger      *zap.Logger
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Register appends a projection. Registration order is fan-out order.
func (b *Bus) Register(p Projection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projections = append(b.projections, p)
}

// Emit delivers the envelope to every projection before returning. Call sites
// that need ordering guarantees (gate queue followed by state flush) rely on
// this synchronous behavior.
func (b *Bus) Emit(ctx context.Context, env Envelope) {
	b.mu.RLock()
	projections := make([]Projection, len(b.projections))
	copy(projections, b.projections)
	b.mu.RUnlock()

	for _, p := range projections {
		b.dispatch(ctx, p, env)
	}
}

// EmitAsync delivers the envelope on a separate goroutine. Used by call sites
// that treat emission as fire-and-forget.
func (b *Bus) EmitAsync(env Envelope) {
	go b.Emit(context.Background(), env)
}

func (b *Bus) dispatch(ctx context.Context, p Projection, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("projection panicked",
				zap.String("projection", p.Name()),
				zap.String("event_type", string(env.Type)),
				zap.String("session_id", env.SessionID),
				zap.Any("panic", r))
		}
	}()

	if err := p.Handle(ctx, env); err != nil {
		b.logger.Error("projection failed",
			zap.String("projection", p.Name()),
			zap.String("event_type", string(env.Type)),
			zap.String("session_id", env.SessionID),
			zap.Error(err))
	}
}
