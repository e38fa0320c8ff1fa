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

package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// InboxMessage is a user message that arrived while a turn was executing.
type InboxMessage struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Acknowledged bool      `json:"acknowledged"`
	Source       string    `json:"source"`
}

// Inbox is a per-session unbounded FIFO of messages queued behind an active
// turn. The turn engine drains it at compaction checkpoints and at turn end.
type Inbox struct {
	mu          sync.Mutex
	queues      map[string][]InboxMessage
	subscribers map[string]func(InboxMessage)
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{
		queues:      make(map[string][]InboxMessage),
		subscribers: make(map[string]func(InboxMessage)),
	}
}

// Push enqueues a message and notifies the session subscriber, if any.
func (i *Inbox) Push(sessionID, content, source string) InboxMessage {
	msg := InboxMessage{
		ID:         uuid.New().String(),
		Content:    content,
		ReceivedAt: time.Now(),
		Source:     source,
	}

	i.mu.Lock()
	i.queues[sessionID] = append(i.queues[sessionID], msg)
	subscriber := i.subscribers[sessionID]
	i.mu.Unlock()

	if subscriber != nil {
		subscriber(msg)
	}
	return msg
}

// Drain atomically returns and clears the session queue.
func (i *Inbox) Drain(sessionID string) []InboxMessage {
	i.mu.Lock()
	defer i.mu.Unlock()
	msgs := i.queues[sessionID]
	delete(i.queues, sessionID)
	return msgs
}

// Len reports the number of queued messages for the session.
func (i *Inbox) Len(sessionID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.queues[sessionID])
}

// OnMessage registers the single subscriber for a session. A second call
// replaces the first.
func (i *Inbox) OnMessage(sessionID string, fn func(InboxMessage)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subscribers[sessionID] = fn
}

// OffMessage removes the session subscriber.
func (i *Inbox) OffMessage(sessionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.subscribers, sessionID)
}
