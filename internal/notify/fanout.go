// Package notify implements the Notification Fan-out (C10): best-effort,
// at-most-once delivery of intervention/progress/status-change events to
// subscribers grouped by session, by user, and a global feed.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/intervention"
	"github.com/javimaligno/goapply-core/internal/logging"
)

// MessageType names the three broadcaster shapes defines.
type MessageType string

const (
	TypeIntervention MessageType = "intervention"
	TypeProgress     MessageType = "progress"
	TypeStatusChange MessageType = "status_change"
)

// Message is the envelope every broadcast carries: { type, payload, timestamp }.
type Message struct {
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// InterventionPayload is broadcast_intervention's payload shape.
type InterventionPayload struct {
	InterventionID string `json:"intervention_id"`
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	Kind           string `json:"kind"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	CurrentURL     string `json:"current_url"`
}

// ProgressPayload is broadcast_progress's payload shape.
type ProgressPayload struct {
	SessionID string `json:"session_id"`
	Step      string `json:"step"`
	Percent   int    `json:"percent"`
	Details   string `json:"details,omitempty"`
}

// StatusChangePayload is broadcast_status_change's payload shape.
type StatusChangePayload struct {
	SessionID string `json:"session_id"`
	Old       string `json:"old"`
	New       string `json:"new"`
	Reason    string `json:"reason,omitempty"`
}

// Subscriber stands in for the out-of-scope HTTP/WS transport:
// any sink capable of receiving a Message and reporting delivery failure.
type Subscriber interface {
	ID() string
	Send(Message) error
}

// Filters narrows which buckets a Connect call subscribes to.
type Filters struct {
	SessionID string
	UserID    string
	Global    bool
}

// Fanout owns the three subscription buckets and fans typed broadcasts out
// to every matching, live subscriber. Uses the same mutex-guarded-map
// idiom as internal/session.Manager and internal/intervention.Store,
// applied to a new concern: has no original_source/ counterpart.
type Fanout struct {
	mu       sync.Mutex
	bySession map[string]map[string]Subscriber
	byUser    map[string]map[string]Subscriber
	global    map[string]Subscriber
	log       *zap.Logger
}

// New constructs an empty Fanout.
func New() *Fanout {
	return &Fanout{
		bySession: make(map[string]map[string]Subscriber),
		byUser:    make(map[string]map[string]Subscriber),
		global:    make(map[string]Subscriber),
		log:       logging.L().Named("notify"),
	}
}

// Connect registers sub under every bucket named by filters.
func (f *Fanout) Connect(sub Subscriber, filters Filters) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if filters.SessionID != "" {
		bucket, ok := f.bySession[filters.SessionID]
		if !ok {
			bucket = make(map[string]Subscriber)
			f.bySession[filters.SessionID] = bucket
		}
		bucket[sub.ID()] = sub
	}
	if filters.UserID != "" {
		bucket, ok := f.byUser[filters.UserID]
		if !ok {
			bucket = make(map[string]Subscriber)
			f.byUser[filters.UserID] = bucket
		}
		bucket[sub.ID()] = sub
	}
	if filters.Global {
		f.global[sub.ID()] = sub
	}
}

// Disconnect removes sub from every bucket named by filters.
func (f *Fanout) Disconnect(sub Subscriber, filters Filters) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if filters.SessionID != "" {
		delete(f.bySession[filters.SessionID], sub.ID())
	}
	if filters.UserID != "" {
		delete(f.byUser[filters.UserID], sub.ID())
	}
	if filters.Global {
		delete(f.global, sub.ID())
	}
}

// subscribersLocked collects the union of session/user/global subscribers
// for one delivery. Must be called with f.mu held.
func (f *Fanout) subscribersLocked(sessionID, userID string) []Subscriber {
	seen := make(map[string]Subscriber)
	for id, s := range f.bySession[sessionID] {
		seen[id] = s
	}
	for id, s := range f.byUser[userID] {
		seen[id] = s
	}
	for id, s := range f.global {
		seen[id] = s
	}
	out := make([]Subscriber, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	return out
}

// sendSessionAndGlobal delivers msg to every subscriber of (session, global) buckets,
// pruning any that fail. Delivery is best-effort, at-most-once, no replay.
func (f *Fanout) sendSessionAndGlobal(sessionID string, msg Message) {
	f.send(sessionID, "", msg)
}

// send delivers msg to every subscriber of (sessionID, userID), pruning any
// that fail. Delivery is best-effort, at-most-once, no replay.
func (f *Fanout) send(sessionID, userID string, msg Message) {
	f.mu.Lock()
	subs := f.subscribersLocked(sessionID, userID)
	f.mu.Unlock()

	var dead []Subscriber
	for _, sub := range subs {
		if err := sub.Send(msg); err != nil {
			f.log.Warn("subscriber send failed, marking dead", zap.String("subscriber_id", sub.ID()), zap.Error(err))
			dead = append(dead, sub)
		}
	}
	if len(dead) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range dead {
		delete(f.bySession[sessionID], sub.ID())
		delete(f.byUser[userID], sub.ID())
		delete(f.global, sub.ID())
	}
}

// BroadcastIntervention implements intervention.Notifier, satisfied by
// *Fanout so the Intervention Store (C6) can emit through the real fan-out
// instead of its noop default.
func (f *Fanout) BroadcastIntervention(ctx context.Context, interventionID, sessionID, userID string, kind intervention.Kind, title, description, currentURL string) {
	f.send(sessionID, userID, Message{
		Type: TypeIntervention,
		Payload: InterventionPayload{
			InterventionID: interventionID,
			SessionID:      sessionID,
			UserID:         userID,
			Kind:           string(kind),
			Title:          title,
			Description:    description,
			CurrentURL:     currentURL,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastProgress implements broadcast_progress.
func (f *Fanout) BroadcastProgress(sessionID, step string, percent int, details string) {
	f.sendSessionAndGlobal(sessionID, Message{
		Type:      TypeProgress,
		Payload:   ProgressPayload{SessionID: sessionID, Step: step, Percent: percent, Details: details},
		Timestamp: time.Now(),
	})
}

// BroadcastStatusChange implements broadcast_status_change.
func (f *Fanout) BroadcastStatusChange(sessionID, oldStatus, newStatus, reason string) {
	f.sendSessionAndGlobal(sessionID, Message{
		Type:      TypeStatusChange,
		Payload:   StatusChangePayload{SessionID: sessionID, Old: oldStatus, New: newStatus, Reason: reason},
		Timestamp: time.Now(),
	})
}
