// Package notify delivers user-facing toasts raised by editing sessions.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/procura/api/internal/enum"
	"github.com/sirupsen/logrus"
)

// Notification is a short message shown to the user.
type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
}

// Sink receives notifications. Delivery is fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, sessionID uuid.UUID, n Notification)
}

// Success builds a success notification.
func Success(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: enum.VariantSuccess}
}

// Destructive builds an error notification.
func Destructive(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: enum.VariantDestructive}
}

// Recorded is a notification captured by a Recorder.
type Recorded struct {
	SessionID uuid.UUID
	Notification
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Recorded
}

func (r *Recorder) Notify(_ context.Context, sessionID uuid.UUID, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Recorded{SessionID: sessionID, Notification: n})
}

// All returns the notifications received so far.
func (r *Recorder) All() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.sent...)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Recorded, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Recorded{}, false
	}
	return r.sent[len(r.sent)-1], true
}

// LogSink writes notifications to a logger.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (s LogSink) Notify(_ context.Context, sessionID uuid.UUID, n Notification) {
	entry := s.Logger.WithFields(logrus.Fields{
		"session": sessionID.String(),
		"variant": n.Variant,
		"title":   n.Title,
	})
	if n.Variant == enum.VariantDestructive {
		entry.Warn(n.Description)
		return
	}
	entry.Info(n.Description)
}

// Fanout delivers to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, sessionID uuid.UUID, n Notification) {
	for _, s := range f {
		if s != nil {
			s.Notify(ctx, sessionID, n)
		}
	}
}
