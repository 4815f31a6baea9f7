// Package events publishes template and mint lifecycle events.
//
// Publishing is best-effort: a failed publish is logged by the caller and
// never fails the operation that produced the event.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the event type; it doubles as the routing key.
type Type string

const (
	TemplateRegistered Type = "template.registered"
	TemplateRemoved    Type = "template.removed"
	PODMinted          Type = "pod.minted"
)

// Event is the published message body.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	TemplateID string    `json:"templateId"`
	ProofKind  string    `json:"proofKind,omitempty"`
	Owner      string    `json:"owner,omitempty"`
	Time       time.Time `json:"time"`
}

// New stamps an event with a fresh ID and the current time.
func New(t Type, templateID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		TemplateID: templateID,
		Time:       time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
