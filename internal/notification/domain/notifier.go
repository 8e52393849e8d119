package domain

import (
	"context"
	"time"
)

type EventType string

const (
	EventOrderSubmitted   EventType = "order_submitted"
	EventPaymentReceived  EventType = "payment_received"
	EventSentForSigning   EventType = "sent_for_signing"
	EventOrderDeclined    EventType = "order_declined"
	EventOrderCompleted   EventType = "order_completed"
	EventOrderUnfulfilled EventType = "order_unfulfilled"
	EventOrderRefunded    EventType = "order_refunded"
	EventOrderCancelled   EventType = "order_cancelled"
)

type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Payload map[string]any

// Notifier delivers order events. Calls never block the caller on delivery
// and never report delivery failures.
type Notifier interface {
	Notify(ctx context.Context, to Recipient, event EventType, payload Payload)
	NotifyAdmins(ctx context.Context, event EventType, payload Payload)
}

// Event is the envelope published to sinks.
type Event struct {
	Type       EventType `json:"event_type"`
	Recipient  Recipient `json:"recipient"`
	Payload    Payload   `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink delivers one event synchronously.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Noop drops every notification.
type Noop struct{}

func (Noop) Notify(context.Context, Recipient, EventType, Payload) {}

func (Noop) NotifyAdmins(context.Context, EventType, Payload) {}
