// Package notification delivers SMS and email messages for the scheduler and
// the patient tracker: shift assignment notices and critical-patient alerts.
// Messages are rendered from templates, handed to a Sender and kept in an
// in-memory delivery log that can be inspected and retried over HTTP.
package notification

import (
	"context"
	"fmt"
	"time"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// Delivery states recorded in the log.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Message is a single outbound notification.
type Message struct {
	ID         string            `json:"id"`
	Channel    Channel           `json:"channel"`
	Address    string            `json:"address"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Gateway is what the domain services depend on.
type Gateway interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Sender hands a rendered message to a delivery channel.
type Sender interface {
	Deliver(ctx context.Context, msg Message) error
}

// DeliveryError reports a message that could not be handed off.
type DeliveryError struct {
	MessageID string
	Channel   Channel
	Address   string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s message %s to %s: %v", e.Channel, e.MessageID, e.Address, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
