package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/edops/internal/platform/apperr"
)

// logMaxSize bounds the in-memory delivery log; the oldest entries go first.
const logMaxSize = 1000

// Manager implements Gateway on top of a Sender and keeps a delivery log of
// the most recent messages.
type Manager struct {
	sender    Sender
	templates *TemplateEngine
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	messages map[string]*Message
	order    []string
	limit    int
}

func NewManager(sender Sender, tpl *TemplateEngine) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Manager{
		sender:    sender,
		templates: tpl,
		logger:    zerolog.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
		messages:  make(map[string]*Message),
		limit:     logMaxSize,
	}
}

func (m *Manager) SetLogger(l zerolog.Logger) { m.logger = l }

// SetLogLimit changes how many messages the delivery log keeps.
func (m *Manager) SetLogLimit(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.limit = n
	m.evict()
	m.mu.Unlock()
}

// evict drops the oldest messages beyond the limit. Callers hold mu.
func (m *Manager) evict() {
	over := len(m.order) - m.limit
	if over <= 0 {
		return
	}
	for _, id := range m.order[:over] {
		delete(m.messages, id)
	}
	m.order = append([]string(nil), m.order[over:]...)
}

// Send assigns an id, delivers msg and records the outcome. The id is returned
// even when delivery fails so the message can be retried.
func (m *Manager) Send(ctx context.Context, msg Message) (string, error) {
	if !msg.Channel.Valid() {
		return "", apperr.New(apperr.CodeInvalidInput, "unsupported channel %q", msg.Channel).WithField("channel")
	}
	if msg.Address == "" {
		return "", apperr.New(apperr.CodeInvalidInput, "address is required").WithField("address")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = m.now()
	msg.Status = StatusPending

	stored := msg
	m.mu.Lock()
	if _, dup := m.messages[stored.ID]; !dup {
		m.order = append(m.order, stored.ID)
	}
	m.messages[stored.ID] = &stored
	m.evict()
	m.mu.Unlock()

	return stored.ID, m.deliver(ctx, &stored)
}

// SendTemplate renders templateID with data and sends the result.
func (m *Manager) SendTemplate(ctx context.Context, templateID string, channel Channel, address string, data map[string]string) (string, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return "", apperr.New(apperr.CodeInvalidInput, "render: %v", err).WithField("template_id")
	}
	return m.Send(ctx, Message{
		Channel:    channel,
		Address:    address,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		Data:       data,
	})
}

func (m *Manager) deliver(ctx context.Context, msg *Message) error {
	m.mu.RLock()
	snapshot := *msg
	m.mu.RUnlock()

	sendErr := m.sender.Deliver(ctx, snapshot)

	m.mu.Lock()
	msg.Attempts++
	if sendErr != nil {
		msg.Status = StatusFailed
		msg.Error = sendErr.Error()
	} else {
		sentAt := m.now()
		msg.Status = StatusSent
		msg.SentAt = &sentAt
		msg.Error = ""
	}
	m.mu.Unlock()

	if sendErr != nil {
		m.logger.Warn().Err(sendErr).
			Str("message_id", msg.ID).
			Str("channel", string(msg.Channel)).
			Msg("notification delivery failed")
		return &DeliveryError{MessageID: msg.ID, Channel: msg.Channel, Address: msg.Address, Err: sendErr}
	}
	m.logger.Debug().Str("message_id", msg.ID).Str("channel", string(msg.Channel)).Msg("notification sent")
	return nil
}

func (m *Manager) Get(_ context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, apperr.NotFound("notification", id)
	}
	cp := *msg
	return &cp, nil
}

// List returns messages newest first, optionally filtered by address.
func (m *Manager) List(_ context.Context, address string) []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Message, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		msg := m.messages[m.order[i]]
		if address != "" && msg.Address != address {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	return out
}

// Retry re-delivers a failed message.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	msg, ok := m.messages[id]
	var status string
	if ok {
		status = msg.Status
	}
	m.mu.RUnlock()
	if !ok {
		return apperr.NotFound("notification", id)
	}
	if status != StatusFailed {
		return apperr.New(apperr.CodeInvalidInput, "notification %s is %s, only failed messages can be retried", id, status)
	}
	return m.deliver(ctx, msg)
}

// Stats counts messages by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, msg := range m.messages {
		stats[msg.Status]++
	}
	return stats
}

// IsDeliveryError reports whether err is a failed hand-off rather than a
// rejected request.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

var _ Gateway = (*Manager)(nil)
