package proctor

import (
	"peercall/native/internal/clock"
	"peercall/native/internal/domain"
	"peercall/native/internal/logging"

	"github.com/rs/zerolog"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Publisher emits proctor_event messages for one room.
type Publisher struct {
	signaler domain.Signaler
	roomID   string
	clock    clock.Clock
	log      zerolog.Logger
}

func NewPublisher(signaler domain.Signaler, roomID string, c clock.Clock, logger zerolog.Logger) *Publisher {
	return &Publisher{
		signaler: signaler,
		roomID:   roomID,
		clock:    c,
		log:      logging.Component(logger, "proctor"),
	}
}

// Build stamps an event with the room, the current time and its severity.
// metadata is copied.
func (p *Publisher) Build(eventType, message string, metadata map[string]any) domain.ProctorEvent {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["severity"] = string(Severity(eventType))
	return domain.ProctorEvent{
		Type:      eventType,
		Message:   message,
		Timestamp: p.clock.Now().UTC().Format(TimestampLayout),
		RoomID:    p.roomID,
		Metadata:  meta,
	}
}

// Publish implements media.Publisher. Send failures are logged and dropped.
func (p *Publisher) Publish(eventType, message string, metadata map[string]any) {
	if err := p.Send(p.Build(eventType, message, metadata)); err != nil {
		p.log.Warn().Err(err).Str("type", eventType).Msg("proctor event not sent")
	}
}

// Send emits a prepared event, filling in the room, timestamp and severity
// when missing.
func (p *Publisher) Send(ev domain.ProctorEvent) error {
	if ev.RoomID == "" {
		ev.RoomID = p.roomID
	}
	if ev.Timestamp == "" {
		ev.Timestamp = p.clock.Now().UTC().Format(TimestampLayout)
	}
	if _, ok := ev.Metadata["severity"]; !ok {
		meta := make(map[string]any, len(ev.Metadata)+1)
		for k, v := range ev.Metadata {
			meta[k] = v
		}
		meta["severity"] = string(Severity(ev.Type))
		ev.Metadata = meta
	}
	p.log.Debug().Str("type", ev.Type).Msg("proctor event")
	return p.signaler.Emit(domain.EventProctor, ev)
}
