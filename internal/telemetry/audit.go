package telemetry

import (
	"context"
	"log"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter pushes moderation events onto the audit exchange so bans,
// mutes and warnings leave a trail outside the process.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action   string `json:"action"`
	TargetID string `json:"target_id"`
	IssuedBy string `json:"issued_by,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Duration string `json:"duration,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one moderation action. A zero duration means permanent or
// not applicable. Safe on a nil emitter.
func (e *AuditEmitter) Emit(ctx context.Context, action, targetID, issuedBy, reason string, duration time.Duration) {
	if e == nil || e.publisher == nil {
		return
	}

	payload := AuditPayload{
		Action:   action,
		TargetID: targetID,
		IssuedBy: issuedBy,
		Reason:   reason,
	}
	if duration > 0 {
		payload.Duration = duration.String()
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "moderation",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
