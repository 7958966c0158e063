package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/earnhub/backend/internal/models"
)

const ledgerEventsQueue = "ledger:events"

// LedgerEvent is the message pushed for downstream consumers (notifications,
// marketplace item-status transitions) after an operation commits.
type LedgerEvent struct {
	EventID   string               `json:"event_id"`
	Reference string               `json:"reference"`
	Op        string               `json:"op"`
	Entries   []models.LedgerEntry `json:"entries"`
	CreatedAt time.Time            `json:"created_at"`
}

// EventPublisher pushes committed operations onto a Redis queue. Publishing
// is best effort: the ledger commit already happened and is never unwound
// because a consumer queue is down. A nil client disables publishing.
type EventPublisher struct {
	redis *redis.Client
}

func NewEventPublisher(redisClient *redis.Client) *EventPublisher {
	return &EventPublisher{redis: redisClient}
}

func (p *EventPublisher) PublishCompleted(ctx context.Context, reference, op string, entries []models.LedgerEntry) {
	if p.redis == nil {
		return
	}

	event := LedgerEvent{
		EventID:   uuid.New().String(),
		Reference: reference,
		Op:        op,
		Entries:   entries,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EVENTS] failed to marshal event for %s: %v", reference, err)
		return
	}

	if err := p.redis.RPush(ctx, ledgerEventsQueue, string(data)).Err(); err != nil {
		log.Printf("[EVENTS] failed to publish event for %s: %v", reference, err)
	}
}
