package domain

import (
	"encoding/json"
	"time"
)

// OutboxEvent is a message staged in the same transaction as the domain
// mutation that caused it. Payload holds the fully encoded wire envelope;
// RoutingKey is the Kafka partition key (orderId, or productId for
// inventory-internal mutations).
type OutboxEvent struct {
	Id            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	RoutingKey    string          `db:"routing_key"`
	Topic         string          `db:"topic"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
}
