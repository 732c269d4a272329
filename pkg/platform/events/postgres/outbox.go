// Package postgres implements the transactional outbox for events. Write
// joins the caller's transaction when one is in the context; Relay forwards
// unpublished rows to another sink.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"issuance/pkg/platform/events"
	txcontext "issuance/pkg/platform/tx"
)

type Outbox struct {
	db *sql.DB
}

func New(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

type outboxPayload struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Category  string         `json:"category"`
	Key       string         `json:"key"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
	Principal string         `json:"principal,omitempty"`
}

func encode(e events.Event) ([]byte, error) {
	return json.Marshal(outboxPayload{
		ID:        e.ID.String(),
		Kind:      string(e.Kind),
		Category:  string(e.Category()),
		Key:       e.Key,
		Payload:   e.Payload,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		RequestID: e.RequestID,
		Principal: e.Principal,
	})
}

// Write inserts each event into the outbox table.
func (o *Outbox) Write(ctx context.Context, batch []events.Event) error {
	exec := txcontext.Exec(ctx, o.db)
	for _, e := range batch {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		body, err := encode(e)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		_, err = exec.ExecContext(ctx, `
			INSERT INTO outbox (id, category, event_type, aggregate_key, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, e.ID, string(e.Category()), string(e.Kind), e.Key, body, e.Timestamp)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	}
	return nil
}

// Relay publishes up to limit unpublished outbox rows to sink and marks them
// published. Rows are locked with SKIP LOCKED so concurrent relays do not
// publish the same row twice.
func (o *Outbox) Relay(ctx context.Context, sink events.Sink, limit int) (int, error) {
	var relayed int
	err := txcontext.Run(ctx, o.db, func(ctx context.Context) error {
		exec := txcontext.Exec(ctx, o.db)
		rows, err := exec.QueryContext(ctx, `
			SELECT id, payload
			FROM outbox
			WHERE published_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return fmt.Errorf("query outbox: %w", err)
		}
		var (
			ids   []uuid.UUID
			batch []events.Event
		)
		for rows.Next() {
			var (
				rowID uuid.UUID
				body  []byte
			)
			if err := rows.Scan(&rowID, &body); err != nil {
				rows.Close()
				return fmt.Errorf("scan outbox entry: %w", err)
			}
			event, err := decode(body)
			if err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, rowID)
			batch = append(batch, event)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close outbox rows: %w", err)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate outbox: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := sink.Write(ctx, batch); err != nil {
			return fmt.Errorf("relay outbox batch: %w", err)
		}
		for _, rowID := range ids {
			if _, err := exec.ExecContext(ctx, `UPDATE outbox SET published_at = now() WHERE id = $1`, rowID); err != nil {
				return fmt.Errorf("mark outbox entry published: %w", err)
			}
		}
		relayed = len(batch)
		return nil
	})
	return relayed, err
}

func decode(body []byte) (events.Event, error) {
	var p outboxPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal outbox payload: %w", err)
	}
	eventID, err := uuid.Parse(p.ID)
	if err != nil {
		return events.Event{}, fmt.Errorf("parse outbox event id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return events.Event{}, fmt.Errorf("parse outbox timestamp: %w", err)
	}
	return events.Event{
		ID:        eventID,
		Kind:      events.Kind(p.Kind),
		Key:       p.Key,
		Payload:   p.Payload,
		Timestamp: ts,
		RequestID: p.RequestID,
		Principal: p.Principal,
	}, nil
}
