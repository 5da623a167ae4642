package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/swapgate/swapgate/internal/events"
	"github.com/swapgate/swapgate/internal/pkg/logger"
)

// PostgresEventStore persists committed engine events for external indexing
// and serves the /v1/events query endpoint. It doubles as an events.Sink.
type PostgresEventStore struct {
	db *sqlx.DB
}

func NewPostgresEventStore(db *sqlx.DB) *PostgresEventStore {
	store := &PostgresEventStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresEventStore) Publish(ctx context.Context, ev *events.Event) {
	if ev == nil {
		return
	}
	payloadJSON, _ := json.Marshal(ev.Payload)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_events (id, type, offer_id, payload, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, string(ev.Type), ev.OfferID, payloadJSON, ev.At)
	if err != nil {
		// The event store is an indexing surface, never a settlement
		// dependency; log and move on.
		logger.Error("failed to persist event", "error", err, "event_id", ev.ID)
	}
}

func (s *PostgresEventStore) List(ctx context.Context, offerID *uint64, eventType string, limit int) ([]*events.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, type, offer_id, payload, created_at FROM engine_events`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if offerID != nil {
		clauses = append(clauses, fmt.Sprintf("offer_id = $%d", idx))
		args = append(args, *offerID)
		idx++
	}
	if eventType != "" {
		clauses = append(clauses, fmt.Sprintf("type = $%d", idx))
		args = append(args, eventType)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*events.Event, 0, limit)
	for rows.Next() {
		var ev events.Event
		var typ string
		var payloadJSON []byte
		if err := rows.Scan(&ev.ID, &typ, &ev.OfferID, &payloadJSON, &ev.At); err != nil {
			return nil, err
		}
		ev.Type = events.Type(typ)
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &ev.Payload)
		} else {
			ev.Payload = map[string]any{}
		}
		records = append(records, &ev)
	}
	return records, nil
}

func (s *PostgresEventStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS engine_events (
			id TEXT PRIMARY KEY,
			type TEXT,
			offer_id BIGINT,
			payload JSONB,
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_engine_events_offer ON engine_events(offer_id, created_at DESC)`)
	return nil
}

func (s *PostgresEventStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.db.ExecContext(ctx, `DELETE FROM engine_events WHERE created_at < $1`, cutoff)
	return err
}
