// Package audit persists every chain event into postgres, giving the
// ledger a durable, append-only audit trail on the query side.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/energychain/pkg/circuit"
	"github.com/terminal-bench/energychain/pkg/messaging"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
    id          UUID PRIMARY KEY,
    type        TEXT        NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    payload     JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_events_type_idx ON ledger_events (type, occurred_at);
`

// Subscriber registers event handlers, satisfied by *messaging.Client.
type Subscriber interface {
	QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error
}

// Archiver consumes the chain's event stream and appends each event to
// the ledger_events table. Inserts run behind a circuit breaker so a
// failing database does not pile up blocked handlers.
type Archiver struct {
	db      *sql.DB
	breaker *circuit.Breaker
	log     logrus.FieldLogger
}

// NewArchiver creates an archiver writing to db.
func NewArchiver(db *sql.DB, log logrus.FieldLogger) *Archiver {
	return &Archiver{
		db: db,
		breaker: circuit.NewBreaker(circuit.Config{
			Name:        "audit-db",
			MaxFailures: 5,
			Timeout:     15 * time.Second,
			HalfOpenMax: 2,
			OnStateChange: func(name string, from, to circuit.State) {
				log.WithField("breaker", name).Infof("state %s -> %s", from, to)
			},
		}),
		log: log,
	}
}

// EnsureSchema creates the audit table if it does not exist.
func (a *Archiver) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}

// Start subscribes to the full event stream. Replicas share the queue
// group so each event is archived once.
func (a *Archiver) Start(ctx context.Context, sub Subscriber) error {
	return sub.QueueSubscribe("energy.>", "audit-archiver", func(msg *nats.Msg) {
		a.archive(ctx, msg.Data)
	})
}

func (a *Archiver) archive(ctx context.Context, raw []byte) {
	var env messaging.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		a.log.WithError(err).Warn("discarding malformed event")
		return
	}

	err := a.breaker.Execute(ctx, func() error {
		_, err := a.db.ExecContext(ctx,
			`INSERT INTO ledger_events (id, type, occurred_at, payload)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			env.ID, env.Type, env.Timestamp, raw,
		)
		return err
	})
	if err != nil {
		a.log.WithError(err).WithField("type", env.Type).Error("failed to archive event")
	}
}

// EventCount returns how many events of type are archived, or all when
// eventType is empty. Used by reconciliation tooling.
func (a *Archiver) EventCount(ctx context.Context, eventType string) (int64, error) {
	var count int64
	var err error
	if eventType == "" {
		err = a.db.QueryRowContext(ctx, "SELECT count(*) FROM ledger_events").Scan(&count)
	} else {
		err = a.db.QueryRowContext(ctx,
			"SELECT count(*) FROM ledger_events WHERE type = $1", eventType).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
