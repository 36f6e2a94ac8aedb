// Package postgres is the PostgreSQL uow.Store. Each unit of work runs in one
// serializable transaction; updates and deletes are guarded by the version
// the aggregate was loaded with, and every change is journaled to the event
// store in the same transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gymbooking/internal/domain"
	"gymbooking/internal/eventstore"
	"gymbooking/internal/uow"
)

type Store struct {
	db     *sqlx.DB
	events *eventstore.EventStore
}

func New(db *sqlx.DB, events *eventstore.EventStore) *Store {
	if events == nil {
		events = eventstore.NewEventStore(db)
	}
	return &Store{db: db, events: events}
}

// Open connects and verifies the database is reachable.
func Open(ctx context.Context, url string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate creates the state tables and the event journal.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, eventstore.Schema); err != nil {
		return fmt.Errorf("create event schema: %w", err)
	}
	return nil
}

func (s *Store) Events() *eventstore.EventStore {
	return s.events
}

func (s *Store) Begin(ctx context.Context) (uow.Tx, error) {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, translate("postgres.begin", err)
	}
	return &pgTx{tx: sqlTx, events: s.events}, nil
}

// translate maps driver failures onto domain codes. Serialization failures,
// deadlocks and unique violations all mean another writer won the race.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return domain.NewError(domain.CodeConflict, op, err.Error(), err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return domain.NewError(domain.CodeConflict, op, pqErr.Message, err)
		}
	}
	return domain.Wrap(domain.CodeInternal, op, err)
}
