package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gymbooking/internal/domain"
	"gymbooking/internal/eventstore"
	"gymbooking/internal/uow"
)

type pgTx struct {
	tx     *sqlx.Tx
	events *eventstore.EventStore
	done   bool
}

func (t *pgTx) get(ctx context.Context, dest any, kind string, id uuid.UUID, query string, args ...any) error {
	err := t.tx.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(kind, id)
	}
	return translate("postgres.get_"+kind, err)
}

func (t *pgTx) LoadMember(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	var row memberRow
	if err := t.get(ctx, &row, "member", id, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return row.restore()
}

func (t *pgTx) FindMemberByEmail(ctx context.Context, email string) (*domain.Member, error) {
	var row memberRow
	err := t.tx.GetContext(ctx, &row, `SELECT `+memberColumns+` FROM members WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.CodeNotFound, "member.find_by_email", "no member with email "+email, nil)
	}
	if err != nil {
		return nil, translate("postgres.find_member_by_email", err)
	}
	return row.restore()
}

func (t *pgTx) LoadClass(ctx context.Context, id uuid.UUID) (*domain.FitnessClass, error) {
	var row classRow
	if err := t.get(ctx, &row, "class", id, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return row.restore()
}

func (t *pgTx) FindClasses(ctx context.Context, f uow.ClassFilter) ([]*domain.FitnessClass, error) {
	var rows []classRow
	query := `SELECT ` + classColumns + ` FROM classes`
	var args []any
	if f.RoomID != uuid.Nil {
		query += ` WHERE room_id = $1`
		args = append(args, f.RoomID)
	}
	query += ` ORDER BY day, start_minutes, id`
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translate("postgres.find_classes", err)
	}
	return restoreAll(rows, classRow.restore)
}

func (t *pgTx) LoadBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var row bookingRow
	if err := t.get(ctx, &row, "booking", id, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return row.restore()
}

func (t *pgTx) FindBookings(ctx context.Context, f uow.BookingFilter) ([]*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE TRUE`
	var args []any
	if f.MemberID != uuid.Nil {
		args = append(args, f.MemberID)
		query += fmt.Sprintf(` AND member_id = $%d`, len(args))
	}
	if f.ClassID != uuid.Nil {
		args = append(args, f.ClassID)
		query += fmt.Sprintf(` AND class_id = $%d`, len(args))
	}
	if f.Status != 0 {
		args = append(args, f.Status.String())
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY booked_at, id`

	var rows []bookingRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translate("postgres.find_bookings", err)
	}
	return restoreAll(rows, bookingRow.restore)
}

func (t *pgTx) LoadWaitlistEntry(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	var row waitlistRow
	if err := t.get(ctx, &row, "waitlist entry", id, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return row.restore()
}

func (t *pgTx) FindWaitlist(ctx context.Context, f uow.WaitlistFilter) ([]*domain.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE TRUE`
	var args []any
	if f.MemberID != uuid.Nil {
		args = append(args, f.MemberID)
		query += fmt.Sprintf(` AND member_id = $%d`, len(args))
	}
	if f.ClassID != uuid.Nil {
		args = append(args, f.ClassID)
		query += fmt.Sprintf(` AND class_id = $%d`, len(args))
	}
	query += ` ORDER BY added_at, id`

	var rows []waitlistRow
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translate("postgres.find_waitlist", err)
	}
	return restoreAll(rows, waitlistRow.restore)
}

// Commit writes the change set and its journal, then commits. Any failure
// rolls the transaction back.
func (t *pgTx) Commit(ctx context.Context, changes []uow.Change) (err error) {
	if t.done {
		return uow.ErrUnitClosed
	}
	t.done = true
	defer func() {
		if err != nil {
			_ = t.tx.Rollback()
		}
	}()

	events := make([]eventstore.Event, 0, len(changes))
	for _, c := range changes {
		if err := t.write(ctx, c); err != nil {
			return err
		}
		ev, err := journal(c)
		if err != nil {
			return err
		}
		events = append(events, ev)
	}
	if err := t.events.Append(ctx, t.tx, events); err != nil {
		return translate("postgres.journal", err)
	}
	if err := t.tx.Commit(); err != nil {
		return translate("postgres.commit", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return translate("postgres.rollback", err)
	}
	return nil
}

func (t *pgTx) write(ctx context.Context, c uow.Change) error {
	switch c.Kind {
	case uow.ChangeNew:
		return t.insert(ctx, c.Aggregate)
	case uow.ChangeDirty:
		return t.update(ctx, c.Aggregate)
	case uow.ChangeRemoved:
		return t.remove(ctx, c.Aggregate)
	}
	return fmt.Errorf("unknown change kind %d", c.Kind)
}

func (t *pgTx) insert(ctx context.Context, a uow.Aggregate) error {
	var (
		query string
		args  []any
	)
	switch v := a.(type) {
	case *domain.Member:
		s := v.State()
		query = `INSERT INTO members (` + memberColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		args = []any{s.ID, s.Name, s.Email, s.Tier, s.TierCredits, s.TierPriceCents, s.Credits, s.CreditsExpireAt,
			s.PasswordHash, s.PasswordSalt, s.RegisteredAt, s.Version + 1}
	case *domain.FitnessClass:
		s := v.State()
		query = `INSERT INTO classes (` + classColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid[], $9)`
		args = []any{s.ID, s.Name, s.Capacity, s.Day, s.StartMinutes, s.EndMinutes, s.RoomID, memberIDs(s.BookedMembers), s.Version + 1}
	case *domain.Booking:
		s := v.State()
		query = `INSERT INTO bookings (` + bookingColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		args = []any{s.ID, s.MemberID, s.ClassID, s.Status.String(), s.BookedAt, nullTime(s.CancelledAt), nullTime(s.ClosedAt), s.Version + 1}
	case *domain.WaitlistEntry:
		s := v.State()
		query = `INSERT INTO waitlist_entries (` + waitlistColumns + `) VALUES ($1, $2, $3, $4, $5)`
		args = []any{s.ID, s.MemberID, s.ClassID, s.AddedAt, s.Version + 1}
	default:
		return fmt.Errorf("%w: %T", uow.ErrUnknownAggregate, a)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return translate("postgres.insert", err)
	}
	return nil
}

func (t *pgTx) update(ctx context.Context, a uow.Aggregate) error {
	var (
		query string
		args  []any
	)
	switch v := a.(type) {
	case *domain.Member:
		s := v.State()
		query = `UPDATE members SET name = $3, email = $4, tier = $5, tier_credits = $6, tier_price_cents = $7,
			credits = $8, credits_expire_at = $9, password_hash = $10, password_salt = $11, version = version + 1
			WHERE id = $1 AND version = $2`
		args = []any{s.ID, s.Version, s.Name, s.Email, s.Tier, s.TierCredits, s.TierPriceCents,
			s.Credits, s.CreditsExpireAt, s.PasswordHash, s.PasswordSalt}
	case *domain.FitnessClass:
		s := v.State()
		query = `UPDATE classes SET name = $3, capacity = $4, day = $5, start_minutes = $6, end_minutes = $7,
			room_id = $8, booked_members = $9::uuid[], version = version + 1
			WHERE id = $1 AND version = $2`
		args = []any{s.ID, s.Version, s.Name, s.Capacity, s.Day, s.StartMinutes, s.EndMinutes, s.RoomID, memberIDs(s.BookedMembers)}
	case *domain.Booking:
		s := v.State()
		query = `UPDATE bookings SET status = $3, cancelled_at = $4, closed_at = $5, version = version + 1
			WHERE id = $1 AND version = $2`
		args = []any{s.ID, s.Version, s.Status.String(), nullTime(s.CancelledAt), nullTime(s.ClosedAt)}
	case *domain.WaitlistEntry:
		s := v.State()
		query = `UPDATE waitlist_entries SET added_at = $3, version = version + 1 WHERE id = $1 AND version = $2`
		args = []any{s.ID, s.Version, s.AddedAt}
	default:
		return fmt.Errorf("%w: %T", uow.ErrUnknownAggregate, a)
	}
	return t.guarded(ctx, "postgres.update", a, query, args...)
}

func (t *pgTx) remove(ctx context.Context, a uow.Aggregate) error {
	var table string
	switch a.(type) {
	case *domain.Member:
		table = "members"
	case *domain.FitnessClass:
		table = "classes"
	case *domain.Booking:
		table = "bookings"
	case *domain.WaitlistEntry:
		table = "waitlist_entries"
	default:
		return fmt.Errorf("%w: %T", uow.ErrUnknownAggregate, a)
	}
	return t.guarded(ctx, "postgres.delete", a, `DELETE FROM `+table+` WHERE id = $1 AND version = $2`, a.ID(), a.Version())
}

// guarded runs a version-checked statement; no affected row means the
// aggregate changed or vanished since it was loaded.
func (t *pgTx) guarded(ctx context.Context, op string, a uow.Aggregate, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translate(op, err)
	}
	if n == 0 {
		return domain.NewError(domain.CodeConflict, op,
			fmt.Sprintf("aggregate %s changed since version %d", a.ID(), a.Version()), nil)
	}
	return nil
}

func journal(c uow.Change) (eventstore.Event, error) {
	var (
		kind  string
		state any
	)
	switch v := c.Aggregate.(type) {
	case *domain.Member:
		kind, state = "member", v.State()
	case *domain.FitnessClass:
		kind, state = "class", v.State()
	case *domain.Booking:
		kind, state = "booking", v.State()
	case *domain.WaitlistEntry:
		kind, state = "waitlist_entry", v.State()
	default:
		return eventstore.Event{}, fmt.Errorf("%w: %T", uow.ErrUnknownAggregate, c.Aggregate)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return eventstore.Event{}, fmt.Errorf("failed to marshal %s state: %w", kind, err)
	}
	return eventstore.Event{
		AggregateID:   c.Aggregate.ID(),
		AggregateType: kind,
		EventType:     kind + "." + c.Kind.String(),
		EventData:     data,
		Version:       c.Aggregate.Version() + 1,
	}, nil
}
