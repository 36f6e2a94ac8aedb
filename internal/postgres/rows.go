package postgres

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gymbooking/internal/domain"
)

const (
	memberColumns   = `id, name, email, tier, tier_credits, tier_price_cents, credits, credits_expire_at, password_hash, password_salt, registered_at, version`
	classColumns    = `id, name, capacity, day, start_minutes, end_minutes, room_id, booked_members, version`
	bookingColumns  = `id, member_id, class_id, status, booked_at, cancelled_at, closed_at, version`
	waitlistColumns = `id, member_id, class_id, added_at, version`
)

type memberRow struct {
	ID              uuid.UUID `db:"id"`
	Name            string    `db:"name"`
	Email           string    `db:"email"`
	Tier            string    `db:"tier"`
	TierCredits     int       `db:"tier_credits"`
	TierPriceCents  int64     `db:"tier_price_cents"`
	Credits         int       `db:"credits"`
	CreditsExpireAt time.Time `db:"credits_expire_at"`
	PasswordHash    string    `db:"password_hash"`
	PasswordSalt    string    `db:"password_salt"`
	RegisteredAt    time.Time `db:"registered_at"`
	Version         int       `db:"version"`
}

func (r memberRow) restore() (*domain.Member, error) {
	return domain.RestoreMember(domain.MemberState{
		ID:              r.ID,
		Name:            r.Name,
		Email:           r.Email,
		Tier:            r.Tier,
		TierCredits:     r.TierCredits,
		TierPriceCents:  r.TierPriceCents,
		Credits:         r.Credits,
		CreditsExpireAt: r.CreditsExpireAt,
		PasswordHash:    r.PasswordHash,
		PasswordSalt:    r.PasswordSalt,
		RegisteredAt:    r.RegisteredAt,
		Version:         r.Version,
	})
}

type classRow struct {
	ID            uuid.UUID      `db:"id"`
	Name          string         `db:"name"`
	Capacity      int            `db:"capacity"`
	Day           int            `db:"day"`
	StartMinutes  int            `db:"start_minutes"`
	EndMinutes    int            `db:"end_minutes"`
	RoomID        uuid.UUID      `db:"room_id"`
	BookedMembers pq.StringArray `db:"booked_members"`
	Version       int            `db:"version"`
}

func (r classRow) restore() (*domain.FitnessClass, error) {
	booked := make([]uuid.UUID, 0, len(r.BookedMembers))
	for _, raw := range r.BookedMembers {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, domain.NewError(domain.CodeInternal, "postgres.class", "corrupt booked member id "+raw, err)
		}
		booked = append(booked, id)
	}
	return domain.RestoreFitnessClass(domain.FitnessClassState{
		ID:            r.ID,
		Name:          r.Name,
		Capacity:      r.Capacity,
		Day:           r.Day,
		StartMinutes:  r.StartMinutes,
		EndMinutes:    r.EndMinutes,
		RoomID:        r.RoomID,
		BookedMembers: booked,
		Version:       r.Version,
	})
}

func memberIDs(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

type bookingRow struct {
	ID          uuid.UUID    `db:"id"`
	MemberID    uuid.UUID    `db:"member_id"`
	ClassID     uuid.UUID    `db:"class_id"`
	Status      string       `db:"status"`
	BookedAt    time.Time    `db:"booked_at"`
	CancelledAt sql.NullTime `db:"cancelled_at"`
	ClosedAt    sql.NullTime `db:"closed_at"`
	Version     int          `db:"version"`
}

func (r bookingRow) restore() (*domain.Booking, error) {
	status, err := domain.ParseBookingStatus(r.Status)
	if err != nil {
		return nil, err
	}
	return domain.RestoreBooking(domain.BookingState{
		ID:          r.ID,
		MemberID:    r.MemberID,
		ClassID:     r.ClassID,
		Status:      status,
		BookedAt:    r.BookedAt,
		CancelledAt: r.CancelledAt.Time,
		ClosedAt:    r.ClosedAt.Time,
		Version:     r.Version,
	})
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

type waitlistRow struct {
	ID       uuid.UUID `db:"id"`
	MemberID uuid.UUID `db:"member_id"`
	ClassID  uuid.UUID `db:"class_id"`
	AddedAt  time.Time `db:"added_at"`
	Version  int       `db:"version"`
}

func (r waitlistRow) restore() (*domain.WaitlistEntry, error) {
	return domain.RestoreWaitlistEntry(domain.WaitlistEntryState{
		ID:       r.ID,
		MemberID: r.MemberID,
		ClassID:  r.ClassID,
		AddedAt:  r.AddedAt,
		Version:  r.Version,
	})
}

func restoreAll[R any, T any](rows []R, restore func(R) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := restore(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
