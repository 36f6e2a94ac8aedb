package postgres

// schema holds the state tables. Every row carries the version the unit of
// work checks on update.
const schema = `
CREATE TABLE IF NOT EXISTS members (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	tier TEXT NOT NULL,
	tier_credits INT NOT NULL,
	tier_price_cents BIGINT NOT NULL,
	credits INT NOT NULL CHECK (credits >= 0),
	credits_expire_at TIMESTAMPTZ NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	password_salt TEXT NOT NULL DEFAULT '',
	registered_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL
);

CREATE TABLE IF NOT EXISTS classes (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	capacity INT NOT NULL CHECK (capacity BETWEEN 1 AND 50),
	day SMALLINT NOT NULL CHECK (day BETWEEN 0 AND 6),
	start_minutes INT NOT NULL,
	end_minutes INT NOT NULL,
	room_id UUID NOT NULL,
	booked_members UUID[] NOT NULL DEFAULT '{}',
	version INT NOT NULL,
	CHECK (start_minutes < end_minutes),
	CHECK (cardinality(booked_members) <= capacity)
);
CREATE INDEX IF NOT EXISTS classes_room_idx ON classes (room_id, day, start_minutes);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	member_id UUID NOT NULL REFERENCES members (id),
	class_id UUID NOT NULL REFERENCES classes (id),
	status TEXT NOT NULL CHECK (status IN ('CONFIRMED', 'CANCELLED', 'ATTENDED', 'NO_SHOW')),
	booked_at TIMESTAMPTZ NOT NULL,
	cancelled_at TIMESTAMPTZ,
	closed_at TIMESTAMPTZ,
	version INT NOT NULL
);
CREATE INDEX IF NOT EXISTS bookings_member_idx ON bookings (member_id);
CREATE INDEX IF NOT EXISTS bookings_class_idx ON bookings (class_id);
CREATE UNIQUE INDEX IF NOT EXISTS bookings_one_confirmed_idx ON bookings (member_id, class_id) WHERE status = 'CONFIRMED';

CREATE TABLE IF NOT EXISTS waitlist_entries (
	id UUID PRIMARY KEY,
	member_id UUID NOT NULL REFERENCES members (id) ON DELETE CASCADE,
	class_id UUID NOT NULL REFERENCES classes (id) ON DELETE CASCADE,
	added_at TIMESTAMPTZ NOT NULL,
	version INT NOT NULL,
	UNIQUE (member_id, class_id)
);
CREATE INDEX IF NOT EXISTS waitlist_queue_idx ON waitlist_entries (class_id, added_at, id);
`
