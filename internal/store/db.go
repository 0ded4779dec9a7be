package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and applies the
// start-up schema.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return &DB{Client: db}, err
	}
	if err := migrate(db); err != nil {
		return &DB{Client: db}, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		code_apogee TEXT PRIMARY KEY,
		cne         TEXT UNIQUE NOT NULL,
		nom         TEXT NOT NULL,
		prenom      TEXT NOT NULL,
		email       TEXT UNIQUE NOT NULL,
		filiere     TEXT NOT NULL DEFAULT '',
		niveau      TEXT NOT NULL DEFAULT '',
		cin         TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS exams (
		id          BIGSERIAL PRIMARY KEY,
		code        TEXT UNIQUE NOT NULL,
		intitule    TEXT NOT NULL,
		date        DATE NOT NULL,
		heure_debut TEXT NOT NULL,
		heure_fin   TEXT NOT NULL,
		matiere     TEXT NOT NULL,
		filiere     TEXT NOT NULL,
		niveau      TEXT NOT NULL,
		groupe      TEXT NOT NULL,
		enseignant  TEXT NOT NULL,
		salle       TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS exam_rooms (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		location   TEXT,
		capacity   INT,
		exam_id    BIGINT REFERENCES exams(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendances (
		id                  TEXT PRIMARY KEY,
		student_code_apogee TEXT NOT NULL REFERENCES students(code_apogee) ON DELETE CASCADE,
		exam_room_id        BIGINT REFERENCES exam_rooms(id) ON DELETE CASCADE,
		status              TEXT NOT NULL DEFAULT 'present',
		course              TEXT NOT NULL DEFAULT '',
		attended_at         TIMESTAMPTZ NOT NULL,
		attended_on         DATE NOT NULL,
		notes               TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- One row per (student, room, course, day). Insert conflicts are the
	-- "already marked" outcome, not an error.
	CREATE UNIQUE INDEX IF NOT EXISTS uq_attendances_context
		ON attendances (student_code_apogee, COALESCE(exam_room_id, 0), course, attended_on);
	CREATE INDEX IF NOT EXISTS idx_attendances_day ON attendances (attended_on);
	CREATE INDEX IF NOT EXISTS idx_attendances_at  ON attendances (attended_at);

	CREATE TABLE IF NOT EXISTS scanners (
		device_id     TEXT PRIMARY KEY,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL REFERENCES scanners(device_id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
