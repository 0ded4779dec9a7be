package exam

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"attendease/internal/model"
)

// ErrExists is returned when an exam create collides with an existing code.
var ErrExists = errors.New("exam already exists")

// Repository persists exams and exam rooms in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const examCols = `id, code, intitule, date, heure_debut, heure_fin, matiere, filiere, niveau, groupe, enseignant, salle, created_at`

func scanExam(row interface{ Scan(...any) error }) (model.Exam, error) {
	var e model.Exam
	err := row.Scan(&e.ID, &e.Code, &e.Title, &e.Date, &e.StartTime, &e.EndTime,
		&e.Subject, &e.Program, &e.Level, &e.Group, &e.Instructor, &e.RoomLabel, &e.CreatedAt)
	return e, err
}

// CreateExam inserts a new exam.
func (r *Repository) CreateExam(ctx context.Context, e model.Exam) (model.Exam, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO exams (code, intitule, date, heure_debut, heure_fin, matiere, filiere, niveau, groupe, enseignant, salle)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at
	`, e.Code, e.Title, e.Date, e.StartTime, e.EndTime, e.Subject, e.Program, e.Level, e.Group, e.Instructor, e.RoomLabel)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.Exam{}, ErrExists
		}
		return model.Exam{}, err
	}
	return e, nil
}

// ListExams returns all exams, most recent session first.
func (r *Repository) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+examCols+` FROM exams ORDER BY date DESC, heure_debut DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// GetExam returns an exam by id, or nil when absent.
func (r *Repository) GetExam(ctx context.Context, id int64) (*model.Exam, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+examCols+` FROM exams WHERE id = $1`, id)
	e, err := scanExam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// UpdateExam replaces the mutable fields of an exam, returning nil when the
// id is unknown.
func (r *Repository) UpdateExam(ctx context.Context, id int64, e model.Exam) (*model.Exam, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE exams
		SET intitule = $2, date = $3, heure_debut = $4, heure_fin = $5, matiere = $6,
		    filiere = $7, niveau = $8, groupe = $9, enseignant = $10, salle = $11
		WHERE id = $1
		RETURNING `+examCols+`
	`, id, e.Title, e.Date, e.StartTime, e.EndTime, e.Subject, e.Program, e.Level, e.Group, e.Instructor, e.RoomLabel)
	out, err := scanExam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// DeleteExam removes an exam, reporting whether it existed. Linked rooms
// keep their rows with the exam reference cleared.
func (r *Repository) DeleteExam(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
