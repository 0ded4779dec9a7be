package student

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"attendease/internal/model"
)

// ErrExists is returned when a create collides with an existing code, CNE,
// CIN or email.
var ErrExists = errors.New("student already exists")

// Repository persists student directory records in Postgres. Codes are
// matched byte-for-byte; no trimming or case folding.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentCols = `code_apogee, cne, nom, prenom, email, filiere, niveau, cin, created_at, updated_at`

func scanStudent(row interface{ Scan(...any) error }) (model.Student, error) {
	var st model.Student
	err := row.Scan(&st.CodeApogee, &st.CNE, &st.LastName, &st.FirstName, &st.Email,
		&st.Program, &st.Level, &st.CIN, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

// Create inserts a new student.
func (r *Repository) Create(ctx context.Context, st model.Student) (model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (code_apogee, cne, nom, prenom, email, filiere, niveau, cin)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at
	`, st.CodeApogee, st.CNE, st.LastName, st.FirstName, st.Email, st.Program, st.Level, st.CIN)
	if err := row.Scan(&st.CreatedAt, &st.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.Student{}, ErrExists
		}
		return model.Student{}, err
	}
	return st, nil
}

// List returns all students ordered by last name.
func (r *Repository) List(ctx context.Context) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+studentCols+` FROM students ORDER BY nom, prenom`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// Get returns a student by code_apogee, or nil when absent.
func (r *Repository) Get(ctx context.Context, codeApogee string) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE code_apogee = $1`, codeApogee)
	st, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// FindByCode resolves a student by either institutional code, or nil when
// neither matches.
func (r *Repository) FindByCode(ctx context.Context, code string) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+studentCols+` FROM students WHERE code_apogee = $1 OR cne = $1
	`, code)
	st, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// Search matches name or either code by substring.
func (r *Repository) Search(ctx context.Context, q string) ([]model.Student, error) {
	pattern := "%" + q + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentCols+`
		FROM students
		WHERE nom LIKE $1 OR prenom LIKE $1 OR code_apogee LIKE $1 OR cne LIKE $1
		ORDER BY nom, prenom
	`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// UpdateFields are the mutable student attributes; identifiers are immutable.
type UpdateFields struct {
	LastName  *string
	FirstName *string
	Email     *string
	Program   *string
	Level     *string
	CIN       *string
}

// Update applies partial changes and returns the updated record, or nil when
// the code is unknown.
func (r *Repository) Update(ctx context.Context, codeApogee string, upd UpdateFields) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE students
		SET nom     = COALESCE($2, nom),
		    prenom  = COALESCE($3, prenom),
		    email   = COALESCE($4, email),
		    filiere = COALESCE($5, filiere),
		    niveau  = COALESCE($6, niveau),
		    cin     = COALESCE($7, cin),
		    updated_at = NOW()
		WHERE code_apogee = $1
		RETURNING `+studentCols+`
	`, codeApogee, upd.LastName, upd.FirstName, upd.Email, upd.Program, upd.Level, upd.CIN)
	st, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// Delete removes a student, reporting whether it existed. Attendance rows
// cascade at the storage layer.
func (r *Repository) Delete(ctx context.Context, codeApogee string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE code_apogee = $1`, codeApogee)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Count returns the directory size.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n)
	return n, err
}
