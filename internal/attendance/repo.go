package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"attendease/internal/model"
)

// Repository persists ledger rows in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const attendanceCols = `id, student_code_apogee, exam_room_id, status, course, attended_at, attended_on, notes, created_at`

func scanAttendance(row interface{ Scan(...any) error }) (model.Attendance, error) {
	var rec model.Attendance
	err := row.Scan(&rec.ID, &rec.StudentCode, &rec.ExamRoomID, &rec.Status, &rec.Course,
		&rec.AttendedAt, &rec.AttendedOn, &rec.Notes, &rec.CreatedAt)
	return rec, err
}

// Insert writes a new ledger row. A unique-violation on the context index is
// reported as ErrDuplicate.
func (r *Repository) Insert(ctx context.Context, rec model.Attendance) (model.Attendance, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AttendedAt.IsZero() {
		rec.AttendedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = model.StatusPresent
	}
	rec.AttendedOn = dayOf(rec.AttendedAt)

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendances (id, student_code_apogee, exam_room_id, status, course, attended_at, attended_on, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, rec.ID, rec.StudentCode, rec.ExamRoomID, rec.Status, rec.Course, rec.AttendedAt, rec.AttendedOn, rec.Notes)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.Attendance{}, ErrDuplicate
		}
		return model.Attendance{}, err
	}
	return rec, nil
}

// FindForContext returns the row for (student, room, course, day), or nil.
func (r *Repository) FindForContext(ctx context.Context, studentCode string, roomID *int64, course string, day time.Time) (*model.Attendance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+attendanceCols+`
		FROM attendances
		WHERE student_code_apogee = $1
		  AND COALESCE(exam_room_id, 0) = COALESCE($2, 0)
		  AND course = $3
		  AND attended_on = $4
	`, studentCode, roomID, course, dayOf(day))
	rec, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Get returns a single row by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*model.Attendance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attendanceCols+` FROM attendances WHERE id = $1`, id)
	rec, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateFields are the mutable parts of a ledger row. Nil means unchanged.
type UpdateFields struct {
	Status *model.Status
	Course *string
	Notes  *string
}

// Update applies partial changes and returns the updated row, or nil when
// the id is unknown. Moving a row onto another row's (student, room, course,
// day) tuple trips the context index and is reported as ErrDuplicate.
func (r *Repository) Update(ctx context.Context, id string, upd UpdateFields) (*model.Attendance, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendances
		SET status = COALESCE($2, status),
		    course = COALESCE($3, course),
		    notes  = COALESCE($4, notes)
		WHERE id = $1
		RETURNING `+attendanceCols+`
	`, id, upd.Status, upd.Course, upd.Notes)
	rec, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &rec, nil
}

// Delete removes a row, reporting whether it existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendances WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Filter narrows List. Zero values mean no constraint, except Limit: zero
// applies the default page size, negative disables the limit entirely (the
// roster join must see every row of the day).
type Filter struct {
	Day    *time.Time
	Course string
	RoomID *int64
	Limit  int
	Offset int
}

// NoLimit disables paging on List.
const NoLimit = -1

// List returns ledger rows matching the filter, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]model.Attendance, error) {
	if f.Limit == 0 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT ` + attendanceCols + ` FROM attendances`
	args := []any{}
	clauses := []string{}
	if f.Day != nil {
		args = append(args, dayOf(*f.Day))
		clauses = append(clauses, fmt.Sprintf("attended_on = $%d", len(args)))
	}
	if f.Course != "" {
		args = append(args, f.Course)
		clauses = append(clauses, fmt.Sprintf("course = $%d", len(args)))
	}
	if f.RoomID != nil {
		args = append(args, *f.RoomID)
		clauses = append(clauses, fmt.Sprintf("exam_room_id = $%d", len(args)))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY attended_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Attendance
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// CountAll returns the total number of ledger rows.
func (r *Repository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendances`).Scan(&n)
	return n, err
}

// CountOnDay returns the number of rows marked on day.
func (r *Repository) CountOnDay(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendances WHERE attended_on = $1`, dayOf(day)).Scan(&n)
	return n, err
}

// StatusCounts groups ledger rows by status. Absentees without rows are
// derived in the roster path and never appear here.
func (r *Repository) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM attendances GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[model.Status]int)
	for rows.Next() {
		var s model.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

// DayCounts groups rows by day, oldest first, from since onward.
func (r *Repository) DayCounts(ctx context.Context, since time.Time) ([]model.DayCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT attended_on, COUNT(*)
		FROM attendances
		WHERE attended_on >= $1
		GROUP BY attended_on
		ORDER BY attended_on
	`, dayOf(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.DayCount
	for rows.Next() {
		var day time.Time
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		res = append(res, model.DayCount{Day: day.Format("2006-01-02"), Count: n})
	}
	return res, rows.Err()
}

// CourseCounts groups rows by course, most attended first.
func (r *Repository) CourseCounts(ctx context.Context) ([]model.CourseCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT course, COUNT(*)
		FROM attendances
		GROUP BY course
		ORDER BY COUNT(*) DESC, course
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.CourseCount
	for rows.Next() {
		var cc model.CourseCount
		if err := rows.Scan(&cc.Course, &cc.Count); err != nil {
			return nil, err
		}
		res = append(res, cc)
	}
	return res, rows.Err()
}

// dayOf truncates t to its UTC calendar day.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
