package exam

import (
	"context"
	"database/sql"
	"errors"

	"attendease/internal/model"
)

const roomCols = `id, name, location, capacity, exam_id, created_at`

func scanRoom(row interface{ Scan(...any) error }) (model.ExamRoom, error) {
	var rm model.ExamRoom
	err := row.Scan(&rm.ID, &rm.Name, &rm.Location, &rm.Capacity, &rm.ExamID, &rm.CreatedAt)
	return rm, err
}

// CreateRoom inserts a new exam room.
func (r *Repository) CreateRoom(ctx context.Context, rm model.ExamRoom) (model.ExamRoom, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO exam_rooms (name, location, capacity, exam_id)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at
	`, rm.Name, rm.Location, rm.Capacity, rm.ExamID)
	if err := row.Scan(&rm.ID, &rm.CreatedAt); err != nil {
		return model.ExamRoom{}, err
	}
	return rm, nil
}

// ListRooms returns all rooms ordered by name.
func (r *Repository) ListRooms(ctx context.Context) ([]model.ExamRoom, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomCols+` FROM exam_rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.ExamRoom
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rm)
	}
	return res, rows.Err()
}

// GetRoom returns a room by id, or nil when absent.
func (r *Repository) GetRoom(ctx context.Context, id int64) (*model.ExamRoom, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomCols+` FROM exam_rooms WHERE id = $1`, id)
	rm, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rm, nil
}

// UpdateRoom replaces the room's fields, returning nil when the id is
// unknown.
func (r *Repository) UpdateRoom(ctx context.Context, id int64, rm model.ExamRoom) (*model.ExamRoom, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE exam_rooms
		SET name = $2, location = $3, capacity = $4, exam_id = $5
		WHERE id = $1
		RETURNING `+roomCols+`
	`, id, rm.Name, rm.Location, rm.Capacity, rm.ExamID)
	out, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// DeleteRoom removes a room, reporting whether it existed. Attendance rows
// referencing it cascade at the storage layer.
func (r *Repository) DeleteRoom(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exam_rooms WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
