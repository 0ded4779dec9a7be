package attendance

import (
	"context"
	"fmt"
	"time"

	"attendease/internal/model"
)

// StudentDirectory is the read-only view of the student registry the
// workflows need.
type StudentDirectory interface {
	FindByCode(ctx context.Context, code string) (*model.Student, error)
	List(ctx context.Context) ([]model.Student, error)
	Count(ctx context.Context) (int, error)
}

// RoomRegistry resolves exam rooms referenced by scan payloads.
type RoomRegistry interface {
	GetRoom(ctx context.Context, id int64) (*model.ExamRoom, error)
}

// Ledger is the attendance event store.
type Ledger interface {
	Insert(ctx context.Context, rec model.Attendance) (model.Attendance, error)
	FindForContext(ctx context.Context, studentCode string, roomID *int64, course string, day time.Time) (*model.Attendance, error)
	List(ctx context.Context, f Filter) ([]model.Attendance, error)
	CountAll(ctx context.Context) (int, error)
	CountOnDay(ctx context.Context, day time.Time) (int, error)
	StatusCounts(ctx context.Context) (map[model.Status]int, error)
	DayCounts(ctx context.Context, since time.Time) ([]model.DayCount, error)
	CourseCounts(ctx context.Context) ([]model.CourseCount, error)
}

// StatsCache caches computed aggregates. Both methods are best-effort.
type StatsCache interface {
	Get(ctx context.Context) (model.Stats, bool)
	Set(ctx context.Context, stats model.Stats)
}

// Service coordinates the mark and listing workflows.
type Service struct {
	dir           StudentDirectory
	rooms         RoomRegistry
	ledger        Ledger
	cache         StatsCache
	defaultCourse string
	now           func() time.Time
}

// NewService creates a service. cache may be nil, in which case stats are
// recomputed on every call.
func NewService(dir StudentDirectory, rooms RoomRegistry, ledger Ledger, cache StatsCache, defaultCourse string) *Service {
	if defaultCourse == "" {
		defaultCourse = "Main Course"
	}
	return &Service{
		dir:           dir,
		rooms:         rooms,
		ledger:        ledger,
		cache:         cache,
		defaultCourse: defaultCourse,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ScanPayload is the decoded QR payload plus scan context. Any one of Code,
// CodeApogee or CNE identifies the student; codes match byte-for-byte, no
// normalization.
type ScanPayload struct {
	Code       string
	CodeApogee string
	CNE        string
	LastName   string
	FirstName  string
	ExamRoomID *int64
	Course     string
	Status     model.Status
	Notes      *string
}

// MarkResult is the outcome of a mark attempt. AlreadyMarked reports that an
// existing row for the same context was returned instead of a new one.
type MarkResult struct {
	Attendance    model.Attendance
	Student       model.Student
	AlreadyMarked bool
}

// Mark turns a scanned payload into a ledger entry.
//
// The duplicate pre-check keeps repeat scans off the storage constraint; the
// constraint itself closes the race between two concurrent scans of the same
// code, with the loser's ErrDuplicate folded into the already-marked outcome.
func (s *Service) Mark(ctx context.Context, p ScanPayload) (MarkResult, error) {
	code := p.CodeApogee
	if code == "" {
		code = p.Code
	}
	if code == "" {
		code = p.CNE
	}
	if code == "" {
		return MarkResult{}, newValidationError("code", "one of code, code_apogee or cne is required")
	}
	if p.Status != "" && !p.Status.Valid() {
		return MarkResult{}, newValidationError("status", "status must be one of present, absent, late, excused")
	}

	student, err := s.dir.FindByCode(ctx, code)
	if err != nil {
		return MarkResult{}, fmt.Errorf("resolve student: %w", err)
	}
	if student == nil {
		return MarkResult{}, &NotFoundError{Message: "student not found with this code"}
	}

	if p.ExamRoomID != nil {
		room, err := s.rooms.GetRoom(ctx, *p.ExamRoomID)
		if err != nil {
			return MarkResult{}, fmt.Errorf("resolve exam room: %w", err)
		}
		if room == nil {
			return MarkResult{}, &NotFoundError{Message: "exam room not found"}
		}
	}

	course := p.Course
	if course == "" {
		course = s.defaultCourse
	}
	now := s.now()

	existing, err := s.ledger.FindForContext(ctx, student.CodeApogee, p.ExamRoomID, course, now)
	if err != nil {
		return MarkResult{}, fmt.Errorf("duplicate check: %w", err)
	}
	if existing != nil {
		return MarkResult{Attendance: *existing, Student: *student, AlreadyMarked: true}, nil
	}

	status := p.Status
	if status == "" {
		status = model.StatusPresent
	}
	rec, err := s.ledger.Insert(ctx, model.Attendance{
		StudentCode: student.CodeApogee,
		ExamRoomID:  p.ExamRoomID,
		Status:      status,
		Course:      course,
		AttendedAt:  now,
		Notes:       p.Notes,
	})
	if err == ErrDuplicate {
		// Lost the race to a concurrent scan; the winner's row is the result.
		existing, ferr := s.ledger.FindForContext(ctx, student.CodeApogee, p.ExamRoomID, course, now)
		if ferr != nil || existing == nil {
			return MarkResult{}, fmt.Errorf("fetch after conflict: %w", ferr)
		}
		return MarkResult{Attendance: *existing, Student: *student, AlreadyMarked: true}, nil
	}
	if err != nil {
		return MarkResult{}, fmt.Errorf("insert attendance: %w", err)
	}
	return MarkResult{Attendance: rec, Student: *student}, nil
}

// Roster lists every student with their status for the given day and
// context. Students without a ledger row are absent by default; ledger rows
// referencing unknown students are skipped rather than failing the listing.
func (s *Service) Roster(ctx context.Context, day time.Time, course string, roomID *int64) ([]model.RosterEntry, error) {
	students, err := s.dir.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	// The join needs every row of the day; a paged read would silently turn
	// marked students back into absentees.
	rows, err := s.ledger.List(ctx, Filter{Day: &day, Course: course, RoomID: roomID, Limit: NoLimit})
	if err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}

	// Rows come newest first; keep the oldest per student so a correction
	// made later in the day does not shadow the original mark time.
	byCode := make(map[string]model.Attendance, len(rows))
	for _, rec := range rows {
		byCode[rec.StudentCode] = rec
	}

	entries := make([]model.RosterEntry, 0, len(students))
	for _, st := range students {
		entry := model.RosterEntry{
			LastName:   st.LastName,
			FirstName:  st.FirstName,
			CodeApogee: st.CodeApogee,
			CNE:        st.CNE,
			Status:     model.StatusAbsent,
		}
		if rec, ok := byCode[st.CodeApogee]; ok {
			entry.Status = rec.Status
			at := rec.AttendedAt
			entry.AttendedAt = &at
			c := rec.Course
			entry.Course = &c
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Stats returns ledger aggregates, serving from cache when fresh.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx); ok {
			return cached, nil
		}
	}
	return s.RefreshStats(ctx)
}

// RefreshStats recomputes aggregates and rewrites the cache. The worker
// calls this after every mark so polling clients read warm values.
func (s *Service) RefreshStats(ctx context.Context) (model.Stats, error) {
	stats, err := s.computeStats(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, stats)
	}
	return stats, nil
}

func (s *Service) computeStats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats
	var err error

	if stats.TotalStudents, err = s.dir.Count(ctx); err != nil {
		return model.Stats{}, fmt.Errorf("count students: %w", err)
	}
	if stats.TotalAttendances, err = s.ledger.CountAll(ctx); err != nil {
		return model.Stats{}, fmt.Errorf("count attendances: %w", err)
	}
	now := s.now()
	if stats.TodayAttendances, err = s.ledger.CountOnDay(ctx, now); err != nil {
		return model.Stats{}, fmt.Errorf("count today: %w", err)
	}
	if stats.ByStatus, err = s.ledger.StatusCounts(ctx); err != nil {
		return model.Stats{}, fmt.Errorf("status counts: %w", err)
	}
	if stats.ByDay, err = s.ledger.DayCounts(ctx, now.AddDate(0, 0, -29)); err != nil {
		return model.Stats{}, fmt.Errorf("day counts: %w", err)
	}
	if stats.ByCourse, err = s.ledger.CourseCounts(ctx); err != nil {
		return model.Stats{}, fmt.Errorf("course counts: %w", err)
	}
	return stats, nil
}
