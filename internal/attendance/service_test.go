package attendance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendease/internal/model"
)

type fakeDirectory struct {
	students []model.Student
}

func (d *fakeDirectory) FindByCode(_ context.Context, code string) (*model.Student, error) {
	for i := range d.students {
		if d.students[i].CodeApogee == code || d.students[i].CNE == code {
			return &d.students[i], nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) List(context.Context) ([]model.Student, error) {
	return d.students, nil
}

func (d *fakeDirectory) Count(context.Context) (int, error) {
	return len(d.students), nil
}

type fakeRooms struct {
	rooms map[int64]model.ExamRoom
}

func (r *fakeRooms) GetRoom(_ context.Context, id int64) (*model.ExamRoom, error) {
	if rm, ok := r.rooms[id]; ok {
		return &rm, nil
	}
	return nil, nil
}

type fakeLedger struct {
	rows []model.Attendance
	seq  int
}

func roomKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (l *fakeLedger) Insert(_ context.Context, rec model.Attendance) (model.Attendance, error) {
	for _, existing := range l.rows {
		if existing.StudentCode == rec.StudentCode &&
			roomKey(existing.ExamRoomID) == roomKey(rec.ExamRoomID) &&
			existing.Course == rec.Course &&
			sameDay(existing.AttendedAt, rec.AttendedAt) {
			return model.Attendance{}, ErrDuplicate
		}
	}
	l.seq++
	rec.ID = fmt.Sprintf("att-%d", l.seq)
	rec.CreatedAt = rec.AttendedAt
	l.rows = append(l.rows, rec)
	return rec, nil
}

func (l *fakeLedger) FindForContext(_ context.Context, code string, roomID *int64, course string, day time.Time) (*model.Attendance, error) {
	for i := range l.rows {
		rec := &l.rows[i]
		if rec.StudentCode == code && roomKey(rec.ExamRoomID) == roomKey(roomID) &&
			rec.Course == course && sameDay(rec.AttendedAt, day) {
			return rec, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) List(_ context.Context, f Filter) ([]model.Attendance, error) {
	var out []model.Attendance
	for _, rec := range l.rows {
		if f.Day != nil && !sameDay(rec.AttendedAt, *f.Day) {
			continue
		}
		if f.Course != "" && rec.Course != f.Course {
			continue
		}
		if f.RoomID != nil && roomKey(rec.ExamRoomID) != *f.RoomID {
			continue
		}
		out = append(out, rec)
	}
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	// Paging as the repository applies it: zero takes the default page size,
	// negative disables the limit.
	limit := f.Limit
	if limit == 0 {
		limit = 200
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *fakeLedger) CountAll(context.Context) (int, error) {
	return len(l.rows), nil
}

func (l *fakeLedger) CountOnDay(_ context.Context, day time.Time) (int, error) {
	n := 0
	for _, rec := range l.rows {
		if sameDay(rec.AttendedAt, day) {
			n++
		}
	}
	return n, nil
}

func (l *fakeLedger) StatusCounts(context.Context) (map[model.Status]int, error) {
	counts := make(map[model.Status]int)
	for _, rec := range l.rows {
		counts[rec.Status]++
	}
	return counts, nil
}

func (l *fakeLedger) DayCounts(_ context.Context, since time.Time) ([]model.DayCount, error) {
	counts := make(map[string]int)
	for _, rec := range l.rows {
		if rec.AttendedAt.Before(since) {
			continue
		}
		counts[rec.AttendedAt.UTC().Format("2006-01-02")]++
	}
	var out []model.DayCount
	for day, n := range counts {
		out = append(out, model.DayCount{Day: day, Count: n})
	}
	return out, nil
}

func (l *fakeLedger) CourseCounts(context.Context) ([]model.CourseCount, error) {
	counts := make(map[string]int)
	for _, rec := range l.rows {
		counts[rec.Course]++
	}
	var out []model.CourseCount
	for course, n := range counts {
		out = append(out, model.CourseCount{Course: course, Count: n})
	}
	return out, nil
}

type fakeCache struct {
	stats *model.Stats
	sets  int
}

func (c *fakeCache) Get(context.Context) (model.Stats, bool) {
	if c.stats == nil {
		return model.Stats{}, false
	}
	return *c.stats, true
}

func (c *fakeCache) Set(_ context.Context, stats model.Stats) {
	c.stats = &stats
	c.sets++
}

func testStudents() []model.Student {
	return []model.Student{
		{CodeApogee: "AP001", CNE: "CNE001", LastName: "Doe", FirstName: "John"},
		{CodeApogee: "AP002", CNE: "CNE002", LastName: "Doe", FirstName: "Jane"},
		{CodeApogee: "AP003", CNE: "CNE003", LastName: "Smith", FirstName: "Ana"},
		{CodeApogee: "AP004", CNE: "CNE004", LastName: "Brown", FirstName: "Max"},
		{CodeApogee: "AP005", CNE: "CNE005", LastName: "Khan", FirstName: "Ali"},
	}
}

func newTestService(ledger *fakeLedger) (*Service, *fakeLedger) {
	if ledger == nil {
		ledger = &fakeLedger{}
	}
	dir := &fakeDirectory{students: testStudents()}
	rooms := &fakeRooms{rooms: map[int64]model.ExamRoom{3: {ID: 3, Name: "Amphi A"}}}
	svc := NewService(dir, rooms, ledger, nil, "Main Course")
	svc.now = func() time.Time { return time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC) }
	return svc, ledger
}

func TestMark_CreatesOnceAndReturnsExistingOnRepeat(t *testing.T) {
	svc, ledger := newTestService(nil)
	ctx := context.Background()

	roomID := int64(3)
	payload := ScanPayload{CodeApogee: "AP001", CNE: "CNE001", LastName: "Doe", FirstName: "John", ExamRoomID: &roomID}

	first, err := svc.Mark(ctx, payload)
	require.NoError(t, err)
	assert.False(t, first.AlreadyMarked)
	assert.Equal(t, "AP001", first.Attendance.StudentCode)
	assert.Equal(t, "Main Course", first.Attendance.Course, "course defaults when omitted")
	assert.Equal(t, model.StatusPresent, first.Attendance.Status)
	assert.Equal(t, svc.now(), first.Attendance.AttendedAt)
	assert.Equal(t, "John", first.Student.FirstName)

	second, err := svc.Mark(ctx, payload)
	require.NoError(t, err)
	assert.True(t, second.AlreadyMarked)
	assert.Equal(t, first.Attendance.ID, second.Attendance.ID, "repeat scan returns the original row")
	assert.Len(t, ledger.rows, 1, "exactly one row for the tuple")
}

func TestMark_ResolvesBySecondaryCode(t *testing.T) {
	svc, _ := newTestService(nil)

	res, err := svc.Mark(context.Background(), ScanPayload{CNE: "CNE002"})
	require.NoError(t, err)
	assert.Equal(t, "AP002", res.Attendance.StudentCode, "ledger keys on the primary code even when resolved by CNE")
}

func TestMark_MissingIdentifiers(t *testing.T) {
	svc, ledger := newTestService(nil)

	_, err := svc.Mark(context.Background(), ScanPayload{LastName: "Doe", FirstName: "John"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "code")
	assert.Empty(t, ledger.rows, "no row created")
}

func TestMark_UnknownCode(t *testing.T) {
	svc, ledger := newTestService(nil)

	_, err := svc.Mark(context.Background(), ScanPayload{Code: "UNKNOWN"})
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, "student not found with this code", nferr.Message)
	assert.Empty(t, ledger.rows)
}

func TestMark_UnknownRoom(t *testing.T) {
	svc, ledger := newTestService(nil)

	roomID := int64(99)
	_, err := svc.Mark(context.Background(), ScanPayload{CodeApogee: "AP001", ExamRoomID: &roomID})
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, "exam room not found", nferr.Message)
	assert.Empty(t, ledger.rows)
}

func TestMark_InvalidStatus(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.Mark(context.Background(), ScanPayload{CodeApogee: "AP001", Status: "here"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "status")
}

func TestMark_ExplicitStatusOverridesDefault(t *testing.T) {
	svc, _ := newTestService(nil)

	res, err := svc.Mark(context.Background(), ScanPayload{CodeApogee: "AP003", Status: model.StatusLate})
	require.NoError(t, err)
	assert.Equal(t, model.StatusLate, res.Attendance.Status)
}

func TestMark_SameStudentDifferentCourse(t *testing.T) {
	svc, ledger := newTestService(nil)
	ctx := context.Background()

	_, err := svc.Mark(ctx, ScanPayload{CodeApogee: "AP001", Course: "Algebra"})
	require.NoError(t, err)
	res, err := svc.Mark(ctx, ScanPayload{CodeApogee: "AP001", Course: "Analysis"})
	require.NoError(t, err)
	assert.False(t, res.AlreadyMarked, "different course is a different context")
	assert.Len(t, ledger.rows, 2)
}

// raceLedger reports no existing row on the pre-check but rejects the insert,
// simulating a concurrent scan winning between check and act.
type raceLedger struct {
	fakeLedger
	checked bool
}

func (l *raceLedger) FindForContext(ctx context.Context, code string, roomID *int64, course string, day time.Time) (*model.Attendance, error) {
	if !l.checked {
		l.checked = true
		return nil, nil
	}
	return l.fakeLedger.FindForContext(ctx, code, roomID, course, day)
}

func (l *raceLedger) Insert(ctx context.Context, rec model.Attendance) (model.Attendance, error) {
	if len(l.rows) == 0 {
		winner := rec
		winner.ID = "att-winner"
		l.rows = append(l.rows, winner)
	}
	return model.Attendance{}, ErrDuplicate
}

func TestMark_ConstraintConflictBecomesAlreadyMarked(t *testing.T) {
	ledger := &raceLedger{}
	dir := &fakeDirectory{students: testStudents()}
	rooms := &fakeRooms{rooms: map[int64]model.ExamRoom{}}
	svc := NewService(dir, rooms, ledger, nil, "Main Course")
	svc.now = func() time.Time { return time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC) }

	res, err := svc.Mark(context.Background(), ScanPayload{CodeApogee: "AP001"})
	require.NoError(t, err)
	assert.True(t, res.AlreadyMarked)
	assert.Equal(t, "att-winner", res.Attendance.ID, "loser of the race surfaces the winner's row")
	assert.Len(t, ledger.rows, 1)
}

func TestStats_CountsOnlyStoredRows(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	for _, code := range []string{"AP001", "AP002", "AP003"} {
		_, err := svc.Mark(ctx, ScanPayload{CodeApogee: code})
		require.NoError(t, err)
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalStudents)
	assert.Equal(t, 3, stats.TotalAttendances)
	assert.Equal(t, 3, stats.TodayAttendances)
	assert.Equal(t, 3, stats.ByStatus[model.StatusPresent])
	assert.Zero(t, stats.ByStatus[model.StatusAbsent], "derived absentees are not counted")
	require.Len(t, stats.ByCourse, 1)
	assert.Equal(t, "Main Course", stats.ByCourse[0].Course)
}

func TestStats_ServedFromCache(t *testing.T) {
	dir := &fakeDirectory{students: testStudents()}
	ledger := &fakeLedger{}
	cache := &fakeCache{stats: &model.Stats{TotalStudents: 42}}
	svc := NewService(dir, &fakeRooms{}, ledger, cache, "Main Course")

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, stats.TotalStudents, "cache hit skips recomputation")
}

func TestRefreshStats_RewritesCache(t *testing.T) {
	dir := &fakeDirectory{students: testStudents()}
	ledger := &fakeLedger{}
	cache := &fakeCache{stats: &model.Stats{TotalStudents: 42}}
	svc := NewService(dir, &fakeRooms{}, ledger, cache, "Main Course")

	stats, err := svc.RefreshStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalStudents)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 5, cache.stats.TotalStudents)
}
