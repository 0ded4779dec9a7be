package model

import "time"

// Status is the attendance state recorded for a student. Values are
// locale-independent internal names; display text comes from StatusLabels.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// StatusLabels maps internal status names to French display labels for
// presentation layers that want them.
var StatusLabels = map[Status]string{
	StatusPresent: "présent",
	StatusAbsent:  "absent",
	StatusLate:    "retard",
	StatusExcused: "excusé",
}

// Student is a directory record. CodeApogee and CNE are the two
// institutional identifiers; both are immutable once created.
type Student struct {
	CodeApogee string    `json:"code_apogee"`
	CNE        string    `json:"cne"`
	LastName   string    `json:"nom"`
	FirstName  string    `json:"prenom"`
	Email      string    `json:"email"`
	Program    string    `json:"filiere"`
	Level      string    `json:"niveau"`
	CIN        string    `json:"cin,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Exam is a read-mostly exam session record.
type Exam struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Title      string    `json:"intitule"`
	Date       time.Time `json:"date"`
	StartTime  string    `json:"heure_debut"`
	EndTime    string    `json:"heure_fin"`
	Subject    string    `json:"matiere"`
	Program    string    `json:"filiere"`
	Level      string    `json:"niveau"`
	Group      string    `json:"groupe"`
	Instructor string    `json:"enseignant"`
	RoomLabel  string    `json:"salle"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExamRoom is a physical room, optionally linked to an exam.
type ExamRoom struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  *string   `json:"location,omitempty"`
	Capacity  *int      `json:"capacity,omitempty"`
	ExamID    *int64    `json:"exam_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Attendance is one ledger row. AttendedOn is the calendar day component of
// AttendedAt and participates in the storage uniqueness key.
type Attendance struct {
	ID          string    `json:"id"`
	StudentCode string    `json:"student_code_apogee"`
	ExamRoomID  *int64    `json:"exam_room_id,omitempty"`
	Status      Status    `json:"status"`
	Course      string    `json:"course"`
	AttendedAt  time.Time `json:"attended_at"`
	AttendedOn  time.Time `json:"-"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RosterEntry is one line of the daily listing: a student joined against the
// day's ledger, absent by default when no row exists.
type RosterEntry struct {
	LastName   string     `json:"nom"`
	FirstName  string     `json:"prenom"`
	CodeApogee string     `json:"code_apogee"`
	CNE        string     `json:"cne"`
	Status     Status     `json:"status"`
	AttendedAt *time.Time `json:"attended_at"`
	Course     *string    `json:"course"`
}

// Stats are the ledger aggregates. Absentees are derived in the roster path
// and never counted here.
type Stats struct {
	TotalStudents    int            `json:"total_students"`
	TotalAttendances int            `json:"total_attendances"`
	TodayAttendances int            `json:"today_attendances"`
	ByStatus         map[Status]int `json:"statuses"`
	ByDay            []DayCount     `json:"by_day"`
	ByCourse         []CourseCount  `json:"by_course"`
}

// DayCount is the number of ledger rows marked on one day.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// CourseCount is the number of ledger rows for one course.
type CourseCount struct {
	Course string `json:"course"`
	Count  int    `json:"count"`
}
