package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/config"
	"attendease/internal/model"
	"attendease/internal/queue"
	"attendease/internal/student"
)

var marksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "attendease_marks_total",
	Help: "Mark-by-code attempts by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(marksTotal)
}

// StudentStore is the directory surface the CRUD endpoints need.
type StudentStore interface {
	Create(ctx context.Context, st model.Student) (model.Student, error)
	List(ctx context.Context) ([]model.Student, error)
	Get(ctx context.Context, codeApogee string) (*model.Student, error)
	Search(ctx context.Context, q string) ([]model.Student, error)
	Update(ctx context.Context, codeApogee string, upd student.UpdateFields) (*model.Student, error)
	Delete(ctx context.Context, codeApogee string) (bool, error)
}

// ExamStore covers exams and exam rooms.
type ExamStore interface {
	CreateExam(ctx context.Context, e model.Exam) (model.Exam, error)
	ListExams(ctx context.Context) ([]model.Exam, error)
	GetExam(ctx context.Context, id int64) (*model.Exam, error)
	UpdateExam(ctx context.Context, id int64, e model.Exam) (*model.Exam, error)
	DeleteExam(ctx context.Context, id int64) (bool, error)
	CreateRoom(ctx context.Context, rm model.ExamRoom) (model.ExamRoom, error)
	ListRooms(ctx context.Context) ([]model.ExamRoom, error)
	GetRoom(ctx context.Context, id int64) (*model.ExamRoom, error)
	UpdateRoom(ctx context.Context, id int64, rm model.ExamRoom) (*model.ExamRoom, error)
	DeleteRoom(ctx context.Context, id int64) (bool, error)
}

// LedgerStore is the raw ledger surface for the record CRUD endpoints; the
// mark and roster paths go through the workflow service instead.
type LedgerStore interface {
	Get(ctx context.Context, id string) (*model.Attendance, error)
	Update(ctx context.Context, id string, upd attendance.UpdateFields) (*model.Attendance, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f attendance.Filter) ([]model.Attendance, error)
}

// ScannerStore registers scanning devices and tracks their refresh tokens.
type ScannerStore interface {
	Register(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
	ActiveRefreshToken(ctx context.Context, token string) (deviceID string, active bool, err error)
	RevokeRefreshToken(ctx context.Context, token string) error
}

// Handler wires the HTTP surface to the workflows and repositories.
type Handler struct {
	svc      *attendance.Service
	students StudentStore
	exams    ExamStore
	ledger   LedgerStore
	scanners ScannerStore
	q        queue.Queue
	cfg      config.App
}

// New creates a handler. q may be nil when no worker is deployed.
func New(svc *attendance.Service, students StudentStore, exams ExamStore, ledger LedgerStore, scanners ScannerStore, q queue.Queue, cfg config.App) *Handler {
	return &Handler{svc: svc, students: students, exams: exams, ledger: ledger, scanners: scanners, q: q, cfg: cfg}
}

// Register mounts all routes on r. Everything under /v1 except scanner
// registration requires a bearer token.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/v1/scanners/register", h.registerScanner)
	r.POST("/v1/scanners/refresh", h.refreshScanner)

	v1 := r.Group("/v1", auth.Bearer(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))

	v1.GET("/students", h.listStudents)
	v1.POST("/students", h.createStudent)
	v1.GET("/students/search", h.searchStudents)
	v1.GET("/students/:code", h.getStudent)
	v1.PUT("/students/:code", h.updateStudent)
	v1.DELETE("/students/:code", h.deleteStudent)

	v1.GET("/exams", h.listExams)
	v1.POST("/exams", h.createExam)
	v1.GET("/exams/:id", h.getExam)
	v1.PUT("/exams/:id", h.updateExam)
	v1.DELETE("/exams/:id", h.deleteExam)

	v1.GET("/exam-rooms", h.listRooms)
	v1.POST("/exam-rooms", h.createRoom)
	v1.GET("/exam-rooms/:id", h.getRoom)
	v1.PUT("/exam-rooms/:id", h.updateRoom)
	v1.DELETE("/exam-rooms/:id", h.deleteRoom)

	v1.POST("/attendances/mark-by-code", h.markByCode)
	v1.GET("/attendances", h.roster)
	v1.GET("/attendances/records", h.listRecords)
	v1.GET("/attendances/stats", h.stats)
	v1.GET("/attendances/:id", h.getAttendance)
	v1.PUT("/attendances/:id", h.updateAttendance)
	v1.DELETE("/attendances/:id", h.deleteAttendance)
}

func (h *Handler) registerScanner(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "Validation failed",
			"errors":  gin.H{"device_id": []string{"device_id is required"}},
		})
		return
	}
	if err := h.scanners.Register(c.Request.Context(), req.DeviceID); err != nil {
		respondError(c, err)
		return
	}
	tokens, err := auth.Issue(req.DeviceID, "scanner", h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.scanners.SaveRefreshToken(c.Request.Context(), req.DeviceID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		log.Printf("save refresh token failed: %v", err)
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// refreshScanner rotates a refresh token: the presented token must verify,
// still be active in the store and belong to the subject it claims. The old
// token is revoked before the new pair is handed out, so a leaked token stops
// working the moment its owner rotates.
func (h *Handler) refreshScanner(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "Validation failed",
			"errors":  gin.H{"refresh_token": []string{"refresh_token is required"}},
		})
		return
	}
	claims, err := auth.Parse(req.RefreshToken, h.cfg.JWTSigningKey, h.cfg.JWTIssuer)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}
	deviceID, active, err := h.scanners.ActiveRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	if !active || deviceID != claims.Subject {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}
	tokens, err := auth.Issue(deviceID, "scanner", h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.scanners.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	if err := h.scanners.SaveRefreshToken(c.Request.Context(), deviceID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		log.Printf("save refresh token failed: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// respondError maps workflow errors to the response contract: 422 with
// field messages, 404 with a readable message, 500 with a generic one.
func respondError(c *gin.Context, err error) {
	var verr *attendance.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": verr.Fields})
		return
	}
	var nferr *attendance.NotFoundError
	if errors.As(err, &nferr) {
		c.JSON(http.StatusNotFound, gin.H{"message": nferr.Message})
		return
	}
	log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Une erreur est survenue, veuillez réessayer"})
}
