package httpapi

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/model"
	"attendease/internal/queue"
)

// flexID accepts a JSON number or a numeric string; scanning clients are not
// consistent about which they send.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*f = flexID(n)
	return nil
}

type markRequest struct {
	DeviceID      string  `json:"device_id"`
	Code          string  `json:"code"`
	CodeApogee    string  `json:"code_apogee"`
	CodeApogeeAlt string  `json:"codeApogee"`
	CNE           string  `json:"cne"`
	LastName      string  `json:"nom"`
	FirstName     string  `json:"prenom"`
	ExamRoomID    *flexID `json:"exam_room_id"`
	Course        string  `json:"course"`
	Status        string  `json:"status"`
	Notes         *string `json:"notes"`
}

func (h *Handler) markByCode(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		marksTotal.WithLabelValues("validation_error").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": gin.H{"body": []string{"invalid JSON body"}}})
		return
	}
	// Scanners that report their device id must be marking with their own
	// token, not one lifted from another device.
	if req.DeviceID != "" {
		if v, ok := c.Get(auth.ClaimsKey); ok {
			if claims, ok := v.(auth.Claims); ok && claims.Subject != req.DeviceID {
				marksTotal.WithLabelValues("device_mismatch").Inc()
				c.JSON(http.StatusForbidden, gin.H{"message": "device mismatch"})
				return
			}
		}
	}
	codeApogee := req.CodeApogee
	if codeApogee == "" {
		codeApogee = req.CodeApogeeAlt
	}
	var roomID *int64
	if req.ExamRoomID != nil {
		id := int64(*req.ExamRoomID)
		roomID = &id
	}

	result, err := h.svc.Mark(c.Request.Context(), attendance.ScanPayload{
		Code:       req.Code,
		CodeApogee: codeApogee,
		CNE:        req.CNE,
		LastName:   req.LastName,
		FirstName:  req.FirstName,
		ExamRoomID: roomID,
		Course:     req.Course,
		Status:     model.Status(req.Status),
		Notes:      req.Notes,
	})
	if err != nil {
		marksTotal.WithLabelValues(outcomeLabel(err)).Inc()
		respondError(c, err)
		return
	}

	if result.AlreadyMarked {
		marksTotal.WithLabelValues("already_marked").Inc()
		c.JSON(http.StatusOK, gin.H{
			"message": "Student already marked present for this course today",
			"data":    gin.H{"attendance": result.Attendance},
		})
		return
	}

	marksTotal.WithLabelValues("created").Inc()
	if h.q != nil {
		if err := h.q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeMarked, Body: []byte(result.Attendance.ID)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Attendance marked successfully",
		"data":    gin.H{"attendance": result.Attendance, "student": result.Student},
	})
}

func outcomeLabel(err error) string {
	switch err.(type) {
	case *attendance.ValidationError:
		return "validation_error"
	case *attendance.NotFoundError:
		return "not_found"
	}
	return "error"
}

// roster is the per-student daily listing: every student, absent unless a
// ledger row matches the day and context.
func (h *Handler) roster(c *gin.Context) {
	day := time.Now().UTC()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"message": "Validation failed",
				"errors":  gin.H{"date": []string{"the date parameter must be formatted YYYY-MM-DD"}},
			})
			return
		}
		day = parsed
	}
	roomID, ok := queryRoomID(c)
	if !ok {
		return
	}
	entries, err := h.svc.Roster(c.Request.Context(), day, c.Query("course"), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (h *Handler) listRecords(c *gin.Context) {
	f := attendance.Filter{Course: c.Query("course")}
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"message": "Validation failed",
				"errors":  gin.H{"date": []string{"the date parameter must be formatted YYYY-MM-DD"}},
			})
			return
		}
		f.Day = &parsed
	}
	roomID, ok := queryRoomID(c)
	if !ok {
		return
	}
	f.RoomID = roomID
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}
	records, err := h.ledger.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []model.Attendance{}
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (h *Handler) getAttendance(c *gin.Context) {
	rec, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Présence non trouvée"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (h *Handler) updateAttendance(c *gin.Context) {
	var req struct {
		Status *string `json:"status"`
		Course *string `json:"course"`
		Notes  *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": gin.H{"body": []string{"invalid JSON body"}}})
		return
	}
	upd := attendance.UpdateFields{Course: req.Course, Notes: req.Notes}
	if req.Status != nil {
		status := model.Status(*req.Status)
		if !status.Valid() {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"message": "Validation failed",
				"errors":  gin.H{"status": []string{"status must be one of present, absent, late, excused"}},
			})
			return
		}
		upd.Status = &status
	}
	rec, err := h.ledger.Update(c.Request.Context(), c.Param("id"), upd)
	if errors.Is(err, attendance.ErrDuplicate) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "Validation failed",
			"errors":  gin.H{"course": []string{"an attendance already exists for this student, room, course and day"}},
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Présence non trouvée"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Présence mise à jour avec succès", "data": rec})
}

func (h *Handler) deleteAttendance(c *gin.Context) {
	ok, err := h.ledger.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Présence non trouvée"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Présence supprimée avec succès"})
}

// queryRoomID parses the optional exam_room_id query parameter, writing the
// 422 response itself when malformed.
func queryRoomID(c *gin.Context) (*int64, bool) {
	v := c.Query("exam_room_id")
	if v == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "Validation failed",
			"errors":  gin.H{"exam_room_id": []string{"the exam_room_id parameter must be an integer"}},
		})
		return nil, false
	}
	return &id, true
}
