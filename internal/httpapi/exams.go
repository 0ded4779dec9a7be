package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"attendease/internal/exam"
	"attendease/internal/model"
)

type examRequest struct {
	Code       string `json:"code"`
	Title      string `json:"intitule"`
	Date       string `json:"date"`
	StartTime  string `json:"heure_debut"`
	EndTime    string `json:"heure_fin"`
	Subject    string `json:"matiere"`
	Program    string `json:"filiere"`
	Level      string `json:"niveau"`
	Group      string `json:"groupe"`
	Instructor string `json:"enseignant"`
	RoomLabel  string `json:"salle"`
}

func (req examRequest) toModel() (model.Exam, map[string][]string) {
	errs := map[string][]string{}
	required := map[string]string{
		"code":        req.Code,
		"intitule":    req.Title,
		"date":        req.Date,
		"heure_debut": req.StartTime,
		"heure_fin":   req.EndTime,
		"matiere":     req.Subject,
	}
	for field, val := range required {
		if val == "" {
			errs[field] = append(errs[field], "the "+field+" field is required")
		}
	}
	var date time.Time
	if req.Date != "" {
		var err error
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			errs["date"] = append(errs["date"], "the date field must be formatted YYYY-MM-DD")
		}
	}
	if len(errs) > 0 {
		return model.Exam{}, errs
	}
	return model.Exam{
		Code:       req.Code,
		Title:      req.Title,
		Date:       date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Subject:    req.Subject,
		Program:    req.Program,
		Level:      req.Level,
		Group:      req.Group,
		Instructor: req.Instructor,
		RoomLabel:  req.RoomLabel,
	}, nil
}

func (h *Handler) createExam(c *gin.Context) {
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": gin.H{"body": []string{"invalid JSON body"}}})
		return
	}
	e, errs := req.toModel()
	if errs != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": errs})
		return
	}
	created, err := h.exams.CreateExam(c.Request.Context(), e)
	if err != nil {
		if errors.Is(err, exam.ErrExists) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"message": "Validation failed",
				"errors":  gin.H{"code": []string{"an exam with this code already exists"}},
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Examen créé avec succès", "data": created})
}

func (h *Handler) listExams(c *gin.Context) {
	exams, err := h.exams.ListExams(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	c.JSON(http.StatusOK, gin.H{"data": exams})
}

func (h *Handler) getExam(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Examen non trouvé"})
		return
	}
	e, err := h.exams.GetExam(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if e == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Examen non trouvé"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": e})
}

func (h *Handler) updateExam(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Examen non trouvé"})
		return
	}
	var req examRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": gin.H{"body": []string{"invalid JSON body"}}})
		return
	}
	e, errs := req.toModel()
	if errs != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": errs})
		return
	}
	updated, err := h.exams.UpdateExam(c.Request.Context(), id, e)
	if err != nil {
		respondError(c, err)
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Examen non trouvé"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Examen mis à jour avec succès", "data": updated})
}

func (h *Handler) deleteExam(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Examen non trouvé"})
		return
	}
	ok, err := h.exams.DeleteExam(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Examen non trouvé"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Examen supprimé avec succès"})
}

type roomRequest struct {
	Name     string  `json:"name"`
	Location *string `json:"location"`
	Capacity *int    `json:"capacity"`
	ExamID   *int64  `json:"exam_id"`
}

func (req roomRequest) validate() map[string][]string {
	errs := map[string][]string{}
	if req.Name == "" {
		errs["name"] = append(errs["name"], "the name field is required")
	}
	if req.Capacity != nil && *req.Capacity < 1 {
		errs["capacity"] = append(errs["capacity"], "the capacity field must be at least 1")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (h *Handler) createRoom(c *gin.Context) {
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": gin.H{"body": []string{"invalid JSON body"}}})
		return
	}
	if errs := req.validate(); errs != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": errs})
		return
	}
	rm, err := h.exams.CreateRoom(c.Request.Context(), model.ExamRoom{
		Name:     req.Name,
		Location: req.Location,
		Capacity: req.Capacity,
		ExamID:   req.ExamID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": rm})
}

func (h *Handler) listRooms(c *gin.Context) {
	rooms, err := h.exams.ListRooms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if rooms == nil {
		rooms = []model.ExamRoom{}
	}
	c.JSON(http.StatusOK, gin.H{"data": rooms})
}

func (h *Handler) getRoom(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Salle non trouvée"})
		return
	}
	rm, err := h.exams.GetRoom(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if rm == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Salle non trouvée"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rm})
}

func (h *Handler) updateRoom(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Salle non trouvée"})
		return
	}
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": gin.H{"body": []string{"invalid JSON body"}}})
		return
	}
	if errs := req.validate(); errs != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": errs})
		return
	}
	rm, err := h.exams.UpdateRoom(c.Request.Context(), id, model.ExamRoom{
		Name:     req.Name,
		Location: req.Location,
		Capacity: req.Capacity,
		ExamID:   req.ExamID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if rm == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Salle non trouvée"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rm})
}

func (h *Handler) deleteRoom(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Salle non trouvée"})
		return
	}
	ok, err := h.exams.DeleteRoom(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Salle non trouvée"})
		return
	}
	c.Status(http.StatusNoContent)
}
