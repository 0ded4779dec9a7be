package httpapi

import (
	"errors"
	"net/http"
	"net/mail"

	"github.com/gin-gonic/gin"

	"attendease/internal/model"
	"attendease/internal/student"
)

type createStudentRequest struct {
	LastName   string `json:"nom"`
	FirstName  string `json:"prenom"`
	CodeApogee string `json:"code_apogee"`
	CNE        string `json:"cne"`
	Email      string `json:"email"`
	Program    string `json:"filiere"`
	Level      string `json:"niveau"`
	CIN        string `json:"cin"`
}

func (req createStudentRequest) validate() map[string][]string {
	errs := map[string][]string{}
	required := map[string]string{
		"nom":         req.LastName,
		"prenom":      req.FirstName,
		"code_apogee": req.CodeApogee,
		"cne":         req.CNE,
		"email":       req.Email,
		"filiere":     req.Program,
		"niveau":      req.Level,
	}
	for field, val := range required {
		if val == "" {
			errs[field] = append(errs[field], "the "+field+" field is required")
		}
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			errs["email"] = append(errs["email"], "the email field must be a valid email address")
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (h *Handler) createStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": gin.H{"body": []string{"invalid JSON body"}}})
		return
	}
	if errs := req.validate(); errs != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": errs})
		return
	}
	st, err := h.students.Create(c.Request.Context(), model.Student{
		CodeApogee: req.CodeApogee,
		CNE:        req.CNE,
		LastName:   req.LastName,
		FirstName:  req.FirstName,
		Email:      req.Email,
		Program:    req.Program,
		Level:      req.Level,
		CIN:        req.CIN,
	})
	if err != nil {
		if errors.Is(err, student.ErrExists) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"message": "Validation failed",
				"errors":  gin.H{"code_apogee": []string{"a student with this code, cne or email already exists"}},
			})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Étudiant créé avec succès", "data": st})
}

func (h *Handler) listStudents(c *gin.Context) {
	students, err := h.students.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"data": students})
}

func (h *Handler) getStudent(c *gin.Context) {
	st, err := h.students.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Étudiant non trouvé"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (h *Handler) searchStudents(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Paramètre de recherche manquant"})
		return
	}
	students, err := h.students.Search(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"data": students})
}

func (h *Handler) updateStudent(c *gin.Context) {
	var req struct {
		LastName  *string `json:"nom"`
		FirstName *string `json:"prenom"`
		Email     *string `json:"email"`
		Program   *string `json:"filiere"`
		Level     *string `json:"niveau"`
		CIN       *string `json:"cin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": gin.H{"body": []string{"invalid JSON body"}}})
		return
	}
	if req.Email != nil {
		if _, err := mail.ParseAddress(*req.Email); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"message": "Validation failed",
				"errors":  gin.H{"email": []string{"the email field must be a valid email address"}},
			})
			return
		}
	}
	st, err := h.students.Update(c.Request.Context(), c.Param("code"), student.UpdateFields{
		LastName:  req.LastName,
		FirstName: req.FirstName,
		Email:     req.Email,
		Program:   req.Program,
		Level:     req.Level,
		CIN:       req.CIN,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Étudiant non trouvé"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Étudiant mis à jour avec succès", "data": st})
}

func (h *Handler) deleteStudent(c *gin.Context) {
	ok, err := h.students.Delete(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Étudiant non trouvé"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Étudiant supprimé avec succès"})
}
