package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"makesta/internal/program"
)

type gradeRequest struct {
	ParticipantID   uint `json:"participantId" binding:"required"`
	AssignmentScore *int `json:"assignmentScore" binding:"omitempty,min=0,max=100"`
	ExamScore       *int `json:"examScore" binding:"omitempty,min=0,max=100"`
	FinalScore      *int `json:"finalScore" binding:"omitempty,min=0,max=100"`
}

type gradePatchRequest struct {
	AssignmentScore *int `json:"assignmentScore" binding:"omitempty,min=0,max=100"`
	ExamScore       *int `json:"examScore" binding:"omitempty,min=0,max=100"`
	FinalScore      *int `json:"finalScore" binding:"omitempty,min=0,max=100"`
}

type certificateRequest struct {
	ParticipantID   uint    `json:"participantId" binding:"required"`
	CertificateType string  `json:"certificateType"`
	Status          string  `json:"status" binding:"omitempty,oneof=draft issued revoked"`
	Notes           *string `json:"notes"`
}

type certificatePatchRequest struct {
	CertificateType *string `json:"certificateType" binding:"omitempty,min=1"`
	Status          *string `json:"status" binding:"omitempty,oneof=draft issued revoked"`
	Notes           *string `json:"notes"`
}

// gradeView adds the computed average to a grade.
type gradeView struct {
	program.Grade
	Average float64 `json:"average"`
}

func viewGrade(g program.Grade) gradeView {
	return gradeView{Grade: g, Average: g.Average()}
}

func (h *Handler) listGrades(c *gin.Context) {
	grades, err := h.repo.ListGrades(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := make([]gradeView, 0, len(grades))
	for _, g := range grades {
		out = append(out, viewGrade(g))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) createGrade(c *gin.Context) {
	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	g, err := h.svc.CreateGrade(c.Request.Context(), program.NewGrade{
		ParticipantID:   req.ParticipantID,
		AssignmentScore: req.AssignmentScore,
		ExamScore:       req.ExamScore,
		FinalScore:      req.FinalScore,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "grade created", "grade": viewGrade(*g)})
}

func (h *Handler) updateGrade(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req gradePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	g, err := h.svc.UpdateGrade(c.Request.Context(), id, program.GradePatch{
		AssignmentScore: req.AssignmentScore,
		ExamScore:       req.ExamScore,
		FinalScore:      req.FinalScore,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "grade updated", "grade": viewGrade(*g)})
}

func (h *Handler) myGrade(c *gin.Context) {
	g, err := h.repo.GetGradeByParticipant(c.Request.Context(), caller(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewGrade(*g))
}

func (h *Handler) listCertificates(c *gin.Context) {
	list, err := h.repo.ListCertificates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) myCertificates(c *gin.Context) {
	list, err := h.repo.ListCertificatesByParticipant(c.Request.Context(), caller(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createCertificate(c *gin.Context) {
	var req certificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	cert, err := h.svc.IssueCertificate(c.Request.Context(), caller(c).UserID, program.NewCertificate{
		ParticipantID:   req.ParticipantID,
		CertificateType: req.CertificateType,
		Status:          req.Status,
		Notes:           req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "certificate created", "certificate": cert})
}

func (h *Handler) updateCertificate(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req certificatePatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	cert, err := h.svc.UpdateCertificate(c.Request.Context(), id, program.CertificatePatch{
		CertificateType: req.CertificateType,
		Status:          req.Status,
		Notes:           req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "certificate updated", "certificate": cert})
}

func (h *Handler) deleteCertificate(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok, err := h.repo.DeleteCertificate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		h.respondError(c, program.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "certificate deleted"})
}

func (h *Handler) listActivity(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		h.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		h.respondError(c, err)
		return
	}
	limit = program.ActivityLimit(limit)
	list, err := h.repo.ListActivity(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": list, "limit": limit, "offset": offset})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &program.ValidationError{Field: key, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
