package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"makesta/internal/program"
)

type instructorRequest struct {
	UserID         uint    `json:"userId" binding:"required"`
	Specialization string  `json:"specialization" binding:"required"`
	CV             *string `json:"cv"`
}

type instructorPatchRequest struct {
	Specialization *string `json:"specialization" binding:"omitempty,min=1"`
	CV             *string `json:"cv"`
	Status         *string `json:"status" binding:"omitempty,oneof=active inactive"`
}

func (h *Handler) listParticipants(c *gin.Context) {
	list, err := h.repo.ListParticipants(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) listInstructors(c *gin.Context) {
	list, err := h.repo.ListInstructors(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createInstructor(c *gin.Context) {
	var req instructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	ins, err := h.svc.CreateInstructor(c.Request.Context(), caller(c).UserID, program.NewInstructor{
		UserID:         req.UserID,
		Specialization: req.Specialization,
		CV:             req.CV,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "instructor created", "instructor": ins})
}

func (h *Handler) updateInstructor(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req instructorPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	ins, err := h.svc.UpdateInstructor(c.Request.Context(), id, program.InstructorPatch{
		Specialization: req.Specialization,
		CV:             req.CV,
		Status:         req.Status,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "instructor updated", "instructor": ins})
}

func (h *Handler) deleteInstructor(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok, err := h.repo.DeleteInstructor(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		h.respondError(c, program.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "instructor deleted"})
}
