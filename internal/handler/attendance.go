package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"makesta/internal/program"
)

type sessionRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
}

type recordRequest struct {
	SessionID     uint    `json:"sessionId" binding:"required"`
	ParticipantID uint    `json:"participantId"`
	Status        string  `json:"status" binding:"omitempty,oneof=present absent late"`
	Notes         *string `json:"notes"`
}

type recordPatchRequest struct {
	Status *string `json:"status" binding:"omitempty,oneof=present absent late"`
	Notes  *string `json:"notes"`
}

func (h *Handler) listSessions(c *gin.Context) {
	list, err := h.repo.ListAttendanceSessions(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	sess, err := h.svc.OpenSession(c.Request.Context(), caller(c).UserID, req.Title, req.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "attendance session created", "session": sess})
}

func (h *Handler) closeSession(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	sess, err := h.svc.CloseSession(c.Request.Context(), caller(c).UserID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "attendance session closed", "session": sess})
}

func (h *Handler) listRecords(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	records, err := h.svc.SessionRecords(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// createRecord lets participants check themselves in. Staff record on
// behalf of a participant and must name them.
func (h *Handler) createRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	who := caller(c)
	participantID := who.UserID
	if isStaff(who.Role) {
		if req.ParticipantID == 0 {
			h.respondError(c, &program.ValidationError{Field: "participantId", Reason: "is required"})
			return
		}
		participantID = req.ParticipantID
	}
	status := req.Status
	if status == "" {
		status = program.StatusPresent
	}
	rec, err := h.svc.RecordAttendance(c.Request.Context(), program.NewRecord{
		SessionID:     req.SessionID,
		ParticipantID: participantID,
		Status:        status,
		Notes:         req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "attendance recorded", "record": rec})
}

func (h *Handler) updateRecord(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req recordPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	rec, err := h.svc.UpdateRecord(c.Request.Context(), id, program.RecordPatch{Status: req.Status, Notes: req.Notes})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "attendance record updated", "record": rec})
}
