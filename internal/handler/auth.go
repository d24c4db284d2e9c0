package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"makesta/internal/program"
)

type registerRequest struct {
	Username               string  `json:"username" binding:"required,min=3"`
	Password               string  `json:"password" binding:"required,min=6"`
	FullName               string  `json:"fullName" binding:"required"`
	Email                  string  `json:"email" binding:"required,email"`
	Phone                  string  `json:"phone" binding:"required,min=10"`
	BirthPlace             string  `json:"birthPlace" binding:"required"`
	Address                string  `json:"address" binding:"required"`
	Elementary             string  `json:"elementary" binding:"required"`
	JuniorHigh             *string `json:"juniorHigh"`
	SeniorHigh             *string `json:"seniorHigh"`
	Purpose                string  `json:"purpose" binding:"required"`
	OrganizationExperience *string `json:"organizationExperience"`
	Interests              string  `json:"interests" binding:"required"`
	Talents                string  `json:"talents" binding:"required"`
	Motto                  *string `json:"motto"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Message   string        `json:"message"`
	User      *program.User `json:"user"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	u, err := h.svc.Register(c.Request.Context(), program.Registration{
		Username:               req.Username,
		Password:               req.Password,
		FullName:               req.FullName,
		Email:                  req.Email,
		Phone:                  req.Phone,
		BirthPlace:             req.BirthPlace,
		Address:                req.Address,
		Elementary:             req.Elementary,
		JuniorHigh:             req.JuniorHigh,
		SeniorHigh:             req.SeniorHigh,
		Purpose:                req.Purpose,
		OrganizationExperience: req.OrganizationExperience,
		Interests:              req.Interests,
		Talents:                req.Talents,
		Motto:                  req.Motto,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issueSession(c, http.StatusCreated, "registration successful", u)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	u, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issueSession(c, http.StatusOK, "login successful", u)
}

func (h *Handler) issueSession(c *gin.Context, status int, message string, u *program.User) {
	tok, err := h.issuer.Issue(u.ID, u.Username, u.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, sessionResponse{Message: message, User: u, Token: tok.Value, ExpiresAt: tok.ExpiresAt})
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.repo.GetUserByID(c.Request.Context(), caller(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
