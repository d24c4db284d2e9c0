// Package handler exposes the program over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"makesta/internal/auth"
	"makesta/internal/program"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler holds the dependencies of every route.
type Handler struct {
	svc            *program.Service
	repo           *program.Repository
	issuer         *auth.Issuer
	logger         *slog.Logger
	maxUploadBytes int64
	checks         map[string]HealthCheck
}

// Config carries the non-service dependencies of a Handler.
type Config struct {
	MaxUploadBytes int64
	Checks         map[string]HealthCheck
}

// New creates a Handler.
func New(svc *program.Service, repo *program.Repository, issuer *auth.Issuer, logger *slog.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	useJSONFieldNames()
	return &Handler{
		svc:            svc,
		repo:           repo,
		issuer:         issuer,
		logger:         logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		checks:         cfg.Checks,
	}
}

// useJSONFieldNames makes validation messages name fields as clients send them.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{f.Tag.Get("json"), f.Tag.Get("form")} {
			name, _, _ := strings.Cut(tag, ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
}

func (h *Handler) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// respondError maps domain errors onto HTTP statuses. Unknown errors are
// logged and reported as a generic 500.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		verrs    validator.ValidationErrors
		verr     *program.ValidationError
		syntax   *json.SyntaxError
		typeErr  *json.UnmarshalTypeError
		tooLarge *http.MaxBytesError
		numErr   *strconv.NumError
	)
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"message": describe(verrs)})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"message": verr.Error()})
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes)})
	case errors.As(err, &syntax), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed JSON body"})
	case errors.As(err, &typeErr):
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("%s: must be %s", typeErr.Field, typeErr.Type)})
	case errors.As(err, &numErr):
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid number " + strconv.Quote(numErr.Num)})
	case errors.Is(err, program.ErrDuplicateUsername),
		errors.Is(err, program.ErrDuplicateEmail),
		errors.Is(err, program.ErrSessionClosed),
		errors.Is(err, program.ErrAlreadyInstructor),
		errors.Is(err, program.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": err.Error()})
	case errors.Is(err, program.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	default:
		_ = c.Error(err)
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	}
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email")
		case "min":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param())
		case "max":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param())
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of "+fe.Param())
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// idParam parses the :id path parameter.
func idParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &program.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return uint(id), nil
}

// caller returns the authenticated identity. Routes using it sit behind auth.Authenticate.
func caller(c *gin.Context) auth.Claims {
	claims, _ := auth.Identity(c)
	return claims
}

func isStaff(role string) bool {
	return role == auth.RoleOrganizer || role == auth.RoleInstructor
}
