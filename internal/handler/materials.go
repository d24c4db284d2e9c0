package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"makesta/internal/program"
)

type materialPatchRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1"`
	Description *string `json:"description"`
}

func (h *Handler) listMaterials(c *gin.Context) {
	list, err := h.repo.ListMaterials(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// createMaterial accepts multipart title, description and an optional file.
// Parts above 1MB spill to a temp file, so large uploads never sit in memory.
func (h *Handler) createMaterial(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	if err := c.Request.ParseMultipartForm(1 << 20); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			h.respondError(c, &program.ValidationError{Reason: "expected multipart/form-data"})
			return
		}
		h.respondError(c, err)
		return
	}
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}

	in := program.NewMaterial{Title: strings.TrimSpace(c.PostForm("title"))}
	if d, ok := c.GetPostForm("description"); ok && d != "" {
		in.Description = &d
	}

	var upload *program.Upload
	fh, err := c.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		h.respondError(c, err)
		return
	default:
		if fh.Size > h.maxUploadBytes {
			h.respondError(c, &program.ValidationError{Field: "file", Reason: "exceeds the upload limit"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.respondError(c, err)
			return
		}
		defer f.Close()
		upload = &program.Upload{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Body: f}
	}

	m, err := h.svc.UploadMaterial(c.Request.Context(), caller(c).UserID, in, upload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "material created", "material": m})
}

func (h *Handler) updateMaterial(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req materialPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, err)
		return
	}
	m, err := h.repo.UpdateMaterial(c.Request.Context(), id, program.MaterialPatch{Title: req.Title, Description: req.Description})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "material updated", "material": m})
}

func (h *Handler) downloadMaterial(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	m, rc, size, err := h.svc.OpenMaterialFile(c.Request.Context(), caller(c).UserID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	if m.ContentType != nil && *m.ContentType != "" {
		contentType = *m.ContentType
	}
	name := m.Title
	if m.FileName != nil && *m.FileName != "" {
		name = *m.FileName
	}
	headers := map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": name}),
	}
	if size >= 0 {
		c.DataFromReader(http.StatusOK, size, contentType, rc, headers)
		return
	}
	for k, v := range headers {
		c.Header(k, v)
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Warn("download interrupted", "material_id", id, "err", err)
	}
}

func (h *Handler) deleteMaterial(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok, err := h.svc.DeleteMaterial(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		h.respondError(c, program.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "material deleted"})
}
