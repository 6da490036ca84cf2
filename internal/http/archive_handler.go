package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coglex/internal/domain"
	"coglex/internal/service"
)

// multipartOverhead cubre boundaries y headers del formulario por encima del archivo.
const multipartOverhead = 1 << 20

// ArchiveHandler expone subida y descarga de archivos.
type ArchiveHandler struct {
	logger  *zap.Logger
	archive *service.ArchiveService
	maxSize int64
}

func NewArchiveHandler(logger *zap.Logger, archive *service.ArchiveService, maxSize int64) *ArchiveHandler {
	return &ArchiveHandler{logger: logger, archive: archive, maxSize: maxSize}
}

// List maneja GET /service/archive/v1?query=.
func (h *ArchiveHandler) List(c *gin.Context) {
	var query domain.Filter
	if !bindJSONQuery(c, "query", &query) {
		return
	}
	files, err := h.archive.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, h.logger, "list files", err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// Upload maneja POST /service/archive/v1 con un campo multipart "file".
func (h *ArchiveHandler) Upload(c *gin.Context) {
	if h.maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, h.logger, "open upload", err)
		return
	}
	defer f.Close()

	id, err := h.archive.Upload(c.Request.Context(), header.Filename, header.Size, f)
	if err != nil {
		respondError(c, h.logger, "upload", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// Download maneja GET /service/archive/v1/:id.
func (h *ArchiveHandler) Download(c *gin.Context) {
	meta, rc, err := h.archive.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "download", err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, meta.Filesize, meta.Filetype, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", meta.Filename),
	})
}

// Delete maneja DELETE /service/archive/v1/:id.
func (h *ArchiveHandler) Delete(c *gin.Context) {
	if err := h.archive.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "delete file", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
