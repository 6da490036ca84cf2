package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"coglex/internal/domain"
	"coglex/internal/service"
)

// StorageHandler expone CRUD genérico sobre colecciones.
type StorageHandler struct {
	logger  *zap.Logger
	storage *service.StorageService
}

func NewStorageHandler(logger *zap.Logger, storage *service.StorageService) *StorageHandler {
	return &StorageHandler{logger: logger, storage: storage}
}

// Aggregate maneja POST /:collection/aggregate.
func (h *StorageHandler) Aggregate(c *gin.Context) {
	var req struct {
		Pipeline []domain.Document `json:"pipeline" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	out, err := h.storage.Aggregate(c.Request.Context(), c.Param(collectionParam), req.Pipeline)
	if err != nil {
		respondError(c, h.logger, "aggregate", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// FindOne maneja GET /:collection/:id.
func (h *StorageHandler) FindOne(c *gin.Context) {
	var keys domain.Document
	if !bindJSONQuery(c, "keys", &keys) {
		return
	}
	doc, err := h.storage.FindByID(c.Request.Context(), c.Param(collectionParam), c.Param("id"), keys)
	if err != nil {
		respondError(c, h.logger, "find one", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// FindMany maneja GET /:collection?query=&keys=.
func (h *StorageHandler) FindMany(c *gin.Context) {
	var query domain.Filter
	var keys domain.Document
	if !bindJSONQuery(c, "query", &query) || !bindJSONQuery(c, "keys", &keys) {
		return
	}
	docs, err := h.storage.Find(c.Request.Context(), c.Param(collectionParam), query, keys)
	if err != nil {
		respondError(c, h.logger, "find many", err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// Insert maneja POST /:collection.
func (h *StorageHandler) Insert(c *gin.Context) {
	var req struct {
		Documents []domain.Document `json:"documents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ids, err := h.storage.Insert(c.Request.Context(), c.Param(collectionParam), req.Documents)
	if err != nil {
		respondError(c, h.logger, "insert", err)
		return
	}
	c.JSON(http.StatusCreated, ids)
}

// PatchOne maneja PATCH /:collection/:id.
func (h *StorageHandler) PatchOne(c *gin.Context) {
	var req struct {
		Document domain.Update `json:"document" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	n, err := h.storage.PatchByID(c.Request.Context(), c.Param(collectionParam), c.Param("id"), req.Document)
	if err != nil {
		respondError(c, h.logger, "patch one", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": n})
}

// PatchMany maneja PATCH /:collection.
func (h *StorageHandler) PatchMany(c *gin.Context) {
	var req struct {
		Document domain.Update `json:"document" binding:"required"`
		Query    domain.Filter `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	n, err := h.storage.Patch(c.Request.Context(), c.Param(collectionParam), req.Document, req.Query)
	if err != nil {
		respondError(c, h.logger, "patch many", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": n})
}

// DeleteOne maneja DELETE /:collection/:id.
func (h *StorageHandler) DeleteOne(c *gin.Context) {
	n, err := h.storage.DeleteByID(c.Request.Context(), c.Param(collectionParam), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "delete one", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// DeleteMany maneja DELETE /:collection?query=.
func (h *StorageHandler) DeleteMany(c *gin.Context) {
	var query domain.Filter
	if !bindJSONQuery(c, "query", &query) {
		return
	}
	n, err := h.storage.Delete(c.Request.Context(), c.Param(collectionParam), query)
	if err != nil {
		respondError(c, h.logger, "delete many", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// bindJSONQuery decodifica un parámetro de query string con JSON. Ausente deja dst intacto.
func bindJSONQuery(c *gin.Context, name string, dst any) bool {
	raw := c.Query(name)
	if raw == "" {
		return true
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return false
	}
	return true
}
