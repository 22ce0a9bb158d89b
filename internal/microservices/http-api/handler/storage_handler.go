package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sidebridge/internal/storage"
)

// StorageHandler exposes the raw key/value area to trusted surfaces.
type StorageHandler struct {
	kv *storage.Service
}

func NewStorageHandler(kv *storage.Service) *StorageHandler {
	return &StorageHandler{kv: kv}
}

func (h *StorageHandler) RegisterRoutes(rg *gin.RouterGroup, clear ...gin.HandlerFunc) {
	rg.GET("", h.Get)
	rg.DELETE("", append(clear, h.Clear)...)
}

// Get returns the requested comma-separated keys, or everything without ?keys.
func (h *StorageHandler) Get(c *gin.Context) {
	var keys []string
	if raw := c.Query("keys"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}

	values, err := h.kv.GetMany(c.Request.Context(), keys...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, values)
}

func (h *StorageHandler) Clear(c *gin.Context) {
	if err := h.kv.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
