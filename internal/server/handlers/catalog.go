// Package handlers provides the HTTP handlers of the host API.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/mantonx/soundcrowd/internal/errors"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule"
	"github.com/mantonx/soundcrowd/internal/modules/catalogmodule/mediaid"
)

// maxPageLimit caps the page size a client may request.
const maxPageLimit = 500

// SearchHistory serves recorded search queries.
type SearchHistory interface {
	RecentSearchQueries(ctx context.Context, prefix string, limit int) ([]string, error)
}

// CatalogHandler exposes browsing, resolution and per-item state.
type CatalogHandler struct {
	catalog  *catalogmodule.Catalog
	resolver *catalogmodule.Resolver
	history  SearchHistory
	timeout  time.Duration
}

// NewCatalogHandler creates a handler. timeout bounds how long a request
// waits for a category load or a resolution; zero waits for the client.
func NewCatalogHandler(catalog *catalogmodule.Catalog, resolver *catalogmodule.Resolver, history SearchHistory, timeout time.Duration) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, resolver: resolver, history: history, timeout: timeout}
}

func (h *CatalogHandler) waitContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.timeout)
	}
	return context.WithCancel(c.Request.Context())
}

// Browse returns one page of a category.
//
//	GET /api/catalog/browse?id=<category>&offset=&limit=&page=&refresh=
func (h *CatalogHandler) Browse(c *gin.Context) {
	id := c.DefaultQuery("id", mediaid.Root)
	opts := catalogmodule.Options{
		Offset:  queryInt(c, "offset", 0),
		Limit:   queryInt(c, "limit", 0),
		Page:    queryInt(c, "page", 0),
		Refresh: c.Query("refresh") == "true",
	}
	if opts.Offset < 0 || opts.Limit < 0 || opts.Page < 0 {
		apperrors.HandleValidationError(c, "offset, limit and page must not be negative", "offset")
		return
	}
	if opts.Limit > maxPageLimit {
		opts.Limit = maxPageLimit
	}

	ctx, cancel := h.waitContext(c)
	defer cancel()

	select {
	case res := <-h.catalog.EnsureLoaded(id, opts):
		if res.Err != nil {
			apperrors.RespondWithError(c, res.Err)
			return
		}
		c.JSON(http.StatusOK, res)
	case <-ctx.Done():
		apperrors.RespondWithError(c, apperrors.IngestionFailure("browse", apperrors.ErrCallbackTimeout).WithSubject(id))
	}
}

// GetItem returns the cached item behind a canonical or hierarchy-aware id.
func (h *CatalogHandler) GetItem(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		apperrors.HandleValidationError(c, "id is required", "id")
		return
	}
	item, ok := h.catalog.GetMusic(id)
	if !ok {
		apperrors.HandleNotFound(c, "media item", id)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Resolve turns an id into a playable item.
func (h *CatalogHandler) Resolve(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		apperrors.HandleValidationError(c, "id is required", "id")
		return
	}

	ctx, cancel := h.waitContext(c)
	defer cancel()

	select {
	case res := <-h.resolver.Resolve(id):
		if res.Err != nil && res.Item.ID == "" {
			apperrors.RespondWithError(c, res.Err)
			return
		}
		body := gin.H{"item": res.Item, "resolved": res.Resolved}
		if res.Err != nil {
			// played as-is
			body["warning"] = res.Err.Error()
		}
		c.JSON(http.StatusOK, body)
	case <-ctx.Done():
		apperrors.RespondWithError(c, apperrors.ResolutionFailure("resolve", apperrors.ErrCallbackTimeout).WithSubject(id))
	}
}

// Refresh starts a root reload and returns immediately.
func (h *CatalogHandler) Refresh(c *gin.Context) {
	h.catalog.Refresh()
	c.JSON(http.StatusAccepted, gin.H{
		"state":      h.catalog.State(),
		"generation": h.catalog.Generation(),
	})
}

// State reports the root catalog lifecycle.
func (h *CatalogHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":      h.catalog.State(),
		"generation": h.catalog.Generation(),
	})
}

type cuePointRequest struct {
	ID          string `json:"id" binding:"required"`
	Position    *int64 `json:"position" binding:"required"`
	Description string `json:"description"`
}

// AddCuePoint stores a cue point.
func (h *CatalogHandler) AddCuePoint(c *gin.Context) {
	var req cuePointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, err.Error(), "body")
		return
	}
	item, err := h.catalog.AddCuePoint(c.Request.Context(), req.ID, *req.Position, req.Description)
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateCuePoint changes the description of a cue point.
func (h *CatalogHandler) UpdateCuePoint(c *gin.Context) {
	var req cuePointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, err.Error(), "body")
		return
	}
	item, err := h.catalog.SetCuePointDescription(c.Request.Context(), req.ID, *req.Position, req.Description)
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteCuePoint removes a cue point.
//
//	DELETE /api/catalog/cues?id=&position=
func (h *CatalogHandler) DeleteCuePoint(c *gin.Context) {
	id := c.Query("id")
	position, err := strconv.ParseInt(c.Query("position"), 10, 64)
	if id == "" || err != nil {
		apperrors.HandleValidationError(c, "id and numeric position are required", "position")
		return
	}
	item, err := h.catalog.DeleteCuePoint(c.Request.Context(), id, position)
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type positionRequest struct {
	ID       string `json:"id" binding:"required"`
	Position *int64 `json:"position" binding:"required"`
}

// UpdatePosition records where playback stopped.
func (h *CatalogHandler) UpdatePosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, err.Error(), "body")
		return
	}
	item, err := h.catalog.UpdateLastPosition(c.Request.Context(), req.ID, *req.Position)
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetPosition returns the stored playback position of an item.
func (h *CatalogHandler) GetPosition(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		apperrors.HandleValidationError(c, "id is required", "id")
		return
	}
	pos, err := h.catalog.LastPosition(c.Request.Context(), id)
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": mediaid.ExtractID(id), "position": pos})
}

// SearchHistory lists recent queries matching a prefix.
func (h *CatalogHandler) SearchHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"queries": []string{}})
		return
	}
	queries, err := h.history.RecentSearchQueries(c.Request.Context(), c.Query("prefix"), queryInt(c, "limit", 10))
	if err != nil {
		apperrors.RespondWithError(c, apperrors.StorageError("search_history", err))
		return
	}
	if queries == nil {
		queries = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"queries": queries})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
