package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/homefix/core/model"
)

// scope reads the scope query parameter. An absent scope means the admin inbox.
func scope(c *gin.Context) (model.Scope, bool) {
	raw := c.Query("scope")
	if raw == "" {
		return model.AdminScope, true
	}
	s, err := model.ParseScope(raw)
	if err != nil {
		respondError(c, err)
		return model.Scope{}, false
	}
	return s, true
}

func (h *handler) listNotifications(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	unreadOnly := false
	if raw := c.Query("unreadOnly"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		unreadOnly = v
	}
	page, err := h.deps.Notifications.List(c.Request.Context(), s, unreadOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Retry-After", strconv.Itoa(page.PollAfterSeconds))
	c.JSON(http.StatusOK, page)
}

func (h *handler) markRead(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	n, err := h.deps.Notifications.MarkRead(c.Request.Context(), c.Param("id"), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handler) markAllRead(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	count, err := h.deps.Notifications.MarkAllRead(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

func (h *handler) toggleImportant(c *gin.Context) {
	s, ok := scope(c)
	if !ok {
		return
	}
	n, err := h.deps.Notifications.ToggleImportant(c.Request.Context(), c.Param("id"), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
