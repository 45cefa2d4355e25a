package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type acceptRequest struct {
	TechnicianID string `json:"technicianId" binding:"required"`
}

func (h *handler) accept(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.deps.Offers.Accept(c.Request.Context(), c.Param("id"), req.TechnicianID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type rejectRequest struct {
	TechnicianID string `json:"technicianId" binding:"required"`
	Reason       string `json:"reason"`
}

func (h *handler) reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.deps.Offers.Reject(c.Request.Context(), c.Param("id"), req.TechnicianID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
