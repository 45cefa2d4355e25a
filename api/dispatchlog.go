package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/dispatch/logging"
)

type dispatchLogResponse struct {
	Records []logging.LogRecord `json:"records"`
}

// dispatchLog serves GET /api/bookings/:id/dispatch-log[?technicianId=&kind=].
func (h *handler) dispatchLog(c *gin.Context) {
	if h.deps.DispatchLog == nil {
		respondError(c, apperr.New(apperr.CodeNotFound, "dispatch log is disabled"))
		return
	}
	q := logging.LogQuery{
		BookingID:    c.Param("id"),
		TechnicianID: c.Query("technicianId"),
		Kind:         logging.Kind(c.Query("kind")),
	}
	recs, err := h.deps.DispatchLog.Query(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []logging.LogRecord{}
	}
	c.JSON(http.StatusOK, dispatchLogResponse{Records: recs})
}
