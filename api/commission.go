package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/homefix/core/commission"
)

// split serves GET /api/commission/split?price=<minor units>[&rate=<percent>].
// Without rate the configured rate applies.
func (h *handler) split(c *gin.Context) {
	price, err := strconv.ParseInt(c.Query("price"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	var s commission.Split
	if raw, ok := c.GetQuery("rate"); ok {
		rate, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			badRequest(c, perr)
			return
		}
		s, err = commission.SplitWithRate(price, rate)
	} else {
		s, err = h.deps.Splitter.Split(c.Request.Context(), price)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
