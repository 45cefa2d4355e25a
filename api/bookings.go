package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/homefix/core/booking"
	"github.com/kilianp07/homefix/core/model"
)

type dispatchRequest struct {
	Candidates int  `json:"candidates"`
	Broadcast  bool `json:"broadcast"`
}

type dispatchResponse struct {
	OfferIDs []string         `json:"offerIds"`
	Offers   []model.JobOffer `json:"offers"`
}

func (h *handler) dispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	if req.Candidates < 0 {
		badRequest(c, errors.New("candidates must not be negative"))
		return
	}
	k := req.Candidates
	if req.Broadcast && k == 0 {
		k = h.deps.BroadcastCandidates
	}
	offers, err := h.deps.Dispatcher.Dispatch(c.Request.Context(), c.Param("id"), k)
	if err != nil {
		respondError(c, err)
		return
	}
	ids := make([]string, 0, len(offers))
	for _, o := range offers {
		ids = append(ids, o.ID)
	}
	c.JSON(http.StatusCreated, dispatchResponse{OfferIDs: ids, Offers: offers})
}

type transitionRequest struct {
	Status       string `json:"status" binding:"required"`
	Actor        string `json:"actor"`
	TechnicianID string `json:"technicianId"`
}

func (h *handler) transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	target, err := model.ParseBookingStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.deps.Bookings.RequestTransition(c.Request.Context(), booking.TransitionRequest{
		BookingID:    c.Param("id"),
		Target:       target,
		Actor:        req.Actor,
		TechnicianID: req.TechnicianID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type paymentRequest struct {
	PaymentStatus string `json:"paymentStatus" binding:"required"`
	Actor         string `json:"actor"`
}

func (h *handler) payment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := model.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.deps.Bookings.RecordPayment(c.Request.Context(), c.Param("id"), status, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
