// Package api exposes booking dispatch, offer arbitration, commission and
// notification operations over HTTP with gin.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/booking"
	"github.com/kilianp07/homefix/core/commission"
	"github.com/kilianp07/homefix/core/dispatch"
	"github.com/kilianp07/homefix/core/dispatch/logging"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/model"
	"github.com/kilianp07/homefix/core/notification"
)

// Dispatcher issues job offers for a booking.
type Dispatcher interface {
	Dispatch(ctx context.Context, bookingID string, k int) ([]model.JobOffer, error)
}

// OfferResolver settles technician responses to offers.
type OfferResolver interface {
	Accept(ctx context.Context, offerID, technicianID string) (dispatch.AcceptResult, error)
	Reject(ctx context.Context, offerID, technicianID, reason string) (dispatch.RejectResult, error)
}

// BookingTransitioner changes booking and payment status.
type BookingTransitioner interface {
	RequestTransition(ctx context.Context, req booking.TransitionRequest) (booking.TransitionResult, error)
	RecordPayment(ctx context.Context, bookingID string, status model.PaymentStatus, actor string) (booking.PaymentResult, error)
}

// Splitter computes commission splits at the configured rate.
type Splitter interface {
	Split(ctx context.Context, price int64) (commission.Split, error)
}

// DecisionLog queries recorded dispatch decisions.
type DecisionLog interface {
	Query(ctx context.Context, q logging.LogQuery) ([]logging.LogRecord, error)
}

// Inbox serves notification polling and state changes.
type Inbox interface {
	List(ctx context.Context, scope model.Scope, unreadOnly bool) (notification.Page, error)
	MarkRead(ctx context.Context, id string, scope model.Scope) (model.Notification, error)
	MarkAllRead(ctx context.Context, scope model.Scope) (int, error)
	ToggleImportant(ctx context.Context, id string, scope model.Scope) (model.Notification, error)
}

// Deps are the services the router binds to.
type Deps struct {
	Dispatcher    Dispatcher
	Offers        OfferResolver
	Bookings      BookingTransitioner
	Splitter      Splitter
	Notifications Inbox
	// Ping checks the store. Nil reports healthy.
	Ping func(ctx context.Context) error
	// BroadcastCandidates is used when a dispatch request asks for a broadcast.
	BroadcastCandidates int
	// DispatchLog serves the decision trail. Nil disables the endpoint.
	DispatchLog DecisionLog
}

// Options configures cross-cutting router behavior.
type Options struct {
	AllowedOrigins []string
	Logger         logger.Logger
	// MetricsHandler serves /metrics. Nil uses the default Prometheus registry.
	MetricsHandler http.Handler
}

type handler struct {
	deps Deps
	log  logger.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(deps Deps, opts Options) *gin.Engine {
	log := logger.OrNop(opts.Logger)
	r := gin.New()
	r.Use(RequestID(), Logger(log), Recovery(log), CORS(opts.AllowedOrigins))
	if err := r.SetTrustedProxies(nil); err != nil {
		log.Warnf("set trusted proxies: %v", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: apperr.CodeNotFound, Error: "route not found", RequestID: GetRequestID(c)})
	})

	metrics := opts.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metrics))

	h := &handler{deps: deps, log: log}
	api := r.Group("/api")
	{
		api.GET("/health", h.health)

		bookings := api.Group("/bookings")
		bookings.POST("/:id/dispatch", h.dispatch)
		bookings.POST("/:id/status", h.transition)
		bookings.POST("/:id/payment", h.payment)
		bookings.GET("/:id/dispatch-log", h.dispatchLog)

		offers := api.Group("/offers")
		offers.POST("/:id/accept", h.accept)
		offers.POST("/:id/reject", h.reject)

		api.GET("/commission/split", h.split)

		notifications := api.Group("/notifications")
		notifications.GET("", h.listNotifications)
		notifications.POST("/read-all", h.markAllRead)
		notifications.POST("/:id/read", h.markRead)
		notifications.POST("/:id/important", h.toggleImportant)
	}
	return r
}

func (h *handler) health(c *gin.Context) {
	if h.deps.Ping != nil {
		if err := h.deps.Ping(c.Request.Context()); err != nil {
			h.log.Errorf("health check: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "request_id": GetRequestID(c)})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
