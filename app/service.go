// Package app wires the homefix services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"

	"github.com/kilianp07/homefix/api"
	"github.com/kilianp07/homefix/config"
	"github.com/kilianp07/homefix/core/booking"
	"github.com/kilianp07/homefix/core/commission"
	"github.com/kilianp07/homefix/core/dispatch"
	"github.com/kilianp07/homefix/core/dispatch/logging"
	"github.com/kilianp07/homefix/core/events"
	"github.com/kilianp07/homefix/core/messaging"
	coremetrics "github.com/kilianp07/homefix/core/metrics"
	coremon "github.com/kilianp07/homefix/core/monitoring"
	"github.com/kilianp07/homefix/core/notification"
	"github.com/kilianp07/homefix/core/store"
	"github.com/kilianp07/homefix/infra/amqp"
	"github.com/kilianp07/homefix/infra/logger"
	"github.com/kilianp07/homefix/infra/metrics"
	"github.com/kilianp07/homefix/infra/monitoring"
	"github.com/kilianp07/homefix/infra/mqtt"
	"github.com/kilianp07/homefix/infra/sqlstore"
	"github.com/kilianp07/homefix/internal/eventbus"
)

const (
	busBuffer       = 256
	shutdownTimeout = 10 * time.Second
)

// Service holds the wired components.
type Service struct {
	Store         store.Gateway
	Bus           *eventbus.TypedBus[events.Event]
	Notifications *notification.Center
	Calculator    *commission.Calculator
	Bookings      *booking.Machine
	Engine        *dispatch.Engine
	Arbitrator    *dispatch.Arbitrator
	Sweeper       *dispatch.Sweeper
	Relay         *messaging.Relay
	// DispatchLog is nil when the decision log is disabled.
	DispatchLog logging.LogStore

	cfg     *config.Config
	sink    coremetrics.MetricsSink
	log     logger.Logger
	closers []func() error
}

// New creates a Service from the configuration. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	return newService(ctx, cfg, clock.WallClock)
}

func newService(ctx context.Context, cfg *config.Config, clk clock.Clock) (svc *Service, err error) {
	log := logger.New("service")
	s := &Service{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	if s.Store, err = s.openStore(ctx); err != nil {
		return nil, err
	}

	s.Bus = eventbus.NewTyped[events.Event](busBuffer)
	s.Notifications = notification.NewCenter(s.Store, cfg.Notifications, clk, logger.New("notification"))
	s.Calculator = commission.NewCalculator(cfg.Commission.RateProvider())
	if s.Bookings, err = booking.NewMachine(s.Store, s.Store, s.Calculator, s.Notifications, s.Bus, clk, logger.New("booking")); err != nil {
		return nil, err
	}
	if s.Engine, err = dispatch.NewEngine(s.Store, s.Notifications, s.Bus, cfg.Dispatch, clk, logger.New("dispatch")); err != nil {
		return nil, err
	}
	if s.Arbitrator, err = dispatch.NewArbitrator(s.Store, s.Engine, s.Notifications, s.Bus, clk, logger.New("arbitrator")); err != nil {
		return nil, err
	}
	s.Sweeper = dispatch.NewSweeper(s.Arbitrator, cfg.Dispatch.SweepInterval(), clk, logger.New("sweeper"))

	messenger, err := s.messenger()
	if err != nil {
		return nil, err
	}
	s.Relay = messaging.NewRelay(messenger, logger.New("relay"))

	if s.DispatchLog, err = logging.Open(cfg.DispatchLog); err != nil {
		return nil, fmt.Errorf("dispatch log: %w", err)
	}
	if s.DispatchLog != nil {
		s.closers = append(s.closers, s.DispatchLog.Close)
	}

	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	return s, nil
}

func (s *Service) openStore(ctx context.Context) (store.Gateway, error) {
	if s.cfg.Store.Driver == "memory" || s.cfg.Store.Driver == "" {
		s.log.Warnf("using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	st, err := sqlstore.Open(ctx, s.cfg.Store, logger.New("sqlstore"))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s.closers = append(s.closers, st.Close)
	return st, nil
}

// messenger routes technician alerts to MQTT and admin email and SMS to
// RabbitMQ when enabled. Everything else is logged.
func (s *Service) messenger() (messaging.Messenger, error) {
	router := messaging.NewRouter(messaging.NewLogMessenger(logger.New("messenger")))
	mc := s.cfg.Messaging
	if mc.MQTTEnabled {
		cli, err := mqtt.NewPahoClient(mc.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.closers = append(s.closers, func() error { cli.Disconnect(); return nil })
		router.Route(messaging.ChannelTechnicianAlert, cli)
	}
	if mc.AMQPEnabled {
		pub, err := amqp.NewPublisher(mc.AMQP, logger.New("amqp"))
		if err != nil {
			return nil, fmt.Errorf("amqp publisher: %w", err)
		}
		s.closers = append(s.closers, pub.Close)
		router.Route(messaging.ChannelAdminEmail, pub).Route(messaging.ChannelAdminSMS, pub)
	}
	return router, nil
}

// Router builds the HTTP handler.
func (s *Service) Router() *gin.Engine {
	deps := api.Deps{
		Dispatcher:          s.Engine,
		Offers:              s.Arbitrator,
		Bookings:            s.Bookings,
		Splitter:            s.Calculator,
		Notifications:       s.Notifications,
		BroadcastCandidates: s.cfg.Dispatch.BroadcastCandidates,
	}
	if s.DispatchLog != nil {
		deps.DispatchLog = s.DispatchLog
	}
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		deps.Ping = p.Ping
	}
	return api.NewRouter(deps, api.Options{
		AllowedOrigins: s.cfg.HTTP.AllowedOrigins,
		Logger:         logger.New("http"),
	})
}

// Run starts the background workers and the HTTP server and blocks until
// the context is canceled or the server fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	relayDone := s.Relay.Start(ctx, s.Bus)
	collectorDone := metrics.StartEventCollector(ctx, s.Bus, s.sink, logger.New("metrics"))
	recorderDone := logging.StartRecorder(ctx, s.Bus, s.DispatchLog, logger.New("dispatch_log"))
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		s.Sweeper.Run(ctx)
	}()

	gin.SetMode(s.cfg.HTTP.Mode)
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.HTTP.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http shutdown: %v", err)
	}
	s.Bus.Close()
	<-relayDone
	<-collectorDone
	<-recorderDone
	<-sweeperDone
	sent, failed := s.Relay.Stats()
	s.log.Infof("stopped; relayed %d messages, %d failed, %d events dropped", sent, failed, s.Bus.Dropped())
	return runErr
}

// Once runs fn with the relay, metrics collector and decision log attached, then closes
// the bus and waits until the events fn produced were delivered. It is
// meant for one-shot commands; the service cannot Run afterwards.
func (s *Service) Once(ctx context.Context, fn func(ctx context.Context) error) error {
	relayDone := s.Relay.Start(ctx, s.Bus)
	collectorDone := metrics.StartEventCollector(ctx, s.Bus, s.sink, logger.New("metrics"))
	recorderDone := logging.StartRecorder(ctx, s.Bus, s.DispatchLog, logger.New("dispatch_log"))
	err := fn(ctx)
	s.Bus.Close()
	<-relayDone
	<-collectorDone
	<-recorderDone
	return err
}

// Close releases connections held by the service.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
