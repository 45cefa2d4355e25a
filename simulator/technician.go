package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/messaging"
	"github.com/kilianp07/homefix/core/model"
)

// Responder turns job alerts into offer answers.
type Responder struct {
	api      OfferAPI
	strategy ResponseStrategy
	delay    time.Duration
	allowed  map[string]bool
	log      logger.Logger

	wg sync.WaitGroup
}

// NewResponder creates a Responder. An empty technicians list answers for
// every technician.
func NewResponder(api OfferAPI, strategy ResponseStrategy, delay time.Duration, technicians []string, log logger.Logger) *Responder {
	allowed := make(map[string]bool, len(technicians))
	for _, id := range technicians {
		allowed[id] = true
	}
	return &Responder{api: api, strategy: strategy, delay: delay, allowed: allowed, log: logger.OrNop(log)}
}

// technicianFromTopic extracts <id> from <prefix>/technicians/<id>/alerts.
func technicianFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "alerts" || parts[len(parts)-3] != "technicians" {
		return ""
	}
	return parts[len(parts)-2]
}

// Handle processes one alert message. Only job offers are answered; the
// answer is sent asynchronously after the configured delay.
func (r *Responder) Handle(ctx context.Context, topic string, body []byte) {
	techID := technicianFromTopic(topic)
	if techID == "" || (len(r.allowed) > 0 && !r.allowed[techID]) {
		return
	}
	var p messaging.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		r.log.Warnf("bad alert on %s: %v", topic, err)
		return
	}
	if p.Type != model.NotificationJobOffer {
		r.log.Debugf("%s: %s", techID, p.Message)
		return
	}
	decision := r.strategy.Decide(techID, p.ReferenceID)
	r.log.Infof("%s decides to %s offer %s", techID, decision, p.ReferenceID)
	if decision == Ignore {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.delay > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				return
			}
		}
		var err error
		if decision == Accept {
			err = r.api.Accept(ctx, p.ReferenceID, techID)
		} else {
			err = r.api.Reject(ctx, p.ReferenceID, techID, "simulated rejection")
		}
		if err != nil {
			r.log.Warnf("%s %s offer %s: %v", techID, decision, p.ReferenceID, err)
		}
	}()
}

// Wait blocks until every pending answer was sent.
func (r *Responder) Wait() { r.wg.Wait() }
