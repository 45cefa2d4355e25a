package events

import (
	"time"

	"github.com/kilianp07/homefix/core/model"
)

// BookingTransitioned is published after a successful status change.
type BookingTransitioned struct {
	BookingID    string
	From         model.BookingStatus
	To           model.BookingStatus
	Actor        string
	TechnicianID string
	Time         time.Time
}

func (BookingTransitioned) Kind() string { return "booking_transitioned" }

// PaymentRecorded is published when the payment status of a booking changes.
type PaymentRecorded struct {
	BookingID string
	Status    model.PaymentStatus
	Actor     string
	Time      time.Time
}

func (PaymentRecorded) Kind() string { return "payment_recorded" }
