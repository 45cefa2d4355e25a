package model

import (
	"encoding/json"
	"strings"

	"github.com/kilianp07/homefix/core/apperr"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingAssigned  BookingStatus = "assigned"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

var bookingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingAssigned, BookingCompleted, BookingCancelled}

// PaymentStatus tracks whether the customer paid for a booking.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

var paymentStatuses = []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed}

// TechnicianStatus marks whether a technician may receive offers.
type TechnicianStatus string

const (
	TechnicianActive   TechnicianStatus = "active"
	TechnicianInactive TechnicianStatus = "inactive"
)

var technicianStatuses = []TechnicianStatus{TechnicianActive, TechnicianInactive}

// OfferState is the state of a job offer.
type OfferState string

const (
	OfferPending    OfferState = "pending"
	OfferAccepted   OfferState = "accepted"
	OfferRejected   OfferState = "rejected"
	OfferExpired    OfferState = "expired"
	OfferSuperseded OfferState = "superseded"
)

var offerStates = []OfferState{OfferPending, OfferAccepted, OfferRejected, OfferExpired, OfferSuperseded}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationBooking      NotificationType = "booking"
	NotificationPayment      NotificationType = "payment"
	NotificationCancellation NotificationType = "cancellation"
	NotificationJobOffer     NotificationType = "job_offer"
)

var notificationTypes = []NotificationType{NotificationBooking, NotificationPayment, NotificationCancellation, NotificationJobOffer}

func parseEnum[T ~string](kind, s string, valid []T) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range valid {
		if c == v {
			return c, nil
		}
	}
	var zero T
	return zero, apperr.New(apperr.CodeInvalidArgument, "unknown %s %q", kind, s)
}

func unmarshalEnum[T ~string](b []byte, kind string, valid []T, dst *T) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, err, "%s must be a string", kind)
	}
	v, err := parseEnum(kind, s, valid)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// ParseBookingStatus validates s as a BookingStatus.
func ParseBookingStatus(s string) (BookingStatus, error) {
	return parseEnum("booking status", s, bookingStatuses)
}

func (s BookingStatus) String() string { return string(s) }

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool { return s == BookingCompleted || s == BookingCancelled }

func (s *BookingStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, "booking status", bookingStatuses, s)
}

// ParsePaymentStatus validates s as a PaymentStatus.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	return parseEnum("payment status", s, paymentStatuses)
}

func (s PaymentStatus) String() string { return string(s) }

func (s *PaymentStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, "payment status", paymentStatuses, s)
}

// ParseTechnicianStatus validates s as a TechnicianStatus.
func ParseTechnicianStatus(s string) (TechnicianStatus, error) {
	return parseEnum("technician status", s, technicianStatuses)
}

func (s TechnicianStatus) String() string { return string(s) }

func (s *TechnicianStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, "technician status", technicianStatuses, s)
}

// ParseOfferState validates s as an OfferState.
func ParseOfferState(s string) (OfferState, error) {
	return parseEnum("offer state", s, offerStates)
}

func (s OfferState) String() string { return string(s) }

func (s *OfferState) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, "offer state", offerStates, s)
}

// ParseNotificationType validates s as a NotificationType.
func ParseNotificationType(s string) (NotificationType, error) {
	return parseEnum("notification type", s, notificationTypes)
}

func (t NotificationType) String() string { return string(t) }

func (t *NotificationType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, "notification type", notificationTypes, t)
}
