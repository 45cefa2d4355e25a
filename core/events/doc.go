// Package events defines the booking and dispatch events emitted on the
// event bus.
//
// Available event types:
//   - BookingTransitioned: a booking changed status
//   - PaymentRecorded: a booking's payment status changed
//   - OffersIssued: job offers were created for a booking
//   - OfferResolved: an offer left the pending state
//   - DispatchFailed: no eligible technician was found
package events

// Event is implemented by every event published on the bus.
type Event interface {
	Kind() string
}
