package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/model"
)

// MemoryStore is an in-process Gateway. Its mutex only makes each
// conditional update atomic, the same role a row lock plays in SQL.
type MemoryStore struct {
	mu            sync.RWMutex
	bookings      map[string]model.Booking
	technicians   map[string]model.Technician
	offers        map[string]model.JobOffer
	notifications map[string]model.Notification
	retries       map[string]model.DispatchRetry
}

var _ Gateway = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:      map[string]model.Booking{},
		technicians:   map[string]model.Technician{},
		offers:        map[string]model.JobOffer{},
		notifications: map[string]model.Notification{},
		retries:       map[string]model.DispatchRetry{},
	}
}

func (s *MemoryStore) CreateBooking(_ context.Context, b model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.ID]; ok {
		return ErrConflict
	}
	s.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, apperr.New(apperr.CodeNotFound, "booking %s not found", id)
	}
	return cloneBooking(b), nil
}

func (s *MemoryStore) UpdateBooking(_ context.Context, id string, pre BookingPrecondition, patch BookingPatch) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, apperr.New(apperr.CodeNotFound, "booking %s not found", id)
	}
	if !pre.Holds(b) {
		return model.Booking{}, ErrConflict
	}
	b = cloneBooking(b)
	patch.Apply(&b)
	s.bookings[id] = b
	return cloneBooking(b), nil
}

func (s *MemoryStore) PutTechnician(_ context.Context, t model.Technician) error {
	s.mu.Lock()
	t.Specializations = slices.Clone(t.Specializations)
	s.technicians[t.ID] = t
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetTechnician(_ context.Context, id string) (model.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.technicians[id]
	if !ok {
		return model.Technician{}, apperr.New(apperr.CodeNotFound, "technician %s not found", id)
	}
	t.Specializations = slices.Clone(t.Specializations)
	return t, nil
}

func (s *MemoryStore) QueryTechnicians(_ context.Context, f TechnicianFilter) ([]model.Technician, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Technician, 0, len(s.technicians))
	for _, t := range s.technicians {
		if !f.Matches(t) {
			continue
		}
		t.Specializations = slices.Clone(t.Specializations)
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) CreateOffers(_ context.Context, offers []model.JobOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range offers {
		if _, ok := s.offers[o.ID]; ok {
			return ErrConflict
		}
	}
	for _, o := range offers {
		s.offers[o.ID] = cloneOffer(o)
	}
	return nil
}

func (s *MemoryStore) GetOffer(_ context.Context, id string) (model.JobOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return model.JobOffer{}, apperr.New(apperr.CodeNotFound, "offer %s not found", id)
	}
	return cloneOffer(o), nil
}

func (s *MemoryStore) UpdateOffer(_ context.Context, id string, from []model.OfferState, patch OfferPatch) (model.JobOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return model.JobOffer{}, apperr.New(apperr.CodeNotFound, "offer %s not found", id)
	}
	if !slices.Contains(from, o.State) {
		return model.JobOffer{}, ErrConflict
	}
	o.State = patch.State
	if patch.RespondedAt != nil {
		o.RespondedAt = ptr(*patch.RespondedAt)
	}
	if patch.RejectionReason != nil {
		o.RejectionReason = ptr(*patch.RejectionReason)
	}
	s.offers[id] = o
	return cloneOffer(o), nil
}

func (s *MemoryStore) QueryOffers(_ context.Context, f OfferFilter) ([]model.JobOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.JobOffer
	for _, o := range s.offers {
		if f.Matches(o) {
			res = append(res, cloneOffer(o))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].IssuedAt.Equal(res[j].IssuedAt) {
			return res[i].IssuedAt.Before(res[j].IssuedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *MemoryStore) CreateNotification(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return ErrConflict
	}
	s.notifications[n.ID] = n
	return nil
}

func (s *MemoryStore) GetNotification(_ context.Context, id string) (model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, apperr.New(apperr.CodeNotFound, "notification %s not found", id)
	}
	return n, nil
}

func (s *MemoryStore) UpdateNotification(_ context.Context, id string, patch NotificationPatch) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return model.Notification{}, apperr.New(apperr.CodeNotFound, "notification %s not found", id)
	}
	if patch.IsRead != nil {
		n.IsRead = *patch.IsRead
	}
	if patch.ToggleImportant {
		n.IsImportant = !n.IsImportant
	}
	s.notifications[id] = n
	return n, nil
}

func (s *MemoryStore) QueryNotifications(_ context.Context, f NotificationFilter) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Notification
	for _, n := range s.notifications {
		if f.Matches(n) {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

func (s *MemoryStore) CountNotifications(_ context.Context, f NotificationFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if f.Matches(n) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, scope model.Scope) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for id, n := range s.notifications {
		if n.Scope == scope && !n.IsRead {
			n.IsRead = true
			s.notifications[id] = n
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) BumpRetry(_ context.Context, bookingID string, now time.Time) (model.DispatchRetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.retries[bookingID]
	r.BookingID = bookingID
	r.Rounds++
	r.UpdatedAt = now
	s.retries[bookingID] = r
	return r, nil
}

func (s *MemoryStore) ListRetries(_ context.Context) ([]model.DispatchRetry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.DispatchRetry, 0, len(s.retries))
	for _, r := range s.retries {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].BookingID < res[j].BookingID })
	return res, nil
}

func (s *MemoryStore) DeleteRetry(_ context.Context, bookingID string) error {
	s.mu.Lock()
	delete(s.retries, bookingID)
	s.mu.Unlock()
	return nil
}

func cloneBooking(b model.Booking) model.Booking {
	b.ScheduledAt = clonePtr(b.ScheduledAt)
	b.TechnicianID = clonePtr(b.TechnicianID)
	b.AssignedAt = clonePtr(b.AssignedAt)
	b.TechnicianAcceptedAt = clonePtr(b.TechnicianAcceptedAt)
	b.TechnicianRejectedAt = clonePtr(b.TechnicianRejectedAt)
	b.RejectionReason = clonePtr(b.RejectionReason)
	b.TechnicianEarnings = clonePtr(b.TechnicianEarnings)
	b.PlatformCommission = clonePtr(b.PlatformCommission)
	return b
}

func cloneOffer(o model.JobOffer) model.JobOffer {
	o.RespondedAt = clonePtr(o.RespondedAt)
	o.RejectionReason = clonePtr(o.RejectionReason)
	return o
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	return ptr(*p)
}
