package model

import (
	"strings"
	"time"
)

// HourWindow is a daily opening window in whole hours, To exclusive.
type HourWindow struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// DaySchedule describes a technician's availability on one weekday.
type DaySchedule struct {
	Open  bool        `json:"open"`
	Hours *HourWindow `json:"hours,omitempty"`
}

// WeeklyAvailability is indexed by time.Weekday.
type WeeklyAvailability [7]DaySchedule

// Covers reports whether t falls on an open day and inside its hour window.
func (a WeeklyAvailability) Covers(t time.Time) bool {
	day := a[t.Weekday()]
	if !day.Open {
		return false
	}
	if day.Hours == nil {
		return true
	}
	h := t.Hour()
	return h >= day.Hours.From && h < day.Hours.To
}

// AnyOpen reports whether at least one weekday is open.
func (a WeeklyAvailability) AnyOpen() bool {
	for _, d := range a {
		if d.Open {
			return true
		}
	}
	return false
}

// Technician fulfils bookings. Owned by the profile service; dispatch only
// reads it.
type Technician struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Specializations   []string           `json:"specializations"`
	Status            TechnicianStatus   `json:"status"`
	Availability      WeeklyAvailability `json:"availability"`
	Rating            float64            `json:"rating"`
	CompletedBookings int                `json:"completedBookings"`
}

// Specializes reports whether the technician handles the service type.
func (t Technician) Specializes(serviceType string) bool {
	for _, s := range t.Specializations {
		if strings.EqualFold(s, serviceType) {
			return true
		}
	}
	return false
}
