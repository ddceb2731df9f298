package status

import "time"

const (
	// checkinHour is the local hour at which expiries and check-ins fall.
	checkinHour = 7

	symptomaticDays = 7
	exposedDays     = 13
)

// ExpiryDate is the start of the start date's day plus seven days, moved
// forward to the next 07:00 in loc. A nil loc means time.Local.
func (s Symptomatic) ExpiryDate(loc *time.Location) time.Time {
	t := s.StartDate.In(location(loc))
	base := time.Date(t.Year(), t.Month(), t.Day()+symptomaticDays, 0, 0, 0, 0, t.Location())
	return nextCheckinTime(base)
}

// ExpiryDate is the exposure date plus thirteen days, moved forward to the
// next 07:00 in loc. A nil loc means time.Local.
func (e Exposed) ExpiryDate(loc *time.Location) time.Time {
	t := e.ExposureDate.In(location(loc))
	base := time.Date(t.Year(), t.Month(), t.Day()+exposedDays, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	return nextCheckinTime(base)
}

// ExpiryDate returns the expiry of s, if it has one.
func ExpiryDate(s State, loc *time.Location) (time.Time, bool) {
	switch v := s.(type) {
	case Symptomatic:
		return v.ExpiryDate(loc), true
	case Exposed:
		return v.ExpiryDate(loc), true
	}
	return time.Time{}, false
}

// nextCheckinTime returns the first 07:00 strictly after t in t's
// location. An instant already at 07:00 moves to the following day.
func nextCheckinTime(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), checkinHour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, checkinHour, 0, 0, 0, t.Location())
	}
	return next
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
