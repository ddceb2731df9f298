// Package status holds the user's health status and the time-driven state
// machine that advances it.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	// ErrInvalidInput is returned for a self-diagnosis without symptoms.
	ErrInvalidInput = errors.New("status: invalid input")
	// ErrDecoding is returned for payloads that cannot be understood.
	ErrDecoding = errors.New("status: decoding error")
)

// Symptom is a self-reported symptom kind.
type Symptom string

const (
	Temperature Symptom = "temperature"
	Cough       Symptom = "cough"
)

// Symptoms is a set of symptoms kept sorted and free of duplicates.
type Symptoms []Symptom

// NewSymptoms builds a normalized set.
func NewSymptoms(s ...Symptom) Symptoms {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

// ParseSymptoms parses a comma-separated list such as "cough,temperature".
func ParseSymptoms(list string) (Symptoms, error) {
	var out []Symptom
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		s := Symptom(part)
		if s != Temperature && s != Cough {
			return nil, fmt.Errorf("%w: unknown symptom %q", ErrInvalidInput, part)
		}
		out = append(out, s)
	}
	return NewSymptoms(out...), nil
}

// Contains reports whether s includes x.
func (s Symptoms) Contains(x Symptom) bool {
	return slices.Contains(s, x)
}

// Equal compares two sets.
func (s Symptoms) Equal(o Symptoms) bool {
	return slices.Equal(NewSymptoms(s...), NewSymptoms(o...))
}

func (s *Symptoms) UnmarshalJSON(data []byte) error {
	var raw []Symptom
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewSymptoms(raw...)
	return nil
}

// Kind is the discriminant of a State.
type Kind string

const (
	KindOk          Kind = "ok"
	KindSymptomatic Kind = "symptomatic"
	KindCheckin     Kind = "checkin"
	KindExposed     Kind = "exposed"
	KindUnexposed   Kind = "unexposed"
)

// State is one of Ok, Symptomatic, Checkin, Exposed or Unexposed.
type State interface {
	Kind() Kind
	isState()
}

// Ok is the default resting state.
type Ok struct{}

// Symptomatic follows a self-diagnosis.
type Symptomatic struct {
	Symptoms  Symptoms  `json:"symptoms"`
	StartDate time.Time `json:"startDate"`
}

// Checkin is the daily symptom re-confirmation after isolation ends.
type Checkin struct {
	Symptoms    Symptoms  `json:"symptoms"`
	CheckinDate time.Time `json:"checkinDate"`
}

// Exposed follows a reported contact with a symptomatic peer.
type Exposed struct {
	ExposureDate time.Time `json:"exposureDate"`
}

// Unexposed is an explicit all-clear.
type Unexposed struct{}

func (Ok) Kind() Kind          { return KindOk }
func (Symptomatic) Kind() Kind { return KindSymptomatic }
func (Checkin) Kind() Kind     { return KindCheckin }
func (Exposed) Kind() Kind     { return KindExposed }
func (Unexposed) Kind() Kind   { return KindUnexposed }

func (Ok) isState()          {}
func (Symptomatic) isState() {}
func (Checkin) isState()     {}
func (Exposed) isState()     {}
func (Unexposed) isState()   {}

// Equal compares two states, treating dates as instants.
func Equal(a, b State) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Symptomatic:
		y := b.(Symptomatic)
		return x.Symptoms.Equal(y.Symptoms) && x.StartDate.Equal(y.StartDate)
	case Checkin:
		y := b.(Checkin)
		return x.Symptoms.Equal(y.Symptoms) && x.CheckinDate.Equal(y.CheckinDate)
	case Exposed:
		return x.ExposureDate.Equal(b.(Exposed).ExposureDate)
	default:
		return true
	}
}
