package status

import (
	"encoding/json"
	"fmt"
)

// envelope is the stored shape: a "type" discriminant followed by the
// variant's payload under a key named after it.
type envelope struct {
	Type        Kind         `json:"type"`
	Symptomatic *Symptomatic `json:"symptomatic,omitempty"`
	Checkin     *Checkin     `json:"checkin,omitempty"`
	Exposed     *Exposed     `json:"exposed,omitempty"`
}

// Marshal encodes s for storage.
func Marshal(s State) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("status: marshal nil state")
	}
	env := envelope{Type: s.Kind()}
	switch v := s.(type) {
	case Symptomatic:
		env.Symptomatic = &v
	case Checkin:
		env.Checkin = &v
	case Exposed:
		env.Exposed = &v
	}
	return json.Marshal(env)
}

// Unmarshal decodes a stored state. Unknown discriminants and missing
// payloads are reported as ErrDecoding.
func Unmarshal(data []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}

	switch env.Type {
	case KindOk:
		return Ok{}, nil
	case KindUnexposed:
		return Unexposed{}, nil
	case KindSymptomatic:
		if env.Symptomatic == nil {
			return nil, fmt.Errorf("%w: symptomatic payload missing", ErrDecoding)
		}
		return *env.Symptomatic, nil
	case KindCheckin:
		if env.Checkin == nil {
			return nil, fmt.Errorf("%w: checkin payload missing", ErrDecoding)
		}
		return *env.Checkin, nil
	case KindExposed:
		if env.Exposed == nil {
			return nil, fmt.Errorf("%w: exposed payload missing", ErrDecoding)
		}
		return *env.Exposed, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized type %q", ErrDecoding, env.Type)
	}
}
