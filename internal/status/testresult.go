package status

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Result is the outcome carried by a test-result payload.
type Result string

const (
	ResultPositive Result = "POSITIVE"
	ResultNegative Result = "NEGATIVE"
	ResultUnclear  Result = "UNCLEAR"
	ResultVoid     Result = "VOID"
)

// TestResult is a decoded test-result payload.
type TestResult struct {
	Result             Result    `json:"result"`
	TestTimestamp      time.Time `json:"testTimestamp"`
	Type               string    `json:"type,omitempty"`
	AcknowledgementURL string    `json:"acknowledgementUrl,omitempty"`
}

// DecodeTestResult parses a JSON test-result payload. Anything it does not
// recognise is an ErrDecoding.
func DecodeTestResult(data []byte) (TestResult, error) {
	var raw struct {
		Result             *string `json:"result"`
		TestTimestamp      *string `json:"testTimestamp"`
		Type               string  `json:"type"`
		AcknowledgementURL string  `json:"acknowledgementUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return TestResult{}, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	if raw.Result == nil {
		return TestResult{}, fmt.Errorf("%w: result missing", ErrDecoding)
	}
	if raw.TestTimestamp == nil {
		return TestResult{}, fmt.Errorf("%w: testTimestamp missing", ErrDecoding)
	}

	result := Result(strings.ToUpper(*raw.Result))
	switch result {
	case ResultPositive, ResultNegative, ResultUnclear, ResultVoid:
	default:
		return TestResult{}, fmt.Errorf("%w: unknown result %q", ErrDecoding, *raw.Result)
	}

	ts, err := time.Parse(time.RFC3339, *raw.TestTimestamp)
	if err != nil {
		return TestResult{}, fmt.Errorf("%w: testTimestamp: %v", ErrDecoding, err)
	}

	return TestResult{
		Result:             result,
		TestTimestamp:      ts,
		Type:               raw.Type,
		AcknowledgementURL: raw.AcknowledgementURL,
	}, nil
}

// ResultPolicy maps a test result onto the next state. ok is false when
// the result should not change anything.
type ResultPolicy func(current State, result TestResult) (next State, ok bool)

// DefaultResultPolicy: a positive result makes the user symptomatic from
// the test date, keeping any symptoms already reported; a negative result
// clears to Ok; unclear and void results change nothing.
func DefaultResultPolicy(current State, result TestResult) (State, bool) {
	switch result.Result {
	case ResultPositive:
		switch s := current.(type) {
		case Symptomatic:
			return nil, false
		case Checkin:
			return Symptomatic{Symptoms: s.Symptoms, StartDate: result.TestTimestamp}, true
		default:
			return Symptomatic{Symptoms: Symptoms{}, StartDate: result.TestTimestamp}, true
		}
	case ResultNegative:
		if _, isOk := current.(Ok); isOk {
			return nil, false
		}
		return Ok{}, true
	default:
		return nil, false
	}
}
