package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTestResult(t *testing.T) {
	got, err := DecodeTestResult([]byte(`{
		"result": "positive",
		"testTimestamp": "2020-04-09T10:00:00Z",
		"type": "home-kit",
		"acknowledgementUrl": "https://example.invalid/ack/1"
	}`))
	require.NoError(t, err)

	assert.Equal(t, ResultPositive, got.Result)
	assert.True(t, got.TestTimestamp.Equal(time.Date(2020, 4, 9, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "home-kit", got.Type)
	assert.Equal(t, "https://example.invalid/ack/1", got.AcknowledgementURL)
}

func TestDefaultResultPolicy(t *testing.T) {
	testAt := date(4, 9, 10)
	tests := []struct {
		name    string
		current State
		result  Result
		want    State
		changed bool
	}{
		{"positive from ok", Ok{}, ResultPositive, Symptomatic{StartDate: testAt}, true},
		{"positive from exposed", Exposed{ExposureDate: date(4, 1, 6)}, ResultPositive, Symptomatic{StartDate: testAt}, true},
		{"positive keeps checkin symptoms", Checkin{Symptoms: NewSymptoms(Cough), CheckinDate: date(4, 8, 7)}, ResultPositive, Symptomatic{Symptoms: NewSymptoms(Cough), StartDate: testAt}, true},
		{"positive while symptomatic", Symptomatic{Symptoms: NewSymptoms(Cough), StartDate: date(4, 1, 6)}, ResultPositive, nil, false},
		{"negative from exposed", Exposed{ExposureDate: date(4, 1, 6)}, ResultNegative, Ok{}, true},
		{"negative from ok", Ok{}, ResultNegative, nil, false},
		{"unclear", Exposed{ExposureDate: date(4, 1, 6)}, ResultUnclear, nil, false},
		{"void", Checkin{Symptoms: NewSymptoms(Cough), CheckinDate: date(4, 8, 7)}, ResultVoid, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := DefaultResultPolicy(tt.current, TestResult{Result: tt.result, TestTimestamp: testAt})
			assert.Equal(t, tt.changed, changed)
			if tt.changed {
				assert.True(t, Equal(tt.want, got), "got %#v", got)
			}
		})
	}
}
