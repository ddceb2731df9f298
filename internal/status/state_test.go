package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSymptoms(t *testing.T) {
	got, err := ParseSymptoms("Temperature, cough,,cough")
	require.NoError(t, err)
	assert.Equal(t, NewSymptoms(Cough, Temperature), got)

	got, err = ParseSymptoms("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseSymptoms("cough,sneeze")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStateEqual(t *testing.T) {
	a := Checkin{Symptoms: NewSymptoms(Temperature, Cough), CheckinDate: date(4, 1, 7)}
	b := Checkin{Symptoms: Symptoms{Temperature, Cough}, CheckinDate: date(4, 1, 7).UTC()}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, Checkin{Symptoms: NewSymptoms(Cough), CheckinDate: date(4, 1, 7)}))
	assert.False(t, Equal(Ok{}, Unexposed{}))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(Ok{}, nil))
}
