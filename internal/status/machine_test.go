package status

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/sonar-client/internal/contact"
)

// testLoc is a fixed non-UTC zone so local-calendar arithmetic is exercised
// without depending on the host's timezone database.
var testLoc = time.FixedZone("TEST", 1*60*60)

func date(month time.Month, day, hour int) time.Time {
	return time.Date(2020, month, day, hour, 0, 0, 0, testLoc)
}

type machineFixture struct {
	machine   *Machine
	store     *memPersister
	scheduler *fakeScheduler
	publisher *fakePublisher
	uploader  *fakeUploader
}

func newMachineFixture(t *testing.T, initial State) *machineFixture {
	t.Helper()
	f := &machineFixture{
		store:     &memPersister{state: initial},
		scheduler: &fakeScheduler{},
		publisher: &fakePublisher{},
		uploader:  &fakeUploader{},
	}
	f.machine = NewMachine(Collaborators{
		Store:     f.store,
		Contacts:  staticLog{{PeerID: "peer-1", Timestamp: date(4, 1, 6), RSSI: -50}},
		Uploader:  f.uploader,
		Publisher: f.publisher,
		Scheduler: f.scheduler,
	}, MachineOptions{Location: testLoc})
	return f
}

func TestDefaultIsOk(t *testing.T) {
	f := newMachineFixture(t, nil)
	assert.Equal(t, KindOk, f.machine.State().Kind())
}

func TestLoadsPersistedState(t *testing.T) {
	exposed := Exposed{ExposureDate: date(4, 1, 6)}
	f := newMachineFixture(t, exposed)
	assert.True(t, Equal(exposed, f.machine.State()))
}

func TestSelfDiagnoseFromAnyState(t *testing.T) {
	start := date(4, 1, 6)
	starts := []State{
		Ok{},
		Unexposed{},
		Exposed{ExposureDate: date(3, 30, 9)},
		Checkin{Symptoms: NewSymptoms(Temperature), CheckinDate: date(3, 31, 7)},
		Symptomatic{Symptoms: NewSymptoms(Temperature), StartDate: date(3, 20, 9)},
	}
	for _, initial := range starts {
		t.Run(string(initial.Kind()), func(t *testing.T) {
			f := newMachineFixture(t, initial)

			err := f.machine.SelfDiagnose(NewSymptoms(Cough), start)
			require.NoError(t, err)
			f.machine.Wait()

			want := Symptomatic{Symptoms: NewSymptoms(Cough), StartDate: start}
			assert.True(t, Equal(want, f.machine.State()), "state = %#v", f.machine.State())
			assert.True(t, Equal(want, f.store.state), "persisted = %#v", f.store.state)
			assert.Equal(t, []string{ChangedTopic}, f.publisher.topics)
			assert.Equal(t, 1, f.uploader.calls())

			require.Len(t, f.scheduler.requests, 1)
			assert.Equal(t, DiagnosisNotificationID, f.scheduler.requests[0].identifier)
			assert.True(t, f.scheduler.requests[0].fireDate.Equal(date(4, 8, 7)))
		})
	}
}

func TestSelfDiagnoseRequiresSymptoms(t *testing.T) {
	f := newMachineFixture(t, Ok{})

	err := f.machine.SelfDiagnose(nil, date(4, 1, 6))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, KindOk, f.machine.State().Kind())
	assert.Zero(t, f.store.writes)
	assert.Empty(t, f.scheduler.requests)
	assert.Empty(t, f.publisher.topics)
}

func TestUploadFailureDoesNotAffectState(t *testing.T) {
	f := newMachineFixture(t, Ok{})
	f.uploader.fail = true

	require.NoError(t, f.machine.SelfDiagnose(NewSymptoms(Temperature), date(4, 1, 6)))
	f.machine.Wait()

	assert.Equal(t, KindSymptomatic, f.machine.State().Kind())
	assert.Equal(t, 1, f.uploader.calls())
}

func TestPersistFailureStillTransitions(t *testing.T) {
	f := newMachineFixture(t, Ok{})
	f.store.err = errors.New("disk full")

	f.machine.Exposed(date(4, 1, 6))

	assert.Equal(t, KindExposed, f.machine.State().Kind())
	assert.Equal(t, 1, f.store.writes)
	assert.Len(t, f.publisher.topics, 1)
}

func TestExposedFromOkAndUnexposed(t *testing.T) {
	for _, initial := range []State{Ok{}, Unexposed{}} {
		t.Run(string(initial.Kind()), func(t *testing.T) {
			f := newMachineFixture(t, initial)
			at := date(4, 1, 6)

			f.machine.Exposed(at)

			assert.True(t, Equal(Exposed{ExposureDate: at}, f.machine.State()))
			assert.Equal(t, []string{ChangedTopic}, f.publisher.topics)
			require.Len(t, f.scheduler.requests, 1)
			assert.Equal(t, ExposureNotificationID, f.scheduler.requests[0].identifier)
			assert.Equal(t, exposureTitle, f.scheduler.requests[0].title)
			assert.Zero(t, f.uploader.calls())
		})
	}
}

func TestExposedIgnoredWhenSymptomaticOrCheckingIn(t *testing.T) {
	starts := []State{
		Symptomatic{Symptoms: NewSymptoms(Cough), StartDate: date(4, 1, 0)},
		Checkin{Symptoms: NewSymptoms(Temperature), CheckinDate: date(4, 1, 0)},
		Exposed{ExposureDate: date(3, 28, 10)},
	}
	for _, initial := range starts {
		t.Run(string(initial.Kind()), func(t *testing.T) {
			f := newMachineFixture(t, initial)

			f.machine.Exposed(date(4, 2, 0))

			assert.True(t, Equal(initial, f.machine.State()))
			assert.Zero(t, f.store.writes)
			assert.Empty(t, f.scheduler.requests)
			assert.Empty(t, f.publisher.topics)
		})
	}
}

func TestTickFromSymptomaticToCheckin(t *testing.T) {
	symptomatic := Symptomatic{Symptoms: NewSymptoms(Cough), StartDate: date(4, 1, 6)}
	f := newMachineFixture(t, symptomatic)
	expiry := date(4, 8, 7)
	require.True(t, symptomatic.ExpiryDate(testLoc).Equal(expiry))

	f.machine.Tick(date(4, 8, 6))
	assert.Equal(t, KindSymptomatic, f.machine.State().Kind())
	assert.Zero(t, f.store.writes)

	f.machine.Tick(date(4, 8, 8))
	checkin, ok := f.machine.State().(Checkin)
	require.True(t, ok, "state = %#v", f.machine.State())
	assert.True(t, checkin.CheckinDate.Equal(expiry), "checkin date pinned to expiry, got %v", checkin.CheckinDate)
	assert.True(t, checkin.Symptoms.Equal(NewSymptoms(Cough)))

	// The isolation-end notification was scheduled at onset.
	assert.Empty(t, f.scheduler.requests)
	assert.Equal(t, []string{ChangedTopic}, f.publisher.topics)
}

func TestTickIsIdempotent(t *testing.T) {
	f := newMachineFixture(t, Symptomatic{Symptoms: NewSymptoms(Cough), StartDate: date(4, 1, 6)})

	for i := 0; i < 3; i++ {
		f.machine.Tick(date(4, 9, 12))
	}
	assert.Equal(t, KindCheckin, f.machine.State().Kind())
	assert.Equal(t, 1, f.store.writes)
	assert.Len(t, f.publisher.topics, 1)
}

func TestTickWhenExposedBeforeSeven(t *testing.T) {
	f := newMachineFixture(t, Exposed{ExposureDate: date(4, 1, 6)})
	expiry := date(4, 14, 7)

	f.machine.Tick(expiry.Add(-time.Hour))
	assert.Equal(t, KindExposed, f.machine.State().Kind())

	f.machine.Tick(expiry.AddDate(0, 0, 1))
	assert.Equal(t, KindOk, f.machine.State().Kind())
	assert.Empty(t, f.scheduler.requests)
}

func TestTickWhenExposedAfterSeven(t *testing.T) {
	f := newMachineFixture(t, Exposed{ExposureDate: date(4, 1, 8)})
	expiry := date(4, 15, 7)

	f.machine.Tick(expiry.Add(-time.Hour))
	assert.Equal(t, KindExposed, f.machine.State().Kind())

	f.machine.Tick(expiry)
	assert.Equal(t, KindOk, f.machine.State().Kind())
}

func TestTickLeavesOtherStatesAlone(t *testing.T) {
	for _, initial := range []State{Ok{}, Unexposed{}, Checkin{Symptoms: NewSymptoms(Temperature), CheckinDate: date(4, 1, 7)}} {
		f := newMachineFixture(t, initial)
		f.machine.Tick(date(6, 1, 12))
		assert.True(t, Equal(initial, f.machine.State()))
		assert.Zero(t, f.store.writes)
	}
}

func TestCheckinOnlyCough(t *testing.T) {
	checkinAt := date(4, 1, 7)
	f := newMachineFixture(t, Checkin{Symptoms: NewSymptoms(Cough), CheckinDate: checkinAt})

	f.machine.Checkin(NewSymptoms(Cough), checkinAt.Add(time.Hour))

	assert.Equal(t, KindOk, f.machine.State().Kind())
	assert.Empty(t, f.scheduler.requests)
	assert.Equal(t, []string{ChangedTopic}, f.publisher.topics)
}

func TestCheckinNoSymptoms(t *testing.T) {
	f := newMachineFixture(t, Checkin{Symptoms: NewSymptoms(Temperature), CheckinDate: date(4, 1, 7)})
	f.machine.Checkin(nil, date(4, 1, 8))
	assert.Equal(t, KindOk, f.machine.State().Kind())
}

func TestCheckinWithTemperature(t *testing.T) {
	tests := []struct {
		name     string
		symptoms Symptoms
	}{
		{"temperature", NewSymptoms(Temperature)},
		{"cough and temperature", NewSymptoms(Cough, Temperature)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkinAt := date(4, 1, 7)
			f := newMachineFixture(t, Checkin{Symptoms: NewSymptoms(Cough), CheckinDate: checkinAt})

			f.machine.Checkin(tt.symptoms, checkinAt.Add(time.Hour))

			want := Checkin{Symptoms: tt.symptoms, CheckinDate: date(4, 2, 7)}
			assert.True(t, Equal(want, f.machine.State()), "state = %#v", f.machine.State())
			require.Len(t, f.scheduler.requests, 1)
			assert.Equal(t, DiagnosisNotificationID, f.scheduler.requests[0].identifier)
			assert.True(t, f.scheduler.requests[0].fireDate.Equal(date(4, 2, 7)))
		})
	}
}

func TestCheckinWithTemperatureAfterMultipleDays(t *testing.T) {
	checkinAt := date(4, 1, 7)
	f := newMachineFixture(t, Checkin{Symptoms: NewSymptoms(Cough), CheckinDate: checkinAt})

	f.machine.Checkin(NewSymptoms(Temperature), checkinAt.AddDate(0, 0, 3))

	want := Checkin{Symptoms: NewSymptoms(Temperature), CheckinDate: date(4, 5, 7)}
	assert.True(t, Equal(want, f.machine.State()), "state = %#v", f.machine.State())
	require.Len(t, f.scheduler.requests, 1)
}

func TestCheckinIgnoredOutsideCheckin(t *testing.T) {
	for _, initial := range []State{Ok{}, Exposed{ExposureDate: date(4, 1, 6)}, Symptomatic{Symptoms: NewSymptoms(Cough), StartDate: date(4, 1, 6)}} {
		f := newMachineFixture(t, initial)
		f.machine.Checkin(NewSymptoms(Temperature), date(4, 2, 8))
		assert.True(t, Equal(initial, f.machine.State()))
		assert.Zero(t, f.store.writes)
		assert.Empty(t, f.scheduler.requests)
	}
}

func TestReceivedPayloadRejectsGarbage(t *testing.T) {
	payloads := []string{
		``,
		`not json`,
		`{"result":"MAYBE","testTimestamp":"2020-04-01T06:00:00Z"}`,
		`{"result":"POSITIVE"}`,
		`{"result":"POSITIVE","testTimestamp":"yesterday"}`,
		`{"testTimestamp":"2020-04-01T06:00:00Z"}`,
	}
	for _, p := range payloads {
		f := newMachineFixture(t, Exposed{ExposureDate: date(4, 1, 6)})

		err := f.machine.ReceivedPayload([]byte(p))
		assert.ErrorIs(t, err, ErrDecoding, "payload %q", p)
		assert.Equal(t, KindExposed, f.machine.State().Kind())
		assert.Zero(t, f.store.writes)
		assert.Empty(t, f.scheduler.requests)
		assert.Empty(t, f.publisher.topics)
	}
}

func TestReceivedPositiveBecomesSymptomatic(t *testing.T) {
	f := newMachineFixture(t, Checkin{Symptoms: NewSymptoms(Temperature), CheckinDate: date(4, 8, 7)})

	err := f.machine.ReceivedPayload([]byte(`{"result":"POSITIVE","testTimestamp":"2020-04-09T10:00:00Z"}`))
	require.NoError(t, err)
	f.machine.Wait()

	s, ok := f.machine.State().(Symptomatic)
	require.True(t, ok, "state = %#v", f.machine.State())
	assert.True(t, s.Symptoms.Equal(NewSymptoms(Temperature)))
	assert.True(t, s.StartDate.Equal(time.Date(2020, 4, 9, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, f.uploader.calls())
	require.Len(t, f.scheduler.requests, 1)
	assert.Equal(t, DiagnosisNotificationID, f.scheduler.requests[0].identifier)
}

func TestReceivedPositiveWhenSymptomaticIsNoop(t *testing.T) {
	initial := Symptomatic{Symptoms: NewSymptoms(Cough), StartDate: date(4, 1, 6)}
	f := newMachineFixture(t, initial)

	f.machine.Received(TestResult{Result: ResultPositive, TestTimestamp: date(4, 3, 9)})

	assert.True(t, Equal(initial, f.machine.State()))
	assert.Zero(t, f.store.writes)
}

func TestReceivedNegativeClears(t *testing.T) {
	f := newMachineFixture(t, Exposed{ExposureDate: date(4, 1, 6)})

	f.machine.Received(TestResult{Result: ResultNegative, TestTimestamp: date(4, 3, 9)})

	assert.Equal(t, KindOk, f.machine.State().Kind())
	assert.Empty(t, f.scheduler.requests)
	assert.Zero(t, f.uploader.calls())
}

func TestReceivedUnclearIsNoop(t *testing.T) {
	f := newMachineFixture(t, Exposed{ExposureDate: date(4, 1, 6)})

	f.machine.Received(TestResult{Result: ResultUnclear, TestTimestamp: date(4, 3, 9)})
	f.machine.Received(TestResult{Result: ResultVoid, TestTimestamp: date(4, 3, 9)})

	assert.Equal(t, KindExposed, f.machine.State().Kind())
	assert.Zero(t, f.store.writes)
}

func TestReceivedUsesCustomPolicy(t *testing.T) {
	store := &memPersister{state: Exposed{ExposureDate: date(4, 1, 6)}}
	m := NewMachine(Collaborators{Store: store}, MachineOptions{
		Location: testLoc,
		Policy: func(_ State, r TestResult) (State, bool) {
			if r.Result == ResultNegative {
				return Unexposed{}, true
			}
			return nil, false
		},
	})

	m.Received(TestResult{Result: ResultNegative, TestTimestamp: date(4, 3, 9)})
	assert.Equal(t, KindUnexposed, m.State().Kind())
	assert.Equal(t, KindUnexposed, store.state.Kind())
}

func TestNilCollaboratorsAreSkipped(t *testing.T) {
	m := NewMachine(Collaborators{Store: &memPersister{}}, MachineOptions{Location: testLoc})

	require.NoError(t, m.SelfDiagnose(NewSymptoms(Cough), date(4, 1, 6)))
	m.Wait()
	assert.Equal(t, KindSymptomatic, m.State().Kind())
}

func TestUploadSendsContactLog(t *testing.T) {
	f := newMachineFixture(t, Ok{})
	require.NoError(t, f.machine.SelfDiagnose(NewSymptoms(Cough), date(4, 1, 6)))
	f.machine.Wait()

	require.Equal(t, 1, f.uploader.calls())
	assert.Equal(t, []contact.Event{{PeerID: "peer-1", Timestamp: date(4, 1, 6), RSSI: -50}}, f.uploader.batches[0])
}

func TestNewMachinePanicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() { NewMachine(Collaborators{}, MachineOptions{}) })
}
