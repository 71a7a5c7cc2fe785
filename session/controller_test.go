package session

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/dotside-studios/davi-nfc-sheet/nfc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	outcomes []Outcome
	display  string
	ok       bool
}

func (r *recordingSink) sink(o Outcome) (string, bool) {
	r.outcomes = append(r.outcomes, o)
	return r.display, r.ok
}

func newRecordingSink(display string) *recordingSink {
	return &recordingSink{display: display, ok: true}
}

func textMessages(texts ...string) []*nfc.NDEFMessage {
	msgs := make([]*nfc.NDEFMessage, 0, len(texts))
	for _, t := range texts {
		msgs = append(msgs, nfc.NewTextMessage(t, "en"))
	}
	return msgs
}

func TestStartCreatesSessionWithAlert(t *testing.T) {
	drv := NewMockDriver()
	ctrl := NewController(drv)

	ctrl.Start()

	require.Equal(t, 1, drv.SessionCount())
	h := drv.Last()
	assert.True(t, h.Begun)
	assert.Equal(t, DefaultAlertMessage, h.AlertMessage())
	assert.Equal(t, StateActive, ctrl.State())
	assert.Same(t, h, ctrl.Handle())
}

func TestStartUsesConfiguredAlert(t *testing.T) {
	drv := NewMockDriver()
	ctrl := NewController(drv, WithAlertMessage("Tap your badge"))

	ctrl.Start()

	assert.Equal(t, "Tap your badge", drv.Last().AlertMessage())
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	drv := NewMockDriver()
	ctrl := NewController(drv)

	ctrl.Start()
	first := ctrl.Handle()
	ctrl.Start()
	ctrl.Start()

	assert.Equal(t, 1, drv.SessionCount())
	assert.Same(t, first, ctrl.Handle())
}

func TestUnsupportedDeliversOnceWithoutSession(t *testing.T) {
	drv := NewMockDriver()
	drv.Available = false
	rec := newRecordingSink("Error: Unsupported device")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Start()

	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, KindUnsupported, rec.outcomes[0].Kind)
	assert.ErrorIs(t, rec.outcomes[0].Err, ErrUnsupported)
	assert.Equal(t, 0, drv.SessionCount())
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Nil(t, ctrl.Handle())
}

func TestUnsupportedIsLogged(t *testing.T) {
	var buf bytes.Buffer
	drv := NewMockDriver()
	drv.Available = false
	ctrl := NewController(drv, WithLogger(log.New(&buf, "", 0)))

	ctrl.Start()

	assert.Contains(t, buf.String(), "Unsupported device")
}

func TestDetectedDeliversSuccessAndTearsDown(t *testing.T) {
	drv := NewMockDriver()
	rec := newRecordingSink("Welcome, Ada")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Start()
	h := drv.Last()
	msgs := textMessages("ada")
	h.Detect(msgs)

	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, KindSuccess, rec.outcomes[0].Kind)
	assert.Equal(t, msgs, rec.outcomes[0].Messages)
	assert.Equal(t, "Welcome, Ada", h.AlertMessage())
	assert.True(t, h.Invalidated, "detection must request teardown")
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Nil(t, ctrl.Handle())
}

func TestTeardownEchoAfterDetectedIsIgnored(t *testing.T) {
	drv := NewMockDriver()
	rec := newRecordingSink("ok")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Start()
	h := drv.Last()
	h.Detect(textMessages("x"))
	h.Echo(ErrFirstTagRead)
	h.Echo(ErrTimeout)

	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, KindSuccess, rec.outcomes[0].Kind)
	assert.Equal(t, "ok", h.AlertMessage())
}

func TestInvalidatedDeliversFailure(t *testing.T) {
	drv := NewMockDriver()
	rec := newRecordingSink("Error: Session timeout")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Start()
	h := drv.Last()
	h.Fail(ErrTimeout)

	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, KindFailure, rec.outcomes[0].Kind)
	assert.ErrorIs(t, rec.outcomes[0].Err, ErrTimeout)
	assert.Equal(t, "Error: Session timeout", h.AlertMessage())
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestFallbackMessagesWithoutSink(t *testing.T) {
	drv := NewMockDriver()
	ctrl := NewController(drv)

	ctrl.Start()
	detected := drv.Last()
	detected.Detect(textMessages("x"))
	assert.Equal(t, FallbackDetectedAlert, detected.AlertMessage())

	ctrl.Start()
	failed := drv.Last()
	failed.Fail(errors.New("boom"))
	assert.Equal(t, FallbackFailureAlert, failed.AlertMessage())
}

func TestFallbackWhenSinkDeclines(t *testing.T) {
	drv := NewMockDriver()
	rec := &recordingSink{}
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Start()
	h := drv.Last()
	h.Fail(ErrSystemBusy)

	assert.Len(t, rec.outcomes, 1)
	assert.Equal(t, FallbackFailureAlert, h.AlertMessage())
}

func TestLastSinkRegistrationWins(t *testing.T) {
	drv := NewMockDriver()
	first := newRecordingSink("first")
	second := newRecordingSink("second")
	ctrl := NewController(drv)

	ctrl.SetSink(first.sink)
	ctrl.Start()
	ctrl.SetSink(second.sink)
	drv.Last().Detect(textMessages("x"))

	assert.Empty(t, first.outcomes)
	assert.Len(t, second.outcomes, 1)
}

func TestResolvedSessionNeverRedelivers(t *testing.T) {
	drv := NewMockDriver()
	rec := newRecordingSink("x")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Start()
	h := drv.Last()
	h.Fail(ErrTimeout)

	late := newRecordingSink("late")
	ctrl.SetSink(late.sink)
	h.Echo(ErrTimeout)

	assert.Len(t, rec.outcomes, 1)
	assert.Empty(t, late.outcomes)
}

func TestEverySessionGetsFreshHandle(t *testing.T) {
	drv := NewMockDriver()
	rec := newRecordingSink("x")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		ctrl.Start()
		h := drv.Last()
		require.False(t, seen[h.ID()], "handle %s reused", h.ID())
		seen[h.ID()] = true
		h.Fail(ErrTimeout)
	}

	assert.Len(t, rec.outcomes, 5)
	assert.Equal(t, 5, drv.SessionCount())
}

func TestSinkCanStartNextSession(t *testing.T) {
	drv := NewMockDriver()
	ctrl := NewController(drv)
	restarted := false
	ctrl.SetSink(func(o Outcome) (string, bool) {
		if !restarted {
			restarted = true
			ctrl.Start()
		}
		return "done", true
	})

	ctrl.Start()
	first := drv.Last()
	first.Fail(ErrTimeout)

	require.Equal(t, 2, drv.SessionCount())
	assert.NotSame(t, first, ctrl.Handle())
	assert.Equal(t, StateActive, ctrl.State())
}

func TestCancelEndsSessionAsUserCanceled(t *testing.T) {
	drv := NewMockDriver()
	rec := newRecordingSink("cancelled")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Cancel() // idle: nothing to cancel
	assert.Empty(t, rec.outcomes)

	ctrl.Start()
	ctrl.Cancel()

	require.Len(t, rec.outcomes, 1)
	assert.True(t, IsCode(rec.outcomes[0].Err, CodeUserCanceled))
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestStaleCallbacksAreIgnored(t *testing.T) {
	drv := NewMockDriver()
	rec := newRecordingSink("x")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Start()
	old := drv.Last()
	old.Fail(ErrTimeout)
	ctrl.Start()
	current := drv.Last()

	ctrl.SessionDetected(old, textMessages("stale"))
	ctrl.SessionInvalidated(old, ErrTimeout)

	assert.Len(t, rec.outcomes, 1)
	assert.Same(t, current, ctrl.Handle())
}

func TestStateChangeNotifications(t *testing.T) {
	drv := NewMockDriver()
	var states []State
	ctrl := NewController(drv, WithOnStateChange(func(s State) {
		states = append(states, s)
	}))

	ctrl.Start()
	ctrl.Start()
	drv.Last().Detect(textMessages("x"))

	assert.Equal(t, []State{StateActive, StateIdle}, states)
}

func TestProbeRunsOnEveryStart(t *testing.T) {
	drv := NewMockDriver()
	ctrl := NewController(drv)

	ctrl.Start()
	ctrl.Start()

	assert.Equal(t, 2, drv.ProbeCount)
}

func TestUnsupportedWhileActiveLeavesLiveSession(t *testing.T) {
	drv := NewMockDriver()
	rec := newRecordingSink("shown")
	ctrl := NewController(drv)
	ctrl.SetSink(rec.sink)

	ctrl.Start()
	live := drv.Last()
	drv.Available = false
	ctrl.Start()

	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, KindUnsupported, rec.outcomes[0].Kind)
	assert.Equal(t, 1, drv.SessionCount())
	assert.Same(t, live, ctrl.Handle())
	assert.False(t, live.Invalidated)
	assert.Equal(t, StateActive, ctrl.State())

	live.Detect(textMessages("ada"))
	live.Echo(ErrFirstTagRead)

	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, KindSuccess, rec.outcomes[1].Kind)
	assert.Nil(t, ctrl.Handle())
}
