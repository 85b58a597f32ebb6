package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omex-energy/omex/pkg/olog"
)

type lifecycleEvent struct {
	status   Status
	fraction float64
	message  string
	result   *Result
}

func collectingCallbacks(events chan<- lifecycleEvent) Callbacks {
	return Callbacks{
		OnStatus: func(_ uuid.UUID, status Status) {
			events <- lifecycleEvent{status: status}
		},
		OnProgress: func(_ uuid.UUID, fraction float64, message string) {
			events <- lifecycleEvent{fraction: fraction, message: message}
		},
		OnFinished: func(_ uuid.UUID, result Result) {
			events <- lifecycleEvent{result: &result}
		},
	}
}

func nextEvent(t *testing.T, events <-chan lifecycleEvent) lifecycleEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for lifecycle event")
		return lifecycleEvent{}
	}
}

func TestLocal_Lifecycle(t *testing.T) {
	local := NewLocal(olog.NewDefault(), 0)
	events := make(chan lifecycleEvent, 8)

	jobID, err := local.Submit(context.Background(), SubmissionRequest{
		ESDL:         "<esdl/>",
		WorkflowType: "grow_simulator",
	}, collectingCallbacks(events))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, jobID)

	assert.Equal(t, StatusEnqueued, nextEvent(t, events).status)
	assert.Equal(t, StatusRunning, nextEvent(t, events).status)

	progress := nextEvent(t, events)
	assert.Equal(t, 0.5, progress.fraction)
	assert.Equal(t, "halfway", progress.message)

	assert.Equal(t, StatusFinished, nextEvent(t, events).status)

	final := nextEvent(t, events)
	require.NotNil(t, final.result)
	assert.Equal(t, ResultSucceeded, final.result.Type)
	assert.Equal(t, "<esdl/>", final.result.OutputESDL)
	assert.NotEmpty(t, final.result.Logs)
}

func TestLocal_Cancel(t *testing.T) {
	local := NewLocal(olog.NewDefault(), time.Hour)
	events := make(chan lifecycleEvent, 8)

	jobID, err := local.Submit(context.Background(), SubmissionRequest{
		WorkflowType: "grow_simulator",
	}, collectingCallbacks(events))
	require.NoError(t, err)

	require.NoError(t, local.Cancel(context.Background(), jobID, "grow_simulator"))

	assert.Equal(t, StatusCancelled, nextEvent(t, events).status)

	final := nextEvent(t, events)
	require.NotNil(t, final.result)
	assert.Equal(t, ResultCancelled, final.result.Type)

	// repeated and unknown cancels are a no-op
	require.NoError(t, local.Cancel(context.Background(), jobID, "grow_simulator"))
	require.NoError(t, local.Cancel(context.Background(), uuid.New(), "grow_simulator"))
}
