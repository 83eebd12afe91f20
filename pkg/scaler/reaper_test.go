package scaler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/scaled/pkg/kv"
)

func pushTimeout(t *testing.T, q *fakeTimeoutQueue, msg kv.TimeoutMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	q.ch <- data
}

func TestReaperStopsReportedContainers(t *testing.T) {
	ts := newTestScaler(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.processTimeouts()
	}()

	pushTimeout(t, ts.timeout, kv.TimeoutMessage{Service: "extract", Container: "extract-0"})
	pushTimeout(t, ts.timeout, kv.TimeoutMessage{Service: "sandbox", Container: "sandbox-3"})

	assert.Eventually(t, func() bool {
		ts.ctrl.mu.Lock()
		defer ts.ctrl.mu.Unlock()
		return len(ts.ctrl.stoppedContainers) == 2
	}, 5*time.Second, 10*time.Millisecond)

	ts.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}

	ts.ctrl.mu.Lock()
	defer ts.ctrl.mu.Unlock()
	assert.Contains(t, ts.ctrl.stoppedContainers, [2]string{"extract", "extract-0"})
	assert.Contains(t, ts.ctrl.stoppedContainers, [2]string{"sandbox", "sandbox-3"})
}

func TestReaperDiscardsMalformedMessages(t *testing.T) {
	ts := newTestScaler(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.processTimeouts()
	}()

	ts.timeout.ch <- []byte("not json")
	pushTimeout(t, ts.timeout, kv.TimeoutMessage{Service: "extract", Container: "extract-0"})

	assert.Eventually(t, func() bool {
		ts.ctrl.mu.Lock()
		defer ts.ctrl.mu.Unlock()
		return len(ts.ctrl.stoppedContainers) == 1
	}, 5*time.Second, 10*time.Millisecond)

	ts.Stop()
	<-done
}

func TestTimeoutMessageRoundTrip(t *testing.T) {
	q := newFakeTimeoutQueue()
	pushTimeout(t, q, kv.TimeoutMessage{Service: "extract", Container: "extract-0"})

	data, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	var msg kv.TimeoutMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "extract", msg.Service)
}
