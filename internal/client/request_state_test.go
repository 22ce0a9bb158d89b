package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidebridge/internal/bridge"
)

type item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// gatedCaller holds each call until the test releases it by message type.
type gatedCaller struct {
	mu      sync.Mutex
	gates   map[string]chan bridge.Response
	started chan string
	calls   int
}

func newGatedCaller() *gatedCaller {
	return &gatedCaller{
		gates:   make(map[string]chan bridge.Response),
		started: make(chan string, 16),
	}
}

func (g *gatedCaller) gate(msgType string) chan bridge.Response {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[msgType]
	if !ok {
		ch = make(chan bridge.Response, 1)
		g.gates[msgType] = ch
	}
	return ch
}

func (g *gatedCaller) Call(ctx context.Context, msgType string, data any) bridge.Response {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	gate := g.gate(msgType)
	g.started <- msgType
	select {
	case resp := <-gate:
		return resp
	case <-ctx.Done():
		return bridge.Fail(ctx.Err().Error())
	}
}

func (g *gatedCaller) release(msgType string, resp bridge.Response) {
	g.gate(msgType) <- resp
}

func (g *gatedCaller) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// wireOK mimics a response that crossed a channel.
func wireOK(t *testing.T, v any) bridge.Response {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bridge.OK(json.RawMessage(raw))
}

type stateLog[T any] struct {
	mu     sync.Mutex
	states []State[T]
}

func (l *stateLog[T]) record(s State[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog[T]) loadings() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bool, 0, len(l.states))
	for _, s := range l.states {
		out = append(out, s.Loading)
	}
	return out
}

func TestRequestState_AutoLoadOnMount(t *testing.T) {
	caller := newGatedCaller()
	log := &stateLog[[]item]{}

	state := Mount[[]item](context.Background(), caller, Options{AutoLoad: "TASKS_GET_ALL"}, log.record)
	defer state.Unmount()

	assert.True(t, state.Snapshot().Loading)
	assert.Equal(t, "TASKS_GET_ALL", <-caller.started)

	caller.release("TASKS_GET_ALL", wireOK(t, []item{{ID: "task_1", Title: "Buy milk"}}))
	state.Wait()

	final := state.Snapshot()
	assert.False(t, final.Loading)
	assert.Empty(t, final.Error)
	require.NotNil(t, final.Data)
	assert.Equal(t, "Buy milk", (*final.Data)[0].Title)
	assert.Equal(t, []bool{true, false}, log.loadings())
	assert.Equal(t, 1, caller.callCount())
}

func TestRequestState_SendFailureClearsData(t *testing.T) {
	caller := newGatedCaller()
	state := Mount[item](context.Background(), caller, Options{}, nil)
	defer state.Unmount()

	caller.release("TASKS_GET_BY_ID", wireOK(t, item{ID: "task_1"}))
	resp := state.Send(context.Background(), "TASKS_GET_BY_ID", map[string]string{"id": "task_1"})
	require.True(t, resp.Success)
	require.NotNil(t, state.Snapshot().Data)

	caller.release("TASKS_GET_BY_ID", bridge.Fail("Task with ID task_2 not found"))
	resp = state.Send(context.Background(), "TASKS_GET_BY_ID", map[string]string{"id": "task_2"})
	assert.False(t, resp.Success)

	snap := state.Snapshot()
	assert.Nil(t, snap.Data)
	assert.False(t, snap.Loading)
	assert.Equal(t, "Task with ID task_2 not found", snap.Error)
}

func TestRequestState_FailureWithoutErrorText(t *testing.T) {
	caller := newGatedCaller()
	state := Mount[item](context.Background(), caller, Options{}, nil)
	defer state.Unmount()

	caller.release("X", bridge.Response{Success: false})
	state.Send(context.Background(), "X", nil)
	assert.Equal(t, "Unknown error", state.Snapshot().Error)
}

func TestRequestState_SendKeepsDataWhileLoading(t *testing.T) {
	caller := newGatedCaller()
	state := Mount[item](context.Background(), caller, Options{}, nil)
	defer state.Unmount()

	caller.release("A", wireOK(t, item{ID: "a"}))
	state.Send(context.Background(), "A", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		state.Send(context.Background(), "B", nil)
	}()
	<-caller.started
	<-caller.started

	during := state.Snapshot()
	assert.True(t, during.Loading)
	require.NotNil(t, during.Data)
	assert.Equal(t, "a", during.Data.ID)

	caller.release("B", wireOK(t, item{ID: "b"}))
	<-done
	assert.Equal(t, "b", state.Snapshot().Data.ID)
}

func TestRequestState_ReloadWithoutAutoLoad(t *testing.T) {
	caller := newGatedCaller()
	state := Mount[item](context.Background(), caller, Options{}, nil)
	defer state.Unmount()

	resp := state.Reload(context.Background())
	assert.False(t, resp.Success)
	assert.Equal(t, "No autoLoad message configured", resp.Error)
	assert.Equal(t, 0, caller.callCount())
	assert.Equal(t, State[item]{}, state.Snapshot())
}

func TestRequestState_ReloadReissuesAutoLoad(t *testing.T) {
	caller := newGatedCaller()
	state := Mount[[]item](context.Background(), caller, Options{AutoLoad: "TASKS_GET_ALL"}, nil)
	defer state.Unmount()

	caller.release("TASKS_GET_ALL", wireOK(t, []item{}))
	state.Wait()

	caller.release("TASKS_GET_ALL", wireOK(t, []item{{ID: "task_9"}}))
	resp := state.Reload(context.Background())
	assert.True(t, resp.Success)
	assert.Equal(t, 2, caller.callCount())
	assert.Equal(t, "task_9", (*state.Snapshot().Data)[0].ID)
}

func TestRequestState_ResetSkipsTransport(t *testing.T) {
	caller := newGatedCaller()
	state := Mount[item](context.Background(), caller, Options{}, nil)
	defer state.Unmount()

	caller.release("A", bridge.Fail("boom"))
	state.Send(context.Background(), "A", nil)
	require.Equal(t, "boom", state.Snapshot().Error)

	state.Reset()
	assert.Equal(t, State[item]{}, state.Snapshot())
	assert.Equal(t, 1, caller.callCount())
}

// overlapping issues A then B and settles them in the given order.
func overlapping(t *testing.T, policy Policy, settleFirst, settleSecond string) State[item] {
	t.Helper()
	caller := newGatedCaller()
	state := Mount[item](context.Background(), caller, Options{Policy: policy}, nil)
	defer state.Unmount()

	var wg sync.WaitGroup
	for _, msgType := range []string{"A", "B"} {
		wg.Add(1)
		go func(msgType string) {
			defer wg.Done()
			state.Send(context.Background(), msgType, nil)
		}(msgType)
		require.Equal(t, msgType, <-caller.started)
	}

	caller.release(settleFirst, wireOK(t, item{ID: settleFirst}))
	require.Eventually(t, func() bool {
		s := state.Snapshot()
		return (s.Data != nil && s.Data.ID == settleFirst) || policy == LatestIssued
	}, time.Second, time.Millisecond)
	caller.release(settleSecond, wireOK(t, item{ID: settleSecond}))
	wg.Wait()
	return state.Snapshot()
}

func TestRequestState_LatestIssuedKeepsNewestSend(t *testing.T) {
	final := overlapping(t, LatestIssued, "B", "A")
	require.NotNil(t, final.Data)
	assert.Equal(t, "B", final.Data.ID)
	assert.False(t, final.Loading)

	final = overlapping(t, LatestIssued, "A", "B")
	require.NotNil(t, final.Data)
	assert.Equal(t, "B", final.Data.ID)
}

func TestRequestState_ArrivalOrderLastSettlementWins(t *testing.T) {
	final := overlapping(t, ArrivalOrder, "B", "A")
	require.NotNil(t, final.Data)
	assert.Equal(t, "A", final.Data.ID)

	final = overlapping(t, ArrivalOrder, "A", "B")
	require.NotNil(t, final.Data)
	assert.Equal(t, "B", final.Data.ID)
}

func TestRequestState_LatestIssuedStaysLoadingUntilNewestSettles(t *testing.T) {
	caller := newGatedCaller()
	state := Mount[item](context.Background(), caller, Options{}, nil)
	defer state.Unmount()

	var wg sync.WaitGroup
	for _, msgType := range []string{"A", "B"} {
		wg.Add(1)
		go func(msgType string) {
			defer wg.Done()
			state.Send(context.Background(), msgType, nil)
		}(msgType)
		<-caller.started
	}

	caller.release("A", wireOK(t, item{ID: "A"}))
	time.Sleep(10 * time.Millisecond)
	assert.True(t, state.Snapshot().Loading)

	caller.release("B", wireOK(t, item{ID: "B"}))
	wg.Wait()
	assert.False(t, state.Snapshot().Loading)
}

func TestRequestState_ResetDropsInFlightSettlement(t *testing.T) {
	caller := newGatedCaller()
	state := Mount[item](context.Background(), caller, Options{}, nil)
	defer state.Unmount()

	done := make(chan bridge.Response, 1)
	go func() { done <- state.Send(context.Background(), "A", nil) }()
	<-caller.started

	state.Reset()
	caller.release("A", wireOK(t, item{ID: "A"}))
	resp := <-done

	assert.True(t, resp.Success)
	assert.Equal(t, State[item]{}, state.Snapshot())
}

func TestRequestState_UnmountCancelsInFlight(t *testing.T) {
	caller := newGatedCaller()
	log := &stateLog[item]{}
	state := Mount[item](context.Background(), caller, Options{AutoLoad: "SLOW"}, log.record)
	<-caller.started

	state.Unmount()
	state.Wait()

	assert.Equal(t, []bool{true}, log.loadings())
}

func TestRequestState_ThroughTransport(t *testing.T) {
	registry := bridge.NewRegistry()
	registry.MustRegister("TASKS_", bridge.HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (bridge.Response, error) {
		return bridge.OK([]item{{ID: "task_1", Title: "Buy milk"}}), nil
	}))
	dispatcher := bridge.NewDispatcher(registry)
	transport := bridge.NewTransport(bridge.NewLocalChannel(dispatcher, bridge.Sender{Surface: "sidepanel"}))

	state := Mount[[]item](context.Background(), transport, Options{AutoLoad: "TASKS_GET_ALL"}, nil)
	defer state.Unmount()
	state.Wait()

	snap := state.Snapshot()
	require.NotNil(t, snap.Data)
	assert.Len(t, *snap.Data, 1)

	broken := Mount[[]item](context.Background(), bridge.NewTransport(bridge.NewLocalChannel(nil, bridge.Sender{})), Options{AutoLoad: "TASKS_GET_ALL"}, nil)
	defer broken.Unmount()
	broken.Wait()
	assert.Equal(t, bridge.ErrNoReceiver.Error(), broken.Snapshot().Error)
	assert.Nil(t, broken.Snapshot().Data)
}
