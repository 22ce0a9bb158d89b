package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type replyRecorder struct {
	mu        sync.Mutex
	responses []Response
}

func (r *replyRecorder) reply(resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
}

func (r *replyRecorder) all() []Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Response(nil), r.responses...)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingRecorder) ObserveMessage(route, outcome string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = make(map[string]int)
	}
	c.outcomes[route+"/"+outcome]++
}

func dispatchOnce(t *testing.T, d *Dispatcher, env Envelope) Response {
	t.Helper()
	rec := &replyRecorder{}
	d.Dispatch(context.Background(), Sender{Surface: "sidepanel"}, env, rec.reply)
	got := rec.all()
	require.Len(t, got, 1)
	return got[0]
}

func TestDispatcher_RoutesToRegisteredHandler(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("TASKS_", HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		return OK(map[string]string{"type": msgType}), nil
	}))
	d := NewDispatcher(r, WithLogger(quietLogger()))

	resp := dispatchOnce(t, d, Envelope{Type: "TASKS_GET_ALL"})
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.Equal(t, map[string]string{"type": "TASKS_GET_ALL"}, resp.Data)
}

func TestDispatcher_UnknownType(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("TASKS_", named("tasks"))
	r.MustRegister("USERS_", named("users"))
	d := NewDispatcher(r, WithLogger(quietLogger()))

	resp := dispatchOnce(t, d, Envelope{Type: "FOO_BAR"})
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown message type", resp.Error)
	assert.Contains(t, resp.Message, "FOO_BAR")
	assert.Contains(t, resp.Message, "TASKS_, USERS_")
}

func TestDispatcher_EmptyType(t *testing.T) {
	d := NewDispatcher(NewRegistry(), WithLogger(quietLogger()))
	resp := dispatchOnce(t, d, Envelope{})
	assert.False(t, resp.Success)
	assert.Equal(t, "Message type is required", resp.Error)
}

func TestDispatcher_HandlerErrorBecomesFailure(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("TASKS_", HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		return Response{}, errors.New("Task with ID task_1 not found")
	}))
	d := NewDispatcher(r, WithLogger(quietLogger()))

	resp := dispatchOnce(t, d, Envelope{Type: "TASKS_GET_BY_ID"})
	assert.False(t, resp.Success)
	assert.Equal(t, "Task with ID task_1 not found", resp.Error)
}

func TestDispatcher_HandlerPanicRepliesOnce(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("BOOM_", HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		panic("kaboom")
	}))
	r.MustRegister("ERR_", HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		panic(errors.New("bad state"))
	}))
	r.MustRegister("ODD_", HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		panic(42)
	}))
	d := NewDispatcher(r, WithLogger(quietLogger()))

	assert.Equal(t, "kaboom", dispatchOnce(t, d, Envelope{Type: "BOOM_NOW"}).Error)
	assert.Equal(t, "bad state", dispatchOnce(t, d, Envelope{Type: "ERR_NOW"}).Error)
	assert.Equal(t, "Unknown error", dispatchOnce(t, d, Envelope{Type: "ODD_NOW"}).Error)
}

func TestDispatcher_FailureWithoutErrorIsFilled(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("X_", HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		return Response{Success: false}, nil
	}))
	d := NewDispatcher(r, WithLogger(quietLogger()))

	resp := dispatchOnce(t, d, Envelope{Type: "X_Y"})
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown error", resp.Error)
}

func TestDispatcher_PanickingReplyDoesNotReplyTwice(t *testing.T) {
	d := NewDispatcher(NewRegistry(), WithLogger(quietLogger()))
	var calls int32
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Sender{}, Envelope{Type: TypeHealthCheck}, func(Response) {
			atomic.AddInt32(&calls, 1)
			panic("reply failed")
		})
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDispatcher_RegisteredPrefixShadowsBuiltin(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("HEALTH_", named("custom"))
	d := NewDispatcher(r, WithLogger(quietLogger()))

	resp := dispatchOnce(t, d, Envelope{Type: TypeHealthCheck})
	assert.True(t, resp.Success)
	assert.Equal(t, "custom", resp.Data)
}

func TestDispatcher_HealthCheck(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	d := NewDispatcher(NewRegistry(), WithLogger(quietLogger()), WithClock(func() time.Time { return fixed }))

	resp := dispatchOnce(t, d, Envelope{Type: TypeHealthCheck})
	require.True(t, resp.Success)
	assert.Equal(t, HealthStatus{Status: "healthy", Timestamp: 1700000000000}, resp.Data)
}

func TestDispatcher_GetTabInfo(t *testing.T) {
	d := NewDispatcher(NewRegistry(), WithLogger(quietLogger()))

	rec := &replyRecorder{}
	tab := &TabInfo{ID: 7, URL: "https://example.com", Active: true}
	d.Dispatch(context.Background(), Sender{Surface: "sidepanel", Tab: tab}, Envelope{Type: TypeGetTabInfo}, rec.reply)
	require.Len(t, rec.all(), 1)
	resp := rec.all()[0]
	require.True(t, resp.Success)
	var out TabInfoResult
	require.NoError(t, resp.DecodeData(&out))
	assert.Equal(t, 7, out.Tab.ID)

	failing := NewDispatcher(NewRegistry(), WithLogger(quietLogger()))
	resp = dispatchOnce(t, failing, Envelope{Type: TypeGetTabInfo})
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to get tab info", resp.Error)
}

func TestDispatcher_ProcessDataEchoes(t *testing.T) {
	d := NewDispatcher(NewRegistry(), WithLogger(quietLogger()))

	resp := dispatchOnce(t, d, Envelope{Type: TypeProcessData, Data: json.RawMessage(`{"x":1}`)})
	require.True(t, resp.Success)
	var out ProcessResult
	require.NoError(t, resp.DecodeData(&out))
	assert.True(t, out.Processed)
	assert.JSONEq(t, `{"x":1}`, string(out.Data))
}

func TestDispatcher_HandlerTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := NewRegistry()
	r.MustRegister("SLOW_", HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		<-release
		return OK("late"), nil
	}))
	d := NewDispatcher(r, WithLogger(quietLogger()), WithHandlerTimeout(20*time.Millisecond))

	resp := dispatchOnce(t, d, Envelope{Type: "SLOW_OP"})
	assert.False(t, resp.Success)
	assert.Equal(t, "Handler timed out: SLOW_OP", resp.Error)
}

func TestDispatcher_RateLimitPerSender(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDispatcher(NewRegistry(),
		WithLogger(quietLogger()),
		WithRateLimit(1, 2),
		WithClock(func() time.Time { return now }),
	)

	send := func(id string) Response {
		return d.Handle(context.Background(), Sender{ID: id}, Envelope{Type: TypeHealthCheck})
	}

	assert.True(t, send("a").Success)
	assert.True(t, send("a").Success)
	limited := send("a")
	assert.False(t, limited.Success)
	assert.Equal(t, "Rate limit exceeded", limited.Error)
	assert.Equal(t, http.StatusTooManyRequests, limited.Status)

	assert.True(t, send("b").Success)

	now = now.Add(time.Second)
	assert.True(t, send("a").Success)
}

func TestDispatcher_RecordsOutcomes(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("TASKS_", named("tasks"))
	counter := &countingRecorder{}
	d := NewDispatcher(r, WithLogger(quietLogger()), WithRecorder(counter))

	dispatchOnce(t, d, Envelope{Type: "TASKS_GET_ALL"})
	dispatchOnce(t, d, Envelope{Type: TypeHealthCheck})
	dispatchOnce(t, d, Envelope{Type: "NOPE"})

	assert.Equal(t, 1, counter.outcomes["TASKS_/success"])
	assert.Equal(t, 1, counter.outcomes["builtin/success"])
	assert.Equal(t, 1, counter.outcomes["unknown/failure"])
}

func TestDispatcher_ConcurrentRegistrationAndDispatch(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.MustRegister("TASKS_", named("tasks"))
		}()
		go func() {
			defer wg.Done()
			rec := &replyRecorder{}
			d.Dispatch(context.Background(), Sender{}, Envelope{Type: "TASKS_GET_ALL"}, rec.reply)
			assert.Len(t, rec.all(), 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())
}
