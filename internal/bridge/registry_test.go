package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) Handler {
	return HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		return OK(name), nil
	})
}

func handlerName(t *testing.T, h Handler, msgType string) string {
	t.Helper()
	resp, err := h.HandleMessage(context.Background(), msgType, nil)
	require.NoError(t, err)
	name, ok := resp.Data.(string)
	require.True(t, ok)
	return name
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("TASK_", named("task")))
	require.NoError(t, r.Register("TASKS_", named("tasks")))

	h, ok := r.Lookup("TASKS_CREATE")
	require.True(t, ok)
	assert.Equal(t, "task", handlerName(t, h, "TASKS_CREATE"))
}

func TestRegistry_FirstMatchWinsReversedOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("TASKS_", named("tasks")))
	require.NoError(t, r.Register("TASK_", named("task")))

	h, ok := r.Lookup("TASKS_CREATE")
	require.True(t, ok)
	assert.Equal(t, "tasks", handlerName(t, h, "TASKS_CREATE"))

	h, ok = r.Lookup("TASK_X")
	require.True(t, ok)
	assert.Equal(t, "task", handlerName(t, h, "TASK_X"))
}

func TestRegistry_NoMatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("USERS_", named("users")))

	_, ok := r.Lookup("TASKS_GET_ALL")
	assert.False(t, ok)
	assert.False(t, r.IsRoutable("TASKS_GET_ALL"))
	assert.True(t, r.IsRoutable("USERS_GET_ALL"))
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register("", named("x")), ErrInvalidPrefix)
	assert.ErrorIs(t, r.Register("X_", nil), ErrNilHandler)
	assert.Equal(t, 0, r.Len())
	assert.Panics(t, func() { r.MustRegister("", named("x")) })
}

func TestRegistry_ListPrefixesKeepsOrderAndDuplicates(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("TASKS_", named("a"))
	r.MustRegister("USERS_", named("b"))
	r.MustRegister("TASKS_", named("c"))

	assert.Equal(t, []string{"TASKS_", "USERS_", "TASKS_"}, r.ListPrefixes())

	h, ok := r.Lookup("TASKS_GET_ALL")
	require.True(t, ok)
	assert.Equal(t, "a", handlerName(t, h, "TASKS_GET_ALL"))
}
