package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/tenant"
)

var always = FilterFunc(func(*RequestContext) (bool, error) { return true, nil })

var never = FilterFunc(func(*RequestContext) (bool, error) { return false, nil })

// recorder returns a handler appending name to calls, optionally completing
// the request or failing.
type recorder struct {
	name     string
	calls    *[]string
	complete bool
	err      error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Handle(rc *RequestContext) error {
	*r.calls = append(*r.calls, r.name)
	if r.complete {
		rc.SetProcessingComplete(true)
	}
	return r.err
}

func newRC(m method.Method, path string) *RequestContext {
	return NewRequestContext(context.Background(), m, path)
}

func TestManager_InsertionOrderAndPriority(t *testing.T) {
	var calls []string
	m := NewManager(false)
	m.Add(0, nil, always, &recorder{name: "a", calls: &calls})
	m.Add(0, nil, always, &recorder{name: "b", calls: &calls})
	m.AddWithPriority(0, nil, always, &recorder{name: "p", calls: &calls})

	require.NoError(t, m.Dispatch(newRC(method.Get, "/x")))
	require.Equal(t, []string{"p", "a", "b"}, calls)
	require.Equal(t, 3, m.Len())
}

func TestManager_MethodsRestrictHandlers(t *testing.T) {
	var calls []string
	m := NewManager(false)
	m.Add(0, []method.Method{method.Put}, always, &recorder{name: "put", calls: &calls})
	m.Add(0, nil, always, &recorder{name: "all", calls: &calls})
	m.Add(0, []method.Method{}, always, &recorder{name: "none", calls: &calls})

	require.NoError(t, m.Dispatch(newRC(method.Get, "/x")))
	require.Equal(t, []string{"all"}, calls)

	calls = nil
	require.NoError(t, m.Dispatch(newRC(method.Put, "/x")))
	require.Equal(t, []string{"put", "all"}, calls)
}

func TestManager_FilterMismatchSkipsHandlers(t *testing.T) {
	var calls []string
	m := NewManager(false)
	m.Add(0, nil, never, &recorder{name: "skipped", calls: &calls})
	m.Add(0, nil, always, &recorder{name: "run", calls: &calls})

	require.NoError(t, m.Dispatch(newRC(method.Get, "/x")))
	require.Equal(t, []string{"run"}, calls)
}

func TestManager_StopsOnComplete(t *testing.T) {
	var calls []string
	m := NewManager(false)
	m.Add(0, nil, always, &recorder{name: "first", calls: &calls, complete: true})
	m.Add(0, nil, always, &recorder{name: "second", calls: &calls})

	require.NoError(t, m.Dispatch(newRC(method.Get, "/x")))
	require.Equal(t, []string{"first"}, calls)
}

func TestManager_EvaluateAllIgnoresComplete(t *testing.T) {
	var calls []string
	m := NewManager(true)
	m.Add(0, nil, always, &recorder{name: "first", calls: &calls, complete: true})
	m.Add(0, nil, always, &recorder{name: "second", calls: &calls})

	require.NoError(t, m.Dispatch(newRC(method.Get, "/x")))
	require.Equal(t, []string{"first", "second"}, calls)

	// Simulation stops even when every handler is evaluated.
	calls = nil
	rc := newRC(method.Get, "/x")
	rc.Simulation = true
	require.NoError(t, m.Dispatch(rc))
	require.Equal(t, []string{"first"}, calls)
}

func TestManager_HandlerError(t *testing.T) {
	boom := errors.New("boom")
	var calls []string
	m := NewManager(false)
	m.Add(0, nil, always, &recorder{name: "failing", calls: &calls, err: boom})
	m.Add(0, nil, always, &recorder{name: "after", calls: &calls})

	rc := newRC(method.Put, "/x")
	err := m.Dispatch(rc)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "handler failing")
	require.Equal(t, []string{"failing"}, calls)

	exec, ok := rc.ExecutionStatus("failing")
	require.True(t, ok)
	require.False(t, exec.Succeeded())
}

func TestManager_SimulationSwallowsErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls []string
	m := NewManager(false)
	m.Add(0, nil, always, &recorder{name: "failing", calls: &calls, err: boom})
	m.Add(0, nil, always, &recorder{name: "after", calls: &calls})

	rc := newRC(method.Put, "/x")
	rc.Simulation = true
	require.NoError(t, m.Dispatch(rc))
	require.Equal(t, []string{"failing"}, calls)
	require.Len(t, rc.Executions(), 1)
	require.ErrorIs(t, rc.Executions()[0].Err, boom)
}

func TestManager_FilterError(t *testing.T) {
	bad := FilterFunc(func(*RequestContext) (bool, error) { return false, errors.New("bad regex") })
	m := NewManager(false)
	var calls []string
	m.Add(0, nil, bad, &recorder{name: "h", calls: &calls})

	require.ErrorContains(t, m.Dispatch(newRC(method.Get, "/x")), "bad regex")
	require.Empty(t, calls)
}

func TestManager_Remove(t *testing.T) {
	var calls []string
	m := NewManager(false)
	id := m.Add(0, nil, always, &recorder{name: "a", calls: &calls})
	m.Add(0, nil, always, &recorder{name: "b", calls: &calls})

	require.True(t, m.Remove(id))
	require.False(t, m.Remove(id))
	require.NoError(t, m.Dispatch(newRC(method.Get, "/x")))
	require.Equal(t, []string{"b"}, calls)
}

func TestManager_SharedFilterGroupsHandlers(t *testing.T) {
	u, err := MatchAll("/a.*")
	require.NoError(t, err)
	other, err := MatchAll("/.*")
	require.NoError(t, err)

	var calls []string
	m := NewManager(false)
	m.Add(0, nil, u, &recorder{name: "u1", calls: &calls})
	m.Add(0, nil, other, &recorder{name: "o", calls: &calls})
	m.Add(0, nil, u, &recorder{name: "u2", calls: &calls})

	require.NoError(t, m.Dispatch(newRC(method.Get, "/ab")))
	require.Equal(t, []string{"u1", "u2", "o"}, calls)

	infos := m.Handlers()
	require.Len(t, infos, 3)
	require.Equal(t, KeyURLMatcher, infos[0].Filter)
	require.Equal(t, "u1", infos[0].Handler)
}

func TestTenantManager(t *testing.T) {
	var calls []string
	tm := NewTenantManager(false)
	tm.Add(7, nil, always, &recorder{name: "t7", calls: &calls})
	tm.Add(tenant.InvalidID, nil, always, &recorder{name: "super", calls: &calls})

	rc := newRC(method.Get, "/x")
	rc.TenantID = 7
	require.NoError(t, tm.Dispatch(rc))
	require.Equal(t, []string{"t7"}, calls)

	calls = nil
	require.NoError(t, tm.Dispatch(newRC(method.Get, "/x")))
	require.Equal(t, []string{"super"}, calls, "invalid tenant registers for the super tenant")

	calls = nil
	rc = newRC(method.Get, "/x")
	rc.TenantID = 99
	require.NoError(t, tm.Dispatch(rc))
	require.Empty(t, calls)

	require.ElementsMatch(t, []int{7, tenant.SuperID}, tm.Tenants())
	require.Len(t, tm.Handlers(), 2)
}
