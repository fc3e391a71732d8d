package aspect

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/plugin"
)

// Lifecycle actions.
const (
	ActionPromote = "promote"
	ActionDemote  = "demote"
)

// Lifecycle moves resources through an ordered list of states.
type Lifecycle struct {
	states []string

	mu      sync.RWMutex
	current map[string]int
}

type lifecycleConfig struct {
	States []string `mapstructure:"states"`
}

func newLifecycle(props plugin.Properties) (Aspect, error) {
	var cfg lifecycleConfig
	if err := props.Decode(&cfg); err != nil {
		return nil, err
	}
	return NewLifecycle(cfg.States)
}

// NewLifecycle creates a lifecycle over states, which must be non-empty
// and unique.
func NewLifecycle(states []string) (*Lifecycle, error) {
	if len(states) == 0 {
		return nil, errors.New("lifecycle needs at least one state")
	}
	for i, s := range states {
		if slices.Contains(states[:i], s) {
			return nil, fmt.Errorf("lifecycle state %q listed twice", s)
		}
	}
	return &Lifecycle{states: slices.Clone(states), current: make(map[string]int)}, nil
}

// States returns the configured states in order.
func (l *Lifecycle) States() []string {
	return slices.Clone(l.states)
}

// State returns the current state of path.
func (l *Lifecycle) State(path string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.current[path]
	if !ok {
		return "", false
	}
	return l.states[i], true
}

// Associate puts path into the first state.
func (l *Lifecycle) Associate(path string) error {
	l.mu.Lock()
	l.current[path] = 0
	l.mu.Unlock()
	return nil
}

// Dissociate forgets path.
func (l *Lifecycle) Dissociate(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.current[path]; !ok {
		return fmt.Errorf("%s: %w", path, ErrNotAssociated)
	}
	delete(l.current, path)
	return nil
}

// Actions implements Aspect.
func (l *Lifecycle) Actions(rc *handler.RequestContext) []string {
	l.mu.RLock()
	i, ok := l.current[rc.EffectivePath()]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	var actions []string
	if i < len(l.states)-1 {
		actions = append(actions, ActionPromote)
	}
	if i > 0 {
		actions = append(actions, ActionDemote)
	}
	return actions
}

// Invoke implements Aspect. The new state is left in rc.Result.
func (l *Lifecycle) Invoke(rc *handler.RequestContext, action string) error {
	path := rc.EffectivePath()

	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.current[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotAssociated)
	}
	switch {
	case action == ActionPromote && i < len(l.states)-1:
		i++
	case action == ActionDemote && i > 0:
		i--
	default:
		return fmt.Errorf("%q in state %q: %w", action, l.states[i], ErrInvalidAction)
	}
	l.current[path] = i
	rc.Result = l.states[i]
	log.Debug(log.CatAspect, "lifecycle state changed", "path", path, "action", action, "state", l.states[i])
	return nil
}
