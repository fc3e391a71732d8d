package handler

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zjrosen/regd/internal/plugin"
)

// ErrNoEditProcessor is returned by EditManager.Process for an
// unregistered key.
var ErrNoEditProcessor = errors.New("no edit processor registered")

// EditManager maps processor keys to edit processors.
type EditManager struct {
	mu         sync.RWMutex
	processors map[string]EditProcessor
}

// NewEditManager creates an empty manager.
func NewEditManager() *EditManager {
	return &EditManager{processors: make(map[string]EditProcessor)}
}

// Add registers p under key, replacing any earlier processor.
func (e *EditManager) Add(key string, p EditProcessor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processors[key] = p
}

// Get returns the processor registered under key.
func (e *EditManager) Get(key string) (EditProcessor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.processors[key]
	return p, ok
}

// Keys returns the registered keys, sorted.
func (e *EditManager) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.processors))
	for k := range e.processors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Process runs the processor registered under key. It reports whether the
// processor handled the edit.
func (e *EditManager) Process(key string, rc *RequestContext) (bool, error) {
	p, ok := e.Get(key)
	if !ok {
		return false, fmt.Errorf("%q: %w", key, ErrNoEditProcessor)
	}
	return p.Process(rc)
}

// PropEditContent is the request property read by TextEditProcessor.
const PropEditContent = "edit.content"

// TextEditProcessor replaces the resource content with the text in the
// edit.content request property.
type TextEditProcessor struct {
	MediaType string `mapstructure:"mediaType"`
}

// Process implements EditProcessor.
func (p *TextEditProcessor) Process(rc *RequestContext) (bool, error) {
	if rc.Resource == nil {
		return false, nil
	}
	v, ok := rc.Property(PropEditContent)
	if !ok {
		return false, nil
	}
	text, ok := v.(string)
	if !ok {
		return false, fmt.Errorf("%s must be a string, got %T", PropEditContent, v)
	}
	rc.Resource.Content = []byte(text)
	rc.Resource.MediaType = p.MediaType
	return true, nil
}

func newTextEditProcessor(props plugin.Properties) (EditProcessor, error) {
	p := &TextEditProcessor{MediaType: "text/plain"}
	if err := props.Decode(p); err != nil {
		return nil, err
	}
	return p, nil
}
